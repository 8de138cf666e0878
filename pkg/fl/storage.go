package fl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/params"
)

// PersistentStorage keeps round records and published parameter versions as
// JSON files, one directory per fit.
type PersistentStorage struct {
	roundsDir string
	modelsDir string
	mu        sync.RWMutex
}

func NewPersistentStorage(roundsDir, modelsDir string) (*PersistentStorage, error) {
	if err := os.MkdirAll(roundsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create rounds directory: %w", err)
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &PersistentStorage{
		roundsDir: roundsDir,
		modelsDir: modelsDir,
	}, nil
}

func (ps *PersistentStorage) SaveRound(_ context.Context, fitID string, state RoundState) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	dir, err := fitDir(ps.roundsDir, fitID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create rounds directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal round state: %w", err)
	}

	roundFile := filepath.Join(dir, fmt.Sprintf("round_%06d.json", state.Round))
	if err := os.WriteFile(roundFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write round file: %w", err)
	}

	return nil
}

func (ps *PersistentStorage) ListRounds(_ context.Context, fitID string, offset, limit uint64) ([]RoundState, uint64, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	dir, err := fitDir(ps.roundsDir, fitID)
	if err != nil {
		return nil, 0, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "round_") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	total := uint64(len(names))
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)

	rounds := make([]RoundState, 0, end-offset)
	for _, name := range names[offset:end] {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read round file: %w", err)
		}
		var state RoundState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal round state: %w", err)
		}
		rounds = append(rounds, state)
	}

	return rounds, total, nil
}

func (ps *PersistentStorage) SaveParameters(_ context.Context, fitID string, set params.Set) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	dir, err := fitDir(ps.modelsDir, fitID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	modelFile := filepath.Join(dir, fmt.Sprintf("model_v%d.json", set.Version))
	if err := os.WriteFile(modelFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	return nil
}

func (ps *PersistentStorage) GetParameters(_ context.Context, fitID string, version uint64) (params.Set, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	dir, err := fitDir(ps.modelsDir, fitID)
	if err != nil {
		return params.Set{}, err
	}

	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("model_v%d.json", version)))
	if errors.Is(err, fs.ErrNotExist) {
		return params.Set{}, pkgerrors.ErrNotFound
	}
	if err != nil {
		return params.Set{}, fmt.Errorf("failed to read model file: %w", err)
	}

	var set params.Set
	if err := json.Unmarshal(data, &set); err != nil {
		return params.Set{}, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}

	return set, nil
}

func fitDir(root, fitID string) (string, error) {
	id := sanitizeID(fitID)
	if id == "" {
		return "", fmt.Errorf("%w: invalid fit id %q", pkgerrors.ErrEmptyKey, fitID)
	}

	return filepath.Join(root, id), nil
}

// sanitizeID keeps only characters that are safe in a single path element.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
