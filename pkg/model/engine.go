package model

import (
	"fmt"
	"sort"
	"sync"

	"github.com/absmach/cohort/pkg/dataset"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/params"
)

// Engine is the numeric collaborator that knows how to build, train and run
// the model described by a Spec.
type Engine interface {
	Name() string
	// Init creates the version-0 parameters for spec.
	Init(spec Spec, seed uint64) (params.Set, error)
	// Step runs one gradient update over batch and writes the result into set.
	// set must be a worker-owned clone, never a published snapshot.
	Step(spec Spec, set params.Set, batch []dataset.Row) (float64, error)
	// Forward returns the class distribution, or the single regression value.
	Forward(spec Spec, set params.Set, features []float64) ([]float64, error)
	Evaluate(spec Spec, set params.Set, rows []dataset.Row) (loss, accuracy float64, err error)
}

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]Engine)
)

// Register makes an engine available under its name. It panics on duplicates,
// engines are registered from init functions.
func Register(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()

	if _, ok := engines[e.Name()]; ok {
		panic("model: engine registered twice: " + e.Name())
	}
	engines[e.Name()] = e
}

func Lookup(name string) (Engine, error) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()

	e, ok := engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pkgerrors.ErrUnknownEngine, name)
	}

	return e, nil
}

func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()

	names := make([]string, 0, len(engines))
	for n := range engines {
		names = append(names, n)
	}
	sort.Strings(names)

	return names
}
