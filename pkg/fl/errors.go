package fl

import (
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

var (
	ErrNoUpdates     = pkgerrors.ErrNoUpdatesReceived
	ErrOverflow      = errors.New("sample count overflow during aggregation")
	ErrUnknownPolicy = fmt.Errorf("%w: unknown aggregation policy", pkgerrors.ErrInvalidConfiguration)
)
