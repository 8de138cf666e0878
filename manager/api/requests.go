package api

import (
	"github.com/absmach/cohort/manager"
	"github.com/absmach/cohort/pkg/api"
)

type startFitReq struct {
	manager.FitRequest `json:",inline"`
}

func (r *startFitReq) validate() error {
	if len(r.Rows) == 0 {
		return errMissingRows
	}

	return nil
}

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return api.ErrMissingID
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit < 1 || e.limit > api.MaxLimitSize {
		return api.ErrLimitSize
	}

	return nil
}

type listRoundsReq struct {
	id            string
	offset, limit uint64
}

func (e *listRoundsReq) validate() error {
	if e.id == "" {
		return api.ErrMissingID
	}
	if e.limit < 1 || e.limit > api.MaxLimitSize {
		return api.ErrLimitSize
	}

	return nil
}

type predictReq struct {
	id       string
	Features [][]float64 `json:"features"`
}

func (r *predictReq) validate() error {
	if r.id == "" {
		return api.ErrMissingID
	}
	if len(r.Features) == 0 {
		return errMissingFeatures
	}

	return nil
}
