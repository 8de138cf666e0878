package api

import (
	"context"
	"errors"

	"github.com/absmach/cohort/manager"
	"github.com/absmach/cohort/pkg/api"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/go-kit/kit/endpoint"
)

var (
	errMissingRows     = errors.New("missing training rows")
	errMissingFeatures = errors.New("missing feature vectors")
)

func startFitEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(startFitReq)
		if !ok {
			return fitResponse{}, errors.Join(api.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return fitResponse{}, errors.Join(api.ErrValidation, err)
		}

		f, err := svc.StartFit(ctx, req.FitRequest)
		if err != nil {
			return fitResponse{}, err
		}

		return fitResponse{
			Fit:     f,
			created: true,
		}, nil
	}
}

func getFitEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return fitResponse{}, errors.Join(api.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return fitResponse{}, errors.Join(api.ErrValidation, err)
		}

		f, err := svc.GetFit(ctx, req.id)
		if err != nil {
			return fitResponse{}, err
		}

		return fitResponse{
			Fit: f,
		}, nil
	}
}

func listFitsEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listFitResponse{}, errors.Join(api.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listFitResponse{}, errors.Join(api.ErrValidation, err)
		}

		page, err := svc.ListFits(ctx, req.offset, req.limit)
		if err != nil {
			return listFitResponse{}, err
		}

		return listFitResponse{
			FitPage: page,
		}, nil
	}
}

func cancelFitEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return cancelFitResponse{}, errors.Join(api.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return cancelFitResponse{}, errors.Join(api.ErrValidation, err)
		}

		if err := svc.CancelFit(ctx, req.id); err != nil {
			return cancelFitResponse{}, err
		}

		return cancelFitResponse{}, nil
	}
}

func predictEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(predictReq)
		if !ok {
			return predictResponse{}, errors.Join(api.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return predictResponse{}, errors.Join(api.ErrValidation, err)
		}

		preds, err := svc.Predict(ctx, req.id, req.Features)
		if err != nil {
			return predictResponse{}, err
		}

		return predictResponse{
			Predictions: preds,
		}, nil
	}
}

func listRoundsEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listRoundsReq)
		if !ok {
			return listRoundResponse{}, errors.Join(api.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listRoundResponse{}, errors.Join(api.ErrValidation, err)
		}

		page, err := svc.ListRounds(ctx, req.id, req.offset, req.limit)
		if err != nil {
			return listRoundResponse{}, err
		}

		return listRoundResponse{
			RoundPage: page,
		}, nil
	}
}

func getWorkerEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return workerResponse{}, errors.Join(api.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return workerResponse{}, errors.Join(api.ErrValidation, err)
		}

		w, err := svc.GetWorker(ctx, req.id)
		if err != nil {
			return workerResponse{}, err
		}

		return workerResponse{
			Worker: w,
		}, nil
	}
}

func listWorkersEndpoint(svc manager.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listEntityReq)
		if !ok {
			return listWorkerResponse{}, errors.Join(api.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listWorkerResponse{}, errors.Join(api.ErrValidation, err)
		}

		page, err := svc.ListWorkers(ctx, req.offset, req.limit)
		if err != nil {
			return listWorkerResponse{}, err
		}

		return listWorkerResponse{
			WorkerPage: page,
		}, nil
	}
}
