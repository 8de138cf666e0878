package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/absmach/cohort/estimator"
	"github.com/absmach/cohort/manager"
	"github.com/absmach/cohort/pkg/api"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Fits carry whole training sets.
const maxBodySize = 1024 * 1024 * 100

// MakeHandler serves the manager API. Start-fit bodies are decoded on top of
// defaults, so clients only send the settings they override.
func MakeHandler(svc manager.Service, defaults estimator.Config, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(api.LoggingErrorEncoder(logger, encodeError)),
	}

	mux.Route("/fits", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			startFitEndpoint(svc),
			decodeStartFitReq(defaults),
			api.EncodeResponse,
			opts...,
		), "start-fit").ServeHTTP)
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listFitsEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-fits").ServeHTTP)
		r.Route("/{fitID}", func(r chi.Router) {
			r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
				getFitEndpoint(svc),
				decodeEntityReq("fitID"),
				api.EncodeResponse,
				opts...,
			), "get-fit").ServeHTTP)
			r.Post("/cancel", otelhttp.NewHandler(kithttp.NewServer(
				cancelFitEndpoint(svc),
				decodeEntityReq("fitID"),
				api.EncodeResponse,
				opts...,
			), "cancel-fit").ServeHTTP)
			r.Post("/predict", otelhttp.NewHandler(kithttp.NewServer(
				predictEndpoint(svc),
				decodePredictReq,
				api.EncodeResponse,
				opts...,
			), "predict").ServeHTTP)
			r.Get("/rounds", otelhttp.NewHandler(kithttp.NewServer(
				listRoundsEndpoint(svc),
				decodeListRoundsReq,
				api.EncodeResponse,
				opts...,
			), "list-rounds").ServeHTTP)
		})
	})

	mux.Route("/workers", func(r chi.Router) {
		r.Get("/", otelhttp.NewHandler(kithttp.NewServer(
			listWorkersEndpoint(svc),
			decodeListEntityReq,
			api.EncodeResponse,
			opts...,
		), "list-workers").ServeHTTP)
		r.Get("/{workerID}", otelhttp.NewHandler(kithttp.NewServer(
			getWorkerEndpoint(svc),
			decodeEntityReq("workerID"),
			api.EncodeResponse,
			opts...,
		), "get-worker").ServeHTTP)
	})

	mux.Get("/health", api.Health("manager", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func encodeError(ctx context.Context, err error, w http.ResponseWriter) {
	var status int
	switch {
	case errors.Is(err, manager.ErrFitNotFinished), errors.Is(err, manager.ErrFitFinished):
		status = http.StatusConflict
	case errors.Is(err, manager.ErrNoWorkers), errors.Is(err, manager.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	default:
		api.EncodeError(ctx, err, w)

		return
	}

	w.Header().Set("Content-Type", api.ContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func decodeEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return entityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeStartFitReq(defaults estimator.Config) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
			return nil, errors.Join(api.ErrValidation, api.ErrUnsupportedContentType)
		}

		var req startFitReq
		req.Config = defaults
		req.Config.Hidden = append([]int(nil), defaults.Hidden...)
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
			return nil, errors.Join(err, api.ErrValidation)
		}

		return req, nil
	}
}

func decodePredictReq(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return nil, errors.Join(api.ErrValidation, api.ErrUnsupportedContentType)
	}

	var req predictReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Join(err, api.ErrValidation)
	}
	req.id = chi.URLParam(r, "fitID")

	return req, nil
}

func decodeListEntityReq(_ context.Context, r *http.Request) (any, error) {
	o, err := api.ReadNumQuery(r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(api.ErrValidation, err)
	}
	l, err := api.ReadNumQuery(r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(api.ErrValidation, err)
	}

	return listEntityReq{
		offset: o,
		limit:  l,
	}, nil
}

func decodeListRoundsReq(_ context.Context, r *http.Request) (any, error) {
	o, err := api.ReadNumQuery(r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(api.ErrValidation, err)
	}
	l, err := api.ReadNumQuery(r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(api.ErrValidation, err)
	}

	return listRoundsReq{
		id:     chi.URLParam(r, "fitID"),
		offset: o,
		limit:  l,
	}, nil
}
