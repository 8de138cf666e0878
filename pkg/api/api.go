package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	kithttp "github.com/go-kit/kit/transport/http"
)

const (
	OffsetKey = "offset"
	LimitKey  = "limit"
	DefOffset = 0
	DefLimit  = 100

	ContentType = "application/json"

	MaxLimitSize = 100
)

var (
	ErrValidation              = errors.New("invalid request")
	ErrMissingID               = errors.New("missing entity id")
	ErrUnsupportedContentType  = errors.New("unsupported content type")
	ErrLimitSize               = fmt.Errorf("limit must be between 1 and %d", MaxLimitSize)
	ErrInvalidQueryParams      = errors.New("invalid query parameters")
	errUnexpectedServiceFailed = errors.New("unexpected service failure")
)

// Response carries the status code, headers and emptiness of a reply.
type Response interface {
	Code() int
	Headers() map[string]string
	Empty() bool
}

func EncodeResponse(_ context.Context, w http.ResponseWriter, response any) error {
	if ar, ok := response.(Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	}

	return json.NewEncoder(w).Encode(response)
}

type errorRes struct {
	Err string `json:"error"`
}

// ErrorStatus maps the error taxonomy to HTTP status codes.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrValidation),
		errors.Is(err, pkgerrors.ErrEmptyKey),
		errors.Is(err, pkgerrors.ErrInvalidConfiguration),
		errors.Is(err, pkgerrors.ErrShapeMismatch),
		errors.Is(err, pkgerrors.ErrUnknownEngine):
		return http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrEntityExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	status := ErrorStatus(err)
	w.WriteHeader(status)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = errUnexpectedServiceFailed.Error()
	}
	if err := json.NewEncoder(w).Encode(errorRes{Err: msg}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// LoggingErrorEncoder logs server errors before encoding them with enc.
func LoggingErrorEncoder(logger *slog.Logger, enc kithttp.ErrorEncoder) kithttp.ErrorEncoder {
	return func(ctx context.Context, err error, w http.ResponseWriter) {
		if ErrorStatus(err) == http.StatusInternalServerError {
			logger.Error("request failed", slog.Any("error", err))
		}
		enc(ctx, err, w)
	}
}

// ReadNumQuery returns the numeric query parameter key or def when absent.
func ReadNumQuery(r *http.Request, key string, def uint64) (uint64, error) {
	vals := r.URL.Query()[key]
	switch len(vals) {
	case 0:
		return def, nil
	case 1:
		v, err := strconv.ParseUint(vals[0], 10, 64)
		if err != nil {
			return 0, errors.Join(ErrInvalidQueryParams, err)
		}

		return v, nil
	default:
		return 0, ErrInvalidQueryParams
	}
}

type healthRes struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	InstanceID string `json:"instance_id"`
}

// Health reports the service as up.
func Health(service, instanceID string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthRes{
			Status:     "pass",
			Service:    service,
			InstanceID: instanceID,
		})
	}
}
