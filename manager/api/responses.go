package api

import (
	"net/http"

	"github.com/absmach/cohort/manager"
	"github.com/absmach/cohort/pkg/api"
	"github.com/absmach/cohort/predictor"
)

var (
	_ api.Response = (*fitResponse)(nil)
	_ api.Response = (*listFitResponse)(nil)
	_ api.Response = (*cancelFitResponse)(nil)
	_ api.Response = (*predictResponse)(nil)
	_ api.Response = (*listRoundResponse)(nil)
	_ api.Response = (*workerResponse)(nil)
	_ api.Response = (*listWorkerResponse)(nil)
)

type fitResponse struct {
	manager.Fit
	created bool
}

func (f fitResponse) Code() int {
	if f.created {
		return http.StatusAccepted
	}

	return http.StatusOK
}

func (f fitResponse) Headers() map[string]string {
	if f.created {
		return map[string]string{
			"Location": "/fits/" + f.ID,
		}
	}

	return map[string]string{}
}

func (f fitResponse) Empty() bool {
	return false
}

type listFitResponse struct {
	manager.FitPage
}

func (l listFitResponse) Code() int {
	return http.StatusOK
}

func (l listFitResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listFitResponse) Empty() bool {
	return false
}

type cancelFitResponse struct{}

func (c cancelFitResponse) Code() int {
	return http.StatusAccepted
}

func (c cancelFitResponse) Headers() map[string]string {
	return map[string]string{}
}

func (c cancelFitResponse) Empty() bool {
	return true
}

type predictResponse struct {
	Predictions []predictor.Prediction `json:"predictions"`
}

func (p predictResponse) Code() int {
	return http.StatusOK
}

func (p predictResponse) Headers() map[string]string {
	return map[string]string{}
}

func (p predictResponse) Empty() bool {
	return false
}

type listRoundResponse struct {
	manager.RoundPage
}

func (l listRoundResponse) Code() int {
	return http.StatusOK
}

func (l listRoundResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRoundResponse) Empty() bool {
	return false
}

type workerResponse struct {
	manager.Worker
}

func (w workerResponse) Code() int {
	return http.StatusOK
}

func (w workerResponse) Headers() map[string]string {
	return map[string]string{}
}

func (w workerResponse) Empty() bool {
	return false
}

type listWorkerResponse struct {
	manager.WorkerPage
}

func (l listWorkerResponse) Code() int {
	return http.StatusOK
}

func (l listWorkerResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listWorkerResponse) Empty() bool {
	return false
}
