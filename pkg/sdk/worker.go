package sdk

import (
	"encoding/json"
	"net/http"

	"github.com/absmach/cohort/manager"
)

const workersEndpoint = "/workers"

func (sdk *cohortSDK) GetWorker(id string) (manager.Worker, error) {
	url := sdk.managerURL + workersEndpoint + "/" + id

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return manager.Worker{}, err
	}

	var w manager.Worker
	if err := json.Unmarshal(body, &w); err != nil {
		return manager.Worker{}, err
	}

	return w, nil
}

func (sdk *cohortSDK) ListWorkers(offset, limit uint64) (manager.WorkerPage, error) {
	url := sdk.managerURL + workersEndpoint + pageQuery(offset, limit)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return manager.WorkerPage{}, err
	}

	var page manager.WorkerPage
	if err := json.Unmarshal(body, &page); err != nil {
		return manager.WorkerPage{}, err
	}

	return page, nil
}
