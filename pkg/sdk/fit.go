package sdk

import (
	"encoding/json"
	"net/http"

	"github.com/absmach/cohort/manager"
	"github.com/absmach/cohort/predictor"
)

const fitsEndpoint = "/fits"

func (sdk *cohortSDK) StartFit(req manager.FitRequest) (manager.Fit, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return manager.Fit{}, err
	}

	url := sdk.managerURL + fitsEndpoint

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusAccepted)
	if err != nil {
		return manager.Fit{}, err
	}

	var f manager.Fit
	if err := json.Unmarshal(body, &f); err != nil {
		return manager.Fit{}, err
	}

	return f, nil
}

func (sdk *cohortSDK) GetFit(id string) (manager.Fit, error) {
	url := sdk.managerURL + fitsEndpoint + "/" + id

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return manager.Fit{}, err
	}

	var f manager.Fit
	if err := json.Unmarshal(body, &f); err != nil {
		return manager.Fit{}, err
	}

	return f, nil
}

func (sdk *cohortSDK) ListFits(offset, limit uint64) (manager.FitPage, error) {
	url := sdk.managerURL + fitsEndpoint + pageQuery(offset, limit)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return manager.FitPage{}, err
	}

	var page manager.FitPage
	if err := json.Unmarshal(body, &page); err != nil {
		return manager.FitPage{}, err
	}

	return page, nil
}

func (sdk *cohortSDK) CancelFit(id string) error {
	url := sdk.managerURL + fitsEndpoint + "/" + id + "/cancel"

	if _, err := sdk.processRequest(http.MethodPost, url, nil, http.StatusAccepted); err != nil {
		return err
	}

	return nil
}

func (sdk *cohortSDK) Predict(id string, features [][]float64) ([]predictor.Prediction, error) {
	data, err := json.Marshal(map[string][][]float64{"features": features})
	if err != nil {
		return nil, err
	}

	url := sdk.managerURL + fitsEndpoint + "/" + id + "/predict"

	body, err := sdk.processRequest(http.MethodPost, url, data, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var res struct {
		Predictions []predictor.Prediction `json:"predictions"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}

	return res.Predictions, nil
}

func (sdk *cohortSDK) ListRounds(id string, offset, limit uint64) (manager.RoundPage, error) {
	url := sdk.managerURL + fitsEndpoint + "/" + id + "/rounds" + pageQuery(offset, limit)

	body, err := sdk.processRequest(http.MethodGet, url, nil, http.StatusOK)
	if err != nil {
		return manager.RoundPage{}, err
	}

	var page manager.RoundPage
	if err := json.Unmarshal(body, &page); err != nil {
		return manager.RoundPage{}, err
	}

	return page, nil
}
