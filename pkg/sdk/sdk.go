package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/absmach/cohort/manager"
	"github.com/absmach/cohort/predictor"
)

const CTJSON string = "application/json"

type SDK interface {
	// StartFit submits a dataset and configuration and starts fitting.
	//
	// example:
	//  req := manager.FitRequest{
	//    Name:   "iris",
	//    Config: estimator.DefaultConfig(),
	//    Rows:   rows,
	//  }
	//  fit, _ := sdk.StartFit(req)
	//  fmt.Println(fit.ID)
	StartFit(req manager.FitRequest) (manager.Fit, error)

	// GetFit gets a fit by id.
	//
	// example:
	//  fit, _ := sdk.GetFit("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	//  fmt.Println(fit.State)
	GetFit(id string) (manager.Fit, error)

	// ListFits lists fits.
	//
	// example:
	//  page, _ := sdk.ListFits(0, 10)
	//  fmt.Println(page)
	ListFits(offset, limit uint64) (manager.FitPage, error)

	// CancelFit asks a running fit to stop.
	//
	// example:
	//  _ = sdk.CancelFit("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040")
	CancelFit(id string) error

	// Predict runs feature rows through a finished fit.
	//
	// example:
	//  preds, _ := sdk.Predict("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040", [][]float64{{5.1, 3.5, 1.4, 0.2}})
	//  fmt.Println(preds[0].Label)
	Predict(id string, features [][]float64) ([]predictor.Prediction, error)

	// ListRounds lists the round history of a fit.
	//
	// example:
	//  page, _ := sdk.ListRounds("b1d10738-c5d7-4ff1-8f4d-b9328ce6f040", 0, 10)
	//  fmt.Println(page.Total)
	ListRounds(id string, offset, limit uint64) (manager.RoundPage, error)

	// GetWorker gets a registered worker by id.
	GetWorker(id string) (manager.Worker, error)

	// ListWorkers lists registered workers.
	ListWorkers(offset, limit uint64) (manager.WorkerPage, error)
}

type cohortSDK struct {
	managerURL string
	client     *http.Client
}

type Config struct {
	ManagerURL      string
	TLSVerification bool
}

// Error is returned when the manager answers with an unexpected status.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected response code: %d", e.StatusCode)
	}

	return fmt.Sprintf("unexpected response code: %d: %s", e.StatusCode, e.Message)
}

func NewSDK(cfg Config) SDK {
	return &cohortSDK{
		managerURL: strings.TrimSuffix(cfg.ManagerURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

func (sdk *cohortSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var e struct {
			Err string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)

		return []byte{}, &Error{StatusCode: resp.StatusCode, Message: e.Err}
	}

	return body, nil
}

func pageQuery(offset, limit uint64) string {
	queries := make([]string, 0)
	if offset > 0 {
		queries = append(queries, fmt.Sprintf("offset=%d", offset))
	}
	if limit > 0 {
		queries = append(queries, fmt.Sprintf("limit=%d", limit))
	}
	if len(queries) == 0 {
		return ""
	}

	return "?" + strings.Join(queries, "&")
}
