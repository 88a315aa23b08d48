// Package scoring is a client for the inference service's /predict endpoint.
package scoring

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fraud-detector/internal/common"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	base string
	rest *resty.Client
}

func NewClient(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(common.DefaultRESTSeconds * time.Second) // default fallback
	}
	r.SetHeader("Content-Type", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

type predictReq struct {
	Features []float64 `json:"features"`
}

type predictResp struct {
	Fraud *bool  `json:"fraud"`
	Error string `json:"error"`
}

// RejectedError is returned when the inference service answers 400, i.e.
// the features were not accepted as model input.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "scoring rejected: " + e.Message
}

// Predict asks the inference service for a fraud verdict.
func (c *Client) Predict(ctx context.Context, features []float64) (bool, error) {
	if features == nil {
		features = []float64{}
	}

	resp := &predictResp{}
	r, err := c.rest.R().
		SetContext(ctx).
		SetHeader(common.HeaderRequestID, requestID(ctx)).
		SetBody(predictReq{Features: features}).
		SetResult(resp).
		SetError(resp).
		Post(c.base + "/predict")
	if err != nil {
		return false, fmt.Errorf("scoring: %w", err)
	}

	switch r.StatusCode() {
	case http.StatusOK:
		if resp.Fraud == nil {
			return false, fmt.Errorf("scoring: response has no fraud field: %s", r.String())
		}
		return *resp.Fraud, nil
	case http.StatusBadRequest:
		return false, &RejectedError{Message: resp.Error}
	default:
		return false, fmt.Errorf("scoring: %d %s", r.StatusCode(), resp.Error)
	}
}
