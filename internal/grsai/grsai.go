/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package grsai talks to the remote video-render provider. Poll results
// are classified by a pure function so state transitions can be tested
// without HTTP.
package grsai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/getreel/reel/internal/request"
)

// Render task states as reported to callers after classification.
const (
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

// ErrSucceededWithoutURL marks a remote success that carried no output
// URL in either provider shape. Treated as a failure rather than
// propagating a broken success downstream.
const ErrSucceededWithoutURL = "SUCCEEDED_WITHOUT_VIDEO_URL"

// ResultData is the provider's task payload. Depending on the model
// family the output URL arrives either in a results array or in a
// direct url field.
type ResultData struct {
	Status        string         `json:"status"`
	Progress      int            `json:"progress"`
	Results       []ResultOutput `json:"results,omitempty"`
	URL           string         `json:"url,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	Error         string         `json:"error,omitempty"`
}

type ResultOutput struct {
	URL string `json:"url"`
}

// ResultResponse is the provider's result-endpoint envelope. A non-zero
// code is a business error regardless of the inner status.
type ResultResponse struct {
	Code int        `json:"code"`
	Msg  string     `json:"msg,omitempty"`
	Data ResultData `json:"data"`
}

// PollResult is the classified outcome of one poll. It is only
// meaningful when the poll itself succeeded; transport failures are
// returned as errors so callers can keep polling instead of failing the
// task.
type PollResult struct {
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	VideoURL     string `json:"video_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type SubmitRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type submitResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Client is an HTTP client for the provider's render API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Submit starts a render job and returns the provider's task id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	payload, err := request.ToJsonReq(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/draw/video", payload)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Code != 0 {
		return "", fmt.Errorf("render submit rejected: code %d: %s", body.Code, body.Msg)
	}
	if body.Data.ID == "" {
		return "", fmt.Errorf("render submit returned no task id")
	}
	return body.Data.ID, nil
}

// Poll fetches the current result for a provider task id and classifies
// it. A returned error means the poll itself failed (network, decode)
// and says nothing about the task; the caller should retry later.
func (c *Client) Poll(ctx context.Context, taskID string) (*PollResult, error) {
	payload, err := request.ToJsonReq(map[string]string{"id": taskID})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/draw/result", payload)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("result endpoint returned status %d", resp.StatusCode)
	}

	var body ResultResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	result := ClassifyResult(&body)
	return &result, nil
}

// ClassifyResult maps a provider response onto the three-state result
// model. Pure function, no side effects; the caller persists any
// transition.
func ClassifyResult(resp *ResultResponse) PollResult {
	if resp.Code != 0 {
		msg := resp.Msg
		if msg == "" {
			msg = fmt.Sprintf("provider error code %d", resp.Code)
		}
		return PollResult{Status: StatusFailed, ErrorMessage: msg}
	}

	switch resp.Data.Status {
	case "succeeded", "success":
		if url := extractURL(&resp.Data); url != "" {
			return PollResult{Status: StatusSucceeded, Progress: 100, VideoURL: url}
		}
		return PollResult{Status: StatusFailed, ErrorMessage: ErrSucceededWithoutURL}
	case "failed", "error":
		msg := resp.Data.FailureReason
		if msg == "" {
			msg = resp.Data.Error
		}
		if msg == "" {
			msg = "render failed without a reason"
		}
		return PollResult{Status: StatusFailed, ErrorMessage: msg}
	default:
		return PollResult{Status: StatusProcessing, Progress: resp.Data.Progress}
	}
}

// extractURL handles both provider output shapes: a results array and a
// direct url field.
func extractURL(data *ResultData) string {
	for _, r := range data.Results {
		if r.URL != "" {
			return r.URL
		}
	}
	return data.URL
}
