package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

// UpstreamError is a non-200 answer from the prediction API.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("prediction API answered %d: %s", e.Status, e.Message)
}

// Client posts customer records to the prediction API.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client for url. Every call is bounded by timeout.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

// Predict sends input as JSON and returns the predicted label.
func (c *Client) Predict(ctx context.Context, input map[string]any) (int, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return 0, scigoErrors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, scigoErrors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, scigoErrors.Wrap(err, "call prediction API")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, scigoErrors.Wrap(err, "read prediction API response")
	}
	var out struct {
		Prediction *int   `json:"prediction"`
		Error      string `json:"error"`
	}
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = string(bytes.TrimSpace(raw))
		}
		return 0, &UpstreamError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil || out.Prediction == nil {
		return 0, &UpstreamError{Status: resp.StatusCode, Message: "response carries no prediction"}
	}
	return *out.Prediction, nil
}
