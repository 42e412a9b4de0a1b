package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/kozaktomas/hijabist/internal/apperrors"
)

// request describes one backend call.
type request struct {
	method      string
	endpoint    string
	token       string
	body        io.Reader
	contentType string
}

// doRequestJSON performs a request and unmarshals the JSON response into T.
// A status outside expectedStatuses yields a RemoteAnalysis error carrying the
// status and the response body.
func doRequestJSON[T any](ctx context.Context, c *Client, r request, expectedStatuses ...int) (*T, error) {
	if len(expectedStatuses) == 0 {
		expectedStatuses = []int{http.StatusOK, http.StatusCreated}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.resolveURL(r.endpoint), r.body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL constructed from validated baseURL via resolveURL
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if !isExpectedStatus(resp.StatusCode, expectedStatuses) {
		body := readErrorBody(resp.Body)
		c.captureResponse(r.endpoint, []byte(body))
		return nil, apperrors.RemoteAnalysis(
			fmt.Sprintf("%s failed with status %d", r.endpoint, resp.StatusCode),
			resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	c.captureResponse(r.endpoint, body)

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperrors.MalformedResponse(
			fmt.Sprintf("could not unmarshal %s response", r.endpoint), err)
	}

	return &result, nil
}

// isExpectedStatus checks if a status code is in the list of expected statuses.
func isExpectedStatus(code int, expected []int) bool {
	return slices.Contains(expected, code)
}
