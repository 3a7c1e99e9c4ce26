package outlookprov

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mailtriage/internal/provider"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// graphClient is a thin HTTP client for the Microsoft Graph mail API.
// It handles Bearer authentication and JSON (de)serialization and maps
// Graph status codes onto the provider error taxonomy. Retries are the
// caller's concern.
type graphClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func newGraphClient(baseURL, token string) *graphClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &graphClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *graphClient) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *graphClient) post(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *graphClient) patch(ctx context.Context, path string, body, result interface{}) error {
	return c.do(ctx, http.MethodPatch, path, body, result)
}

// getURL follows an absolute @odata.nextLink.
func (c *graphClient) getURL(ctx context.Context, url string, result interface{}) error {
	return c.doURL(ctx, http.MethodGet, url, nil, result)
}

func (c *graphClient) do(ctx context.Context, method, path string, body, result interface{}) error {
	return c.doURL(ctx, method, c.baseURL+path, body, result)
}

func (c *graphClient) doURL(ctx context.Context, method, url string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, url, err)
	}
	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("reading response body: %w", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &provider.RateLimitError{Provider: "outlook", Message: graphErrMessage(respBody)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &provider.AuthError{Provider: "outlook", Message: graphErrMessage(respBody)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("graph API error (%d) on %s %s: %s",
			resp.StatusCode, method, url, graphErrMessage(respBody))
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from %s %s: %w", method, url, err)
	}
	return nil
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func graphErrMessage(body []byte) string {
	var ge graphError
	if json.Unmarshal(body, &ge) == nil && ge.Error.Message != "" {
		return ge.Error.Code + ": " + ge.Error.Message
	}
	return string(body)
}
