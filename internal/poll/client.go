package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"buzzer-service/internal/domain"
)

// Client fetches rankings from the buzzer service's HTTP API. Failures to
// reach the server at all come back as *domain.TransientError so callers can
// tell "server said no" from "could not ask".
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type orderPayload struct {
	Entries []domain.OrderEntry `json:"entries"`
}

type errorPayload struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// FetchOrder retrieves the current ranking for a scope.
func (c *Client) FetchOrder(ctx context.Context, scopeID uuid.UUID) ([]domain.OrderEntry, error) {
	u := c.baseURL + "/api/order?scopeId=" + url.QueryEscape(scopeID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var ep errorPayload
		if decodeErr := json.NewDecoder(resp.Body).Decode(&ep); decodeErr == nil && ep.Error.Message != "" {
			return nil, fmt.Errorf("order fetch: %s (%s)", ep.Error.Message, ep.Error.Kind)
		}
		return nil, fmt.Errorf("order fetch: unexpected status %d", resp.StatusCode)
	}

	var payload orderPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("order fetch: decode: %w", err)
	}
	return payload.Entries, nil
}
