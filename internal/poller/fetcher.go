package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Fetcher interface {
	FetchStatus(ctx context.Context, safeTitle string) (*Status, error)
}

// HTTPFetcher reads status from a running admin server.
type HTTPFetcher struct {
	BaseURL string
	// Token is sent as a bearer token when set.
	Token  string
	Client *http.Client
}

func NewHTTPFetcher(baseURL, token string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Token:   strings.TrimSpace(token),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (f *HTTPFetcher) FetchStatus(ctx context.Context, safeTitle string) (*Status, error) {
	endpoint := f.BaseURL + "/api/pipeline/status?bookSafeTitle=" + url.QueryEscape(safeTitle)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch status %s: %w", safeTitle, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read status %s: %w", safeTitle, err)
	}
	if resp.StatusCode != http.StatusOK {
		var env errorEnvelope
		if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
			return nil, fmt.Errorf("status %s: %s (%s, http %d)", safeTitle, env.Error.Message, env.Error.Code, resp.StatusCode)
		}
		return nil, fmt.Errorf("status %s: http %d", safeTitle, resp.StatusCode)
	}
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("decode status %s: %w", safeTitle, err)
	}
	return &st, nil
}
