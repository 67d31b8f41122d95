package remoteapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idgateway/internal/pool"
)

// WriteOutcome classifies the result of a downstream write call per
// spec.md §4.4/§7.
type WriteOutcome string

const (
	WriteSuccess      WriteOutcome = "success"
	WriteAlreadyExists WriteOutcome = "already_exists"
	WriteRetryable    WriteOutcome = "retryable"
	WritePermanent    WriteOutcome = "permanent"
)

// alreadyExistsSentinel is the idempotent-success marker the downstream
// service embeds in its response body.
const alreadyExistsSentinel = "Link already exists"

// DownstreamClient calls the downstream write service: a GET endpoint
// accepting account_id, submitter, and api_key as query parameters.
type DownstreamClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewDownstreamClient(writeURL, apiKey string) *DownstreamClient {
	return &DownstreamClient{
		url:        writeURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Write submits a finalized account and classifies the result. A network
// error (no response at all) and any 5xx status are retryable; a body
// containing the "already exists" sentinel is treated as an idempotent
// success; any other non-2xx status is permanent.
func (d *DownstreamClient) Write(ctx context.Context, accountID, submitter string) (WriteOutcome, error) {
	q := url.Values{}
	q.Set("account_id", accountID)
	q.Set("submitter", submitter)
	q.Set("api_key", d.apiKey)
	fullURL := strings.TrimRight(d.url, "?") + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return WriteRetryable, fmt.Errorf("remoteapi: build downstream request: %w", err)
	}
	req.Header.Set("User-Agent", pool.UserAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return WriteRetryable, fmt.Errorf("remoteapi: downstream write: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return WriteRetryable, fmt.Errorf("remoteapi: read downstream response: %w", err)
	}

	if strings.Contains(string(body), alreadyExistsSentinel) {
		return WriteAlreadyExists, nil
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return WriteSuccess, nil
	}
	if resp.StatusCode >= 500 {
		return WriteRetryable, fmt.Errorf("remoteapi: downstream write returned status %d", resp.StatusCode)
	}
	return WritePermanent, fmt.Errorf("remoteapi: downstream write returned status %d: %s", resp.StatusCode, string(body))
}
