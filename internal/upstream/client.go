// Package upstream talks to the SmartSuite REST API. The cache never
// calls this itself; the dispatcher fetches here on a miss and feeds
// the payload back into the cache.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/smartsuite-tools/ssc/internal/types"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://app.smartsuite.com/api/v1"

// recordPageSize is the record-list page size; the API caps pages at
// 1000 entries.
const recordPageSize = 1000

// Client is what the dispatcher needs from the upstream API.
type Client interface {
	Solutions(ctx context.Context) ([]types.Solution, error)
	Tables(ctx context.Context, solutionID string) ([]types.Table, error)
	Table(ctx context.Context, tableID string) (*types.Table, error)
	Records(ctx context.Context, tableID string) ([]types.Record, error)
	Members(ctx context.Context) ([]types.Member, error)
	Teams(ctx context.Context) ([]types.Team, error)
}

// Config carries the credentials and knobs for the HTTP client.
type Config struct {
	BaseURL   string
	APIKey    string
	AccountID string
	Timeout   time.Duration
}

// StatusError is a non-2xx API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Code, e.Body)
}

type httpClient struct {
	base      string
	apiKey    string
	accountID string
	http      *http.Client
	log       zerolog.Logger

	// first retry delay; tests shrink this
	retryInterval time.Duration
}

// New builds the production client.
func New(cfg Config, log zerolog.Logger) Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		base:          base,
		apiKey:        cfg.APIKey,
		accountID:     cfg.AccountID,
		http:          &http.Client{Timeout: timeout},
		log:           log.With().Str("component", "upstream").Logger(),
		retryInterval: 500 * time.Millisecond,
	}
}

func (c *httpClient) Solutions(ctx context.Context) ([]types.Solution, error) {
	body, err := c.do(ctx, http.MethodGet, "/solutions/", nil)
	if err != nil {
		return nil, err
	}
	var out []types.Solution
	if err := decodeList(body, &out); err != nil {
		return nil, fmt.Errorf("decode solutions: %w", err)
	}
	return out, nil
}

func (c *httpClient) Tables(ctx context.Context, solutionID string) ([]types.Table, error) {
	path := "/applications/"
	if solutionID != "" {
		path += "?solution=" + solutionID
	}
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out []types.Table
	if err := decodeList(body, &out); err != nil {
		return nil, fmt.Errorf("decode applications: %w", err)
	}
	return out, nil
}

func (c *httpClient) Table(ctx context.Context, tableID string) (*types.Table, error) {
	body, err := c.do(ctx, http.MethodGet, "/applications/"+tableID+"/", nil)
	if err != nil {
		return nil, err
	}
	var out types.Table
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode application %s: %w", tableID, err)
	}
	return &out, nil
}

// Records fetches every record of a table, paging until the reported
// total is reached.
func (c *httpClient) Records(ctx context.Context, tableID string) ([]types.Record, error) {
	var all []types.Record
	offset := 0
	for {
		payload := map[string]any{"offset": offset, "limit": recordPageSize}
		body, err := c.do(ctx, http.MethodPost, "/applications/"+tableID+"/records/list/", payload)
		if err != nil {
			return nil, err
		}

		var page []types.Record
		if err := decodeList(body, &page); err != nil {
			return nil, fmt.Errorf("decode records page at offset %d: %w", offset, err)
		}
		all = append(all, page...)

		total := int(gjson.GetBytes(body, "total").Int())
		offset += len(page)
		if len(page) == 0 || offset >= total {
			return all, nil
		}
	}
}

func (c *httpClient) Members(ctx context.Context) ([]types.Member, error) {
	body, err := c.do(ctx, http.MethodPost, "/members/list/", map[string]any{"limit": recordPageSize})
	if err != nil {
		return nil, err
	}
	var out []types.Member
	if err := decodeList(body, &out); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	return out, nil
}

func (c *httpClient) Teams(ctx context.Context) ([]types.Team, error) {
	body, err := c.do(ctx, http.MethodGet, "/teams/", nil)
	if err != nil {
		return nil, err
	}
	var out []types.Team
	if err := decodeList(body, &out); err != nil {
		return nil, fmt.Errorf("decode teams: %w", err)
	}
	return out, nil
}

// do performs one API call with retry. 429 and 5xx responses back off
// exponentially; other failures are final.
func (c *httpClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	var respBody []byte
	attempt := 0
	op := func() error {
		attempt++
		var r io.Reader
		if reqBody != nil {
			r = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Token "+c.apiKey)
		req.Header.Set("ACCOUNT-ID", c.accountID)
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err // transport errors are retryable
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			c.log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).
				Str("path", path).Msg("upstream throttled or failing, retrying")
			return &StatusError{Code: resp.StatusCode, Body: truncate(body)}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(&StatusError{Code: resp.StatusCode, Body: truncate(body)})
		}
		respBody = body
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryInterval
	bo := backoff.WithContext(backoff.WithMaxRetries(exp, 4), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return respBody, nil
}

// decodeList unmarshals either a bare JSON array or the {items: [...]}
// list envelope into out.
func decodeList(body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}
	items := gjson.GetBytes(body, "items")
	if !items.Exists() {
		return fmt.Errorf("response is neither a list nor a list envelope")
	}
	return json.Unmarshal([]byte(items.Raw), out)
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
