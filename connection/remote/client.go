// Package remote forwards collection actions to another process over HTTP
// and serves them from any Connection.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/shared/helper"
	"golang.org/x/time/rate"
)

var ErrRemote = errors.New("remote action failed")

// Client is a Connection that POSTs every action to a Handler.
type Client struct {
	url         string
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithRateLimit caps the request rate; r events per second with burst b.
func WithRateLimit(r rate.Limit, b int) ClientOption {
	return func(cl *Client) { cl.limiter = rate.NewLimiter(r, b) }
}

// WithRetry retries transport failures and 5xx answers.
func WithRetry(maxAttempts int, backoff time.Duration) ClientOption {
	return func(cl *Client) {
		cl.maxAttempts = maxAttempts
		cl.backoff = backoff
	}
}

func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:         url,
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Inf, 1),
		maxAttempts: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ collection.Connection = (*Client)(nil)

func (c *Client) Dispatch(ctx context.Context, action collection.Action) (collection.Result, error) {
	req, err := NewRequest(action)
	if err != nil {
		return collection.Result{}, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return collection.Result{}, fmt.Errorf("encode %s: %w", action.Name, err)
	}

	var resp Response
	err = helper.Retry(c.maxAttempts, c.backoff, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return helper.Permanent(err)
		}
		return c.post(ctx, body, &resp)
	})
	if err != nil {
		return collection.Result{}, err
	}
	return collection.Result{Value: resp.Result, Updated: resp.Updated}, nil
}

func (c *Client) post(ctx context.Context, body []byte, out *Response) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return helper.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return helper.Permanent(ctx.Err())
		}
		return err
	}
	defer httpResp.Body.Close()

	*out = Response{}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response (status %d): %w", httpResp.StatusCode, err)
	}
	switch {
	case httpResp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrRemote, out.Error)
	case httpResp.StatusCode >= 400 || out.Error != "":
		return helper.Permanent(fmt.Errorf("%w: %s", ErrRemote, out.Error))
	}
	return nil
}
