package venue

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// RESTClient is a shared resty client for venues that fetch a REST
// snapshot at connect time. It retries on 5xx the same way the teacher's
// CLOB client does, with an explicit timeout per §5's recommendation
// (10s for the REST snapshot fetch) and a token bucket so a burst of
// per-symbol snapshot fetches at startup doesn't trip the venue's own
// per-IP limit.
type RESTClient struct {
	http *resty.Client
	rl   *TokenBucket
}

// NewRESTClient builds a REST client with retry/backoff and rate limiting.
func NewRESTClient() *RESTClient {
	httpClient := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &RESTClient{
		http: httpClient,
		rl:   NewTokenBucket(20, 10),
	}
}

// GetJSON fetches url, rate-limited, and decodes the body into out.
func (c *RESTClient) GetJSON(ctx context.Context, url string, out interface{}) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(out).
		Get(url)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("get %s: status %d: %s", url, resp.StatusCode(), resp.String())
	}
	return nil
}
