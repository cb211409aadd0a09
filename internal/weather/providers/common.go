package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"weather-tracker/internal/weather"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

var (
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

const maxErrorBody = 4 << 10

// doRequestWithResilience executes the HTTP request with retries, exponential
// backoff, and a circuit breaker. Network errors, 429 and 5xx responses are
// retried until the budget runs out; other non-2xx statuses fail immediately
// with a *weather.ProviderError carrying the upstream status and body.
// Exhausted retries surface as weather.ErrProviderUnavailable for transport
// failures or the last *weather.ProviderError for status failures.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", weather.ErrProviderUnavailable, ctx.Err())
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, fmt.Errorf("%w: %v", weather.ErrProviderUnavailable, execErr)
			}

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, drainProviderError(resp)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, drainProviderError(resp)
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// An open breaker means the provider has been failing; report it
		// the same way as an unreachable provider.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", weather.ErrProviderUnavailable, err)
		}

		if !retryable(err) {
			return nil, err
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if cfg.Backoff.MaxInterval > 0 && delay > cfg.Backoff.MaxInterval {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %v", weather.ErrProviderUnavailable, ctx.Err())
		case <-timer.C:
		}

		attempt++
	}
}

// retryable reports whether the attempt is worth repeating: transport
// failures always, status failures only for rate limiting and server errors.
func retryable(err error) bool {
	var perr *weather.ProviderError
	if errors.As(err, &perr) {
		return perr.StatusCode == http.StatusTooManyRequests || perr.StatusCode >= 500
	}
	return errors.Is(err, weather.ErrProviderUnavailable)
}

// drainProviderError consumes the response body into a diagnostic error.
func drainProviderError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &weather.ProviderError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
	}
}
