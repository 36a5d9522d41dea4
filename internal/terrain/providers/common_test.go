package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(retries int) BackoffConfig {
	return BackoffConfig{
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestDoRequestWithResilience_RetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	cfg := HTTPClientConfig{Client: testHTTPClient(), Backoff: fastBackoff(3)}
	resp, err := doRequestWithResilience(context.Background(), cfg, newBreaker("test"),
		func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoRequestWithResilience_GivesUpAfterBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := HTTPClientConfig{Client: testHTTPClient(), Backoff: fastBackoff(2)}
	_, err := doRequestWithResilience(context.Background(), cfg, newBreaker("test"),
		func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		})
	assert.ErrorIs(t, err, errRateLimited)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoRequestWithResilience_RequiresClient(t *testing.T) {
	_, err := doRequestWithResilience(context.Background(), HTTPClientConfig{Backoff: fastBackoff(0)},
		newBreaker("test"), nil)
	assert.ErrorIs(t, err, errNoHTTPClient)
}

func TestWithRetries_InvalidConfig(t *testing.T) {
	_, err := withRetries(context.Background(), BackoffConfig{MaxRetries: -1, InitialInterval: time.Second},
		newBreaker("test"), func() (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, errInvalidConfig)
}

func TestWithRetries_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := withRetries(ctx, fastBackoff(3), newBreaker("test"), func() (interface{}, error) {
		called = true
		return nil, errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestStatusError(t *testing.T) {
	assert.NoError(t, statusError(http.StatusOK))
	assert.NoError(t, statusError(http.StatusNoContent))
	assert.ErrorIs(t, statusError(http.StatusTooManyRequests), errRateLimited)
	assert.ErrorIs(t, statusError(http.StatusServiceUnavailable), errServerError)
	assert.ErrorIs(t, statusError(http.StatusNotFound), errUnexpected)
}
