package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vilaca/reciprocity-bot/internal/clock"
	"github.com/vilaca/reciprocity-bot/internal/metrics"
)

// mockHTTPClient is a test double for HTTPClient.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
	calls  int
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.calls++
	return m.doFunc(req)
}

func newResponse(status int, body string, header map[string]string) *http.Response {
	h := make(http.Header)
	for k, v := range header {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

var testStart = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestRequestClient(httpClient HTTPClient, fake *clock.Fake) *RequestClient {
	return NewRequestClient(ClientConfig{
		BaseURL:    "https://api.example.test",
		Token:      "test-token",
		HTTPClient: httpClient,
		Clock:      fake,
	})
}

func TestRequestClient_SetsHeaders(t *testing.T) {
	// Arrange
	var captured *http.Request
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		captured = req
		return newResponse(http.StatusOK, `{}`, nil), nil
	}}
	client := newTestRequestClient(mock, clock.NewFake(testStart))

	// Act
	_, err := client.Do(context.Background(), http.MethodGet, "/search/repositories", url.Values{"q": {"stars:<5 pushed:2024-01-01"}})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", captured.Header.Get("Authorization"))
	assert.Equal(t, "application/vnd.github+json", captured.Header.Get("Accept"))
	assert.Equal(t, APIVersion, captured.Header.Get("X-GitHub-Api-Version"))
	assert.Equal(t, DefaultUserAgent, captured.Header.Get("User-Agent"))
	assert.Equal(t, "stars:<5 pushed:2024-01-01", captured.URL.Query().Get("q"))
	assert.Equal(t, "/search/repositories", captured.URL.Path)
}

func TestRequestClient_WaitsForRateLimitReset(t *testing.T) {
	fake := clock.NewFake(testStart)
	reset := testStart.Add(30 * time.Second)
	mock := &mockHTTPClient{}
	mock.doFunc = func(req *http.Request) (*http.Response, error) {
		if mock.calls == 1 {
			return newResponse(http.StatusForbidden, `{"message":"API rate limit exceeded"}`, map[string]string{
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     strconv.FormatInt(reset.Unix(), 10),
			}), nil
		}
		return newResponse(http.StatusNoContent, "", nil), nil
	}
	m := metrics.New()
	client := NewRequestClient(ClientConfig{HTTPClient: mock, Clock: fake, Metrics: m})

	resp, err := client.Do(context.Background(), http.MethodPut, "/user/starred/alice/foo", nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 2, mock.calls)
	assert.Equal(t, []time.Duration{31 * time.Second}, fake.Waits())
}

func TestRequestClient_RateLimitRetriesAreUnbounded(t *testing.T) {
	fake := clock.NewFake(testStart)
	mock := &mockHTTPClient{}
	mock.doFunc = func(req *http.Request) (*http.Response, error) {
		if mock.calls <= 10 {
			reset := fake.Now().Add(time.Minute)
			return newResponse(http.StatusForbidden, `{}`, map[string]string{
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     strconv.FormatInt(reset.Unix(), 10),
			}), nil
		}
		return newResponse(http.StatusOK, `{}`, nil), nil
	}
	client := newTestRequestClient(mock, fake)

	_, err := client.Do(context.Background(), http.MethodGet, "/rate", nil)

	require.NoError(t, err)
	assert.Equal(t, 11, mock.calls)
	assert.Len(t, fake.Waits(), 10)
}

func TestRequestClient_ResetInPastUsesMargin(t *testing.T) {
	fake := clock.NewFake(testStart)
	mock := &mockHTTPClient{}
	mock.doFunc = func(req *http.Request) (*http.Response, error) {
		if mock.calls == 1 {
			return newResponse(http.StatusForbidden, `{}`, map[string]string{
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     strconv.FormatInt(testStart.Add(-time.Hour).Unix(), 10),
			}), nil
		}
		return newResponse(http.StatusOK, `{}`, nil), nil
	}
	client := newTestRequestClient(mock, fake)

	_, err := client.Do(context.Background(), http.MethodGet, "/rate", nil)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{DefaultRateLimitMargin}, fake.Waits())
}

func TestRequestClient_SecondaryRateLimit(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		header   map[string]string
		wantWait time.Duration
	}{
		{
			name:     "403 with retry-after",
			status:   http.StatusForbidden,
			header:   map[string]string{"Retry-After": "45"},
			wantWait: 45 * time.Second,
		},
		{
			name:     "403 without headers",
			status:   http.StatusForbidden,
			wantWait: DefaultSecondaryLimitBackoff,
		},
		{
			name:     "429 without headers",
			status:   http.StatusTooManyRequests,
			wantWait: DefaultSecondaryLimitBackoff,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := clock.NewFake(testStart)
			mock := &mockHTTPClient{}
			mock.doFunc = func(req *http.Request) (*http.Response, error) {
				if mock.calls == 1 {
					return newResponse(tt.status, `{"message":"You have exceeded a secondary rate limit"}`, tt.header), nil
				}
				return newResponse(http.StatusOK, `{}`, nil), nil
			}
			client := newTestRequestClient(mock, fake)

			_, err := client.Do(context.Background(), http.MethodGet, "/x", nil)

			require.NoError(t, err)
			assert.Equal(t, []time.Duration{tt.wantWait}, fake.Waits())
		})
	}
}

func TestRequestClient_PermissionDeniedIsNotRetried(t *testing.T) {
	fake := clock.NewFake(testStart)
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		return newResponse(http.StatusForbidden, `{"message":"Resource not accessible by personal access token"}`, nil), nil
	}}
	client := newTestRequestClient(mock, fake)

	_, err := client.Do(context.Background(), http.MethodPut, "/user/starred/a/b", nil)

	var apiError *APIError
	require.True(t, errors.As(err, &apiError))
	assert.Equal(t, http.StatusForbidden, apiError.StatusCode)
	assert.Equal(t, "Resource not accessible by personal access token", apiError.Message)
	assert.False(t, IsRateLimited(err))
	assert.Equal(t, 1, mock.calls)
	assert.Empty(t, fake.Waits())
}

func TestRequestClient_RetriesTransientStatus(t *testing.T) {
	fake := clock.NewFake(testStart)
	mock := &mockHTTPClient{}
	mock.doFunc = func(req *http.Request) (*http.Response, error) {
		if mock.calls <= 2 {
			return newResponse(http.StatusServiceUnavailable, `unavailable`, nil), nil
		}
		return newResponse(http.StatusOK, `{"ok":true}`, nil), nil
	}
	client := newTestRequestClient(mock, fake)

	resp, err := client.Do(context.Background(), http.MethodGet, "/x", nil)

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, []time.Duration{DefaultTransientBackoff, DefaultTransientBackoff}, fake.Waits())
}

func TestRequestClient_TransientRetryCap(t *testing.T) {
	fake := clock.NewFake(testStart)
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		return newResponse(http.StatusBadGateway, `bad gateway`, nil), nil
	}}
	client := newTestRequestClient(mock, fake)

	_, err := client.Do(context.Background(), http.MethodGet, "/x", nil)

	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, DefaultMaxTransientRetries+1, mock.calls)
	assert.Len(t, fake.Waits(), DefaultMaxTransientRetries)
}

func TestRequestClient_RateLimitResetsTransientCount(t *testing.T) {
	// Arrange
	fake := clock.NewFake(testStart)
	statuses := []int{502, 502, 502, 403, 502, 502, 502, 200}
	mock := &mockHTTPClient{}
	mock.doFunc = func(req *http.Request) (*http.Response, error) {
		status := statuses[mock.calls-1]
		if status == http.StatusForbidden {
			return newResponse(status, `{}`, map[string]string{
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     strconv.FormatInt(fake.Now().Add(time.Minute).Unix(), 10),
			}), nil
		}
		return newResponse(status, `{}`, nil), nil
	}
	client := newTestRequestClient(mock, fake)

	// Act
	resp, err := client.Do(context.Background(), http.MethodGet, "/x", nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, len(statuses), mock.calls)
}

func TestRequestClient_TransportErrorsAreCapped(t *testing.T) {
	fake := clock.NewFake(testStart)
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset by peer")
	}}
	client := NewRequestClient(ClientConfig{HTTPClient: mock, Clock: fake, MaxTransientRetries: 2})

	_, err := client.Do(context.Background(), http.MethodGet, "/x", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Equal(t, 3, mock.calls)
}

func TestRequestClient_NotFound(t *testing.T) {
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		return newResponse(http.StatusNotFound, `{"message":"Not Found"}`, nil), nil
	}}
	client := newTestRequestClient(mock, clock.NewFake(testStart))

	resp, err := client.Do(context.Background(), http.MethodGet, "/users/alice/following/bot", nil)

	assert.Nil(t, resp)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "HTTP 404: Not Found")
}

func TestRequestClient_NotModifiedIsSuccess(t *testing.T) {
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		return newResponse(http.StatusNotModified, "", nil), nil
	}}
	client := newTestRequestClient(mock, clock.NewFake(testStart))

	resp, err := client.Do(context.Background(), http.MethodPut, "/user/starred/a/b", nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestRequestClient_CancelledContextStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		cancel()
		return newResponse(http.StatusServiceUnavailable, "", nil), nil
	}}
	client := newTestRequestClient(mock, clock.NewFake(testStart))

	_, err := client.Do(ctx, http.MethodGet, "/x", nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mock.calls)
}

func TestResponse_Decode(t *testing.T) {
	var out struct {
		Items []int `json:"items"`
	}

	require.NoError(t, (&Response{Body: []byte(`{"items":[1,2]}`)}).Decode(&out))
	assert.Equal(t, []int{1, 2}, out.Items)
	assert.Error(t, (&Response{}).Decode(&out))
	assert.Error(t, (&Response{Body: []byte(`{`)}).Decode(&out))
}
