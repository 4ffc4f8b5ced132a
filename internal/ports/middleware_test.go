package ports

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Amund211/msgstore/internal/ratelimiting"
	"github.com/stretchr/testify/require"
)

type mockedRateLimiter struct {
	t           *testing.T
	allow       bool
	expectedKey string
}

func (m *mockedRateLimiter) Consume(key string) bool {
	m.t.Helper()
	require.Equal(m.t, m.expectedKey, key)
	return m.allow
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		allow        bool
		forwardedFor string
		expectedKey  string
	}{
		{name: "allowed", allow: true, forwardedFor: "12.12.123.123,34.111.7.239", expectedKey: "ip: 12.12.123.123"},
		{name: "not allowed", allow: false, forwardedFor: "12.12.123.123,34.111.7.239", expectedKey: "ip: 12.12.123.123"},
		{name: "direct connection", allow: true, expectedKey: "ip: 169.254.169.126"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			handlerCalled := false
			onLimitExceededCalled := false
			ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(
				&mockedRateLimiter{t: t, allow: c.allow, expectedKey: c.expectedKey},
				ratelimiting.IPKeyFunc,
			)

			middleware := NewRateLimitMiddleware(
				ipRateLimiter,
				func(w http.ResponseWriter, r *http.Request) {
					onLimitExceededCalled = true
					http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				},
			)
			handler := middleware(
				func(w http.ResponseWriter, r *http.Request) {
					handlerCalled = true
					w.WriteHeader(http.StatusOK)
				},
			)

			req := httptest.NewRequest(http.MethodGet, "http://example.com/v1/message/folderA/msg1.txt", nil)
			req.RemoteAddr = "169.254.169.126:58418"
			if c.forwardedFor != "" {
				req.Header.Set("X-Forwarded-For", c.forwardedFor)
			}

			w := httptest.NewRecorder()
			handler(w, req)

			require.Equal(t, c.allow, handlerCalled)
			require.Equal(t, !c.allow, onLimitExceededCalled)
			if c.allow {
				require.Equal(t, http.StatusOK, w.Code)
			} else {
				require.Equal(t, http.StatusTooManyRequests, w.Code)
			}
		})
	}
}

func TestComposeMiddlewares(t *testing.T) {
	t.Parallel()

	t.Run("single middleware", func(t *testing.T) {
		t.Parallel()

		handlerCalled := false
		middlewareStage := "not called"
		middleware := ComposeMiddlewares(
			func(next http.HandlerFunc) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					middlewareStage = "pre"
					next(w, r)
					middlewareStage = "post"
				}
			},
		)

		handler := middleware(
			func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				require.Equal(t, "pre", middlewareStage)
			},
		)

		handler(httptest.NewRecorder(), &http.Request{})

		require.True(t, handlerCalled)
		require.Equal(t, "post", middlewareStage)
	})

	t.Run("outermost middleware runs first", func(t *testing.T) {
		t.Parallel()

		calls := []string{}
		record := func(name string) func(http.HandlerFunc) http.HandlerFunc {
			return func(next http.HandlerFunc) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					calls = append(calls, name+" pre")
					next(w, r)
					calls = append(calls, name+" post")
				}
			}
		}

		handler := ComposeMiddlewares(record("first"), record("second"), record("third"))(
			func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, "handler")
			},
		)

		handler(httptest.NewRecorder(), &http.Request{})

		require.Equal(t, []string{
			"first pre",
			"second pre",
			"third pre",
			"handler",
			"third post",
			"second post",
			"first post",
		}, calls)
	})
}

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusGatewayTimeout} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()

			var recorded *statusRecorder
			handler := buildMetricsMiddleware("message")(func(w http.ResponseWriter, r *http.Request) {
				var ok bool
				recorded, ok = w.(*statusRecorder)
				require.True(t, ok)
				w.WriteHeader(status)
			})

			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(http.MethodGet, "/v1/message/folderA/msg1.txt", nil))

			require.Equal(t, status, w.Code)
			require.Equal(t, status, recorded.status)
		})
	}
}
