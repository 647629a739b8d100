package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func limitedHandler(limit RateLimit) http.Handler {
	limiter := NewRateLimiter(limit, nil)
	fixed := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return fixed }
	return limiter.Middleware("intents")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func forwardedRequest(forwardedFor string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/sovereigns/moon/buy", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("X-Forwarded-For", forwardedFor)
	return req
}

func TestRateLimiterIgnoresForwardingHeadersByDefault(t *testing.T) {
	handler := limitedHandler(RateLimit{RequestsPerMinute: 1, Burst: 1})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, forwardedRequest("203.0.113.1"))
	require.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	req := forwardedRequest("203.0.113.2")
	req.Header.Set("X-Real-IP", "203.0.113.3")
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusTooManyRequests, res.Code)
}

func TestRateLimiterKeysOnTrustedProxyHeaders(t *testing.T) {
	handler := limitedHandler(RateLimit{RequestsPerMinute: 1, Burst: 1, TrustProxyHeaders: true})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, forwardedRequest("203.0.113.1, 10.0.0.7"))
	require.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, forwardedRequest("203.0.113.2"))
	require.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, forwardedRequest("203.0.113.1"))
	require.Equal(t, http.StatusTooManyRequests, res.Code)

	// Unparseable headers fall back to the peer address.
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, forwardedRequest("not-an-ip"))
	require.Equal(t, http.StatusOK, res.Code)
}
