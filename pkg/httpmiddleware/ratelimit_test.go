package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type take struct {
	key           string
	after         time.Duration
	wantAllowed   bool
	wantRemaining int
	wantWait      time.Duration
}

func TestRateLimiter_Allow(t *testing.T) {
	// Max 3 per minute refills one token every 20s.
	tests := []struct {
		name  string
		takes []take
	}{
		{
			name: "BurstDrainsBucket",
			takes: []take{
				{key: "a", wantAllowed: true, wantRemaining: 2},
				{key: "a", wantAllowed: true, wantRemaining: 1},
				{key: "a", wantAllowed: true, wantRemaining: 0},
				{key: "a", wantWait: 20 * time.Second},
			},
		},
		{
			name: "EmptyBucketWaitShrinks",
			takes: []take{
				{key: "a", wantAllowed: true, wantRemaining: 2},
				{key: "a", wantAllowed: true, wantRemaining: 1},
				{key: "a", wantAllowed: true, wantRemaining: 0},
				{key: "a", after: 5 * time.Second, wantWait: 15 * time.Second},
				{key: "a", after: 20 * time.Second, wantAllowed: true, wantRemaining: 0},
			},
		},
		{
			name: "RefillStopsAtMax",
			takes: []take{
				{key: "a", wantAllowed: true, wantRemaining: 2},
				{key: "a", after: time.Hour, wantAllowed: true, wantRemaining: 2},
			},
		},
		{
			name: "DeniedTakeCostsNothing",
			takes: []take{
				{key: "a", wantAllowed: true, wantRemaining: 2},
				{key: "a", wantAllowed: true, wantRemaining: 1},
				{key: "a", wantAllowed: true, wantRemaining: 0},
				{key: "a", wantWait: 20 * time.Second},
				{key: "a", wantWait: 20 * time.Second},
				{key: "a", after: 20 * time.Second, wantAllowed: true, wantRemaining: 0},
			},
		},
		{
			name: "KeysHaveOwnBuckets",
			takes: []take{
				{key: "a", wantAllowed: true, wantRemaining: 2},
				{key: "a", wantAllowed: true, wantRemaining: 1},
				{key: "a", wantAllowed: true, wantRemaining: 0},
				{key: "b", wantAllowed: true, wantRemaining: 2},
				{key: "a", wantWait: 20 * time.Second},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := newRateLimiter(RateLimitConfig{Max: 3, Window: time.Minute})
			now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			for i, tk := range tt.takes {
				now = now.Add(tk.after)
				remaining, wait, allowed := rl.allow(tk.key, now)
				require.Equal(t, tk.wantAllowed, allowed, "take %d", i)
				assert.Equal(t, tk.wantRemaining, remaining, "take %d", i)
				assert.InDelta(t, tk.wantWait, wait, float64(10*time.Millisecond), "take %d", i)
			}
		})
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	byAPIKey := func(r *http.Request) string { return r.Header.Get("X-API-Key") }

	type call struct {
		remoteAddr string
		header     map[string]string
		wantCode   int
	}
	tests := []struct {
		name    string
		keyFunc func(*http.Request) string
		calls   []call
	}{
		{
			name: "RemoteAddrPortIgnored",
			calls: []call{
				{remoteAddr: "10.0.0.1:1111", wantCode: http.StatusOK},
				{remoteAddr: "10.0.0.1:2222", wantCode: http.StatusTooManyRequests},
				{remoteAddr: "10.0.0.2:1111", wantCode: http.StatusOK},
			},
		},
		{
			name: "FirstForwardedAddressWins",
			calls: []call{
				{remoteAddr: "192.168.1.1:1", header: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, wantCode: http.StatusOK},
				{remoteAddr: "192.168.1.2:1", header: map[string]string{"X-Forwarded-For": "203.0.113.50"}, wantCode: http.StatusTooManyRequests},
				{remoteAddr: "192.168.1.1:1", header: map[string]string{"X-Real-IP": "198.51.100.7"}, wantCode: http.StatusOK},
			},
		},
		{
			name:    "CustomKey",
			keyFunc: byAPIKey,
			calls: []call{
				{remoteAddr: "10.0.0.1:1", header: map[string]string{"X-API-Key": "key-a"}, wantCode: http.StatusOK},
				{remoteAddr: "10.0.0.2:1", header: map[string]string{"X-API-Key": "key-a"}, wantCode: http.StatusTooManyRequests},
				{remoteAddr: "10.0.0.1:1", header: map[string]string{"X-API-Key": "key-b"}, wantCode: http.StatusOK},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: tt.keyFunc})(okHandler())
			for i, c := range tt.calls {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.RemoteAddr = c.remoteAddr
				for k, v := range c.header {
					req.Header.Set(k, v)
				}
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)
				assert.Equal(t, c.wantCode, w.Code, "call %d", i)
			}
		})
	}
}

func TestRateLimit_DeniedResponse(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 4, Window: time.Minute})(okHandler())
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:4000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for range 4 {
		w := send()
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "4", w.Header().Get("X-RateLimit-Limit"))
		assert.Empty(t, w.Header().Get("Retry-After"))
	}

	w := send()
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "15", w.Header().Get("Retry-After"))

	var (
		code int
		msg  string
	)
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Int()
		case "message":
			msg, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", msg)
}

func TestRateLimit_Cleanup(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Now()
	rl.allow("a", now)
	rl.allow("b", now.Add(50*time.Second))

	rl.cleanup(now.Add(90 * time.Second))

	assert.NotContains(t, rl.buckets, "a")
	assert.Contains(t, rl.buckets, "b")
}
