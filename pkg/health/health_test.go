package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing() CheckFunc {
	return func(context.Context) error { return nil }
}

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type body struct {
	Status string
	Checks map[string]string
}

func serve(t *testing.T, handler http.HandlerFunc) (int, body) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var b body
	d := jx.DecodeBytes(w.Body.Bytes())
	require.NoError(t, d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "status":
			s, err := d.Str()
			b.Status = s
			return err
		case "checks":
			b.Checks = map[string]string{}
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				s, err := d.Str()
				b.Checks[string(key)] = s
				return err
			})
		default:
			return d.Skip()
		}
	}))
	return w.Code, b
}

func runN(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		fn         CheckFunc
		runs       int
		wantStatus int
		wantChecks map[string]string
	}{
		{name: "NoChecks", wantStatus: http.StatusOK},
		{name: "Passing", fn: passing(), runs: 3, wantStatus: http.StatusOK},
		{name: "BelowThreshold", fn: failing("temporary"), runs: 2, wantStatus: http.StatusOK},
		{
			name:       "Failing",
			fn:         failing("connection refused"),
			runs:       3,
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"db": "connection refused"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			if tt.fn != nil {
				h.AddLivenessCheck("db", time.Second, tt.fn)
				runN(h.snapshot(liveness)[0], tt.runs)
			}

			code, b := serve(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantStatus, code)
			assert.Equal(t, tt.wantChecks, b.Checks)
			if code == http.StatusOK {
				assert.Equal(t, "ok", b.Status)
			} else {
				assert.Equal(t, "unhealthy", b.Status)
			}
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("NotReadyByDefault", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, passing())

		code, b := serve(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, b.Checks, "_readiness")
	})
	t.Run("ReadyThenDraining", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, passing())
		h.SetReady(true)

		code, _ := serve(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusOK, code)

		h.SetReady(false)
		code, _ = serve(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})
	t.Run("OneFailing", func(t *testing.T) {
		h := New()
		h.AddReadinessCheck("postgres", time.Second, passing())
		h.AddReadinessCheck("redis", time.Second, failing("connection reset"))
		h.AddLivenessCheck("goroutines", time.Second, failing("ignored by readyz"))
		h.SetReady(true)
		runN(h.snapshot(readiness)[1], 3)
		runN(h.snapshot(liveness)[0], 3)

		code, b := serve(t, h.ReadyEndpoint)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, map[string]string{"redis": "connection reset"}, b.Checks)
		assert.False(t, h.IsReady())
	})
}

func TestCustomThresholds(t *testing.T) {
	h := New(Thresholds{Failure: 1, Success: 2})
	flaky := true
	h.AddReadinessCheck("kafka", time.Second, func(context.Context) error {
		if flaky {
			return errors.New("down")
		}
		return nil
	})
	c := h.snapshot(readiness)[0]

	assert.True(t, c.run(context.Background()), "one failure flips the state")
	assert.False(t, c.healthy.Load())

	flaky = false
	assert.False(t, c.run(context.Background()))
	assert.False(t, c.healthy.Load(), "needs two successes")
	assert.True(t, c.run(context.Background()))
	assert.True(t, c.healthy.Load())
}

func TestLastError(t *testing.T) {
	h := New()
	h.AddLivenessCheck("db", time.Second, failing("timeout"))
	c := h.snapshot(liveness)[0]

	assert.NoError(t, c.err())
	c.run(context.Background())
	assert.EqualError(t, c.err(), "timeout")
}

func TestStartStop(t *testing.T) {
	h := New(Thresholds{Failure: 1, Success: 1})
	h.AddReadinessCheck("postgres", time.Second, failing("down"))
	h.SetReady(true)

	h.Start(context.Background(), 10*time.Millisecond)
	assert.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, failing("err"))
	h.AddReadinessCheck("postgres", time.Second, passing())
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h.IsReady()
				h.LiveEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
				h.ReadyEndpoint(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	h.Stop()
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(pingFunc(func(context.Context) error { return nil }))(context.Background()))

	err := PingCheck(pingFunc(func(context.Context) error { return errors.New("refused") }))(context.Background())
	assert.ErrorContains(t, err, "refused")
}

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	check := RedisCheck(client)
	require.NoError(t, check(context.Background()))

	mr.Close()
	assert.Error(t, check(context.Background()))
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	assert.ErrorContains(t, err, "exceeds threshold")
}
