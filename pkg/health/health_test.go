package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe_FailureThreshold(t *testing.T) {
	p := newProbe("test", time.Second, func(context.Context) error {
		return errors.New("down")
	})

	ctx := context.Background()

	// Two failures are tolerated.
	p.run(ctx)
	p.run(ctx)
	healthy, _ := p.state()
	assert.True(t, healthy, "still healthy below the threshold")

	// Third consecutive failure flips the probe.
	p.run(ctx)
	healthy, err := p.state()
	assert.False(t, healthy)
	assert.EqualError(t, err, "down")
}

func TestProbe_RecoversImmediately(t *testing.T) {
	var fail bool
	p := newProbe("test", time.Second, func(context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	})

	ctx := context.Background()
	fail = true
	for i := 0; i < 3; i++ {
		p.run(ctx)
	}
	healthy, _ := p.state()
	require.False(t, healthy)

	fail = false
	p.run(ctx)
	healthy, _ = p.state()
	assert.True(t, healthy, "one success restores health")
}

func TestProbe_Timeout(t *testing.T) {
	p := newProbe("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		p.run(ctx)
	}
	healthy, err := p.state()
	assert.False(t, healthy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	h.AddLivenessCheck("always-ok", time.Second, func(context.Context) error {
		return nil
	})

	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestLiveEndpoint_Unhealthy(t *testing.T) {
	h := New()
	h.AddLivenessCheck("broken", time.Second, func(context.Context) error {
		return errors.New("stuck")
	})

	// Drive the probe past the threshold directly; Start is not needed.
	p := h.liveness[0]
	for i := 0; i < 3; i++ {
		p.run(context.Background())
	}

	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "stuck", resp.Checks["broken"])
}

func TestReadyEndpoint_ManualGate(t *testing.T) {
	h := New()

	w := httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "not ready before SetReady")

	h.SetReady(true)
	w = httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	h.SetReady(false)
	w = httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "draining after SetReady(false)")
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("dep", time.Second, func(context.Context) error {
		return errors.New("down")
	})
	h.SetReady(true)

	assert.True(t, h.IsReady(), "probe has not failed yet")

	p := h.readiness[0]
	for i := 0; i < 3; i++ {
		p.run(context.Background())
	}
	assert.False(t, h.IsReady())
}

func TestStartRunsProbesImmediately(t *testing.T) {
	ran := make(chan struct{})
	h := New()
	h.AddReadinessCheck("dep", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, time.Hour)
	defer h.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("probe did not run on Start")
	}
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}
