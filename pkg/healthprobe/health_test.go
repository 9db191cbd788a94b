package healthprobe

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func call(handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, path, nil))

	return w
}

func TestHealthAlwaysOK(t *testing.T) {
	hc := New()

	for _, ready := range []bool{false, true} {
		hc.SetReady(ready)
		if w := call(hc.Health(), "/health"); w.Code != http.StatusOK {
			t.Fatalf("health with ready=%v: %d, want 200", ready, w.Code)
		}
	}
}

func TestReadyFollowsState(t *testing.T) {
	hc := New()

	if w := call(hc.Ready(), "/ready"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("initial ready: %d, want 503", w.Code)
	}

	hc.SetReady(true)
	w := call(hc.Ready(), "/ready")
	if w.Code != http.StatusOK {
		t.Fatalf("ready after SetReady: %d, want 200", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ready" || resp.Uptime == "" {
		t.Fatalf("bad ready response: %+v", resp)
	}

	hc.SetReady(false)
	if w := call(hc.Ready(), "/ready"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready after SetReady(false): %d, want 503", w.Code)
	}
}

func TestComponentBoard(t *testing.T) {
	hc := New()
	hc.SetComponent("gateway", "up")
	hc.SetComponent("strategy", "degraded")
	hc.SetComponent("gateway", "degraded")

	w := call(hc.Health(), "/health")

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Components["gateway"] != "degraded" || resp.Components["strategy"] != "degraded" {
		t.Fatalf("components %v", resp.Components)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hc := New()
	done := make(chan struct{})

	go func() {
		for i := 0; i < 200; i++ {
			hc.SetReady(i%2 == 0)
			hc.SetComponent("gateway", "up")
		}
		close(done)
	}()

	for i := 0; i < 200; i++ {
		call(hc.Ready(), "/ready")
		call(hc.Health(), "/health")
	}
	<-done
}
