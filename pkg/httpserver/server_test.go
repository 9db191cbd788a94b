package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"crossarb/internal/books"
	"crossarb/pkg/healthprobe"
	"crossarb/pkg/types"
)

func testServer(t *testing.T) (*Server, *healthprobe.HealthChecker, chan *types.OrderBookSnapshot) {
	t.Helper()

	source := make(chan *types.OrderBookSnapshot, 8)
	manager := books.New(books.Config{Logger: zap.NewNop(), Source: source})

	ctx, cancel := context.WithCancel(context.Background())
	manager.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = manager.Close()
	})

	health := healthprobe.New()
	srv := New(&Config{
		Port:   "0",
		Logger: zap.NewNop(),
		Health: health,
		Books:  manager,
	})

	return srv, health, source
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	return rec
}

func TestHealthAlwaysOK(t *testing.T) {
	srv, health, _ := testServer(t)
	health.SetComponent("gateway", "up")

	rec := get(t, srv, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d, want 200", rec.Code)
	}

	var resp healthprobe.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Components["gateway"] != "up" {
		t.Fatalf("components %v, want gateway up", resp.Components)
	}
}

func TestReadyFollowsReadiness(t *testing.T) {
	srv, health, _ := testServer(t)

	if rec := get(t, srv, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready before SetReady: %d, want 503", rec.Code)
	}

	health.SetReady(true)
	if rec := get(t, srv, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("ready after SetReady: %d, want 200", rec.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	srv, _, _ := testServer(t)

	rec := get(t, srv, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty metrics body")
	}
}

func TestBooksEndpoint(t *testing.T) {
	srv, _, source := testServer(t)

	source <- &types.OrderBookSnapshot{
		Venue:          "venue-a",
		Instrument:     "BTC/USD",
		Asks:           []types.BookLevel{{Price: 100.5, Amount: 2}},
		Bids:           []types.BookLevel{{Price: 100.0, Amount: 3}},
		VenueTimestamp: time.Now(),
	}

	// The manager consumes asynchronously.
	deadline := time.Now().Add(time.Second)
	var rec *httptest.ResponseRecorder
	for {
		rec = get(t, srv, "/api/books?instrument=BTC/USD&venue=venue-a")
		if rec.Code == http.StatusOK || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("books status %d, want 200", rec.Code)
	}

	var snap types.OrderBookSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Venue != "venue-a" || len(snap.Asks) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestBooksEndpointValidation(t *testing.T) {
	srv, _, _ := testServer(t)

	if rec := get(t, srv, "/api/books"); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing instrument: %d, want 400", rec.Code)
	}
	if rec := get(t, srv, "/api/books?instrument=ETH/USD"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown instrument: %d, want 404", rec.Code)
	}
}
