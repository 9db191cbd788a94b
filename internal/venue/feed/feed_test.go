package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"crossarb/pkg/config"
	"crossarb/pkg/types"
)

func testDriver(t *testing.T, restURL, wsURL string) *Driver {
	t.Helper()

	d, err := Factory(config.VenueConfig{
		Name:      "feedx",
		Driver:    "feed",
		APIKey:    "key",
		APISecret: "secret",
		RESTURL:   restURL,
		WSURL:     wsURL,
		Timeout:   2 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("Factory: %v", err)
	}

	return d.(*Driver)
}

func TestCreateOrderSignedAndDecoded(t *testing.T) {
	var gotHeaders http.Header
	var gotBody orderRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotHeaders = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		_ = json.NewEncoder(w).Encode(orderResponse{
			OrderID:       "oid-1",
			ClientOrderID: gotBody.ClientOrderID,
			Instrument:    gotBody.Instrument,
			Side:          gotBody.Side,
			Status:        "filled",
			Amount:        gotBody.Amount,
			Filled:        gotBody.Amount,
			AvgPrice:      100.5,
			Fee:           0.5,
			Timestamp:     time.Now().UnixMilli(),
		})
	}))
	defer srv.Close()

	d := testDriver(t, srv.URL, "ws://unused")

	result, err := d.CreateOrder(context.Background(), &types.OrderRequest{
		Venue: "feedx", Instrument: "BTC/USD",
		Side: types.SideBuy, Amount: 2, Type: types.TypeMarket,
		ClientOrderID: "cid-9",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if gotHeaders.Get("X-API-KEY") != "key" || gotHeaders.Get("X-API-SIGN") == "" {
		t.Fatal("order request not signed")
	}
	if gotBody.ClientOrderID != "cid-9" {
		t.Fatalf("clientOrderId not forwarded: %q", gotBody.ClientOrderID)
	}

	if !result.Success || result.OrderID != "oid-1" {
		t.Fatalf("bad result: %+v", result)
	}
	if result.Cost != 2*100.5 {
		t.Fatalf("cost %.4f, want %.4f", result.Cost, 2*100.5)
	}
}

func TestRejectedOrderMapsToFailedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(orderResponse{
			OrderID:       "oid-2",
			ClientOrderID: "cid-r",
			Instrument:    "BTC/USD",
			Side:          "buy",
			Status:        "rejected",
			Amount:        2,
			Reason:        "insufficient balance",
			Timestamp:     time.Now().UnixMilli(),
		})
	}))
	defer srv.Close()

	d := testDriver(t, srv.URL, "ws://unused")

	result, err := d.CreateOrder(context.Background(), &types.OrderRequest{
		Venue: "feedx", Instrument: "BTC/USD",
		Side: types.SideBuy, Amount: 2, Type: types.TypeMarket,
		ClientOrderID: "cid-r",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if result.Success {
		t.Fatal("rejected order reported as success")
	}
	if result.ErrorDetail != "insufficient balance" {
		t.Fatalf("detail %q, want venue reason", result.ErrorDetail)
	}
}

func TestErrorStatusKeepsVenueWording(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: "rate limit exceeded, retry later"})
	}))
	defer srv.Close()

	d := testDriver(t, srv.URL, "ws://unused")

	_, err := d.CreateOrder(context.Background(), &types.OrderRequest{
		Venue: "feedx", Instrument: "BTC/USD",
		Side: types.SideBuy, Amount: 1, Type: types.TypeMarket,
		ClientOrderID: "cid-t",
	})
	if err == nil {
		t.Fatal("429 accepted")
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Fatalf("venue wording lost: %v", err)
	}

	var venueErr *types.VenueError
	if !errors.As(err, &venueErr) || venueErr.Permanent {
		t.Fatalf("429 should be a transient venue error: %v", err)
	}
}

func TestNotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := testDriver(t, srv.URL, "ws://unused")

	_, err := d.FetchOrder(context.Background(), "nope", "BTC/USD")
	var venueErr *types.VenueError
	if !errors.As(err, &venueErr) || !venueErr.Permanent {
		t.Fatalf("404 should be a permanent venue error: %v", err)
	}
}

func TestInstrumentsFilterMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(instrumentsResponse{
			Instruments: []string{"BTC/USD", "bogus", "ETH/USD"},
		})
	}))
	defer srv.Close()

	d := testDriver(t, srv.URL, "ws://unused")

	instruments, err := d.LoadInstruments(context.Background())
	if err != nil {
		t.Fatalf("LoadInstruments: %v", err)
	}
	if len(instruments) != 2 {
		t.Fatalf("instruments: got %v, want the two valid pairs", instruments)
	}
}

func TestStreamSubscribesAndDelivers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub subscribeMessage
		err = conn.ReadJSON(&sub)
		if err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		if sub.Op != "subscribe" || sub.Channel != "book" || sub.Instrument != "BTC/USD" {
			t.Errorf("bad subscribe message: %+v", sub)
		}

		_ = conn.WriteJSON(bookMessage{
			Channel:    "book",
			Instrument: "BTC/USD",
			Asks:       [][2]float64{{100.5, 2}},
			Bids:       [][2]float64{{100.0, 3}},
			Timestamp:  time.Now().UnixMilli(),
		})
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	d := testDriver(t, "http://unused", wsURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := d.StreamOrderBook(ctx, "BTC/USD", 5)
	if err != nil {
		t.Fatalf("StreamOrderBook: %v", err)
	}

	select {
	case book := <-stream:
		ask, _ := book.BestAsk()
		bid, _ := book.BestBid()
		if ask.Price != 100.5 || bid.Price != 100.0 {
			t.Fatalf("bad book: ask %.2f bid %.2f", ask.Price, bid.Price)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot within 2s")
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-stream:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("stream channel did not close after cancel")
		}
	}
}
