package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"crossarb/pkg/types"
)

// restClient talks to the venue's HTTP API. Errors keep the venue's own
// wording so the gateway's classifier can spot timeout and throttle markers.
type restClient struct {
	baseURL string
	client  *http.Client
	signer  *signer
	venue   types.VenueID
}

func newRESTClient(venue types.VenueID, baseURL string, timeout time.Duration, s *signer) *restClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &restClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		signer:  s,
		venue:   venue,
	}
}

func (c *restClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.signer.sign(req, string(payload))

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(raw)
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			detail = apiErr.Error
		}

		permanent := resp.StatusCode == http.StatusUnauthorized ||
			resp.StatusCode == http.StatusForbidden ||
			resp.StatusCode == http.StatusNotFound

		return &types.VenueError{
			Venue:     c.venue,
			Op:        method + " " + path,
			Permanent: permanent,
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, detail),
		}
	}

	if out == nil {
		return nil
	}
	err = json.Unmarshal(raw, out)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *restClient) instruments(ctx context.Context) ([]types.Instrument, error) {
	var resp instrumentsResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/instruments", nil, nil, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]types.Instrument, 0, len(resp.Instruments))
	for _, raw := range resp.Instruments {
		instrument := types.Instrument(raw)
		if instrument.Valid() {
			out = append(out, instrument)
		}
	}

	return out, nil
}

func (c *restClient) orderBook(ctx context.Context, instrument types.Instrument, depth int) (*types.OrderBookSnapshot, error) {
	query := url.Values{}
	query.Set("instrument", string(instrument))
	query.Set("depth", strconv.Itoa(depth))

	var resp bookResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/book", query, nil, &resp)
	if err != nil {
		return nil, err
	}

	return snapshotFromLevels(c.venue, instrument, resp.Asks, resp.Bids, resp.Timestamp), nil
}

func (c *restClient) balances(ctx context.Context) (map[string]types.Balance, error) {
	var resp balancesResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/balances", nil, nil, &resp)
	if err != nil {
		return nil, err
	}

	out := make(map[string]types.Balance, len(resp.Balances))
	for _, b := range resp.Balances {
		out[b.Currency] = types.Balance{Currency: b.Currency, Free: b.Free, Locked: b.Locked}
	}

	return out, nil
}

func (c *restClient) tradingFees(ctx context.Context) (map[types.Instrument]types.TradingFees, error) {
	var resp feesResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/fees", nil, nil, &resp)
	if err != nil {
		return nil, err
	}

	out := make(map[types.Instrument]types.TradingFees, len(resp.Fees))
	for _, f := range resp.Fees {
		out[types.Instrument(f.Instrument)] = types.TradingFees{
			Maker:      f.Maker,
			Taker:      f.Taker,
			Percentage: true,
		}
	}

	return out, nil
}

func (c *restClient) createOrder(ctx context.Context, req *types.OrderRequest) (*types.OrderResult, error) {
	body := orderRequest{
		ClientOrderID: req.ClientOrderID,
		Instrument:    string(req.Instrument),
		Side:          string(req.Side),
		Type:          string(req.Type),
		Amount:        req.Amount,
		Price:         req.Price,
	}

	var resp orderResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/orders", nil, body, &resp)
	if err != nil {
		return nil, err
	}

	return resultFromWire(c.venue, &resp), nil
}

func (c *restClient) fetchOrder(ctx context.Context, orderID string, instrument types.Instrument) (*types.OrderResult, error) {
	query := url.Values{}
	query.Set("instrument", string(instrument))

	var resp orderResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/orders/"+url.PathEscape(orderID), query, nil, &resp)
	if err != nil {
		return nil, err
	}

	return resultFromWire(c.venue, &resp), nil
}

func (c *restClient) recentOrders(ctx context.Context, instrument types.Instrument, limit int) ([]*types.OrderResult, error) {
	query := url.Values{}
	query.Set("instrument", string(instrument))
	query.Set("limit", strconv.Itoa(limit))

	var resp ordersResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/orders", query, nil, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]*types.OrderResult, 0, len(resp.Orders))
	for i := range resp.Orders {
		out = append(out, resultFromWire(c.venue, &resp.Orders[i]))
	}

	return out, nil
}

func (c *restClient) cancelOrder(ctx context.Context, orderID string, instrument types.Instrument) error {
	query := url.Values{}
	query.Set("instrument", string(instrument))

	return c.do(ctx, http.MethodDelete, "/api/v1/orders/"+url.PathEscape(orderID), query, nil, nil)
}

func (c *restClient) cancelAll(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/orders", nil, nil, nil)
}

func snapshotFromLevels(venue types.VenueID, instrument types.Instrument, asks, bids [][2]float64, tsMillis int64) *types.OrderBookSnapshot {
	book := &types.OrderBookSnapshot{
		Venue:          venue,
		Instrument:     instrument,
		Asks:           make([]types.BookLevel, 0, len(asks)),
		Bids:           make([]types.BookLevel, 0, len(bids)),
		VenueTimestamp: time.UnixMilli(tsMillis),
	}
	for _, l := range asks {
		book.Asks = append(book.Asks, types.BookLevel{Price: l[0], Amount: l[1]})
	}
	for _, l := range bids {
		book.Bids = append(book.Bids, types.BookLevel{Price: l[0], Amount: l[1]})
	}

	return book
}

func resultFromWire(venue types.VenueID, resp *orderResponse) *types.OrderResult {
	return &types.OrderResult{
		Venue:           venue,
		OrderID:         resp.OrderID,
		ClientOrderID:   resp.ClientOrderID,
		Instrument:      types.Instrument(resp.Instrument),
		Side:            types.OrderSide(resp.Side),
		RequestedAmount: resp.Amount,
		FilledAmount:    resp.Filled,
		AvgPrice:        resp.AvgPrice,
		Cost:            resp.Filled * resp.AvgPrice,
		FeePaid:         resp.Fee,
		VenueTimestamp:  time.UnixMilli(resp.Timestamp),
		Success:         resp.Status == "filled" || resp.Status == "partial",
		ErrorDetail:     resp.Reason,
	}
}
