package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"crossarb/pkg/types"
)

// HandleState is the connection state of a venue handle.
type HandleState string

const (
	StateConnecting   HandleState = "connecting"
	StateConnected    HandleState = "connected"
	StateReconnecting HandleState = "reconnecting"
)

// HandleConfig holds per-handle tuning shared across all venues.
type HandleConfig struct {
	StalenessThreshold    time.Duration
	MaxReconnectAttempts  int
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	StreamRestartDelay    time.Duration
	Logger                *zap.Logger
}

// Handle wraps one venue driver with the streaming state machine:
// connecting → connected → (error → reconnecting → connecting)*. Snapshots
// from every subscribed instrument flow through the gateway's shared fanout.
type Handle struct {
	venue   types.VenueID
	driver  Driver
	cfg     HandleConfig
	logger  *zap.Logger
	backoff *Backoff

	updates chan<- *types.OrderBookSnapshot
	events  chan<- types.VenueEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      HandleState
	errorCount int
	lastUpdate time.Time
	subscribed map[types.Instrument]bool
}

func newHandle(
	driver Driver,
	cfg HandleConfig,
	updates chan<- *types.OrderBookSnapshot,
	events chan<- types.VenueEvent,
) *Handle {
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = 500 * time.Millisecond
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.ReconnectInitialDelay <= 0 {
		cfg.ReconnectInitialDelay = 5 * time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 5 * time.Minute
	}
	if cfg.StreamRestartDelay <= 0 {
		cfg.StreamRestartDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Handle{
		venue:      driver.Name(),
		driver:     driver,
		cfg:        cfg,
		logger:     cfg.Logger.With(zap.String("venue", string(driver.Name()))),
		backoff:    NewBackoff(cfg.ReconnectInitialDelay, cfg.ReconnectMaxDelay, 2),
		updates:    updates,
		events:     events,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateConnecting,
		subscribed: make(map[types.Instrument]bool),
	}
}

// Subscribe starts a perpetual consume loop for the instrument's order-book
// stream. The requested depth is normalized to the venue's accepted table.
func (h *Handle) Subscribe(instrument types.Instrument, depth int) error {
	if !h.driver.Capabilities().Has(CapStreamOrderBook) {
		return &types.VenueError{
			Venue:     h.venue,
			Op:        "streamOrderBook",
			Permanent: true,
			Err:       fmt.Errorf("venue does not support order-book streaming"),
		}
	}

	h.mu.Lock()
	if h.subscribed[instrument] {
		h.mu.Unlock()
		return nil
	}
	h.subscribed[instrument] = true
	h.mu.Unlock()

	normalized, capped := CompatibleDepth(h.driver.AcceptedDepths(), depth)
	if capped {
		h.logger.Warn("depth-capped-to-venue-maximum",
			zap.Int("requested", depth),
			zap.Int("capped", normalized))
	}

	h.wg.Add(1)
	go h.consumeLoop(instrument, normalized)

	return nil
}

// consumeLoop streams snapshots until the handle closes, restarting the
// stream on error and escalating to a backoff reconnect past the attempt cap.
func (h *Handle) consumeLoop(instrument types.Instrument, depth int) {
	defer h.wg.Done()

	for h.ctx.Err() == nil {
		h.setState(StateConnecting)

		ch, err := h.driver.StreamOrderBook(h.ctx, instrument, depth)
		if err != nil {
			h.streamFailure(instrument, err)
			continue
		}

		h.setState(StateConnected)
		h.resetErrors()
		VenueUp.WithLabelValues(string(h.venue)).Set(1)
		h.emit(types.VenueEvent{
			Type:       types.EventVenueConnected,
			Venue:      h.venue,
			Instrument: instrument,
			Timestamp:  time.Now(),
		})
		h.logger.Info("stream-connected", zap.String("instrument", string(instrument)))

		for snap := range ch {
			h.publish(snap)
		}

		if h.ctx.Err() != nil {
			return
		}

		VenueUp.WithLabelValues(string(h.venue)).Set(0)
		h.emit(types.VenueEvent{
			Type:       types.EventVenueDisconnected,
			Venue:      h.venue,
			Instrument: instrument,
			Timestamp:  time.Now(),
		})
		h.streamFailure(instrument, fmt.Errorf("order-book stream closed"))
	}
}

// streamFailure counts the error, emits a venue-error event, and sleeps the
// restart delay — or, past the attempt cap, the exponential reconnect delay.
func (h *Handle) streamFailure(instrument types.Instrument, err error) {
	h.mu.Lock()
	h.errorCount++
	count := h.errorCount
	h.mu.Unlock()

	StreamErrorsTotal.WithLabelValues(string(h.venue)).Inc()
	h.emit(types.VenueEvent{
		Type:       types.EventVenueError,
		Venue:      h.venue,
		Instrument: instrument,
		Err:        err,
		Timestamp:  time.Now(),
	})

	if count < h.cfg.MaxReconnectAttempts {
		h.logger.Warn("stream-error-restarting",
			zap.String("instrument", string(instrument)),
			zap.Int("error-count", count),
			zap.Error(err))
		h.sleep(h.cfg.StreamRestartDelay)
		return
	}

	h.setState(StateReconnecting)
	delay := h.backoff.Next()
	ReconnectsTotal.WithLabelValues(string(h.venue)).Inc()
	h.logger.Warn("venue-reconnect-scheduled",
		zap.String("instrument", string(instrument)),
		zap.Int("error-count", count),
		zap.Duration("delay", delay),
		zap.Error(err))
	h.sleep(delay)
}

// publish tags staleness, advances lastUpdate, and fans the snapshot out
// without blocking the stream.
func (h *Handle) publish(snap *types.OrderBookSnapshot) {
	now := time.Now()
	if snap.ReceivedAt.IsZero() {
		snap.ReceivedAt = now
	}
	if snap.Age(now) > h.cfg.StalenessThreshold {
		snap.Stale = true
		StaleBooksTotal.WithLabelValues(string(h.venue)).Inc()
	}

	h.mu.Lock()
	if snap.VenueTimestamp.After(h.lastUpdate) {
		h.lastUpdate = snap.VenueTimestamp
	}
	h.mu.Unlock()

	BookUpdatesTotal.WithLabelValues(string(h.venue)).Inc()

	select {
	case h.updates <- snap:
	default:
		BookUpdatesDropped.Inc()
		h.logger.Warn("book-update-dropped",
			zap.String("instrument", string(snap.Instrument)),
			zap.Int("buffer-size", cap(h.updates)))
	}
}

func (h *Handle) emit(event types.VenueEvent) {
	select {
	case h.events <- event:
	default:
	}
}

func (h *Handle) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.ctx.Done():
	case <-timer.C:
	}
}

func (h *Handle) setState(s HandleState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) resetErrors() {
	h.mu.Lock()
	h.errorCount = 0
	h.mu.Unlock()
	h.backoff.Reset()
}

// State returns the handle's current connection state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state
}

// ErrorCount returns the consecutive stream errors since the last healthy
// connection.
func (h *Handle) ErrorCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.errorCount
}

// LastUpdate returns the newest venue timestamp seen on any stream.
func (h *Handle) LastUpdate() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.lastUpdate
}

// Close stops all consume loops and closes the driver.
func (h *Handle) Close() error {
	h.cancel()
	h.wg.Wait()
	VenueUp.WithLabelValues(string(h.venue)).Set(0)

	return h.driver.Close()
}
