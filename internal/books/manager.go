// Package books keeps the latest order-book snapshot per (venue, instrument)
// and fans updates out to consumers.
package books

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"crossarb/pkg/types"
)

type bookKey struct {
	venue      types.VenueID
	instrument types.Instrument
}

// Manager consumes the gateway's snapshot fanout and serves the latest book
// per (venue, instrument). Reads return copies, so callers can hold snapshots
// across updates.
type Manager struct {
	logger  *zap.Logger
	source  <-chan *types.OrderBookSnapshot
	updates chan *types.OrderBookSnapshot

	mu    sync.RWMutex
	books map[bookKey]*types.OrderBookSnapshot

	wg sync.WaitGroup
}

// Config holds books manager configuration.
type Config struct {
	Logger *zap.Logger
	Source <-chan *types.OrderBookSnapshot
	// UpdateBufferSize sizes the consumer fanout channel (default 1024).
	UpdateBufferSize int
}

// New creates a books manager reading from the given snapshot source.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.UpdateBufferSize <= 0 {
		cfg.UpdateBufferSize = 1024
	}

	return &Manager{
		logger:  cfg.Logger,
		source:  cfg.Source,
		updates: make(chan *types.OrderBookSnapshot, cfg.UpdateBufferSize),
		books:   make(map[bookKey]*types.OrderBookSnapshot),
	}
}

// Start launches the consume loop.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("books-manager-starting")

	m.wg.Add(1)
	go m.consume(ctx)
}

func (m *Manager) consume(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("books-manager-stopping")
			return
		case snap, ok := <-m.source:
			if !ok {
				m.logger.Info("books-source-closed")
				return
			}
			m.apply(snap)
		}
	}
}

func (m *Manager) apply(snap *types.OrderBookSnapshot) {
	key := bookKey{snap.Venue, snap.Instrument}

	m.mu.Lock()
	m.books[key] = snap
	SnapshotsTracked.Set(float64(len(m.books)))
	m.mu.Unlock()

	UpdatesTotal.WithLabelValues(string(snap.Venue)).Inc()

	select {
	case m.updates <- snap:
	default:
		UpdatesDropped.Inc()
	}
}

// Snapshot returns a copy of the latest book for (venue, instrument).
func (m *Manager) Snapshot(venue types.VenueID, instrument types.Instrument) (*types.OrderBookSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.books[bookKey{venue, instrument}]
	if !ok {
		return nil, false
	}

	return snap.Copy(), true
}

// VenueSnapshots returns the latest book per venue for one instrument, the
// input of a cross-venue scan.
func (m *Manager) VenueSnapshots(instrument types.Instrument) map[types.VenueID]*types.OrderBookSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[types.VenueID]*types.OrderBookSnapshot)
	for key, snap := range m.books {
		if key.instrument == instrument {
			out[key.venue] = snap.Copy()
		}
	}

	return out
}

// Updates is the consumer-facing fanout of snapshot updates.
func (m *Manager) Updates() <-chan *types.OrderBookSnapshot {
	return m.updates
}

// Close waits for the consume loop and closes the fanout.
func (m *Manager) Close() error {
	m.wg.Wait()
	close(m.updates)
	m.logger.Info("books-manager-closed")

	return nil
}
