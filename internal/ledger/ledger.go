package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"crossarb/internal/strategy"
	"crossarb/pkg/types"
)

const schemaVersion = 1

// ErrDuplicateTrade means a trade with the same key is already in flight.
var ErrDuplicateTrade = errors.New("trade already active for key")

// ErrTradeNotFound means no active entry exists for the key.
var ErrTradeNotFound = errors.New("trade not found")

// Entry is one persisted in-flight trade. StartedAt and UpdatedAt are epoch
// milliseconds, matching the on-disk schema.
type Entry struct {
	TradeKey    string               `json:"tradeKey"`
	Opportunity strategy.Opportunity `json:"opportunity"`
	Status      types.TradeStatus    `json:"status"`
	BuyResult   *types.OrderResult   `json:"buyResult,omitempty"`
	SellResult  *types.OrderResult   `json:"sellResult,omitempty"`
	StartedAt   int64                `json:"startedAt"`
	UpdatedAt   int64                `json:"updatedAt"`
}

// StartedAtTime converts StartedAt back to a time.Time.
func (e *Entry) StartedAtTime() time.Time {
	return time.UnixMilli(e.StartedAt)
}

type document struct {
	Version      int               `json:"version"`
	LastUpdated  int64             `json:"lastUpdated"`
	ActiveTrades map[string]*Entry `json:"activeTrades"`
}

// Config holds ledger configuration.
type Config struct {
	Path      string        // state file, e.g. data/trade-state.json
	OrphanAge time.Duration // entries older than this are orphans on recovery
	Logger    *zap.Logger
}

// Ledger is the durable record of in-flight trades. Every mutation rewrites
// the state file atomically (temp file, fsync, rename) before returning, so
// an entry exists on disk before the order it describes is submitted.
type Ledger struct {
	path      string
	orphanAge time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	active map[string]*Entry
}

// New creates a ledger rooted at cfg.Path. The state directory is created;
// existing state is not read until Recover.
func New(cfg Config) (*Ledger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger path is empty")
	}
	if cfg.OrphanAge <= 0 {
		cfg.OrphanAge = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	dir := filepath.Dir(cfg.Path)
	err := os.MkdirAll(dir, 0o700)
	if err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}

	return &Ledger{
		path:      cfg.Path,
		orphanAge: cfg.OrphanAge,
		logger:    cfg.Logger,
		active:    make(map[string]*Entry),
	}, nil
}

// RecordStart creates a pending entry for the opportunity and returns its
// trade key. The entry is durable before this returns; a failure here means
// no order may be submitted.
func (l *Ledger) RecordStart(opp *strategy.Opportunity) (string, error) {
	key := opp.TradeKey()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.active[key]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateTrade, key)
	}

	now := time.Now().UnixMilli()
	l.active[key] = &Entry{
		TradeKey:    key,
		Opportunity: *opp,
		Status:      types.TradePending,
		StartedAt:   now,
		UpdatedAt:   now,
	}

	err := l.persistLocked()
	if err != nil {
		delete(l.active, key)
		return "", fmt.Errorf("persist trade start: %w", err)
	}

	l.logger.Info("trade-recorded",
		zap.String("trade-key", key),
		zap.String("status", string(types.TradePending)))

	return key, nil
}

// RecordBuyExecuted transitions the entry to buyExecuted with the buy result.
func (l *Ledger) RecordBuyExecuted(tradeKey string, buyResult *types.OrderResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.active[tradeKey]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTradeNotFound, tradeKey)
	}
	if entry.Status != types.TradePending {
		return &types.InvariantError{
			Msg: fmt.Sprintf("buy recorded on %s trade %s", entry.Status, tradeKey),
		}
	}

	prev := *entry
	entry.Status = types.TradeBuyExecuted
	entry.BuyResult = buyResult
	entry.UpdatedAt = time.Now().UnixMilli()

	err := l.persistLocked()
	if err != nil {
		*entry = prev
		return fmt.Errorf("persist buy execution: %w", err)
	}

	l.logger.Info("trade-buy-executed",
		zap.String("trade-key", tradeKey),
		zap.Float64("filled", buyResult.FilledAmount),
		zap.Float64("avg-price", buyResult.AvgPrice))

	return nil
}

// RecordComplete finalizes the trade as completed or failed and removes it
// from the active set. The terminal record is logged before removal.
func (l *Ledger) RecordComplete(tradeKey string, success bool, sellResult *types.OrderResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.active[tradeKey]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTradeNotFound, tradeKey)
	}

	if sellResult != nil && (entry.BuyResult == nil || !entry.BuyResult.Success) {
		return &types.InvariantError{
			Msg: fmt.Sprintf("sell result recorded without successful buy on %s", tradeKey),
		}
	}

	status := types.TradeFailed
	if success {
		status = types.TradeCompleted
	}

	prev := *entry
	entry.Status = status
	entry.SellResult = sellResult
	entry.UpdatedAt = time.Now().UnixMilli()

	delete(l.active, tradeKey)

	err := l.persistLocked()
	if err != nil {
		*entry = prev
		l.active[tradeKey] = entry
		return fmt.Errorf("persist trade completion: %w", err)
	}

	if success {
		l.logger.Info("trade-completed",
			zap.String("trade-key", tradeKey),
			zap.Int64("started-at", entry.StartedAt))
	} else {
		l.logger.Warn("trade-failed",
			zap.String("trade-key", tradeKey),
			zap.Int64("started-at", entry.StartedAt))
	}

	ActiveTrades.Set(float64(len(l.active)))

	return nil
}

// Recover loads the state file and splits surviving entries into resumable
// and orphaned (older than the orphan age). Orphans stay in the file until
// acknowledged. Called once at startup, before any mutation.
func (l *Ledger) Recover() (resumable, orphaned []*Entry, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Info("ledger-state-missing", zap.String("path", l.path))
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read state file: %w", err)
	}

	var doc document
	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, nil, fmt.Errorf("decode state file %s: %w", l.path, err)
	}

	if doc.Version != schemaVersion {
		// Unknown schema: start empty, keep the file for inspection.
		l.logger.Warn("ledger-version-mismatch",
			zap.Int("file-version", doc.Version),
			zap.Int("supported-version", schemaVersion))
		l.active = make(map[string]*Entry)
		return nil, nil, nil
	}

	if doc.ActiveTrades == nil {
		doc.ActiveTrades = make(map[string]*Entry)
	}
	l.active = doc.ActiveTrades

	cutoff := time.Now().Add(-l.orphanAge).UnixMilli()
	for _, entry := range l.active {
		cp := *entry
		if entry.StartedAt < cutoff {
			orphaned = append(orphaned, &cp)
		} else {
			resumable = append(resumable, &cp)
		}
	}

	RecoveredTrades.WithLabelValues("resumable").Add(float64(len(resumable)))
	RecoveredTrades.WithLabelValues("orphaned").Add(float64(len(orphaned)))
	ActiveTrades.Set(float64(len(l.active)))

	l.logger.Info("ledger-recovered",
		zap.Int("resumable", len(resumable)),
		zap.Int("orphaned", len(orphaned)))

	return resumable, orphaned, nil
}

// AcknowledgeOrphan removes an orphaned entry after operator inspection.
// Entries younger than the orphan age are refused.
func (l *Ledger) AcknowledgeOrphan(tradeKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.active[tradeKey]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTradeNotFound, tradeKey)
	}

	age := time.Since(entry.StartedAtTime())
	if age < l.orphanAge {
		return fmt.Errorf("trade %s is %s old, not yet an orphan (threshold %s)",
			tradeKey, age.Round(time.Second), l.orphanAge)
	}

	delete(l.active, tradeKey)

	err := l.persistLocked()
	if err != nil {
		l.active[tradeKey] = entry
		return fmt.Errorf("persist orphan removal: %w", err)
	}

	l.logger.Warn("orphan-acknowledged",
		zap.String("trade-key", tradeKey),
		zap.Duration("age", age.Round(time.Second)))
	ActiveTrades.Set(float64(len(l.active)))

	return nil
}

// Active returns a snapshot of the active entries.
func (l *Ledger) Active() []*Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*Entry, 0, len(l.active))
	for _, entry := range l.active {
		cp := *entry
		out = append(out, &cp)
	}

	return out
}

// Close logs shutdown. State is already durable after every mutation.
func (l *Ledger) Close() error {
	l.mu.Lock()
	n := len(l.active)
	l.mu.Unlock()

	l.logger.Info("ledger-closed", zap.Int("active-trades", n))

	return nil
}

// persistLocked writes the whole document atomically: marshal, write to a
// temp file in the same directory, fsync, rename over the target. Caller
// holds l.mu.
func (l *Ledger) persistLocked() error {
	start := time.Now()

	doc := document{
		Version:      schemaVersion,
		LastUpdated:  time.Now().UnixMilli(),
		ActiveTrades: l.active,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open temp state file: %w", err)
	}

	_, err = f.Write(data)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp state file: %w", err)
	}

	err = f.Sync()
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsync state file: %w", err)
	}

	err = f.Close()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp state file: %w", err)
	}

	err = os.Rename(tmp, l.path)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace state file: %w", err)
	}

	WritesTotal.Inc()
	WriteDurationSeconds.Observe(time.Since(start).Seconds())
	ActiveTrades.Set(float64(len(l.active)))

	return nil
}
