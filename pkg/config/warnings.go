package config

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Warnings buffers messages produced while loading configuration, before any
// logger exists. It is a bounded ring: when full, the oldest entry is
// overwritten and a drop counter incremented. Flushing without a logger is a
// no-op, so a process that dies before logging starts loses nothing extra.
type Warnings struct {
	mu      sync.Mutex
	entries []string
	start   int
	count   int
	dropped int
}

// NewWarnings creates a warning ring holding at most capacity entries.
func NewWarnings(capacity int) *Warnings {
	if capacity <= 0 {
		capacity = 1
	}

	return &Warnings{entries: make([]string, capacity)}
}

// Addf records a formatted warning, evicting the oldest entry when full.
func (w *Warnings) Addf(format string, args ...any) {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	if w.count < len(w.entries) {
		w.entries[(w.start+w.count)%len(w.entries)] = msg
		w.count++
		return
	}

	w.entries[w.start] = msg
	w.start = (w.start + 1) % len(w.entries)
	w.dropped++
}

// Len returns the number of buffered warnings.
func (w *Warnings) Len() int {
	if w == nil {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	return w.count
}

// FlushTo emits every buffered warning through the logger and resets the
// ring. A nil logger (logging never initialized) leaves the buffer intact.
func (w *Warnings) FlushTo(logger *zap.Logger) {
	if w == nil || logger == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for i := 0; i < w.count; i++ {
		logger.Warn("config-warning", zap.String("detail", w.entries[(w.start+i)%len(w.entries)]))
	}

	if w.dropped > 0 {
		logger.Warn("config-warnings-dropped", zap.Int("count", w.dropped))
	}

	w.start = 0
	w.count = 0
	w.dropped = 0
}
