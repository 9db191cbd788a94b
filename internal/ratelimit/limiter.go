package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"crossarb/pkg/types"
)

// Config holds rate limiter configuration. Capacity is the default token
// budget per window; venues can override it via SetCapacity.
type Config struct {
	Capacity          int
	Window            time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Logger            *zap.Logger
}

// Limiter shapes outbound traffic per venue: a token bucket refilled
// continuously at capacity/window, plus an exponential backoff window that
// opens whenever the venue reports throttling. A venue that is both out of
// tokens and inside a backoff window waits for the later of the two.
type Limiter struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	venues map[types.VenueID]*venueState
}

type venueState struct {
	bucket         *rate.Limiter
	capacity       int
	backoffUntil   time.Time
	currentBackoff time.Duration
	totalRequests  int64
	throttleErrors int64
}

// Stats is a point-in-time view of one venue's limiter state.
type Stats struct {
	TotalRequests  int64
	InWindow       int
	ThrottleErrors int64
	CurrentBackoff time.Duration
	Throttled      bool
}

// New creates a rate limiter. Zero config fields get safe defaults.
func New(cfg Config) *Limiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2.0
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Limiter{
		cfg:    cfg,
		logger: cfg.Logger,
		venues: make(map[types.VenueID]*venueState),
	}
}

// SetCapacity overrides the token budget for one venue. Call before traffic
// starts; an existing bucket is replaced.
func (l *Limiter) SetCapacity(venue types.VenueID, capacity int) {
	if capacity <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.stateLocked(venue)
	st.capacity = capacity
	st.bucket = rate.NewLimiter(rate.Limit(float64(capacity)/l.cfg.Window.Seconds()), capacity)
}

// stateLocked returns the venue state, creating it on first use.
// Caller holds l.mu.
func (l *Limiter) stateLocked(venue types.VenueID) *venueState {
	st, ok := l.venues[venue]
	if !ok {
		st = &venueState{
			bucket:         rate.NewLimiter(rate.Limit(float64(l.cfg.Capacity)/l.cfg.Window.Seconds()), l.cfg.Capacity),
			capacity:       l.cfg.Capacity,
			currentBackoff: l.cfg.InitialBackoff,
		}
		l.venues[venue] = st
	}

	return st
}

// Acquire blocks until a token is available for the venue AND the venue is
// outside any backoff window, or until ctx is done. A throttle arriving
// while waiting for a token re-arms the wait.
func (l *Limiter) Acquire(ctx context.Context, venue types.VenueID) error {
	start := time.Now()

	l.mu.Lock()
	st := l.stateLocked(venue)
	l.mu.Unlock()

	for {
		l.mu.Lock()
		until := st.backoffUntil
		l.mu.Unlock()

		if wait := time.Until(until); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			// Re-read: another throttle may have extended the window.
			continue
		}

		err := st.bucket.Wait(ctx)
		if err != nil {
			return err
		}

		l.mu.Lock()
		throttledMeanwhile := time.Now().Before(st.backoffUntil)
		if !throttledMeanwhile {
			st.totalRequests++
		}
		l.mu.Unlock()

		if throttledMeanwhile {
			// The token is burned; the backoff window wins.
			continue
		}

		AcquiresTotal.WithLabelValues(string(venue)).Inc()
		AcquireWaitSeconds.Observe(time.Since(start).Seconds())

		return nil
	}
}

// OnThrottled registers a throttling signal from the venue: the venue enters
// backoff for the current duration, and the duration grows by the multiplier
// up to the cap.
func (l *Limiter) OnThrottled(venue types.VenueID) {
	l.mu.Lock()
	st := l.stateLocked(venue)

	st.backoffUntil = time.Now().Add(st.currentBackoff)
	st.throttleErrors++
	applied := st.currentBackoff

	next := time.Duration(float64(st.currentBackoff) * l.cfg.BackoffMultiplier)
	if next > l.cfg.MaxBackoff {
		next = l.cfg.MaxBackoff
	}
	st.currentBackoff = next
	l.mu.Unlock()

	ThrottleEventsTotal.WithLabelValues(string(venue)).Inc()
	BackoffSeconds.WithLabelValues(string(venue)).Set(applied.Seconds())

	l.logger.Warn("venue-throttled",
		zap.String("venue", string(venue)),
		zap.Duration("backoff", applied),
		zap.Duration("next-backoff", next))
}

// OnSuccess resets the venue's backoff after a successful request.
func (l *Limiter) OnSuccess(venue types.VenueID) {
	l.mu.Lock()
	st := l.stateLocked(venue)
	st.currentBackoff = l.cfg.InitialBackoff
	st.backoffUntil = time.Time{}
	l.mu.Unlock()

	BackoffSeconds.WithLabelValues(string(venue)).Set(0)
}

// Stats returns a snapshot of the venue's limiter state.
func (l *Limiter) Stats(venue types.VenueID) Stats {
	l.mu.Lock()
	st := l.stateLocked(venue)

	inWindow := st.capacity - int(st.bucket.Tokens())
	if inWindow < 0 {
		inWindow = 0
	}

	s := Stats{
		TotalRequests:  st.totalRequests,
		InWindow:       inWindow,
		ThrottleErrors: st.throttleErrors,
		CurrentBackoff: st.currentBackoff,
		Throttled:      time.Now().Before(st.backoffUntil),
	}
	l.mu.Unlock()

	return s
}
