package venue

import (
	"time"

	"crossarb/pkg/cache"
	"crossarb/pkg/types"
)

// recentOrderEntry maps a client order id to the venue order it produced.
type recentOrderEntry struct {
	OrderID    string
	Venue      types.VenueID
	RecordedAt time.Time
}

// recentOrders is the idempotency record: every successful (or recovered)
// submission is remembered by client order id for a short TTL, so a caller
// retrying the same id gets the existing venue order back instead of creating
// a second one.
type recentOrders struct {
	cache cache.Cache
	ttl   time.Duration
}

func newRecentOrders(c cache.Cache, ttl time.Duration) *recentOrders {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}

	return &recentOrders{cache: c, ttl: ttl}
}

func recentKey(clientOrderID string) string {
	return "recent:" + clientOrderID
}

// Record remembers the mapping. Wait makes the write visible to an immediate
// retry on the same path.
func (r *recentOrders) Record(clientOrderID string, venue types.VenueID, orderID string) {
	r.cache.Set(recentKey(clientOrderID), recentOrderEntry{
		OrderID:    orderID,
		Venue:      venue,
		RecordedAt: time.Now(),
	}, r.ttl)
	r.cache.Wait()
}

// Lookup returns the recorded venue order for a client order id, if any.
func (r *recentOrders) Lookup(clientOrderID string) (recentOrderEntry, bool) {
	v, ok := r.cache.Get(recentKey(clientOrderID))
	if !ok {
		return recentOrderEntry{}, false
	}

	entry, ok := v.(recentOrderEntry)

	return entry, ok
}
