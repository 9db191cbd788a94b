package venue

import (
	"sync"
	"time"

	"crossarb/pkg/types"
)

type balanceKey struct {
	venue    types.VenueID
	currency string
}

// reservationBook tracks balance earmarks for in-flight trades against the
// last observed free balances. The invariant it enforces: the sum of live
// reservations on a (venue, currency) never exceeds that pair's last observed
// free balance. Entries older than maxAge are swept before every read, so a
// crashed execution path cannot pin funds forever.
type reservationBook struct {
	maxAge time.Duration

	mu           sync.Mutex
	reservations map[string][]types.BalanceReservation // keyed by tradeKey
	freeBalances map[balanceKey]float64
}

func newReservationBook(maxAge time.Duration) *reservationBook {
	if maxAge <= 0 {
		maxAge = 60 * time.Second
	}

	return &reservationBook{
		maxAge:       maxAge,
		reservations: make(map[string][]types.BalanceReservation),
		freeBalances: make(map[balanceKey]float64),
	}
}

// ObserveFree records the last observed free balance for (venue, currency).
func (b *reservationBook) ObserveFree(venue types.VenueID, currency string, free float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.freeBalances[balanceKey{venue, currency}] = free
}

// Free returns the last observed free balance, if any balance fetch has
// reported one yet.
func (b *reservationBook) Free(venue types.VenueID, currency string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	free, ok := b.freeBalances[balanceKey{venue, currency}]

	return free, ok
}

// Reserve earmarks amount for tradeKey. It fails with a BalanceRaceError when
// the new total of live reservations would exceed the last observed free
// balance; callers must have observed a balance (via ObserveFree) first.
func (b *reservationBook) Reserve(tradeKey string, venue types.VenueID, currency string, amount float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweepLocked(time.Now())

	free := b.freeBalances[balanceKey{venue, currency}]
	reserved := b.reservedLocked(venue, currency, "")
	if reserved+amount > free {
		return &types.BalanceRaceError{
			Venue:     venue,
			Currency:  currency,
			Required:  amount,
			Available: free - reserved,
		}
	}

	b.reservations[tradeKey] = append(b.reservations[tradeKey], types.BalanceReservation{
		TradeKey:  tradeKey,
		Venue:     venue,
		Currency:  currency,
		Amount:    amount,
		CreatedAt: time.Now(),
	})
	ReservationsActive.Set(float64(b.countLocked()))

	return nil
}

// Release drops every reservation held by tradeKey.
func (b *reservationBook) Release(tradeKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.reservations, tradeKey)
	ReservationsActive.Set(float64(b.countLocked()))
}

// Reserved returns the live reserved amount on (venue, currency), excluding
// reservations held by excludeKey (pass "" to count everything). Sweeps
// expired entries first.
func (b *reservationBook) Reserved(venue types.VenueID, currency string, excludeKey string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweepLocked(time.Now())

	return b.reservedLocked(venue, currency, excludeKey)
}

// Available is max(0, last observed free − live reservations), excluding the
// caller's own tradeKey when given.
func (b *reservationBook) Available(venue types.VenueID, currency string, excludeKey string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweepLocked(time.Now())

	available := b.freeBalances[balanceKey{venue, currency}] - b.reservedLocked(venue, currency, excludeKey)
	if available < 0 {
		return 0
	}

	return available
}

func (b *reservationBook) reservedLocked(venue types.VenueID, currency string, excludeKey string) float64 {
	var sum float64
	for key, entries := range b.reservations {
		if key == excludeKey {
			continue
		}
		for _, r := range entries {
			if r.Venue == venue && r.Currency == currency {
				sum += r.Amount
			}
		}
	}

	return sum
}

func (b *reservationBook) sweepLocked(now time.Time) {
	cutoff := now.Add(-b.maxAge)
	for key, entries := range b.reservations {
		kept := entries[:0]
		for _, r := range entries {
			if r.CreatedAt.After(cutoff) {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(b.reservations, key)
		} else {
			b.reservations[key] = kept
		}
	}
	ReservationsActive.Set(float64(b.countLocked()))
}

func (b *reservationBook) countLocked() int {
	n := 0
	for _, entries := range b.reservations {
		n += len(entries)
	}

	return n
}
