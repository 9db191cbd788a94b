package types

import (
	"fmt"
	"time"
)

// ConfigError is a fatal configuration problem detected at init.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// VenueError wraps an error reported by a venue. Permanent errors
// (authentication, unknown instrument) exclude the venue from the current
// scan; transient ones feed backoff and reconnection.
type VenueError struct {
	Venue     VenueID
	Op        string // "createOrder", "fetchBalance", ...
	Permanent bool
	Err       error
}

func (e *VenueError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}

	return fmt.Sprintf("venue %s: %s: %s error: %v", e.Venue, e.Op, kind, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// InvariantError signals a broken execution invariant, e.g. a sell attempted
// without a successful buy. Fatal for the affected trade path.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Msg
}

// BalanceRaceError means a fresh balance check failed at submission time:
// the balance observed during gating was gone by the time we acted on it.
type BalanceRaceError struct {
	Venue     VenueID
	Currency  string
	Required  float64
	Available float64
}

func (e *BalanceRaceError) Error() string {
	return fmt.Sprintf("balance race on %s: need %.8f %s, available %.8f",
		e.Venue, e.Required, e.Currency, e.Available)
}

// StalenessError rejects an order book older than the configured threshold.
type StalenessError struct {
	Venue      VenueID
	Instrument Instrument
	Age        time.Duration
	Threshold  time.Duration
}

func (e *StalenessError) Error() string {
	return fmt.Sprintf("stale book %s %s: age %s exceeds %s",
		e.Venue, e.Instrument, e.Age, e.Threshold)
}

// PartialFillError means the buy leg filled below the configured threshold.
// The bought position is stranded and needs operator attention.
type PartialFillError struct {
	TradeKey    string
	FillPercent float64
	Threshold   float64
}

func (e *PartialFillError) Error() string {
	return fmt.Sprintf("partial fill on %s: %.2f%% < %.2f%% threshold, manual intervention may be required",
		e.TradeKey, e.FillPercent, e.Threshold)
}
