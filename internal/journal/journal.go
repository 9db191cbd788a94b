// Package journal persists detected opportunities and execution outcomes
// for offline analysis. Journal writes are advisory: a failed insert never
// blocks or fails a trade.
package journal

import (
	"context"

	"crossarb/internal/strategy"
)

// Journal stores opportunities and execution records.
type Journal interface {
	RecordOpportunity(ctx context.Context, opp *strategy.Opportunity) error
	RecordExecution(ctx context.Context, rec *strategy.ExecutionRecord) error
	Close() error
}
