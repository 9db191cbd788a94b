package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsTotal counts successful journal inserts by kind.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_journal_records_total",
			Help: "Journal records persisted, by kind",
		},
		[]string{"kind"},
	)

	// RecordErrors counts failed journal inserts by kind.
	RecordErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossarb_journal_record_errors_total",
			Help: "Journal inserts that failed, by kind",
		},
		[]string{"kind"},
	)
)
