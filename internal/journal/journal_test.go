package journal

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"

	"crossarb/internal/strategy"
	"crossarb/pkg/types"
)

func sampleOpportunity() *strategy.Opportunity {
	return strategy.NewOpportunity(
		"BTC/USD", "venue-a", "venue-b",
		100.0, 101.0, 5,
		0.001, 0.001,
		time.Now(),
	)
}

func TestConsoleJournalRecords(t *testing.T) {
	c := NewConsole(zap.NewNop())

	err := c.RecordOpportunity(context.Background(), sampleOpportunity())
	if err != nil {
		t.Fatalf("RecordOpportunity: %v", err)
	}

	err = c.RecordExecution(context.Background(), &strategy.ExecutionRecord{
		TradeKey:    "BTC/USD-venue-a-venue-b",
		Opportunity: sampleOpportunity(),
		Status:      types.TradeFailed,
		Detail:      "buy leg failed",
		CompletedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}

	err = c.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPostgresRecordOpportunity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	p := newPostgresWithDB(db, zap.NewNop())
	opp := sampleOpportunity()

	mock.ExpectExec("INSERT INTO opportunities").
		WithArgs(
			opp.ID,
			"BTC/USD",
			"venue-a",
			"venue-b",
			opp.BuyPrice,
			opp.SellPrice,
			opp.Amount,
			opp.ProfitPercent,
			opp.ProfitAmount,
			opp.TotalFees,
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = p.RecordOpportunity(context.Background(), opp)
	if err != nil {
		t.Fatalf("RecordOpportunity: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRecordExecutionWithNullSellLeg(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	p := newPostgresWithDB(db, zap.NewNop())
	opp := sampleOpportunity()

	mock.ExpectExec("INSERT INTO executions").
		WithArgs(
			"BTC/USD-venue-a-venue-b",
			opp.ID,
			"failed",
			0.0,
			"buy leg failed",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = p.RecordExecution(context.Background(), &strategy.ExecutionRecord{
		TradeKey:    "BTC/USD-venue-a-venue-b",
		Opportunity: opp,
		Status:      types.TradeFailed,
		Detail:      "buy leg failed",
		CompletedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("RecordExecution: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresInsertErrorSurfaces(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	p := newPostgresWithDB(db, zap.NewNop())

	mock.ExpectExec("INSERT INTO opportunities").
		WillReturnError(context.DeadlineExceeded)

	err = p.RecordOpportunity(context.Background(), sampleOpportunity())
	if err == nil {
		t.Fatal("insert error swallowed")
	}
}
