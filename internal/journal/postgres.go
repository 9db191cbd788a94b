package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"crossarb/internal/strategy"
)

// Postgres persists journal entries to PostgreSQL.
type Postgres struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgres opens and pings the database.
func NewPostgres(cfg *PostgresConfig) (*Postgres, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-journal-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &Postgres{db: db, logger: cfg.Logger}, nil
}

// NewPostgresURL opens and pings the database from a postgres:// URL.
func NewPostgresURL(databaseURL string, logger *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("postgres-journal-connected")

	return &Postgres{db: db, logger: logger}, nil
}

// newPostgresWithDB wires an existing handle; used by tests.
func newPostgresWithDB(db *sql.DB, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

// RecordOpportunity inserts one opportunity row.
func (p *Postgres) RecordOpportunity(ctx context.Context, opp *strategy.Opportunity) error {
	query := `
		INSERT INTO opportunities (
			id, instrument, buy_venue, sell_venue,
			buy_price, sell_price, amount,
			profit_percent, profit_amount, total_fees, detected_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := p.db.ExecContext(ctx, query,
		opp.ID,
		string(opp.Instrument),
		string(opp.BuyVenue),
		string(opp.SellVenue),
		opp.BuyPrice,
		opp.SellPrice,
		opp.Amount,
		opp.ProfitPercent,
		opp.ProfitAmount,
		opp.TotalFees,
		opp.Timestamp,
	)
	if err != nil {
		RecordErrors.WithLabelValues("opportunity").Inc()
		return fmt.Errorf("insert opportunity: %w", err)
	}
	RecordsTotal.WithLabelValues("opportunity").Inc()

	return nil
}

// RecordExecution inserts one execution row. Leg columns are nullable: a
// failed trade may carry no sell result at all.
func (p *Postgres) RecordExecution(ctx context.Context, rec *strategy.ExecutionRecord) error {
	query := `
		INSERT INTO executions (
			trade_key, opportunity_id, status, actual_profit, detail,
			buy_order_id, buy_filled, buy_avg_price, buy_fee,
			sell_order_id, sell_filled, sell_avg_price, sell_fee,
			completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	var oppID string
	if rec.Opportunity != nil {
		oppID = rec.Opportunity.ID
	}

	var buyID, sellID sql.NullString
	var buyFilled, buyPrice, buyFee sql.NullFloat64
	var sellFilled, sellPrice, sellFee sql.NullFloat64
	if rec.BuyResult != nil {
		buyID = sql.NullString{String: rec.BuyResult.OrderID, Valid: true}
		buyFilled = sql.NullFloat64{Float64: rec.BuyResult.FilledAmount, Valid: true}
		buyPrice = sql.NullFloat64{Float64: rec.BuyResult.AvgPrice, Valid: true}
		buyFee = sql.NullFloat64{Float64: rec.BuyResult.FeePaid, Valid: true}
	}
	if rec.SellResult != nil {
		sellID = sql.NullString{String: rec.SellResult.OrderID, Valid: true}
		sellFilled = sql.NullFloat64{Float64: rec.SellResult.FilledAmount, Valid: true}
		sellPrice = sql.NullFloat64{Float64: rec.SellResult.AvgPrice, Valid: true}
		sellFee = sql.NullFloat64{Float64: rec.SellResult.FeePaid, Valid: true}
	}

	_, err := p.db.ExecContext(ctx, query,
		rec.TradeKey,
		oppID,
		string(rec.Status),
		rec.ActualProfit,
		rec.Detail,
		buyID, buyFilled, buyPrice, buyFee,
		sellID, sellFilled, sellPrice, sellFee,
		rec.CompletedAt,
	)
	if err != nil {
		RecordErrors.WithLabelValues("execution").Inc()
		return fmt.Errorf("insert execution: %w", err)
	}
	RecordsTotal.WithLabelValues("execution").Inc()

	return nil
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	p.logger.Info("closing-postgres-journal")

	return p.db.Close()
}
