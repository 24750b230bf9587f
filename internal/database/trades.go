package database

import (
	"context"
	"fmt"
	"time"

	"bybit-trading-bot/internal/logging"
	"bybit-trading-bot/internal/position"
)

// TradeRecord is a settled trade row from the history table.
type TradeRecord struct {
	PositionID  string    `json:"position_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Quantity    float64   `json:"quantity"`
	OrderValue  float64   `json:"order_value"`
	Leverage    float64   `json:"leverage"`
	PnL         float64   `json:"pnl"`
	Confidence  float64   `json:"confidence"`
	CloseReason string    `json:"close_reason"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}

// TradeSummary aggregates realized performance over a time range.
type TradeSummary struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	TotalPnL float64 `json:"total_pnl"`
}

// TradeRepository persists settled positions into the trades table.
type TradeRepository struct {
	db     *DB
	logger *logging.Logger
}

func NewTradeRepository(db *DB, logger *logging.Logger) *TradeRepository {
	return &TradeRepository{db: db, logger: logger.WithComponent("trades")}
}

// RecordTrade inserts a closed position. Re-recording the same position
// is a no-op so close retries stay idempotent.
func (r *TradeRepository) RecordTrade(ctx context.Context, p *position.Position) error {
	query := `
		INSERT INTO trades (
			position_id, symbol, side, entry_price, exit_price, quantity,
			order_value, leverage, pnl, confidence, close_reason, opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (position_id) DO NOTHING`

	_, err := r.db.Pool.Exec(ctx, query,
		p.ID, p.Symbol, string(p.Side), p.EntryPrice, p.ExitPrice, p.Qty,
		p.OrderValue, p.Leverage, p.RealizedPnL, p.Confidence,
		string(p.CloseReason), p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}
	r.logger.Info("Trade recorded", "symbol", p.Symbol, "pnl", p.RealizedPnL, "reason", string(p.CloseReason))
	return nil
}

// ListRecent returns the newest settled trades, most recent first.
func (r *TradeRepository) ListRecent(ctx context.Context, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT position_id, symbol, side, entry_price, exit_price, quantity,
		       order_value, leverage, pnl, confidence, close_reason, opened_at, closed_at
		FROM trades
		ORDER BY closed_at DESC
		LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(
			&t.PositionID, &t.Symbol, &t.Side, &t.EntryPrice, &t.ExitPrice, &t.Quantity,
			&t.OrderValue, &t.Leverage, &t.PnL, &t.Confidence, &t.CloseReason, &t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Summary aggregates trade counts and realized PnL since the given time.
func (r *TradeRepository) Summary(ctx context.Context, since time.Time) (*TradeSummary, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE pnl > 0),
		       COUNT(*) FILTER (WHERE pnl < 0),
		       COALESCE(SUM(pnl), 0)
		FROM trades
		WHERE closed_at >= $1`

	var s TradeSummary
	err := r.db.Pool.QueryRow(ctx, query, since).Scan(&s.Trades, &s.Wins, &s.Losses, &s.TotalPnL)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize trades: %w", err)
	}
	return &s, nil
}
