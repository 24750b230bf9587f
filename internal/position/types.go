package position

import (
	"context"
	"time"

	"bybit-trading-bot/internal/bybit"
)

// Status of a position. Transitions are NONE -> OPEN -> CLOSED; CLOSED is
// terminal and reached exactly once.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// CloseReason explains why a position was flattened
type CloseReason string

const (
	ReasonTakeProfit CloseReason = "TAKE_PROFIT"
	ReasonStopLoss   CloseReason = "STOP_LOSS"
	ReasonTimeLimit  CloseReason = "TIME_LIMIT"
	ReasonManual     CloseReason = "MANUAL"
	ReasonSystemStop CloseReason = "SYSTEM_STOP"
)

// Position is one leveraged trade through its lifecycle
type Position struct {
	ID            string      `json:"id"`
	Symbol        string      `json:"symbol"`
	Side          bybit.Side  `json:"side"`
	Status        Status      `json:"status"`
	EntryPrice    float64     `json:"entryPrice"`
	Qty           float64     `json:"qty"`
	OrderValue    float64     `json:"orderValue"` // margin reserved from the ledger
	Leverage      float64     `json:"leverage"`
	TakeProfit    float64     `json:"takeProfit"`
	StopLoss      float64     `json:"stopLoss"`
	TargetProfit  float64     `json:"targetProfit"` // USDT goal for the trade
	Confidence    float64     `json:"confidence"`
	OrderID       string      `json:"orderId"`
	ReservationID string      `json:"-"`
	OpenedAt      time.Time   `json:"openedAt"`
	ClosedAt      time.Time   `json:"closedAt,omitempty"`
	ExitPrice     float64     `json:"exitPrice,omitempty"`
	RealizedPnL   float64     `json:"realizedPnl"`
	CloseReason   CloseReason `json:"closeReason,omitempty"`
	CloseFailures int         `json:"closeFailures"`

	closing bool // close order in flight
}

// UnrealizedPnL computes the mark-to-market profit at the given price
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == bybit.SideBuy {
		return (price - p.EntryPrice) * p.Qty
	}
	return (p.EntryPrice - price) * p.Qty
}

// TradeStore persists completed trades. Implementations must tolerate
// being unavailable; the manager treats persistence as best-effort.
type TradeStore interface {
	RecordTrade(ctx context.Context, p *Position) error
}

// SnapshotStore keeps live position state in external storage so a restart
// can report residual exposure.
type SnapshotStore interface {
	Save(ctx context.Context, p *Position) error
	Delete(ctx context.Context, id string) error
}

// Publisher pushes position lifecycle events to subscribers
type Publisher interface {
	Publish(event string, payload interface{})
}
