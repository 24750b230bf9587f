package position

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/catalog"
	"bybit-trading-bot/internal/clock"
	"bybit-trading-bot/internal/cooldown"
	"bybit-trading-bot/internal/ledger"
)

// Open rejection errors
var (
	ErrManagerStopped  = errors.New("position manager stopped")
	ErrSymbolBusy      = errors.New("symbol already has a position")
	ErrNoFreeSlot      = errors.New("max open positions reached")
	ErrQtyBelowMinimum = errors.New("computed qty below instrument minimum")
	ErrUnknownPosition = errors.New("unknown position")
	ErrAlreadyClosed   = errors.New("position already closed")
)

const historyLimit = 200

// OpenRequest carries everything needed to open one position
type OpenRequest struct {
	Symbol     string
	Side       bybit.Side
	Confidence float64
	Instrument catalog.Instrument
}

// Manager owns the position state machine: it opens positions against the
// capital ledger, runs one monitor goroutine per open position and
// guarantees each position closes exactly once.
type Manager struct {
	client    bybit.Client
	category  string
	ledger    *ledger.Ledger
	cooldowns *cooldown.Tracker
	trades    TradeStore
	snapshots SnapshotStore
	events    Publisher
	trading   config.TradingConfig
	cfg       config.PositionConfig
	clock     clock.Clock
	logger    zerolog.Logger

	mu        sync.Mutex
	open      map[string]*Position
	bySymbol  map[string]string
	history   []*Position
	attempted int
	stopped   bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a position manager. trades, snapshots and events may be nil.
func New(
	client bybit.Client,
	category string,
	capital *ledger.Ledger,
	cooldowns *cooldown.Tracker,
	trades TradeStore,
	snapshots SnapshotStore,
	events Publisher,
	trading config.TradingConfig,
	cfg config.PositionConfig,
	clk clock.Clock,
	logger zerolog.Logger,
) *Manager {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Manager{
		client:    client,
		category:  category,
		ledger:    capital,
		cooldowns: cooldowns,
		trades:    trades,
		snapshots: snapshots,
		events:    events,
		trading:   trading,
		cfg:       cfg,
		clock:     clk,
		logger:    logger.With().Str("component", "position").Logger(),
		open:      make(map[string]*Position),
		bySymbol:  make(map[string]string),
		stopCh:    make(chan struct{}),
	}
}

// Open reserves capital, places the entry order and starts monitoring.
// On any failure the reservation is rolled back and no position exists.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*Position, error) {
	id := uuid.NewString()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrManagerStopped
	}
	if _, busy := m.bySymbol[req.Symbol]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSymbolBusy, req.Symbol)
	}
	if len(m.bySymbol) >= m.trading.MaxOpenPositions {
		m.mu.Unlock()
		return nil, ErrNoFreeSlot
	}
	// Hold the symbol slot while the order is in flight
	m.bySymbol[req.Symbol] = id
	m.mu.Unlock()

	pos, err := m.place(ctx, id, req)
	if err != nil {
		m.mu.Lock()
		delete(m.bySymbol, req.Symbol)
		m.attempted++
		m.mu.Unlock()
		return nil, err
	}

	// Copy the position before the monitor goroutine can touch it; once it
	// is in m.open every read must hold m.mu.
	m.mu.Lock()
	m.open[id] = pos
	snap := pos.snapshot()
	m.mu.Unlock()

	m.wg.Add(1)
	go m.monitor(id)

	if m.snapshots != nil {
		if serr := m.snapshots.Save(ctx, snap); serr != nil {
			m.logger.Warn().Err(serr).Str("position", id).Msg("Snapshot save failed")
		}
	}
	if m.events != nil {
		m.events.Publish("position_opened", snap)
	}

	m.logger.Info().
		Str("position", id).
		Str("symbol", snap.Symbol).
		Str("side", string(snap.Side)).
		Float64("entry", snap.EntryPrice).
		Float64("qty", snap.Qty).
		Float64("take_profit", snap.TakeProfit).
		Float64("stop_loss", snap.StopLoss).
		Msg("Position opened")
	return snap, nil
}

// place reserves capital and executes the entry order
func (m *Manager) place(ctx context.Context, id string, req OpenRequest) (*Position, error) {
	entry := req.Instrument.LastPrice
	if entry <= 0 {
		return nil, fmt.Errorf("no price for %s", req.Symbol)
	}

	qty := m.computeQty(entry, req.Instrument)
	if qty < req.Instrument.MinOrderQty || qty <= 0 {
		return nil, fmt.Errorf("%w: %s qty %v min %v",
			ErrQtyBelowMinimum, req.Symbol, qty, req.Instrument.MinOrderQty)
	}

	reservation, err := m.ledger.Reserve(m.trading.OrderValue)
	if err != nil {
		return nil, fmt.Errorf("reserve failed for %s: %w", req.Symbol, err)
	}

	orderID := ""
	if !m.trading.DryRun {
		order := bybit.OrderRequest{
			Category:    m.category,
			Symbol:      req.Symbol,
			Side:        req.Side,
			OrderType:   bybit.OrderTypeMarket,
			Qty:         bybit.FormatQty(qty),
			TimeInForce: bybit.TimeInForceIOC,
		}
		resp, err := m.client.PlaceOrder(ctx, order)
		if err != nil {
			if rerr := m.ledger.Release(reservation); rerr != nil {
				m.logger.Error().Err(rerr).Str("reservation", reservation).Msg("Rollback release failed")
			}
			return nil, fmt.Errorf("entry order failed for %s: %w", req.Symbol, err)
		}
		orderID = resp.OrderID
	}

	tp, sl := m.exitLevels(entry, req.Side)
	return &Position{
		ID:            id,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Status:        StatusOpen,
		EntryPrice:    entry,
		Qty:           qty,
		OrderValue:    m.trading.OrderValue,
		Leverage:      float64(m.trading.Leverage),
		TakeProfit:    tp,
		StopLoss:      sl,
		TargetProfit:  m.trading.TargetProfit,
		Confidence:    req.Confidence,
		OrderID:       orderID,
		ReservationID: reservation,
		OpenedAt:      m.clock.Now(),
	}, nil
}

// computeQty sizes the order from margin x leverage, rounded down to the
// instrument's qty step and clamped to its maximum
func (m *Manager) computeQty(entry float64, in catalog.Instrument) float64 {
	raw := m.trading.OrderValue * float64(m.trading.Leverage) / entry
	if in.QtyStep > 0 {
		raw = math.Floor(raw/in.QtyStep) * in.QtyStep
	}
	if in.MaxOrderQty > 0 && raw > in.MaxOrderQty {
		raw = in.MaxOrderQty
	}
	return raw
}

// exitLevels derives the fixed-percentage TP/SL offsets from entry
func (m *Manager) exitLevels(entry float64, side bybit.Side) (tp, sl float64) {
	tpFrac := m.cfg.TakeProfitPercent / 100
	slFrac := m.cfg.StopLossPercent / 100
	if side == bybit.SideBuy {
		return entry * (1 + tpFrac), entry * (1 - slFrac)
	}
	return entry * (1 - tpFrac), entry * (1 + slFrac)
}

// monitor drives the per-position check loop until the position closes or
// the manager shuts down
func (m *Manager) monitor(id string) {
	defer m.wg.Done()

	interval := time.Duration(m.cfg.MonitorInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if done := m.check(context.Background(), id); done {
				return
			}
		case <-m.stopCh:
			return
		}
	}
}

// check runs one monitor tick: compare price against TP/SL and elapsed
// time against the hold limit; the first condition met closes the
// position. Returns true once the position is closed.
func (m *Manager) check(ctx context.Context, id string) bool {
	m.mu.Lock()
	pos, ok := m.open[id]
	if !ok {
		m.mu.Unlock()
		return true
	}
	symbol := pos.Symbol
	opened := pos.OpenedAt
	m.mu.Unlock()

	ticker, err := m.client.GetTicker(ctx, m.category, symbol)
	if err != nil {
		m.logger.Warn().Err(err).Str("symbol", symbol).Msg("Monitor price fetch failed")
		return false
	}
	price := ticker.LastPrice

	reason := m.closeReason(id, price, opened)
	if reason == "" {
		return false
	}

	if err := m.close(ctx, id, reason, price); err != nil {
		m.logger.Warn().Err(err).Str("position", id).Str("reason", string(reason)).Msg("Close attempt failed, will retry")
		return false
	}
	return true
}

// closeReason evaluates the exit conditions in priority order
func (m *Manager) closeReason(id string, price float64, opened time.Time) CloseReason {
	m.mu.Lock()
	pos, ok := m.open[id]
	if !ok {
		m.mu.Unlock()
		return ""
	}
	side, tp, sl := pos.Side, pos.TakeProfit, pos.StopLoss
	m.mu.Unlock()

	if side == bybit.SideBuy {
		if price >= tp {
			return ReasonTakeProfit
		}
		if price <= sl {
			return ReasonStopLoss
		}
	} else {
		if price <= tp {
			return ReasonTakeProfit
		}
		if price >= sl {
			return ReasonStopLoss
		}
	}

	maxHold := time.Duration(m.cfg.MaxHoldSeconds) * time.Second
	if maxHold > 0 && m.clock.Now().Sub(opened) >= maxHold {
		return ReasonTimeLimit
	}
	return ""
}

// Close flattens a position on operator request
func (m *Manager) Close(ctx context.Context, id string, reason CloseReason) error {
	m.mu.Lock()
	pos, ok := m.open[id]
	if !ok {
		closed := false
		for _, h := range m.history {
			if h.ID == id {
				closed = true
				break
			}
		}
		m.mu.Unlock()
		if closed {
			return ErrAlreadyClosed
		}
		return fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	symbol := pos.Symbol
	entry := pos.EntryPrice
	m.mu.Unlock()

	price := entry
	if ticker, err := m.client.GetTicker(ctx, m.category, symbol); err == nil {
		price = ticker.LastPrice
	}
	return m.close(ctx, id, reason, price)
}

// close executes the single-close path: exactly one reduce-only exit order
// may be in flight, and only the first success transitions to CLOSED.
func (m *Manager) close(ctx context.Context, id string, reason CloseReason, exitPrice float64) error {
	m.mu.Lock()
	pos, ok := m.open[id]
	if !ok || pos.Status != StatusOpen {
		m.mu.Unlock()
		return nil // already closed
	}
	if pos.closing {
		m.mu.Unlock()
		return nil // close already in flight
	}
	pos.closing = true
	side := pos.Side
	symbol := pos.Symbol
	qty := pos.Qty
	m.mu.Unlock()

	if !m.trading.DryRun {
		exitSide := bybit.SideSell
		if side == bybit.SideSell {
			exitSide = bybit.SideBuy
		}
		order := bybit.OrderRequest{
			Category:    m.category,
			Symbol:      symbol,
			Side:        exitSide,
			OrderType:   bybit.OrderTypeMarket,
			Qty:         bybit.FormatQty(qty),
			TimeInForce: bybit.TimeInForceIOC,
			ReduceOnly:  true,
		}
		if _, err := m.client.PlaceOrder(ctx, order); err != nil {
			m.mu.Lock()
			pos.closing = false
			pos.CloseFailures++
			m.mu.Unlock()
			return fmt.Errorf("exit order failed for %s: %w", symbol, err)
		}
	}

	m.mu.Lock()
	pos.Status = StatusClosed
	pos.ClosedAt = m.clock.Now()
	pos.ExitPrice = exitPrice
	pos.RealizedPnL = pos.UnrealizedPnL(exitPrice)
	pos.CloseReason = reason
	delete(m.open, id)
	delete(m.bySymbol, symbol)
	m.history = append(m.history, pos)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
	m.mu.Unlock()

	m.settle(ctx, pos)

	m.logger.Info().
		Str("position", id).
		Str("symbol", symbol).
		Str("reason", string(reason)).
		Float64("exit", exitPrice).
		Float64("pnl", pos.RealizedPnL).
		Msg("Position closed")
	return nil
}

// settle releases capital, starts the cooldown and records the trade.
// Persistence failures are logged, never propagated.
func (m *Manager) settle(ctx context.Context, pos *Position) {
	if err := m.ledger.Release(pos.ReservationID); err != nil {
		m.logger.Error().Err(err).Str("position", pos.ID).Msg("Ledger release failed")
	}
	m.cooldowns.MarkTraded(pos.Symbol)

	if m.trades != nil {
		if err := m.trades.RecordTrade(ctx, pos); err != nil {
			m.logger.Warn().Err(err).Str("position", pos.ID).Msg("Trade record failed")
		}
	}
	if m.snapshots != nil {
		if err := m.snapshots.Delete(ctx, pos.ID); err != nil {
			m.logger.Warn().Err(err).Str("position", pos.ID).Msg("Snapshot delete failed")
		}
	}
	if m.events != nil {
		m.events.Publish("position_closed", pos.snapshot())
	}
}

// Shutdown stops monitoring and closes every open position with
// SYSTEM_STOP, waiting per position up to the configured close timeout.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	ids := make([]string, 0, len(m.open))
	for id := range m.open {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	timeout := time.Duration(m.cfg.CloseTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	for _, id := range ids {
		closeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := m.Close(closeCtx, id, ReasonSystemStop)
		cancel()
		if err != nil && !errors.Is(err, ErrAlreadyClosed) {
			m.logger.Error().Err(err).Str("position", id).Msg("Residual position remains open after shutdown")
		}
	}
}

// HasOpen reports whether the symbol has a live position. Satisfies the
// scanner's OpenChecker.
func (m *Manager) HasOpen(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bySymbol[symbol]
	return ok
}

// Get returns a copy of the position, searching open then history
func (m *Manager) Get(id string) (*Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos, ok := m.open[id]; ok {
		return pos.snapshot(), true
	}
	for _, h := range m.history {
		if h.ID == id {
			return h.snapshot(), true
		}
	}
	return nil, false
}

// Positions returns copies of all open positions
func (m *Manager) Positions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.open))
	for _, pos := range m.open {
		out = append(out, *pos.snapshot())
	}
	return out
}

// History returns copies of closed positions, oldest first
func (m *Manager) History() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.history))
	for _, pos := range m.history {
		out = append(out, *pos.snapshot())
	}
	return out
}

// OpenCount returns the number of live positions
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// AttemptedOpens returns how many open attempts failed at placement
func (m *Manager) AttemptedOpens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempted
}

// snapshot copies the position for handing outside the manager
func (p *Position) snapshot() *Position {
	cp := *p
	cp.closing = false
	return &cp
}
