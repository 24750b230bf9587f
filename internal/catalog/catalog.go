package catalog

import (
	"context"
	"sync"
	"time"

	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/logging"
)

// Instrument holds the per-symbol trading constraints plus the latest market
// snapshot. Values copied out of the catalog are safe to keep.
type Instrument struct {
	Symbol        string    `json:"symbol"`
	LastPrice     float64   `json:"last_price"`
	Turnover24h   float64   `json:"turnover_24h"`
	Volatility24h float64   `json:"volatility_24h"` // 24h price change, percent
	MaxLeverage   float64   `json:"max_leverage"`
	MinOrderQty   float64   `json:"min_order_qty"`
	QtyStep       float64   `json:"qty_step"`
	MaxOrderQty   float64   `json:"max_order_qty"`
	MinOrderValue float64   `json:"min_order_value"`
	TickSize      float64   `json:"tick_size"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Catalog caches instrument constraints. Refresh replaces the snapshot
// atomically so readers never observe a half-updated catalog.
type Catalog struct {
	client   bybit.Client
	category string
	logger   *logging.Logger

	mu          sync.RWMutex
	instruments map[string]Instrument
	refreshedAt time.Time
}

// New creates an empty catalog.
func New(client bybit.Client, category string, logger *logging.Logger) *Catalog {
	return &Catalog{
		client:      client,
		category:    category,
		logger:      logger.WithComponent("catalog"),
		instruments: make(map[string]Instrument),
	}
}

// Refresh fetches constraints for the whole category and swaps in a new
// snapshot. A fetch failure leaves the previous snapshot in place.
func (c *Catalog) Refresh(ctx context.Context) error {
	infos, err := c.client.GetInstrumentsInfo(ctx, c.category, "")
	if err != nil {
		c.logger.Warn("Instrument refresh failed, keeping previous snapshot", "error", err)
		return err
	}

	now := time.Now()
	next := make(map[string]Instrument, len(infos))
	skipped := 0
	for _, info := range infos {
		if info.Status != "Trading" {
			skipped++
			continue
		}
		inst := Instrument{
			Symbol:        info.Symbol,
			MaxLeverage:   info.LeverageFilter.MaxLeverage,
			MinOrderQty:   info.LotSizeFilter.MinOrderQty,
			QtyStep:       info.LotSizeFilter.QtyStep,
			MaxOrderQty:   info.LotSizeFilter.MaxOrderQty,
			MinOrderValue: info.LotSizeFilter.MinNotionalValue,
			TickSize:      info.PriceFilter.TickSize,
			UpdatedAt:     now,
		}

		// Carry forward market data from the old snapshot until the next
		// ticker update arrives.
		c.mu.RLock()
		if prev, ok := c.instruments[info.Symbol]; ok {
			inst.LastPrice = prev.LastPrice
			inst.Turnover24h = prev.Turnover24h
			inst.Volatility24h = prev.Volatility24h
		}
		c.mu.RUnlock()

		next[info.Symbol] = inst
	}

	c.mu.Lock()
	c.instruments = next
	c.refreshedAt = now
	c.mu.Unlock()

	c.logger.Info("Instrument catalog refreshed", "instruments", len(next), "skipped", skipped)
	return nil
}

// ApplyTicker folds the latest 24h statistics into the cached instrument
// and returns the updated snapshot.
func (c *Catalog) ApplyTicker(symbol string, ticker *bybit.Ticker) (Instrument, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst, ok := c.instruments[symbol]
	if !ok {
		return Instrument{}, false
	}
	inst.LastPrice = ticker.LastPrice
	inst.Turnover24h = ticker.Turnover24h
	inst.Volatility24h = ticker.Price24hPercent * 100
	inst.UpdatedAt = time.Now()
	c.instruments[symbol] = inst
	return inst, true
}

// Get returns the cached instrument for a symbol.
func (c *Catalog) Get(symbol string) (Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instruments[symbol]
	return inst, ok
}

// Snapshot returns a copy of every cached instrument.
func (c *Catalog) Snapshot() []Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Instrument, 0, len(c.instruments))
	for _, inst := range c.instruments {
		out = append(out, inst)
	}
	return out
}

// Symbols returns all cached symbols.
func (c *Catalog) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	symbols := make([]string, 0, len(c.instruments))
	for symbol := range c.instruments {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// Len returns the number of cached instruments.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instruments)
}
