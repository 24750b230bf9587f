package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/catalog"
	"bybit-trading-bot/internal/cooldown"
	"bybit-trading-bot/internal/fusion"
	"bybit-trading-bot/internal/ledger"
	"bybit-trading-bot/internal/logging"
	"bybit-trading-bot/internal/position"
	"bybit-trading-bot/internal/scanner"
)

// Bot drives the scan/open cycle: refresh the instrument catalog, scan
// the universe, and open the strongest candidates while capital and
// position slots remain.
type Bot struct {
	cfg       *config.Config
	catalog   *catalog.Catalog
	scanner   *scanner.Scanner
	positions *position.Manager
	capital   *ledger.Ledger
	cooldowns *cooldown.Tracker
	events    position.Publisher
	logger    *logging.Logger

	mu         sync.RWMutex
	running    bool
	startedAt  time.Time
	scans      int
	lastScanAt time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates the orchestrator. events may be nil.
func New(
	cfg *config.Config,
	cat *catalog.Catalog,
	scn *scanner.Scanner,
	positions *position.Manager,
	capital *ledger.Ledger,
	cooldowns *cooldown.Tracker,
	events position.Publisher,
	logger *logging.Logger,
) *Bot {
	return &Bot{
		cfg:       cfg,
		catalog:   cat,
		scanner:   scn,
		positions: positions,
		capital:   capital,
		cooldowns: cooldowns,
		events:    events,
		logger:    logger.WithComponent("bot"),
		stopChan:  make(chan struct{}),
	}
}

// Start loads the instrument catalog and launches the scan and
// catalog-refresh loops.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.catalog.Refresh(ctx); err != nil {
		return err
	}
	b.logger.Info("Instrument catalog loaded", "symbols", b.catalog.Len())
	b.logger.Info("Bot started",
		"dry_run", b.cfg.TradingConfig.DryRun,
		"max_positions", b.cfg.TradingConfig.MaxOpenPositions,
		"scan_interval", b.cfg.ScannerConfig.ScanInterval)

	b.mu.Lock()
	b.running = true
	b.startedAt = time.Now()
	b.mu.Unlock()

	b.wg.Add(2)
	go b.scanLoop()
	go b.catalogLoop()
	return nil
}

// Stop halts the loops and closes every open position.
func (b *Bot) Stop(ctx context.Context) {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	close(b.stopChan)
	b.wg.Wait()
	b.positions.Shutdown(ctx)
	b.logger.Info("Bot stopped")
}

func (b *Bot) scanLoop() {
	defer b.wg.Done()

	interval := time.Duration(b.cfg.ScannerConfig.ScanInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	timeout := b.scanBudget(interval)

	// First scan runs immediately, then on the ticker.
	b.runCycle(timeout)
	for {
		select {
		case <-ticker.C:
			b.runCycle(timeout)
		case <-b.stopChan:
			return
		}
	}
}

// scanBudget resolves how long one cycle may run. A cycle may outlast the
// scan interval; slow scans finish late rather than being cut off
// mid-universe.
func (b *Bot) scanBudget(interval time.Duration) time.Duration {
	timeout := time.Duration(b.cfg.ScannerConfig.ScanTimeout) * time.Second
	if timeout <= 0 {
		timeout = interval
	}
	return timeout
}

func (b *Bot) catalogLoop() {
	defer b.wg.Done()

	minutes := b.cfg.ScannerConfig.CatalogRefreshMin
	if minutes <= 0 {
		minutes = 60
	}
	ticker := time.NewTicker(time.Duration(minutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := b.catalog.Refresh(ctx); err != nil {
				b.logger.Warn("Catalog refresh failed", "error", err.Error())
			}
			cancel()
		case <-b.stopChan:
			return
		}
	}
}

// runCycle performs one scan and opens candidates from the top of the
// ranking while slots and capital remain.
func (b *Bot) runCycle(budget time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	result, err := b.scanner.Scan(ctx, b.catalog.Symbols())
	if err != nil {
		b.logger.Error("Scan failed", "error", err.Error())
		return
	}

	b.mu.Lock()
	b.scans++
	b.lastScanAt = time.Now()
	b.mu.Unlock()

	if b.events != nil {
		b.events.Publish("scan_complete", map[string]interface{}{
			"scan_id":    result.ScanID,
			"scanned":    result.SymbolsScanned,
			"candidates": len(result.Candidates),
			"duration":   result.Duration.String(),
		})
	}

	b.openCandidates(ctx, result.Candidates)
}

func (b *Bot) openCandidates(ctx context.Context, candidates []scanner.Candidate) {
	for _, cand := range candidates {
		// Ranking is confidence-descending, so the first miss ends the pass.
		if cand.Signal.Confidence < b.cfg.TradingConfig.MinConfidence {
			return
		}

		var side bybit.Side
		switch cand.Signal.Direction {
		case fusion.Buy:
			side = bybit.SideBuy
		case fusion.Sell:
			side = bybit.SideSell
		default:
			continue
		}

		pos, err := b.positions.Open(ctx, position.OpenRequest{
			Symbol:     cand.Symbol,
			Side:       side,
			Confidence: cand.Signal.Confidence,
			Instrument: cand.Instrument,
		})
		switch {
		case err == nil:
			b.logger.Info("Opened position",
				"symbol", pos.Symbol,
				"side", string(pos.Side),
				"entry", pos.EntryPrice,
				"confidence", pos.Confidence)
		case errors.Is(err, position.ErrNoFreeSlot),
			errors.Is(err, ledger.ErrInsufficientCapital),
			errors.Is(err, position.ErrManagerStopped):
			return
		case errors.Is(err, position.ErrSymbolBusy),
			errors.Is(err, position.ErrQtyBelowMinimum):
			continue
		default:
			b.logger.Warn("Failed to open position", "symbol", cand.Symbol, "error", err.Error())
		}
	}
}

// Status reports engine state for the API.
func (b *Bot) Status() map[string]interface{} {
	b.mu.RLock()
	running := b.running
	startedAt := b.startedAt
	scans := b.scans
	lastScan := b.lastScanAt
	b.mu.RUnlock()

	status := map[string]interface{}{
		"running":         running,
		"dry_run":         b.cfg.TradingConfig.DryRun,
		"scans":           scans,
		"open_positions":  b.positions.OpenCount(),
		"attempted_opens": b.positions.AttemptedOpens(),
		"capital": map[string]interface{}{
			"total":     b.capital.Total(),
			"allocated": b.capital.Allocated(),
			"available": b.capital.Available(),
		},
		"cooldowns": b.cooldowns.Snapshot(),
	}
	if running {
		status["uptime"] = time.Since(startedAt).String()
	}
	if !lastScan.IsZero() {
		status["last_scan_at"] = lastScan.Format(time.RFC3339)
	}
	return status
}
