package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/advisory"
	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/catalog"
	"bybit-trading-bot/internal/cooldown"
	"bybit-trading-bot/internal/fusion"
	"bybit-trading-bot/internal/indicators"
	"bybit-trading-bot/internal/logging"
	"bybit-trading-bot/internal/patterns"
)

// evaluation outcome per symbol
type symbolStatus int

const (
	statusCandidate symbolStatus = iota
	statusFiltered
	statusExcluded
	statusFailed
)

// Scanner filters the instrument universe and ranks survivors by fused
// signal confidence. Symbols are processed in fixed-size batches; within a
// batch each symbol runs concurrently.
type Scanner struct {
	client    bybit.Client
	category  string
	catalog   *catalog.Catalog
	cooldowns *cooldown.Tracker
	positions OpenChecker
	scorer    advisory.Scorer
	advWeight float64
	detector  *patterns.Detector
	cfg       config.ScannerConfig
	logger    *logging.Logger

	mu         sync.RWMutex
	lastResult *ScanResult

	excluded map[string]bool
}

// New creates a scanner. scorer may be nil when no advisory service is
// configured; advWeight is that scorer's share of the fused signal.
func New(
	client bybit.Client,
	category string,
	cat *catalog.Catalog,
	cooldowns *cooldown.Tracker,
	positions OpenChecker,
	scorer advisory.Scorer,
	advWeight float64,
	cfg config.ScannerConfig,
	logger *logging.Logger,
) *Scanner {
	excluded := make(map[string]bool, len(cfg.ExcludeSymbols))
	for _, s := range cfg.ExcludeSymbols {
		excluded[s] = true
	}
	return &Scanner{
		client:    client,
		category:  category,
		catalog:   cat,
		cooldowns: cooldowns,
		positions: positions,
		scorer:    scorer,
		advWeight: advWeight,
		detector:  patterns.NewDetector(0.6),
		cfg:       cfg,
		logger:    logger.WithComponent("scanner"),
		excluded:  excluded,
	}
}

// Scan runs one full cycle over the universe and returns the ranked
// candidates. The result is also retained for the API.
func (sc *Scanner) Scan(ctx context.Context, universe []string) (*ScanResult, error) {
	started := time.Now()
	result := &ScanResult{
		ScanID:         fmt.Sprintf("scan-%d", started.UnixMilli()),
		StartedAt:      started,
		SymbolsScanned: len(universe),
	}

	for start := 0; start < len(universe); start += sc.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + sc.cfg.BatchSize
		if end > len(universe) {
			end = len(universe)
		}
		batch := universe[start:end]

		type outcome struct {
			status    symbolStatus
			candidate *Candidate
		}
		outcomes := make([]outcome, len(batch))

		var wg sync.WaitGroup
		for i, symbol := range batch {
			wg.Add(1)
			go func(i int, symbol string) {
				defer wg.Done()
				candidate, status := sc.evaluate(ctx, symbol)
				outcomes[i] = outcome{status: status, candidate: candidate}
			}(i, symbol)
		}
		wg.Wait()

		for _, o := range outcomes {
			switch o.status {
			case statusCandidate:
				result.Candidates = append(result.Candidates, *o.candidate)
			case statusFiltered:
				result.Filtered++
			case statusExcluded:
				result.Excluded++
			case statusFailed:
				result.Failed++
			}
		}
	}

	// Confidence descending; ties broken by higher 24h volatility, then
	// symbol for a total order
	sort.Slice(result.Candidates, func(i, j int) bool {
		a, b := result.Candidates[i], result.Candidates[j]
		if a.Signal.Confidence != b.Signal.Confidence {
			return a.Signal.Confidence > b.Signal.Confidence
		}
		av, bv := absVolatility(a.Instrument), absVolatility(b.Instrument)
		if av != bv {
			return av > bv
		}
		return a.Symbol < b.Symbol
	})

	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(started)

	sc.mu.Lock()
	sc.lastResult = result
	sc.mu.Unlock()

	sc.logger.Info("Scan completed",
		"scan_id", result.ScanID,
		"scanned", result.SymbolsScanned,
		"candidates", len(result.Candidates),
		"filtered", result.Filtered,
		"excluded", result.Excluded,
		"failed", result.Failed,
		"duration", result.Duration.String())
	return result, nil
}

// evaluate refreshes one symbol's market data, applies the hard filters
// and computes its fused signal. Errors drop only this symbol.
func (sc *Scanner) evaluate(ctx context.Context, symbol string) (*Candidate, symbolStatus) {
	if sc.excluded[symbol] {
		return nil, statusFiltered
	}

	ticker, err := sc.client.GetTicker(ctx, sc.category, symbol)
	if err != nil {
		sc.logger.Debug("Ticker fetch failed", "symbol", symbol, "error", err.Error())
		return nil, statusFailed
	}
	instrument, ok := sc.catalog.ApplyTicker(symbol, ticker)
	if !ok {
		return nil, statusFailed
	}

	if !sc.passesFilters(instrument) {
		return nil, statusFiltered
	}

	// An open or cooling-down symbol keeps its data fresh for monitoring
	// but never re-enters the ranking
	if sc.positions != nil && sc.positions.HasOpen(symbol) {
		return nil, statusExcluded
	}
	if !sc.cooldowns.IsEligible(symbol) {
		return nil, statusExcluded
	}

	candles, err := sc.client.GetKlines(ctx, sc.category, symbol, sc.cfg.KlineInterval, sc.cfg.KlineLimit)
	if err != nil {
		sc.logger.Debug("Kline fetch failed", "symbol", symbol, "error", err.Error())
		return nil, statusFailed
	}

	set := indicators.Compute(symbol, candles)
	matches := sc.detector.DetectCandlestickPatterns(candles)
	matches = append(matches, sc.detector.DetectChartPatterns(candles)...)

	var advScore *advisory.Score
	if sc.scorer != nil {
		advScore, err = sc.scorer.Score(ctx, symbol)
		if err != nil {
			// Advisory failures degrade to indicator/pattern-only fusion
			sc.logger.Debug("Advisory unavailable", "symbol", symbol, "error", err.Error())
			advScore = nil
		}
	}

	signal := fusion.FuseWeighted(symbol, set, matches, advScore, sc.advWeight)
	return &Candidate{Symbol: symbol, Signal: signal, Instrument: instrument}, statusCandidate
}

// passesFilters applies the hard eligibility criteria
func (sc *Scanner) passesFilters(in catalog.Instrument) bool {
	if in.Turnover24h < sc.cfg.MinTurnover {
		return false
	}
	if absF(in.Volatility24h) < sc.cfg.MinVolatility {
		return false
	}
	if in.MaxLeverage < sc.cfg.MinLeverage {
		return false
	}
	if in.MinOrderValue > sc.cfg.MaxMinOrderValue {
		return false
	}
	if in.LastPrice < sc.cfg.MinPrice || in.LastPrice > sc.cfg.MaxPrice {
		return false
	}
	return true
}

// LastResult returns the most recent scan result, nil before the first scan
func (sc *Scanner) LastResult() *ScanResult {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastResult
}

func absVolatility(in catalog.Instrument) float64 {
	return absF(in.Volatility24h)
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
