package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/advisory"
	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/catalog"
	"bybit-trading-bot/internal/clock"
	"bybit-trading-bot/internal/cooldown"
	"bybit-trading-bot/internal/logging"
)

type openSet map[string]bool

func (o openSet) HasOpen(symbol string) bool { return o[symbol] }

func testScannerConfig() config.ScannerConfig {
	return config.ScannerConfig{
		BatchSize:        20,
		KlineInterval:    "15m",
		KlineLimit:       100,
		MinTurnover:      5_000_000,
		MinVolatility:    2.0,
		MinLeverage:      10,
		MaxMinOrderValue: 5,
		MinPrice:         0.0001,
		MaxPrice:         10_000,
	}
}

func tradingInstrument(symbol string) bybit.InstrumentInfo {
	return bybit.InstrumentInfo{
		Symbol: symbol,
		Status: "Trading",
		LotSizeFilter: bybit.LotSizeFilter{
			MinOrderQty:      1,
			QtyStep:          1,
			MaxOrderQty:      1_000_000,
			MinNotionalValue: 1,
		},
		PriceFilter:    bybit.PriceFilter{TickSize: 0.0001},
		LeverageFilter: bybit.LeverageFilter{MinLeverage: 1, MaxLeverage: 50},
	}
}

func liquidTicker(symbol string, price, turnover, changeFraction float64) *bybit.Ticker {
	return &bybit.Ticker{
		Symbol:          symbol,
		LastPrice:       price,
		Turnover24h:     turnover,
		Price24hPercent: changeFraction,
	}
}

// testCandles builds 60 candles with zero-body ranges so indicator readings
// stay neutral and pattern output is stable across symbols
func testCandles() []bybit.Candle {
	candles := make([]bybit.Candle, 60)
	for i := range candles {
		candles[i] = bybit.Candle{
			StartTime: int64(i) * 60_000,
			Open:      1.0,
			High:      1.01,
			Low:       0.99,
			Close:     1.0,
			Volume:    1000,
		}
	}
	return candles
}

func seedSymbol(mock *bybit.MockClient, symbol string, price, turnover, changeFraction float64) {
	mock.Instruments[symbol] = tradingInstrument(symbol)
	mock.Tickers[symbol] = liquidTicker(symbol, price, turnover, changeFraction)
	mock.Klines[symbol] = testCandles()
}

func newTestScanner(t *testing.T, mock *bybit.MockClient, cfg config.ScannerConfig, positions OpenChecker, scorer advisory.Scorer, cooldowns *cooldown.Tracker) *Scanner {
	t.Helper()
	logger := logging.New(&logging.Config{Level: "error"})
	cat := catalog.New(mock, "linear", logger)
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("catalog refresh failed: %v", err)
	}
	if cooldowns == nil {
		cooldowns = cooldown.New(15*time.Minute, clock.Real{})
	}
	return New(mock, "linear", cat, cooldowns, positions, scorer, 0, cfg, logger)
}

// TestScanFiltersLowTurnover tests the $5M turnover floor
func TestScanFiltersLowTurnover(t *testing.T) {
	mock := bybit.NewMockClient()
	seedSymbol(mock, "XRPUSDT", 0.5, 10_000_000, 0.03)
	seedSymbol(mock, "THINUSDT", 0.5, 2_000_000, 0.03)

	sc := newTestScanner(t, mock, testScannerConfig(), nil, nil, nil)
	result, err := sc.Scan(context.Background(), []string{"XRPUSDT", "THINUSDT"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(result.Candidates) != 1 || result.Candidates[0].Symbol != "XRPUSDT" {
		t.Errorf("candidates = %v, want only XRPUSDT", result.Candidates)
	}
	if result.Filtered != 1 {
		t.Errorf("filtered = %d, want 1", result.Filtered)
	}
}

// TestScanFiltersLowVolatility tests the 2% volatility floor
func TestScanFiltersLowVolatility(t *testing.T) {
	mock := bybit.NewMockClient()
	seedSymbol(mock, "XRPUSDT", 0.5, 10_000_000, 0.03)
	seedSymbol(mock, "FLATUSDT", 0.5, 10_000_000, 0.01) // 1% daily move

	sc := newTestScanner(t, mock, testScannerConfig(), nil, nil, nil)
	result, err := sc.Scan(context.Background(), []string{"XRPUSDT", "FLATUSDT"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	for _, c := range result.Candidates {
		if c.Symbol == "FLATUSDT" {
			t.Error("low-volatility symbol ranked")
		}
	}
	if result.Filtered != 1 {
		t.Errorf("filtered = %d, want 1", result.Filtered)
	}
}

// TestScanFiltersNegativeVolatility tests the floor uses absolute movement
func TestScanFiltersNegativeVolatility(t *testing.T) {
	mock := bybit.NewMockClient()
	seedSymbol(mock, "DOWNUSDT", 0.5, 10_000_000, -0.04) // -4% still volatile

	sc := newTestScanner(t, mock, testScannerConfig(), nil, nil, nil)
	result, err := sc.Scan(context.Background(), []string{"DOWNUSDT"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.Candidates) != 1 {
		t.Errorf("falling symbol should pass the volatility floor, got %v", result.Candidates)
	}
}

// TestScanExcludesOpenAndCooldown tests open/cooling symbols stay out of
// the ranking but still get refreshed
func TestScanExcludesOpenAndCooldown(t *testing.T) {
	mock := bybit.NewMockClient()
	seedSymbol(mock, "OPENUSDT", 0.5, 10_000_000, 0.03)
	seedSymbol(mock, "COOLUSDT", 0.5, 10_000_000, 0.03)
	seedSymbol(mock, "FREEUSDT", 0.5, 10_000_000, 0.03)

	cooldowns := cooldown.New(15*time.Minute, clock.Real{})
	cooldowns.MarkTraded("COOLUSDT")

	sc := newTestScanner(t, mock, testScannerConfig(), openSet{"OPENUSDT": true}, nil, cooldowns)
	result, err := sc.Scan(context.Background(), []string{"OPENUSDT", "COOLUSDT", "FREEUSDT"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(result.Candidates) != 1 || result.Candidates[0].Symbol != "FREEUSDT" {
		t.Errorf("candidates = %v, want only FREEUSDT", result.Candidates)
	}
	if result.Excluded != 2 {
		t.Errorf("excluded = %d, want 2", result.Excluded)
	}

	// Excluded symbols must still have fresh market data
	inst, ok := sc.catalog.Get("OPENUSDT")
	if !ok || inst.Turnover24h != 10_000_000 {
		t.Errorf("excluded symbol not refreshed: %+v", inst)
	}
}

// TestScanPerSymbolErrorIsolation tests one failing symbol cannot sink the scan
func TestScanPerSymbolErrorIsolation(t *testing.T) {
	mock := bybit.NewMockClient()
	seedSymbol(mock, "XRPUSDT", 0.5, 10_000_000, 0.03)
	seedSymbol(mock, "BADUSDT", 0.5, 10_000_000, 0.03)
	mock.KlineErrors["BADUSDT"] = errors.New("upstream timeout")

	sc := newTestScanner(t, mock, testScannerConfig(), nil, nil, nil)
	result, err := sc.Scan(context.Background(), []string{"XRPUSDT", "BADUSDT"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(result.Candidates) != 1 || result.Candidates[0].Symbol != "XRPUSDT" {
		t.Errorf("candidates = %v, want only XRPUSDT", result.Candidates)
	}
	if result.Failed != 1 {
		t.Errorf("failed = %d, want 1", result.Failed)
	}
}

// TestScanDenylist tests configured exclusions are filtered out
func TestScanDenylist(t *testing.T) {
	mock := bybit.NewMockClient()
	seedSymbol(mock, "BTCUSDT", 65_000, 900_000_000, 0.03)

	cfg := testScannerConfig()
	cfg.MaxPrice = 100_000
	cfg.ExcludeSymbols = []string{"BTCUSDT"}

	sc := newTestScanner(t, mock, cfg, nil, nil, nil)
	result, err := sc.Scan(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.Candidates) != 0 || result.Filtered != 1 {
		t.Errorf("denylisted symbol not filtered: %+v", result)
	}
}

// TestScanRankingByConfidence tests ordering and the volatility tiebreak
func TestScanRankingByConfidence(t *testing.T) {
	mock := bybit.NewMockClient()
	seedSymbol(mock, "AAAUSDT", 0.5, 10_000_000, 0.03)
	seedSymbol(mock, "BBBUSDT", 0.5, 10_000_000, 0.05)
	seedSymbol(mock, "CCCUSDT", 0.5, 10_000_000, 0.03)

	// Advisory pushes CCCUSDT's confidence above the identical others
	scorer := &advisory.StaticScorer{Scores: map[string]advisory.Score{
		"CCCUSDT": {Symbol: "CCCUSDT", Recommendation: advisory.StrongBuy, Confidence: 1},
	}}

	sc := newTestScanner(t, mock, testScannerConfig(), nil, scorer, nil)
	result, err := sc.Scan(context.Background(), []string{"AAAUSDT", "BBBUSDT", "CCCUSDT"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.Candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(result.Candidates))
	}

	if result.Candidates[0].Symbol != "CCCUSDT" {
		t.Errorf("top candidate = %s, want CCCUSDT (highest confidence)", result.Candidates[0].Symbol)
	}
	// AAAUSDT and BBBUSDT tie on confidence; BBBUSDT moves more
	if result.Candidates[1].Symbol != "BBBUSDT" {
		t.Errorf("second candidate = %s, want BBBUSDT (volatility tiebreak)", result.Candidates[1].Symbol)
	}
}

// TestScanLastResult tests the retained result for the API
func TestScanLastResult(t *testing.T) {
	mock := bybit.NewMockClient()
	seedSymbol(mock, "XRPUSDT", 0.5, 10_000_000, 0.03)

	sc := newTestScanner(t, mock, testScannerConfig(), nil, nil, nil)
	if sc.LastResult() != nil {
		t.Error("LastResult should be nil before the first scan")
	}

	want, err := sc.Scan(context.Background(), []string{"XRPUSDT"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if got := sc.LastResult(); got == nil || got.ScanID != want.ScanID {
		t.Errorf("LastResult = %+v, want scan %s", got, want.ScanID)
	}
}

// TestScanCancellation tests a cancelled context aborts between batches
func TestScanCancellation(t *testing.T) {
	mock := bybit.NewMockClient()
	seedSymbol(mock, "XRPUSDT", 0.5, 10_000_000, 0.03)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := newTestScanner(t, mock, testScannerConfig(), nil, nil, nil)
	if _, err := sc.Scan(ctx, []string{"XRPUSDT"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan error = %v, want context.Canceled", err)
	}
}
