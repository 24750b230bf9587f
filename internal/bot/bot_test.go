package bot

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bybit-trading-bot/config"
	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/catalog"
	"bybit-trading-bot/internal/clock"
	"bybit-trading-bot/internal/cooldown"
	"bybit-trading-bot/internal/fusion"
	"bybit-trading-bot/internal/ledger"
	"bybit-trading-bot/internal/logging"
	"bybit-trading-bot/internal/position"
	"bybit-trading-bot/internal/scanner"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.TradingConfig = config.TradingConfig{
		TotalCapital:     12,
		OrderValue:       5,
		Leverage:         10,
		MaxOpenPositions: 2,
		MinConfidence:    0.85,
	}
	cfg.PositionConfig = config.PositionConfig{
		MonitorInterval:   60,
		MaxHoldSeconds:    300,
		TakeProfitPercent: 3,
		StopLossPercent:   1.5,
		CloseTimeout:      5,
	}
	return cfg
}

func newTestBot(t *testing.T) (*Bot, *bybit.MockClient, *position.Manager) {
	t.Helper()
	cfg := testConfig()
	log := logging.New(&logging.Config{Level: "ERROR"})

	client := bybit.NewMockClient()
	led, err := ledger.New(cfg.TradingConfig.TotalCapital, zerolog.Nop())
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	cooldowns := cooldown.New(0, clock.Real{})
	mgr := position.New(client, "linear", led, cooldowns, nil, nil, nil,
		cfg.TradingConfig, cfg.PositionConfig, clock.Real{}, zerolog.Nop())
	t.Cleanup(func() { mgr.Shutdown(context.Background()) })

	cat := catalog.New(client, "linear", log)
	scn := scanner.New(client, "linear", cat, cooldowns, mgr, nil, cfg.AdvisoryConfig.Weight, cfg.ScannerConfig, log)

	return New(cfg, cat, scn, mgr, led, cooldowns, nil, log), client, mgr
}

func candidate(symbol, direction string, confidence float64) scanner.Candidate {
	return scanner.Candidate{
		Symbol: symbol,
		Signal: &fusion.FusedSignal{
			Symbol:     symbol,
			Direction:  direction,
			Confidence: confidence,
		},
		Instrument: catalog.Instrument{
			Symbol:      symbol,
			LastPrice:   0.5,
			QtyStep:     0.01,
			MinOrderQty: 0.01,
			MaxOrderQty: 1e9,
		},
	}
}

func seedTicker(client *bybit.MockClient, symbol string, price float64) {
	client.Tickers[symbol] = &bybit.Ticker{
		Symbol:    symbol,
		LastPrice: price,
	}
}

func TestOpenCandidatesOpensTopRanked(t *testing.T) {
	b, client, mgr := newTestBot(t)
	seedTicker(client, "AAAUSDT", 0.5)

	b.openCandidates(context.Background(), []scanner.Candidate{
		candidate("AAAUSDT", fusion.Buy, 0.9),
	})

	if mgr.OpenCount() != 1 {
		t.Fatalf("OpenCount = %d, want 1", mgr.OpenCount())
	}
	if !mgr.HasOpen("AAAUSDT") {
		t.Fatal("expected AAAUSDT to be open")
	}
}

func TestOpenCandidatesSkipsLowConfidence(t *testing.T) {
	b, client, mgr := newTestBot(t)
	seedTicker(client, "AAAUSDT", 0.5)

	b.openCandidates(context.Background(), []scanner.Candidate{
		candidate("AAAUSDT", fusion.Buy, 0.5),
	})

	if mgr.OpenCount() != 0 {
		t.Fatalf("OpenCount = %d, want 0", mgr.OpenCount())
	}
}

func TestOpenCandidatesSkipsHoldSignals(t *testing.T) {
	b, client, mgr := newTestBot(t)
	seedTicker(client, "AAAUSDT", 0.5)
	seedTicker(client, "BBBUSDT", 0.5)

	b.openCandidates(context.Background(), []scanner.Candidate{
		candidate("AAAUSDT", fusion.Hold, 0.95),
		candidate("BBBUSDT", fusion.Sell, 0.9),
	})

	if mgr.HasOpen("AAAUSDT") {
		t.Fatal("HOLD candidate must not open a position")
	}
	if !mgr.HasOpen("BBBUSDT") {
		t.Fatal("SELL candidate should open a position")
	}
}

func TestOpenCandidatesStopsAtSlotLimit(t *testing.T) {
	b, client, mgr := newTestBot(t)
	for _, s := range []string{"AAAUSDT", "BBBUSDT", "CCCUSDT"} {
		seedTicker(client, s, 0.5)
	}

	b.openCandidates(context.Background(), []scanner.Candidate{
		candidate("AAAUSDT", fusion.Buy, 0.95),
		candidate("BBBUSDT", fusion.Buy, 0.92),
		candidate("CCCUSDT", fusion.Buy, 0.9),
	})

	if mgr.OpenCount() != 2 {
		t.Fatalf("OpenCount = %d, want 2 (slot limit)", mgr.OpenCount())
	}
	if mgr.HasOpen("CCCUSDT") {
		t.Fatal("third candidate must not open past the slot limit")
	}
}

func TestScanBudgetUsesConfiguredTimeout(t *testing.T) {
	b, _, _ := newTestBot(t)

	b.cfg.ScannerConfig.ScanTimeout = 90
	if got := b.scanBudget(30 * time.Second); got != 90*time.Second {
		t.Fatalf("scan budget = %v, want 90s", got)
	}

	// Without a timeout the interval bounds the cycle
	b.cfg.ScannerConfig.ScanTimeout = 0
	if got := b.scanBudget(30 * time.Second); got != 30*time.Second {
		t.Fatalf("scan budget = %v, want 30s", got)
	}
}

func TestStatusReportsCapital(t *testing.T) {
	b, client, _ := newTestBot(t)
	seedTicker(client, "AAAUSDT", 0.5)

	b.openCandidates(context.Background(), []scanner.Candidate{
		candidate("AAAUSDT", fusion.Buy, 0.9),
	})

	status := b.Status()
	capital, ok := status["capital"].(map[string]interface{})
	if !ok {
		t.Fatal("expected capital section")
	}
	if capital["allocated"] != 5.0 {
		t.Fatalf("allocated = %v, want 5", capital["allocated"])
	}
	if capital["available"] != 7.0 {
		t.Fatalf("available = %v, want 7", capital["available"])
	}
	if status["open_positions"] != 1 {
		t.Fatalf("open_positions = %v, want 1", status["open_positions"])
	}
}
