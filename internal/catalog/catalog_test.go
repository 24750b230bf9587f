package catalog

import (
	"context"
	"errors"
	"sort"
	"testing"

	"bybit-trading-bot/internal/bybit"
	"bybit-trading-bot/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(&logging.Config{Level: "ERROR"})
}

func tradingInstrument(symbol string) bybit.InstrumentInfo {
	return bybit.InstrumentInfo{
		Symbol: symbol,
		Status: "Trading",
		LotSizeFilter: bybit.LotSizeFilter{
			MinOrderQty:      0.01,
			MaxOrderQty:      1e6,
			QtyStep:          0.01,
			MinNotionalValue: 5,
		},
		PriceFilter:    bybit.PriceFilter{TickSize: 0.0001},
		LeverageFilter: bybit.LeverageFilter{MaxLeverage: 50},
	}
}

func TestRefreshLoadsTradingInstruments(t *testing.T) {
	client := bybit.NewMockClient()
	client.Instruments["AAAUSDT"] = tradingInstrument("AAAUSDT")
	client.Instruments["BBBUSDT"] = tradingInstrument("BBBUSDT")

	delisted := tradingInstrument("DEADUSDT")
	delisted.Status = "Closed"
	client.Instruments["DEADUSDT"] = delisted

	cat := New(client, "linear", testLogger())
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if cat.Len() != 2 {
		t.Fatalf("Len = %d, want 2", cat.Len())
	}
	if _, ok := cat.Get("DEADUSDT"); ok {
		t.Fatal("delisted instrument must be excluded")
	}

	inst, ok := cat.Get("AAAUSDT")
	if !ok {
		t.Fatal("expected AAAUSDT in catalog")
	}
	if inst.MaxLeverage != 50 || inst.QtyStep != 0.01 || inst.MinOrderValue != 5 {
		t.Fatalf("instrument = %+v", inst)
	}
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	client := bybit.NewMockClient()
	client.Instruments["AAAUSDT"] = tradingInstrument("AAAUSDT")

	cat := New(client, "linear", testLogger())
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	client.InstrumentsErr = errors.New("exchange down")
	if err := cat.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if cat.Len() != 1 {
		t.Fatalf("Len = %d after failed refresh, want 1", cat.Len())
	}
}

func TestApplyTickerUpdatesMarketData(t *testing.T) {
	client := bybit.NewMockClient()
	client.Instruments["AAAUSDT"] = tradingInstrument("AAAUSDT")

	cat := New(client, "linear", testLogger())
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	inst, ok := cat.ApplyTicker("AAAUSDT", &bybit.Ticker{
		Symbol:          "AAAUSDT",
		LastPrice:       0.5,
		Turnover24h:     8_000_000,
		Price24hPercent: 0.031,
	})
	if !ok {
		t.Fatal("ApplyTicker returned false for known symbol")
	}
	if inst.LastPrice != 0.5 || inst.Turnover24h != 8_000_000 {
		t.Fatalf("instrument = %+v", inst)
	}
	if inst.Volatility24h != 3.1 {
		t.Fatalf("Volatility24h = %v, want 3.1", inst.Volatility24h)
	}
}

func TestApplyTickerUnknownSymbol(t *testing.T) {
	cat := New(bybit.NewMockClient(), "linear", testLogger())
	if _, ok := cat.ApplyTicker("NOPEUSDT", &bybit.Ticker{}); ok {
		t.Fatal("ApplyTicker must return false for unknown symbols")
	}
}

func TestRefreshCarriesForwardMarketData(t *testing.T) {
	client := bybit.NewMockClient()
	client.Instruments["AAAUSDT"] = tradingInstrument("AAAUSDT")

	cat := New(client, "linear", testLogger())
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	cat.ApplyTicker("AAAUSDT", &bybit.Ticker{LastPrice: 0.5, Turnover24h: 6_000_000, Price24hPercent: 0.02})

	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	inst, _ := cat.Get("AAAUSDT")
	if inst.LastPrice != 0.5 || inst.Turnover24h != 6_000_000 || inst.Volatility24h != 2 {
		t.Fatalf("market data lost on refresh: %+v", inst)
	}
}

func TestSnapshotCopies(t *testing.T) {
	client := bybit.NewMockClient()
	client.Instruments["AAAUSDT"] = tradingInstrument("AAAUSDT")

	cat := New(client, "linear", testLogger())
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	snap := cat.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot len = %d, want 1", len(snap))
	}
	snap[0].LastPrice = 999
	if inst, _ := cat.Get("AAAUSDT"); inst.LastPrice == 999 {
		t.Fatal("mutating a snapshot must not affect the catalog")
	}
}

func TestSymbols(t *testing.T) {
	client := bybit.NewMockClient()
	client.Instruments["AAAUSDT"] = tradingInstrument("AAAUSDT")
	client.Instruments["BBBUSDT"] = tradingInstrument("BBBUSDT")

	cat := New(client, "linear", testLogger())
	if err := cat.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	symbols := cat.Symbols()
	sort.Strings(symbols)
	want := []string{"AAAUSDT", "BBBUSDT"}
	if len(symbols) != len(want) || symbols[0] != want[0] || symbols[1] != want[1] {
		t.Fatalf("Symbols = %v, want %v", symbols, want)
	}
}
