package patterns

import (
	"testing"

	"bybit-trading-bot/internal/bybit"
)

func hasPattern(matches []Match, pt PatternType) bool {
	for _, m := range matches {
		if m.Type == pt {
			return true
		}
	}
	return false
}

func findPattern(t *testing.T, matches []Match, pt PatternType) Match {
	t.Helper()
	for _, m := range matches {
		if m.Type == pt {
			return m
		}
	}
	t.Fatalf("pattern %s not detected", pt)
	return Match{}
}

// TestDetectHammer tests Hammer detection after a down candle
func TestDetectHammer(t *testing.T) {
	d := NewDetector(0.6)
	candles := []bybit.Candle{
		{Open: 105, High: 105.5, Low: 99.5, Close: 100},  // bearish setup
		{Open: 100, High: 101.2, Low: 97, Close: 101},    // long lower wick
		{Open: 101, High: 103, Low: 100.8, Close: 102.5}, // confirmation
	}

	matches := d.DetectCandlestickPatterns(candles)
	m := findPattern(t, matches, Hammer)
	if m.Direction != DirectionBullish {
		t.Errorf("hammer direction = %s, want bullish", m.Direction)
	}
	if m.CandleIndex != 1 {
		t.Errorf("hammer index = %d, want 1", m.CandleIndex)
	}
}

// TestDetectShootingStar tests Shooting Star detection after an up candle
func TestDetectShootingStar(t *testing.T) {
	d := NewDetector(0.6)
	candles := []bybit.Candle{
		{Open: 100, High: 105.2, Low: 99.8, Close: 105},  // bullish setup
		{Open: 105, High: 107, Low: 104.4, Close: 104.5}, // long upper wick
		{Open: 104.5, High: 104.6, Low: 102, Close: 102.5},
	}

	matches := d.DetectCandlestickPatterns(candles)
	m := findPattern(t, matches, ShootingStar)
	if m.Direction != DirectionBearish {
		t.Errorf("shooting star direction = %s, want bearish", m.Direction)
	}
}

// TestDetectBullishEngulfing tests a green body engulfing the prior red body
func TestDetectBullishEngulfing(t *testing.T) {
	d := NewDetector(0.6)
	candles := []bybit.Candle{
		{Open: 102, High: 102.5, Low: 99.5, Close: 100},
		{Open: 101, High: 101.5, Low: 99.8, Close: 100.2}, // bearish
		{Open: 99.9, High: 102, Low: 99.7, Close: 101.5},  // engulfs prior body
	}

	matches := d.DetectCandlestickPatterns(candles)
	m := findPattern(t, matches, BullishEngulfing)
	if m.Confidence != 0.75 {
		t.Errorf("engulfing confidence = %v, want 0.75", m.Confidence)
	}
}

// TestDetectBearishEngulfing tests a red body engulfing the prior green body
func TestDetectBearishEngulfing(t *testing.T) {
	d := NewDetector(0.6)
	candles := []bybit.Candle{
		{Open: 98, High: 100.5, Low: 97.5, Close: 100},
		{Open: 100, High: 101.2, Low: 99.8, Close: 101},    // bullish
		{Open: 101.2, High: 101.5, Low: 99.5, Close: 99.8}, // engulfs prior body
	}

	matches := d.DetectCandlestickPatterns(candles)
	m := findPattern(t, matches, BearishEngulfing)
	if m.Direction != DirectionBearish {
		t.Errorf("engulfing direction = %s, want bearish", m.Direction)
	}
}

// TestDetectDoji tests Doji detection with balanced wicks
func TestDetectDoji(t *testing.T) {
	d := NewDetector(0.6)
	candles := []bybit.Candle{
		{Open: 100, High: 101, Low: 99, Close: 100.3},
		{Open: 100, High: 101, Low: 99, Close: 100.05}, // body 5% of range
		{Open: 100, High: 101, Low: 99, Close: 100.4},
	}

	matches := d.DetectCandlestickPatterns(candles)
	m := findPattern(t, matches, Doji)
	if m.Direction != DirectionNeutral {
		t.Errorf("doji direction = %s, want neutral", m.Direction)
	}
}

// TestDetectDragonflyDoji tests the long-lower-wick doji variant
func TestDetectDragonflyDoji(t *testing.T) {
	d := NewDetector(0.6)
	candles := []bybit.Candle{
		{Open: 100, High: 100.5, Low: 99.5, Close: 100.2},
		{Open: 100, High: 100.12, Low: 98, Close: 100.1}, // wick below only
		{Open: 100, High: 100.5, Low: 99.5, Close: 100.3},
	}

	matches := d.DetectCandlestickPatterns(candles)
	if !hasPattern(matches, DragonflyDoji) {
		t.Error("dragonfly doji not detected")
	}
	if hasPattern(matches, GravestoneDoji) {
		t.Error("gravestone doji reported for a dragonfly shape")
	}
}

// TestDetectMorningStar tests the three-candle bullish reversal
func TestDetectMorningStar(t *testing.T) {
	d := NewDetector(0.6)
	candles := []bybit.Candle{
		{Open: 110, High: 110.5, Low: 99.5, Close: 100}, // long bearish
		{Open: 99.5, High: 100, Low: 99.2, Close: 99.8}, // indecision
		{Open: 100, High: 109.5, Low: 99.8, Close: 109}, // long bullish above midpoint
	}

	matches := d.DetectCandlestickPatterns(candles)
	m := findPattern(t, matches, MorningStar)
	if m.Direction != DirectionBullish {
		t.Errorf("morning star direction = %s, want bullish", m.Direction)
	}
	if m.Confidence < 0.7 {
		t.Errorf("morning star confidence = %v, want >= 0.7", m.Confidence)
	}
}

// TestDetectEveningStar tests the three-candle bearish reversal
func TestDetectEveningStar(t *testing.T) {
	d := NewDetector(0.6)
	candles := []bybit.Candle{
		{Open: 100, High: 110.5, Low: 99.5, Close: 110},  // long bullish
		{Open: 110.5, High: 111, Low: 110, Close: 110.2}, // indecision
		{Open: 110, High: 110.2, Low: 100.5, Close: 101}, // long bearish below midpoint
	}

	matches := d.DetectCandlestickPatterns(candles)
	m := findPattern(t, matches, EveningStar)
	if m.Direction != DirectionBearish {
		t.Errorf("evening star direction = %s, want bearish", m.Direction)
	}
}

// TestDetectHarami tests a small body contained in a large prior body
func TestDetectHarami(t *testing.T) {
	d := NewDetector(0.6)
	candles := []bybit.Candle{
		{Open: 110, High: 110.2, Low: 99.8, Close: 100},  // large bearish
		{Open: 103, High: 105.5, Low: 102.8, Close: 105}, // small bullish inside
		{Open: 105, High: 106, Low: 104.5, Close: 105.5},
	}

	matches := d.DetectCandlestickPatterns(candles)
	if !hasPattern(matches, BullishHarami) {
		t.Error("bullish harami not detected")
	}
}

// TestNoPatternOnSteadyTrend tests that a clean trend triggers no reversals
func TestNoPatternOnSteadyTrend(t *testing.T) {
	d := NewDetector(0.6)
	var candles []bybit.Candle
	for i := 0; i < 10; i++ {
		base := 100 + float64(i)
		candles = append(candles, bybit.Candle{
			Open:  base,
			High:  base + 1.2,
			Low:   base - 0.1,
			Close: base + 1,
		})
	}

	matches := d.DetectCandlestickPatterns(candles)
	if len(matches) != 0 {
		t.Errorf("steady uptrend produced %d matches: %v", len(matches), matches)
	}
}

// TestPatternReportedOncePerWindow tests dedupe keeps the latest occurrence
func TestPatternReportedOncePerWindow(t *testing.T) {
	d := NewDetector(0.6)
	doji := bybit.Candle{Open: 100, High: 101, Low: 99, Close: 100.05}
	spacer := bybit.Candle{Open: 100, High: 100.6, Low: 99.9, Close: 100.5}
	candles := []bybit.Candle{doji, spacer, doji, spacer}

	matches := d.DetectCandlestickPatterns(candles)
	count := 0
	var last Match
	for _, m := range matches {
		if m.Type == Doji {
			count++
			last = m
		}
	}
	if count != 1 {
		t.Fatalf("doji reported %d times, want once per window", count)
	}
	if last.CandleIndex != 2 {
		t.Errorf("kept doji index = %d, want latest occurrence 2", last.CandleIndex)
	}
}

// TestShortHistory tests that tiny inputs return no matches
func TestShortHistory(t *testing.T) {
	d := NewDetector(0.6)
	if got := d.DetectCandlestickPatterns([]bybit.Candle{{Open: 1, Close: 1}}); got != nil {
		t.Errorf("expected nil for short history, got %v", got)
	}
}
