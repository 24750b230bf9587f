package patterns

import (
	"bybit-trading-bot/internal/bybit"
)

// PatternType identifies a chart or candlestick pattern
type PatternType string

const (
	// Candlestick patterns
	Doji             PatternType = "doji"
	DragonflyDoji    PatternType = "dragonfly_doji"
	GravestoneDoji   PatternType = "gravestone_doji"
	Hammer           PatternType = "hammer"
	HangingMan       PatternType = "hanging_man"
	ShootingStar     PatternType = "shooting_star"
	BullishEngulfing PatternType = "bullish_engulfing"
	BearishEngulfing PatternType = "bearish_engulfing"
	BullishHarami    PatternType = "bullish_harami"
	BearishHarami    PatternType = "bearish_harami"
	MorningStar      PatternType = "morning_star"
	EveningStar      PatternType = "evening_star"

	// Chart patterns
	AscendingTriangle       PatternType = "ascending_triangle"
	DescendingTriangle      PatternType = "descending_triangle"
	HeadAndShoulders        PatternType = "head_and_shoulders"
	InverseHeadAndShoulders PatternType = "inverse_head_and_shoulders"
	DoubleTop               PatternType = "double_top"
	DoubleBottom            PatternType = "double_bottom"
	BullishFlag             PatternType = "bullish_flag"
	BearishFlag             PatternType = "bearish_flag"
)

// Pattern directions
const (
	DirectionBullish = "bullish"
	DirectionBearish = "bearish"
	DirectionNeutral = "neutral"
)

// Match represents a detected pattern within the trailing window
type Match struct {
	Type        PatternType `json:"type"`
	Direction   string      `json:"direction"`
	Confidence  float64     `json:"confidence"` // 0.0 to 1.0
	CandleIndex int         `json:"candleIndex"`
}

// Detection windows (candles, oldest first)
const (
	candleWindow   = 10
	triangleWindow = 20
	shoulderWindow = 30
	doubleWindow   = 20
	flagPoleBars   = 10
	flagBars       = 5
)

// Detector runs pure geometric pattern tests over candle history.
// All detectors examine only the trailing window and report each
// pattern type at most once, keeping the most recent occurrence.
type Detector struct {
	minBodyRatio float64 // minimum long-candle body as fraction of range
}

// NewDetector creates a pattern detector
func NewDetector(minBodyRatio float64) *Detector {
	if minBodyRatio <= 0 {
		minBodyRatio = 0.6
	}
	return &Detector{minBodyRatio: minBodyRatio}
}

// DetectCandlestickPatterns scans the trailing window for candlestick patterns
func (d *Detector) DetectCandlestickPatterns(candles []bybit.Candle) []Match {
	if len(candles) < 3 {
		return nil
	}

	start := len(candles) - candleWindow
	if start < 0 {
		start = 0
	}

	// Latest occurrence wins per pattern type
	latest := make(map[PatternType]Match)
	record := func(m Match) {
		if prev, ok := latest[m.Type]; !ok || m.CandleIndex > prev.CandleIndex {
			latest[m.Type] = m
		}
	}

	for i := start; i < len(candles); i++ {
		c := candles[i]
		var prev *bybit.Candle
		if i > 0 {
			prev = &candles[i-1]
		}

		if d.isDragonflyDoji(c) {
			record(Match{Type: DragonflyDoji, Direction: DirectionBullish, Confidence: 0.62, CandleIndex: i})
		} else if d.isGravestoneDoji(c) {
			record(Match{Type: GravestoneDoji, Direction: DirectionBearish, Confidence: 0.62, CandleIndex: i})
		} else if d.isDoji(c) {
			record(Match{Type: Doji, Direction: DirectionNeutral, Confidence: 0.50, CandleIndex: i})
		}

		if d.isHammer(c, prev) {
			record(Match{Type: Hammer, Direction: DirectionBullish, Confidence: 0.65, CandleIndex: i})
		}
		if d.isHangingMan(c, prev) {
			record(Match{Type: HangingMan, Direction: DirectionBearish, Confidence: 0.65, CandleIndex: i})
		}
		if d.isShootingStar(c, prev) {
			record(Match{Type: ShootingStar, Direction: DirectionBearish, Confidence: 0.65, CandleIndex: i})
		}

		if i >= 1 {
			c1 := candles[i-1]
			if d.isBullishEngulfing(c1, c) {
				record(Match{Type: BullishEngulfing, Direction: DirectionBullish, Confidence: 0.75, CandleIndex: i})
			}
			if d.isBearishEngulfing(c1, c) {
				record(Match{Type: BearishEngulfing, Direction: DirectionBearish, Confidence: 0.75, CandleIndex: i})
			}
			if d.isBullishHarami(c1, c) {
				record(Match{Type: BullishHarami, Direction: DirectionBullish, Confidence: 0.68, CandleIndex: i})
			}
			if d.isBearishHarami(c1, c) {
				record(Match{Type: BearishHarami, Direction: DirectionBearish, Confidence: 0.68, CandleIndex: i})
			}
		}

		if i >= 2 {
			c1, c2 := candles[i-2], candles[i-1]
			if d.isMorningStar(c1, c2, c) {
				record(Match{Type: MorningStar, Direction: DirectionBullish, Confidence: d.starConfidence(c1, c), CandleIndex: i})
			}
			if d.isEveningStar(c1, c2, c) {
				record(Match{Type: EveningStar, Direction: DirectionBearish, Confidence: d.starConfidence(c1, c), CandleIndex: i})
			}
		}
	}

	return collectMatches(latest)
}

// isDoji checks for a Doji (indecision): body under 10% of the range
func (d *Detector) isDoji(c bybit.Candle) bool {
	rng := c.Range()
	if rng == 0 {
		return false
	}
	return c.Body()/rng < 0.10
}

// isDragonflyDoji checks for a Dragonfly Doji (bullish)
func (d *Detector) isDragonflyDoji(c bybit.Candle) bool {
	if !d.isDoji(c) {
		return false
	}
	body := c.Body()
	lowerWick := minF(c.Open, c.Close) - c.Low
	upperWick := c.High - maxF(c.Open, c.Close)
	return lowerWick > body*3 && upperWick < body*0.3
}

// isGravestoneDoji checks for a Gravestone Doji (bearish)
func (d *Detector) isGravestoneDoji(c bybit.Candle) bool {
	if !d.isDoji(c) {
		return false
	}
	body := c.Body()
	lowerWick := minF(c.Open, c.Close) - c.Low
	upperWick := c.High - maxF(c.Open, c.Close)
	return upperWick > body*3 && lowerWick < body*0.3
}

// isHammer checks for a Hammer after a down candle (bullish reversal)
func (d *Detector) isHammer(c bybit.Candle, prev *bybit.Candle) bool {
	body := c.Body()
	upperWick := c.High - maxF(c.Open, c.Close)
	lowerWick := minF(c.Open, c.Close) - c.Low

	if lowerWick < body*2 {
		return false
	}
	if upperWick > body*0.3 {
		return false
	}
	// Needs a preceding downtrend
	if prev != nil && !prev.IsBearish() {
		return false
	}
	return true
}

// isHangingMan checks for a Hanging Man after an up candle (bearish reversal)
func (d *Detector) isHangingMan(c bybit.Candle, prev *bybit.Candle) bool {
	body := c.Body()
	upperWick := c.High - maxF(c.Open, c.Close)
	lowerWick := minF(c.Open, c.Close) - c.Low

	if lowerWick < body*2 {
		return false
	}
	if upperWick > body*0.3 {
		return false
	}
	if prev != nil && !prev.IsBullish() {
		return false
	}
	return true
}

// isShootingStar checks for a Shooting Star after an up candle (bearish reversal)
func (d *Detector) isShootingStar(c bybit.Candle, prev *bybit.Candle) bool {
	body := c.Body()
	upperWick := c.High - maxF(c.Open, c.Close)
	lowerWick := minF(c.Open, c.Close) - c.Low

	if upperWick < body*2 {
		return false
	}
	if lowerWick > body*0.3 {
		return false
	}
	if prev != nil && !prev.IsBullish() {
		return false
	}
	return true
}

// isBullishEngulfing checks that a green body fully engulfs the prior red body
func (d *Detector) isBullishEngulfing(c1, c2 bybit.Candle) bool {
	if !c1.IsBearish() || !c2.IsBullish() {
		return false
	}
	return c2.Open <= c1.Close && c2.Close >= c1.Open
}

// isBearishEngulfing checks that a red body fully engulfs the prior green body
func (d *Detector) isBearishEngulfing(c1, c2 bybit.Candle) bool {
	if !c1.IsBullish() || !c2.IsBearish() {
		return false
	}
	return c2.Open >= c1.Close && c2.Close <= c1.Open
}

// isBullishHarami checks for a small green body inside a large red body
func (d *Detector) isBullishHarami(c1, c2 bybit.Candle) bool {
	if !c1.IsBearish() || !c2.IsBullish() {
		return false
	}
	if c1.Range() == 0 || c1.Body() < c1.Range()*d.minBodyRatio {
		return false
	}
	if c2.Open < c1.Close || c2.Close > c1.Open {
		return false
	}
	return c2.Body() <= c1.Body()*0.5
}

// isBearishHarami checks for a small red body inside a large green body
func (d *Detector) isBearishHarami(c1, c2 bybit.Candle) bool {
	if !c1.IsBullish() || !c2.IsBearish() {
		return false
	}
	if c1.Range() == 0 || c1.Body() < c1.Range()*d.minBodyRatio {
		return false
	}
	if c2.Open > c1.Close || c2.Close < c1.Open {
		return false
	}
	return c2.Body() <= c1.Body()*0.5
}

// isMorningStar checks for a Morning Star (bullish three-candle reversal)
func (d *Detector) isMorningStar(c1, c2, c3 bybit.Candle) bool {
	// C1: long bearish candle
	if !c1.IsBearish() || c1.Range() == 0 || c1.Body() < c1.Range()*d.minBodyRatio {
		return false
	}
	// C2: small indecision body
	if c2.Body() > c1.Body()*0.4 {
		return false
	}
	// C3: long bullish candle closing above C1 midpoint
	if !c3.IsBullish() || c3.Range() == 0 || c3.Body() < c3.Range()*d.minBodyRatio {
		return false
	}
	return c3.Close >= (c1.Open+c1.Close)/2
}

// isEveningStar checks for an Evening Star (bearish three-candle reversal)
func (d *Detector) isEveningStar(c1, c2, c3 bybit.Candle) bool {
	if !c1.IsBullish() || c1.Range() == 0 || c1.Body() < c1.Range()*d.minBodyRatio {
		return false
	}
	if c2.Body() > c1.Body()*0.4 {
		return false
	}
	if !c3.IsBearish() || c3.Range() == 0 || c3.Body() < c3.Range()*d.minBodyRatio {
		return false
	}
	return c3.Close <= (c1.Open+c1.Close)/2
}

// starConfidence scores a star pattern: a stronger confirmation candle
// relative to the setup candle raises confidence
func (d *Detector) starConfidence(c1, c3 bybit.Candle) float64 {
	confidence := 0.70
	if c3.Body() > c1.Body()*1.2 {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func collectMatches(latest map[PatternType]Match) []Match {
	if len(latest) == 0 {
		return nil
	}
	matches := make([]Match, 0, len(latest))
	for _, m := range latest {
		matches = append(matches, m)
	}
	sortMatches(matches)
	return matches
}

// sortMatches orders by candle index then type for deterministic output
func sortMatches(matches []Match) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0; j-- {
			a, b := matches[j-1], matches[j]
			if a.CandleIndex < b.CandleIndex || (a.CandleIndex == b.CandleIndex && a.Type <= b.Type) {
				break
			}
			matches[j-1], matches[j] = b, a
		}
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
