package fusion

import (
	"bybit-trading-bot/internal/advisory"
	"bybit-trading-bot/internal/indicators"
	"bybit-trading-bot/internal/patterns"
)

// Fused signal directions
const (
	Buy  = "BUY"
	Sell = "SELL"
	Hold = "HOLD"
)

// Decision thresholds on the weighted score
const (
	buyThreshold  = 0.3
	sellThreshold = -0.3
)

// Component weight table. Missing components are excluded and the
// remaining weights renormalized to sum 1. The advisory weight is only
// a default; callers with a configured advisory service supply their own.
const (
	indicatorWeight       = 0.5
	patternWeight         = 0.3
	defaultAdvisoryWeight = 0.2
)

// Component is one weighted contributor to a fused signal
type Component struct {
	Score  float64 `json:"score"`  // -1.0 to 1.0
	Weight float64 `json:"weight"` // normalized, active components sum to 1
}

// FusedSignal is the combined directional read on a symbol
type FusedSignal struct {
	Symbol     string               `json:"symbol"`
	Direction  string               `json:"direction"`  // BUY, SELL or HOLD
	Score      float64              `json:"score"`      // -1.0 to 1.0
	Confidence float64              `json:"confidence"` // 0.0 to 1.0
	Components map[string]Component `json:"components"`
}

// Fuse combines indicator readings, detected patterns and an optional
// advisory score into one directional signal using the default advisory
// weight.
func Fuse(symbol string, set *indicators.Set, matches []patterns.Match, score *advisory.Score) *FusedSignal {
	return FuseWeighted(symbol, set, matches, score, defaultAdvisoryWeight)
}

// FuseWeighted is Fuse with a caller-supplied advisory weight; advWeight
// values outside (0, 1] fall back to the default. The result is
// deterministic for identical inputs; an absent component never changes
// how the present ones are combined, only the weight renormalization.
func FuseWeighted(symbol string, set *indicators.Set, matches []patterns.Match, score *advisory.Score, advWeight float64) *FusedSignal {
	if advWeight <= 0 || advWeight > 1 {
		advWeight = defaultAdvisoryWeight
	}
	type contribution struct {
		name   string
		score  float64
		weight float64
	}
	var active []contribution

	if set != nil && !set.Insufficient {
		active = append(active, contribution{"indicators", indicatorScore(set), indicatorWeight})
	}
	if len(matches) > 0 {
		active = append(active, contribution{"patterns", patternScore(matches), patternWeight})
	}
	if score != nil {
		active = append(active, contribution{"advisory", advisoryScore(score), advWeight})
	}

	signal := &FusedSignal{
		Symbol:     symbol,
		Direction:  Hold,
		Components: make(map[string]Component, len(active)),
	}
	if len(active) == 0 {
		return signal
	}

	totalWeight := 0.0
	for _, c := range active {
		totalWeight += c.weight
	}

	weighted := 0.0
	for _, c := range active {
		normalized := c.weight / totalWeight
		weighted += c.score * normalized
		signal.Components[c.name] = Component{Score: c.score, Weight: normalized}
	}

	signal.Score = clamp(weighted, -1, 1)
	signal.Confidence = clamp(absV(signal.Score), 0, 1)
	switch {
	case signal.Score > buyThreshold:
		signal.Direction = Buy
	case signal.Score < sellThreshold:
		signal.Direction = Sell
	}

	return signal
}

// indicatorScore averages direction x strength across all readings
func indicatorScore(set *indicators.Set) float64 {
	if len(set.Readings) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range set.Readings {
		sum += directionValue(r.Direction) * r.Strength
	}
	return clamp(sum/float64(len(set.Readings)), -1, 1)
}

// patternScore averages direction x confidence across detected patterns
func patternScore(matches []patterns.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range matches {
		switch m.Direction {
		case patterns.DirectionBullish:
			sum += m.Confidence
		case patterns.DirectionBearish:
			sum -= m.Confidence
		}
	}
	return clamp(sum/float64(len(matches)), -1, 1)
}

// advisoryScore maps a recommendation to a signed score scaled by the
// advisory's own confidence
func advisoryScore(score *advisory.Score) float64 {
	base := 0.0
	switch score.Recommendation {
	case advisory.StrongBuy:
		base = 1.0
	case advisory.Buy:
		base = 0.5
	case advisory.Sell:
		base = -0.5
	case advisory.StrongSell:
		base = -1.0
	}
	return clamp(base*score.Confidence, -1, 1)
}

func directionValue(d indicators.Direction) float64 {
	switch d {
	case indicators.Bullish:
		return 1
	case indicators.Bearish:
		return -1
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func absV(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
