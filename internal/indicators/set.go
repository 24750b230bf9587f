package indicators

import (
	"math"

	"bybit-trading-bot/internal/bybit"
)

// Direction is a per-indicator directional reading
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Neutral Direction = "NEUTRAL"
)

// MinCandles is the minimum history required for a stable composite.
const MinCandles = 50

// Default periods
const (
	rsiPeriod       = 14
	macdFast        = 12
	macdSlow        = 26
	macdSignal      = 9
	bollingerPeriod = 20
	bollingerStdDev = 2.0
	stochasticKPeriod = 14
	stochasticDPeriod = 3
	williamsPeriod  = 14
	atrPeriod       = 14
	obvLookback     = 10
)

// Reading is one indicator's directional contribution
type Reading struct {
	Direction Direction `json:"direction"`
	Strength  float64   `json:"strength"` // 0.0 to 1.0
}

// Set bundles current indicator values and per-indicator readings for one
// symbol. Readings hold the direction/strength used downstream by fusion.
type Set struct {
	Symbol       string `json:"symbol"`
	Insufficient bool   `json:"insufficient"` // under MinCandles of history

	RSI        float64          `json:"rsi"`
	MACD       MACDResult       `json:"macd"`
	Bollinger  BollingerResult  `json:"bollinger"`
	Stochastic StochasticResult `json:"stochastic"`
	WilliamsR  float64          `json:"williams_r"`
	ATR        float64          `json:"atr"`
	OBV        float64          `json:"obv"`
	VWAP       float64          `json:"vwap"`

	Readings map[string]Reading `json:"readings"`
}

// Compute builds the indicator set for a symbol. With fewer than MinCandles
// candles it returns an all-neutral set with the Insufficient flag set; it
// never fails on short history.
func Compute(symbol string, candles []bybit.Candle) *Set {
	set := &Set{
		Symbol:   symbol,
		Readings: make(map[string]Reading),
	}

	if len(candles) < MinCandles {
		set.Insufficient = true
		set.RSI = 50
		set.WilliamsR = -50
		set.Stochastic = StochasticResult{K: 50, D: 50}
		for _, name := range []string{"rsi", "macd", "bollinger", "stochastic", "williams_r", "obv", "vwap"} {
			set.Readings[name] = Reading{Direction: Neutral, Strength: 0}
		}
		return set
	}

	price := candles[len(candles)-1].Close

	set.RSI = CalculateRSI(candles, rsiPeriod)
	set.MACD = *CalculateMACD(candles, macdFast, macdSlow, macdSignal)
	set.Bollinger = *CalculateBollinger(candles, bollingerPeriod, bollingerStdDev)
	set.Stochastic = *CalculateStochastic(candles, stochasticKPeriod, stochasticDPeriod)
	set.WilliamsR = CalculateWilliamsR(candles, williamsPeriod)
	set.ATR = CalculateATR(candles, atrPeriod)
	set.OBV = CalculateOBV(candles)
	set.VWAP = CalculateVWAP(candles)

	set.Readings["rsi"] = rsiReading(set.RSI)
	set.Readings["macd"] = macdReading(set.MACD, price)
	set.Readings["bollinger"] = bollingerReading(set.Bollinger, price)
	set.Readings["stochastic"] = stochasticReading(set.Stochastic)
	set.Readings["williams_r"] = williamsReading(set.WilliamsR)
	set.Readings["obv"] = obvReading(candles)
	set.Readings["vwap"] = vwapReading(set.VWAP, price)

	return set
}

// rsiReading: above 70 overbought (sell), below 30 oversold (buy)
func rsiReading(rsi float64) Reading {
	switch {
	case rsi > 70:
		return Reading{Direction: Bearish, Strength: clamp01((rsi - 70) / 30)}
	case rsi < 30:
		return Reading{Direction: Bullish, Strength: clamp01((30 - rsi) / 30)}
	default:
		return Reading{Direction: Neutral, Strength: 0}
	}
}

// macdReading: histogram sign gives direction; strength scales with the
// histogram relative to 0.1% of price.
func macdReading(macd MACDResult, price float64) Reading {
	if price <= 0 || macd.Histogram == 0 {
		return Reading{Direction: Neutral, Strength: 0}
	}
	strength := clamp01(math.Abs(macd.Histogram) / (price * 0.001))
	if macd.Histogram > 0 {
		return Reading{Direction: Bullish, Strength: strength}
	}
	return Reading{Direction: Bearish, Strength: strength}
}

// bollingerReading: close beyond a band signals reversion toward the middle
func bollingerReading(bb BollingerResult, price float64) Reading {
	band := bb.Upper - bb.Lower
	if band <= 0 {
		return Reading{Direction: Neutral, Strength: 0}
	}
	switch {
	case price > bb.Upper:
		return Reading{Direction: Bearish, Strength: clamp01((price - bb.Upper) / band)}
	case price < bb.Lower:
		return Reading{Direction: Bullish, Strength: clamp01((bb.Lower - price) / band)}
	default:
		return Reading{Direction: Neutral, Strength: 0}
	}
}

// stochasticReading: above 80 overbought, below 20 oversold
func stochasticReading(stoch StochasticResult) Reading {
	switch {
	case stoch.K > 80:
		return Reading{Direction: Bearish, Strength: clamp01((stoch.K - 80) / 20)}
	case stoch.K < 20:
		return Reading{Direction: Bullish, Strength: clamp01((20 - stoch.K) / 20)}
	default:
		return Reading{Direction: Neutral, Strength: 0}
	}
}

// williamsReading: above -20 overbought, below -80 oversold
func williamsReading(wr float64) Reading {
	switch {
	case wr > -20:
		return Reading{Direction: Bearish, Strength: clamp01((wr + 20) / 20)}
	case wr < -80:
		return Reading{Direction: Bullish, Strength: clamp01((-80 - wr) / 20)}
	default:
		return Reading{Direction: Neutral, Strength: 0}
	}
}

// obvReading: OBV slope over the last obvLookback candles, normalized by
// the volume traded in that window
func obvReading(candles []bybit.Candle) Reading {
	if len(candles) <= obvLookback {
		return Reading{Direction: Neutral, Strength: 0}
	}

	full := CalculateOBV(candles)
	past := CalculateOBV(candles[:len(candles)-obvLookback])
	delta := full - past

	windowVolume := 0.0
	for i := len(candles) - obvLookback; i < len(candles); i++ {
		windowVolume += candles[i].Volume
	}
	if windowVolume == 0 || delta == 0 {
		return Reading{Direction: Neutral, Strength: 0}
	}

	strength := clamp01(math.Abs(delta) / windowVolume)
	if delta > 0 {
		return Reading{Direction: Bullish, Strength: strength}
	}
	return Reading{Direction: Bearish, Strength: strength}
}

// vwapReading: trading above VWAP is bullish; strength scales with the
// distance relative to 2% of VWAP
func vwapReading(vwap, price float64) Reading {
	if vwap <= 0 {
		return Reading{Direction: Neutral, Strength: 0}
	}
	distance := (price - vwap) / vwap
	strength := clamp01(math.Abs(distance) / 0.02)
	switch {
	case distance > 0:
		return Reading{Direction: Bullish, Strength: strength}
	case distance < 0:
		return Reading{Direction: Bearish, Strength: strength}
	default:
		return Reading{Direction: Neutral, Strength: 0}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
