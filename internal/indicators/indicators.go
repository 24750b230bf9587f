package indicators

import (
	"math"

	"bybit-trading-bot/internal/bybit"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates Simple Moving Average of closes
func CalculateSMA(candles []bybit.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}

	sum := 0.0
	startIdx := len(candles) - period

	for i := startIdx; i < len(candles); i++ {
		sum += candles[i].Close
	}

	return sum / float64(period)
}

// CalculateEMA calculates Exponential Moving Average of closes
func CalculateEMA(candles []bybit.Candle, period int) float64 {
	series := emaSeries(closes(candles), period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// emaSeries computes the EMA over values; result[i] corresponds to
// values[i+period-1]. Seeded with the SMA of the first period values.
func emaSeries(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	multiplier := 2.0 / float64(period+1)

	series := make([]float64, 0, len(values)-period+1)
	series = append(series, ema)
	for i := period; i < len(values); i++ {
		ema = (values[i] * multiplier) + (ema * (1 - multiplier))
		series = append(series, ema)
	}

	return series
}

func closes(candles []bybit.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// ============================================================================
// RSI (Relative Strength Index, Wilder smoothing)
// ============================================================================

// CalculateRSI calculates the Relative Strength Index using Wilder's
// smoothing of average gain and loss.
func CalculateRSI(candles []bybit.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50.0 // Neutral RSI
	}

	gains := 0.0
	losses := 0.0

	// Initial averages over the first period changes
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	// Wilder smoothing over the remainder
	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgGain == 0 && avgLoss == 0 {
		return 50.0 // Flat series
	}
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDResult holds MACD indicator values
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD calculates MACD, Signal line, and Histogram. The signal line
// is an EMA over the MACD series, not an approximation.
func CalculateMACD(candles []bybit.Candle, fastPeriod, slowPeriod, signalPeriod int) *MACDResult {
	if len(candles) < slowPeriod+signalPeriod {
		return &MACDResult{}
	}

	prices := closes(candles)
	fastSeries := emaSeries(prices, fastPeriod)
	slowSeries := emaSeries(prices, slowPeriod)

	// Align: slowSeries starts slowPeriod-fastPeriod points later
	offset := slowPeriod - fastPeriod
	macdSeries := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdSeries[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries := emaSeries(macdSeries, signalPeriod)
	if len(signalSeries) == 0 {
		return &MACDResult{}
	}

	macdLine := macdSeries[len(macdSeries)-1]
	signalLine := signalSeries[len(signalSeries)-1]

	return &MACDResult{
		MACD:      macdLine,
		Signal:    signalLine,
		Histogram: macdLine - signalLine,
	}
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerResult holds Bollinger Bands values
type BollingerResult struct {
	Upper   float64
	Middle  float64
	Lower   float64
	Squeeze bool // bandwidth below 0.1
}

// CalculateBollinger calculates Bollinger Bands
func CalculateBollinger(candles []bybit.Candle, period int, stdDevMultiplier float64) *BollingerResult {
	if len(candles) < period {
		return &BollingerResult{}
	}

	middle := CalculateSMA(candles, period)

	variance := 0.0
	startIdx := len(candles) - period
	for i := startIdx; i < len(candles); i++ {
		diff := candles[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	result := &BollingerResult{
		Upper:  middle + (stdDev * stdDevMultiplier),
		Middle: middle,
		Lower:  middle - (stdDev * stdDevMultiplier),
	}
	if middle > 0 {
		bandwidth := (result.Upper - result.Lower) / middle
		result.Squeeze = bandwidth < 0.1
	}

	return result
}

// ============================================================================
// STOCHASTIC OSCILLATOR
// ============================================================================

// StochasticResult holds Stochastic Oscillator values
type StochasticResult struct {
	K float64
	D float64
}

// CalculateStochastic calculates %K and %D. %D is the SMA of the last
// dPeriod %K values, not a scaled copy of %K.
func CalculateStochastic(candles []bybit.Candle, kPeriod, dPeriod int) *StochasticResult {
	if len(candles) < kPeriod+dPeriod-1 {
		return &StochasticResult{K: 50, D: 50}
	}

	kValues := make([]float64, 0, dPeriod)
	for offset := dPeriod - 1; offset >= 0; offset-- {
		end := len(candles) - offset
		kValues = append(kValues, stochasticK(candles[:end], kPeriod))
	}

	sum := 0.0
	for _, k := range kValues {
		sum += k
	}

	return &StochasticResult{
		K: kValues[len(kValues)-1],
		D: sum / float64(len(kValues)),
	}
}

func stochasticK(candles []bybit.Candle, period int) float64 {
	startIdx := len(candles) - period
	highestHigh := candles[startIdx].High
	lowestLow := candles[startIdx].Low

	for i := startIdx; i < len(candles); i++ {
		if candles[i].High > highestHigh {
			highestHigh = candles[i].High
		}
		if candles[i].Low < lowestLow {
			lowestLow = candles[i].Low
		}
	}

	if highestHigh == lowestLow {
		return 50
	}

	currentClose := candles[len(candles)-1].Close
	return ((currentClose - lowestLow) / (highestHigh - lowestLow)) * 100
}

// ============================================================================
// WILLIAMS %R
// ============================================================================

// CalculateWilliamsR calculates Williams %R over the period. Output range
// is -100 (close at the low) to 0 (close at the high).
func CalculateWilliamsR(candles []bybit.Candle, period int) float64 {
	if len(candles) < period {
		return -50
	}

	startIdx := len(candles) - period
	highestHigh := candles[startIdx].High
	lowestLow := candles[startIdx].Low

	for i := startIdx; i < len(candles); i++ {
		if candles[i].High > highestHigh {
			highestHigh = candles[i].High
		}
		if candles[i].Low < lowestLow {
			lowestLow = candles[i].Low
		}
	}

	if highestHigh == lowestLow {
		return -50
	}

	currentClose := candles[len(candles)-1].Close
	return ((highestHigh - currentClose) / (highestHigh - lowestLow)) * -100
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// CalculateATR calculates Average True Range as the SMA of the true range
func CalculateATR(candles []bybit.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	trSum := 0.0
	startIdx := len(candles) - period

	for i := startIdx; i < len(candles); i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr := math.Max(
			high-low,
			math.Max(
				math.Abs(high-prevClose),
				math.Abs(low-prevClose),
			),
		)

		trSum += tr
	}

	return trSum / float64(period)
}

// ============================================================================
// OBV (On-Balance Volume)
// ============================================================================

// CalculateOBV calculates cumulative On-Balance Volume: volume is added on
// up-closes, subtracted on down-closes, unchanged on flat closes.
func CalculateOBV(candles []bybit.Candle) float64 {
	obv := 0.0
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			obv += candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			obv -= candles[i].Volume
		}
	}
	return obv
}

// ============================================================================
// VWAP (Volume-Weighted Average Price)
// ============================================================================

// CalculateVWAP calculates cumulative VWAP using typical price
func CalculateVWAP(candles []bybit.Candle) float64 {
	cumPV := 0.0
	cumVolume := 0.0

	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		cumPV += typical * c.Volume
		cumVolume += c.Volume
	}

	if cumVolume == 0 {
		return 0
	}
	return cumPV / cumVolume
}
