package patterns

import (
	"bybit-trading-bot/internal/bybit"
)

// Chart pattern detection. Each detector examines one trailing window at
// the end of the candle history, so a given formation is reported at most
// once per window. Confidence decreases as the measured geometry approaches
// the defining tolerance.

// Geometric tolerances
const (
	shoulderTolerance = 0.02  // shoulders must match within 2%
	doubleTolerance   = 0.015 // double top/bottom extremes within 1.5%
	flatTolerance     = 0.02  // flat triangle side variance bound
	troughDepth       = 0.02  // minimum valley depth between double extremes
)

// DetectChartPatterns scans the trailing windows for chart patterns
func (d *Detector) DetectChartPatterns(candles []bybit.Candle) []Match {
	if len(candles) < flagPoleBars+flagBars {
		return nil
	}

	var matches []Match
	if m, ok := d.detectAscendingTriangle(candles); ok {
		matches = append(matches, m)
	}
	if m, ok := d.detectDescendingTriangle(candles); ok {
		matches = append(matches, m)
	}
	if m, ok := d.detectHeadAndShoulders(candles); ok {
		matches = append(matches, m)
	}
	if m, ok := d.detectInverseHeadAndShoulders(candles); ok {
		matches = append(matches, m)
	}
	if m, ok := d.detectDoubleTop(candles); ok {
		matches = append(matches, m)
	}
	if m, ok := d.detectDoubleBottom(candles); ok {
		matches = append(matches, m)
	}
	if m, ok := d.detectBullishFlag(candles); ok {
		matches = append(matches, m)
	}
	if m, ok := d.detectBearishFlag(candles); ok {
		matches = append(matches, m)
	}

	sortMatches(matches)
	return matches
}

// detectAscendingTriangle looks for flat resistance with rising support
func (d *Detector) detectAscendingTriangle(candles []bybit.Candle) (Match, bool) {
	window, start := trailing(candles, triangleWindow)
	if window == nil {
		return Match{}, false
	}

	highs, lows := extremes(window)
	avgHigh := mean(highs)
	if avgHigh == 0 {
		return Match{}, false
	}

	// Resistance must be flat
	spread := spreadRatio(highs, avgHigh)
	if spread > flatTolerance {
		return Match{}, false
	}
	// Support must rise
	if !halvesRising(lows) {
		return Match{}, false
	}

	return Match{
		Type:        AscendingTriangle,
		Direction:   DirectionBullish,
		Confidence:  toleranceConfidence(0.72, spread, flatTolerance),
		CandleIndex: start + len(window) - 1,
	}, true
}

// detectDescendingTriangle looks for flat support with falling resistance
func (d *Detector) detectDescendingTriangle(candles []bybit.Candle) (Match, bool) {
	window, start := trailing(candles, triangleWindow)
	if window == nil {
		return Match{}, false
	}

	highs, lows := extremes(window)
	avgLow := mean(lows)
	if avgLow == 0 {
		return Match{}, false
	}

	spread := spreadRatio(lows, avgLow)
	if spread > flatTolerance {
		return Match{}, false
	}
	if !halvesFalling(highs) {
		return Match{}, false
	}

	return Match{
		Type:        DescendingTriangle,
		Direction:   DirectionBearish,
		Confidence:  toleranceConfidence(0.72, spread, flatTolerance),
		CandleIndex: start + len(window) - 1,
	}, true
}

// detectHeadAndShoulders looks for three peaks with a dominant middle peak
// and shoulders aligned within tolerance
func (d *Detector) detectHeadAndShoulders(candles []bybit.Candle) (Match, bool) {
	window, start := trailing(candles, shoulderWindow)
	if window == nil {
		return Match{}, false
	}

	peaks := localMaxima(window)
	if len(peaks) < 3 {
		return Match{}, false
	}

	// Head is the highest peak; it needs a shoulder on each side
	head := peaks[0]
	for _, p := range peaks[1:] {
		if window[p].High > window[head].High {
			head = p
		}
	}
	left, right := -1, -1
	for _, p := range peaks {
		if p < head && (left == -1 || window[p].High > window[left].High) {
			left = p
		}
		if p > head && (right == -1 || window[p].High > window[right].High) {
			right = p
		}
	}
	if left == -1 || right == -1 {
		return Match{}, false
	}

	headHigh := window[head].High
	if headHigh <= window[left].High || headHigh <= window[right].High {
		return Match{}, false
	}

	// Shoulders must match within tolerance
	diff := absF(window[left].High-window[right].High) / headHigh
	if diff > shoulderTolerance {
		return Match{}, false
	}

	return Match{
		Type:        HeadAndShoulders,
		Direction:   DirectionBearish,
		Confidence:  toleranceConfidence(0.78, diff, shoulderTolerance),
		CandleIndex: start + right,
	}, true
}

// detectInverseHeadAndShoulders mirrors detectHeadAndShoulders on the lows
func (d *Detector) detectInverseHeadAndShoulders(candles []bybit.Candle) (Match, bool) {
	window, start := trailing(candles, shoulderWindow)
	if window == nil {
		return Match{}, false
	}

	valleys := localMinima(window)
	if len(valleys) < 3 {
		return Match{}, false
	}

	head := valleys[0]
	for _, v := range valleys[1:] {
		if window[v].Low < window[head].Low {
			head = v
		}
	}
	left, right := -1, -1
	for _, v := range valleys {
		if v < head && (left == -1 || window[v].Low < window[left].Low) {
			left = v
		}
		if v > head && (right == -1 || window[v].Low < window[right].Low) {
			right = v
		}
	}
	if left == -1 || right == -1 {
		return Match{}, false
	}

	headLow := window[head].Low
	if headLow >= window[left].Low || headLow >= window[right].Low || headLow == 0 {
		return Match{}, false
	}

	diff := absF(window[left].Low-window[right].Low) / headLow
	if diff > shoulderTolerance {
		return Match{}, false
	}

	return Match{
		Type:        InverseHeadAndShoulders,
		Direction:   DirectionBullish,
		Confidence:  toleranceConfidence(0.78, diff, shoulderTolerance),
		CandleIndex: start + right,
	}, true
}

// detectDoubleTop looks for two matching peaks separated by a deep trough
func (d *Detector) detectDoubleTop(candles []bybit.Candle) (Match, bool) {
	window, start := trailing(candles, doubleWindow)
	if window == nil {
		return Match{}, false
	}

	peaks := localMaxima(window)
	if len(peaks) < 2 {
		return Match{}, false
	}

	first, second := peaks[0], peaks[len(peaks)-1]
	if second-first < 3 {
		return Match{}, false
	}

	highA, highB := window[first].High, window[second].High
	ref := maxF(highA, highB)
	if ref == 0 {
		return Match{}, false
	}
	diff := absF(highA-highB) / ref
	if diff > doubleTolerance {
		return Match{}, false
	}

	// Trough between the peaks must be meaningfully lower
	valley := window[first].Low
	for i := first + 1; i <= second; i++ {
		if window[i].Low < valley {
			valley = window[i].Low
		}
	}
	if (ref-valley)/ref < troughDepth {
		return Match{}, false
	}

	return Match{
		Type:        DoubleTop,
		Direction:   DirectionBearish,
		Confidence:  toleranceConfidence(0.74, diff, doubleTolerance),
		CandleIndex: start + second,
	}, true
}

// detectDoubleBottom mirrors detectDoubleTop on the lows
func (d *Detector) detectDoubleBottom(candles []bybit.Candle) (Match, bool) {
	window, start := trailing(candles, doubleWindow)
	if window == nil {
		return Match{}, false
	}

	valleys := localMinima(window)
	if len(valleys) < 2 {
		return Match{}, false
	}

	first, second := valleys[0], valleys[len(valleys)-1]
	if second-first < 3 {
		return Match{}, false
	}

	lowA, lowB := window[first].Low, window[second].Low
	ref := minF(lowA, lowB)
	if ref == 0 {
		return Match{}, false
	}
	diff := absF(lowA-lowB) / ref
	if diff > doubleTolerance {
		return Match{}, false
	}

	crest := window[first].High
	for i := first + 1; i <= second; i++ {
		if window[i].High > crest {
			crest = window[i].High
		}
	}
	if (crest-ref)/ref < troughDepth {
		return Match{}, false
	}

	return Match{
		Type:        DoubleBottom,
		Direction:   DirectionBullish,
		Confidence:  toleranceConfidence(0.74, diff, doubleTolerance),
		CandleIndex: start + second,
	}, true
}

// detectBullishFlag looks for a strong upward pole followed by a shallow
// downward-drifting consolidation
func (d *Detector) detectBullishFlag(candles []bybit.Candle) (Match, bool) {
	window, start := trailing(candles, flagPoleBars+flagBars)
	if window == nil {
		return Match{}, false
	}

	pole := window[:flagPoleBars]
	flag := window[flagPoleBars:]

	poleHeight := pole[len(pole)-1].Close - pole[0].Open
	if poleHeight <= 0 {
		return Match{}, false
	}
	bullish := 0
	for _, c := range pole {
		if c.IsBullish() {
			bullish++
		}
	}
	if float64(bullish)/float64(len(pole)) < 0.6 {
		return Match{}, false
	}

	// Consolidation drifts down or sideways, staying shallow against the pole
	flagStart := flag[0].High
	flagEnd := flag[len(flag)-1].Low
	if flagEnd > flagStart {
		return Match{}, false
	}
	retrace := (flagStart - flagEnd) / poleHeight
	if retrace > 0.5 {
		return Match{}, false
	}

	return Match{
		Type:        BullishFlag,
		Direction:   DirectionBullish,
		Confidence:  toleranceConfidence(0.70, retrace, 0.5),
		CandleIndex: start + len(window) - 1,
	}, true
}

// detectBearishFlag mirrors detectBullishFlag for a downward pole
func (d *Detector) detectBearishFlag(candles []bybit.Candle) (Match, bool) {
	window, start := trailing(candles, flagPoleBars+flagBars)
	if window == nil {
		return Match{}, false
	}

	pole := window[:flagPoleBars]
	flag := window[flagPoleBars:]

	poleHeight := pole[0].Open - pole[len(pole)-1].Close
	if poleHeight <= 0 {
		return Match{}, false
	}
	bearish := 0
	for _, c := range pole {
		if c.IsBearish() {
			bearish++
		}
	}
	if float64(bearish)/float64(len(pole)) < 0.6 {
		return Match{}, false
	}

	flagStart := flag[0].Low
	flagEnd := flag[len(flag)-1].High
	if flagEnd < flagStart {
		return Match{}, false
	}
	retrace := (flagEnd - flagStart) / poleHeight
	if retrace > 0.5 {
		return Match{}, false
	}

	return Match{
		Type:        BearishFlag,
		Direction:   DirectionBearish,
		Confidence:  toleranceConfidence(0.70, retrace, 0.5),
		CandleIndex: start + len(window) - 1,
	}, true
}

// trailing returns the last size candles and the index of the first one
func trailing(candles []bybit.Candle, size int) ([]bybit.Candle, int) {
	if len(candles) < size {
		return nil, 0
	}
	start := len(candles) - size
	return candles[start:], start
}

func extremes(candles []bybit.Candle) (highs, lows []float64) {
	highs = make([]float64, len(candles))
	lows = make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}
	return highs, lows
}

// localMaxima returns indexes whose high exceeds both immediate neighbors
func localMaxima(candles []bybit.Candle) []int {
	var peaks []int
	for i := 1; i < len(candles)-1; i++ {
		if candles[i].High > candles[i-1].High && candles[i].High > candles[i+1].High {
			peaks = append(peaks, i)
		}
	}
	return peaks
}

// localMinima returns indexes whose low undercuts both immediate neighbors
func localMinima(candles []bybit.Candle) []int {
	var valleys []int
	for i := 1; i < len(candles)-1; i++ {
		if candles[i].Low < candles[i-1].Low && candles[i].Low < candles[i+1].Low {
			valleys = append(valleys, i)
		}
	}
	return valleys
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// spreadRatio measures max deviation from ref as a fraction of ref
func spreadRatio(values []float64, ref float64) float64 {
	worst := 0.0
	for _, v := range values {
		dev := absF(v-ref) / ref
		if dev > worst {
			worst = dev
		}
	}
	return worst
}

func halvesRising(values []float64) bool {
	if len(values) < 2 {
		return false
	}
	mid := len(values) / 2
	return mean(values[mid:]) > mean(values[:mid])
}

func halvesFalling(values []float64) bool {
	if len(values) < 2 {
		return false
	}
	mid := len(values) / 2
	return mean(values[mid:]) < mean(values[:mid])
}

// toleranceConfidence scales base confidence down as the measured deviation
// approaches the allowed tolerance: a perfect formation keeps the base plus
// a bonus, a borderline one drops toward base - 0.1
func toleranceConfidence(base, deviation, tolerance float64) float64 {
	if tolerance <= 0 {
		return base
	}
	ratio := deviation / tolerance
	if ratio > 1 {
		ratio = 1
	}
	confidence := base + 0.1 - 0.2*ratio
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}
