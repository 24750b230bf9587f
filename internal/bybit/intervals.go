package bybit

// intervalCodes maps human-readable intervals to Bybit V5 interval codes.
var intervalCodes = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"2h":  "120",
	"4h":  "240",
	"6h":  "360",
	"12h": "720",
	"1d":  "D",
	"1w":  "W",
	"1M":  "M",
}

// IntervalCode converts an interval like "1h" to the exchange code ("60").
func IntervalCode(interval string) (string, error) {
	code, ok := intervalCodes[interval]
	if !ok {
		return "", ErrUnknownInterval
	}
	return code, nil
}
