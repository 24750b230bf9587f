package bybit

import "strconv"

// ==================== ENUMS ====================

// Side represents the order side
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// OrderType represents order types
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// TimeInForce represents order time-in-force options
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC" // Good Till Cancel
	TimeInForceIOC TimeInForce = "IOC" // Immediate or Cancel
	TimeInForceFOK TimeInForce = "FOK" // Fill or Kill
)

// ==================== MARKET DATA TYPES ====================

// InstrumentInfo represents one instrument from the instruments-info endpoint
type InstrumentInfo struct {
	Symbol         string         `json:"symbol"`
	Status         string         `json:"status"` // "Trading" when live
	BaseCoin       string         `json:"baseCoin"`
	QuoteCoin      string         `json:"quoteCoin"`
	LotSizeFilter  LotSizeFilter  `json:"lotSizeFilter"`
	PriceFilter    PriceFilter    `json:"priceFilter"`
	LeverageFilter LeverageFilter `json:"leverageFilter"`
}

// LotSizeFilter holds order quantity constraints
type LotSizeFilter struct {
	MinOrderQty      float64 `json:"minOrderQty,string"`
	MaxOrderQty      float64 `json:"maxOrderQty,string"`
	QtyStep          float64 `json:"qtyStep,string"`
	MinNotionalValue float64 `json:"minNotionalValue,string"`
}

// PriceFilter holds price constraints
type PriceFilter struct {
	MinPrice float64 `json:"minPrice,string"`
	MaxPrice float64 `json:"maxPrice,string"`
	TickSize float64 `json:"tickSize,string"`
}

// LeverageFilter holds leverage constraints
type LeverageFilter struct {
	MinLeverage  float64 `json:"minLeverage,string"`
	MaxLeverage  float64 `json:"maxLeverage,string"`
	LeverageStep float64 `json:"leverageStep,string"`
}

// Ticker represents 24h ticker statistics for one symbol
type Ticker struct {
	Symbol          string  `json:"symbol"`
	LastPrice       float64 `json:"lastPrice,string"`
	Volume24h       float64 `json:"volume24h,string"`
	Turnover24h     float64 `json:"turnover24h,string"`
	Price24hPercent float64 `json:"price24hPcnt,string"` // fraction, e.g. 0.025 = +2.5%
}

// Candle represents one OHLCV candle. Slices handed out by the client are
// always ordered oldest-first.
type Candle struct {
	StartTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Turnover  float64
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool { return c.Close > c.Open }

// IsBearish reports whether the candle closed below its open.
func (c Candle) IsBearish() bool { return c.Close < c.Open }

// Body returns the absolute body size.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }

// OrderbookLevel is one price level as [price, qty]
type OrderbookLevel struct {
	Price float64
	Qty   float64
}

// Orderbook represents an order book snapshot
type Orderbook struct {
	Symbol string
	Bids   []OrderbookLevel
	Asks   []OrderbookLevel
}

// ==================== ORDER TYPES ====================

// OrderRequest represents parameters for placing an order
type OrderRequest struct {
	Category    string      `json:"category"`
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	OrderType   OrderType   `json:"orderType"`
	Qty         string      `json:"qty"`
	Price       string      `json:"price,omitempty"`
	TimeInForce TimeInForce `json:"timeInForce,omitempty"`
	ReduceOnly  bool        `json:"reduceOnly,omitempty"`
}

// OrderResponse represents the result of placing an order
type OrderResponse struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// FormatQty renders a quantity the way the exchange expects: plain
// decimal, no exponent, no trailing zeros
func FormatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}
