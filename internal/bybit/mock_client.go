package bybit

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scriptable in-memory Client used in tests and dry runs.
// Populate the maps, or set the error fields to simulate failures.
type MockClient struct {
	mu sync.Mutex

	Instruments map[string]InstrumentInfo
	Tickers     map[string]*Ticker
	Klines      map[string][]Candle
	Orderbooks  map[string]*Orderbook

	// Error injection
	InstrumentsErr error
	TickerErrors   map[string]error
	KlineErrors    map[string]error

	// Order placement behavior
	PlaceOrderErr error
	PlacedOrders  []OrderRequest

	nextOrderID int
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{
		Instruments:  make(map[string]InstrumentInfo),
		Tickers:      make(map[string]*Ticker),
		Klines:       make(map[string][]Candle),
		Orderbooks:   make(map[string]*Orderbook),
		TickerErrors: make(map[string]error),
		KlineErrors:  make(map[string]error),
	}
}

func (m *MockClient) GetInstrumentsInfo(ctx context.Context, category, symbol string) ([]InstrumentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InstrumentsErr != nil {
		return nil, m.InstrumentsErr
	}
	if symbol != "" {
		inst, ok := m.Instruments[symbol]
		if !ok {
			return nil, fmt.Errorf("mock: no instrument %s", symbol)
		}
		return []InstrumentInfo{inst}, nil
	}

	list := make([]InstrumentInfo, 0, len(m.Instruments))
	for _, inst := range m.Instruments {
		list = append(list, inst)
	}
	return list, nil
}

func (m *MockClient) GetTicker(ctx context.Context, category, symbol string) (*Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.TickerErrors[symbol]; err != nil {
		return nil, err
	}
	ticker, ok := m.Tickers[symbol]
	if !ok {
		return nil, fmt.Errorf("mock: no ticker %s", symbol)
	}
	copied := *ticker
	return &copied, nil
}

// SetPrice updates the mock last price for a symbol.
func (m *MockClient) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ticker, ok := m.Tickers[symbol]; ok {
		ticker.LastPrice = price
		return
	}
	m.Tickers[symbol] = &Ticker{Symbol: symbol, LastPrice: price}
}

func (m *MockClient) GetKlines(ctx context.Context, category, symbol, interval string, limit int) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.KlineErrors[symbol]; err != nil {
		return nil, err
	}
	candles, ok := m.Klines[symbol]
	if !ok {
		return nil, fmt.Errorf("mock: no klines %s", symbol)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	return out, nil
}

func (m *MockClient) GetOrderbook(ctx context.Context, category, symbol string, limit int) (*Orderbook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.Orderbooks[symbol]
	if !ok {
		return nil, fmt.Errorf("mock: no orderbook %s", symbol)
	}
	return book, nil
}

func (m *MockClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PlaceOrderErr != nil {
		return nil, m.PlaceOrderErr
	}

	m.PlacedOrders = append(m.PlacedOrders, req)
	m.nextOrderID++
	return &OrderResponse{OrderID: fmt.Sprintf("mock-%d", m.nextOrderID)}, nil
}

// OrderCount returns how many orders were placed.
func (m *MockClient) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PlacedOrders)
}

// LastOrder returns the most recent placed order, or nil.
func (m *MockClient) LastOrder() *OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.PlacedOrders) == 0 {
		return nil
	}
	req := m.PlacedOrders[len(m.PlacedOrders)-1]
	return &req
}

var _ Client = (*MockClient)(nil)
