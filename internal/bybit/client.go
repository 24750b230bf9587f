package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client defines the exchange operations the engine depends on. Implemented
// by HTTPClient for the live API and MockClient for tests.
type Client interface {
	// GetInstrumentsInfo retrieves trading constraints. Empty symbol returns
	// all instruments in the category.
	GetInstrumentsInfo(ctx context.Context, category, symbol string) ([]InstrumentInfo, error)

	// GetTicker retrieves 24h statistics for one symbol.
	GetTicker(ctx context.Context, category, symbol string) (*Ticker, error)

	// GetKlines retrieves OHLCV candles ordered oldest-first. The exchange
	// returns newest-first; the client reverses before returning.
	GetKlines(ctx context.Context, category, symbol, interval string, limit int) ([]Candle, error)

	// GetOrderbook retrieves an order book snapshot.
	GetOrderbook(ctx context.Context, category, symbol string, limit int) (*Orderbook, error)

	// PlaceOrder places a new order.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
}

const recvWindow = "5000"

// HTTPClient is the Bybit V5 REST implementation of Client.
type HTTPClient struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a new Bybit V5 REST client.
func NewHTTPClient(apiKey, secretKey, baseURL string) *HTTPClient {
	return &HTTPClient{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// restResponse is the V5 envelope wrapping every result payload.
type restResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}

	return c.do(req, result)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload interface{}, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.sign(req, string(body))

	return c.do(req, result)
}

// sign adds V5 authentication headers: HMAC-SHA256 over
// timestamp + apiKey + recvWindow + payload.
func (c *HTTPClient) sign(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + c.apiKey + recvWindow + payload))
	signature := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", signature)
}

func (c *HTTPClient) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, req.URL.Path, string(body))
	}

	var envelope restResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if envelope.RetCode != 0 {
		return &APIError{Code: envelope.RetCode, Message: envelope.RetMsg}
	}

	if envelope.Result == nil {
		return fmt.Errorf("%w: missing result", ErrMalformedResponse)
	}

	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return nil
}

// GetInstrumentsInfo fetches instrument constraints for a category.
func (c *HTTPClient) GetInstrumentsInfo(ctx context.Context, category, symbol string) ([]InstrumentInfo, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("limit", "1000")
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var result struct {
		List []InstrumentInfo `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/instruments-info", params, &result); err != nil {
		return nil, err
	}

	for _, inst := range result.List {
		if inst.Symbol == "" {
			return nil, fmt.Errorf("%w: instrument without symbol", ErrMalformedResponse)
		}
	}

	return result.List, nil
}

// GetTicker fetches 24h statistics for one symbol.
func (c *HTTPClient) GetTicker(ctx context.Context, category, symbol string) (*Ticker, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", symbol)

	var result struct {
		List []Ticker `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/tickers", params, &result); err != nil {
		return nil, err
	}

	if len(result.List) == 0 {
		return nil, fmt.Errorf("%w: no ticker for %s", ErrMalformedResponse, symbol)
	}

	ticker := result.List[0]
	if ticker.Symbol == "" || ticker.LastPrice <= 0 {
		return nil, fmt.Errorf("%w: incomplete ticker for %s", ErrMalformedResponse, symbol)
	}

	return &ticker, nil
}

// GetKlines fetches candles and reverses them to oldest-first.
func (c *HTTPClient) GetKlines(ctx context.Context, category, symbol, interval string, limit int) ([]Candle, error) {
	code, err := IntervalCode(interval)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", symbol)
	params.Set("interval", code)
	params.Set("limit", strconv.Itoa(limit))

	// Each kline is an array of strings:
	// [startTime, open, high, low, close, volume, turnover]
	var result struct {
		List [][]string `json:"list"`
	}
	if err := c.get(ctx, "/v5/market/kline", params, &result); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(result.List))
	for _, raw := range result.List {
		if len(raw) < 7 {
			return nil, fmt.Errorf("%w: kline with %d fields", ErrMalformedResponse, len(raw))
		}
		candle, err := parseKline(raw)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	// The exchange returns newest-first; analysis wants oldest-first.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	return candles, nil
}

func parseKline(raw []string) (Candle, error) {
	startTime, err := strconv.ParseInt(raw[0], 10, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("%w: kline start time %q", ErrMalformedResponse, raw[0])
	}

	values := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(raw[i+1], 64)
		if err != nil {
			return Candle{}, fmt.Errorf("%w: kline field %q", ErrMalformedResponse, raw[i+1])
		}
		values[i] = v
	}

	return Candle{
		StartTime: startTime,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Turnover:  values[5],
	}, nil
}

// GetOrderbook fetches an order book snapshot.
func (c *HTTPClient) GetOrderbook(ctx context.Context, category, symbol string, limit int) (*Orderbook, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	var result struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
	}
	if err := c.get(ctx, "/v5/market/orderbook", params, &result); err != nil {
		return nil, err
	}

	book := &Orderbook{Symbol: result.Symbol}
	var err error
	if book.Bids, err = parseLevels(result.Bids); err != nil {
		return nil, err
	}
	if book.Asks, err = parseLevels(result.Asks); err != nil {
		return nil, err
	}

	return book, nil
}

func parseLevels(raw [][]string) ([]OrderbookLevel, error) {
	levels := make([]OrderbookLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("%w: orderbook level with %d fields", ErrMalformedResponse, len(pair))
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: orderbook price %q", ErrMalformedResponse, pair[0])
		}
		qty, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: orderbook qty %q", ErrMalformedResponse, pair[1])
		}
		levels = append(levels, OrderbookLevel{Price: price, Qty: qty})
	}
	return levels, nil
}

// PlaceOrder places a new order via the signed order/create endpoint.
func (c *HTTPClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	var result OrderResponse
	if err := c.post(ctx, "/v5/order/create", req, &result); err != nil {
		return nil, err
	}

	if result.OrderID == "" {
		return nil, fmt.Errorf("%w: order response without orderId", ErrMalformedResponse)
	}

	return &result, nil
}

// Compile-time interface check
var _ Client = (*HTTPClient)(nil)
