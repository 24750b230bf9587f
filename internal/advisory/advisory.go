package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bybit-trading-bot/internal/logging"
)

// Recommendation values returned by an advisory service
const (
	StrongBuy  = "STRONG_BUY"
	Buy        = "BUY"
	Hold       = "HOLD"
	Sell       = "SELL"
	StrongSell = "STRONG_SELL"
)

// Score is an external directional opinion on a symbol
type Score struct {
	Symbol         string  `json:"symbol"`
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"` // 0.0 to 1.0
}

// Valid reports whether the recommendation is one of the known values
// and the confidence is within bounds
func (s Score) Valid() bool {
	switch s.Recommendation {
	case StrongBuy, Buy, Hold, Sell, StrongSell:
	default:
		return false
	}
	return s.Confidence >= 0 && s.Confidence <= 1
}

// Scorer produces advisory scores for symbols. Implementations may call
// external services; failures should be returned, not swallowed, so the
// caller can degrade to indicator/pattern-only fusion.
type Scorer interface {
	Score(ctx context.Context, symbol string) (*Score, error)
}

// HTTPScorer queries a remote advisory endpoint
type HTTPScorer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewHTTPScorer creates an advisory client for the given endpoint
func NewHTTPScorer(baseURL, apiKey string, timeout time.Duration, logger *logging.Logger) *HTTPScorer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPScorer{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithComponent("advisory"),
	}
}

// Score requests a recommendation for the symbol
func (s *HTTPScorer) Score(ctx context.Context, symbol string) (*Score, error) {
	payload, err := json.Marshal(map[string]string{"symbol": symbol})
	if err != nil {
		return nil, fmt.Errorf("failed to encode advisory request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/score", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create advisory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("advisory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("advisory service returned status %d", resp.StatusCode)
	}

	var score Score
	if err := json.NewDecoder(resp.Body).Decode(&score); err != nil {
		return nil, fmt.Errorf("failed to decode advisory response: %w", err)
	}
	if score.Symbol == "" {
		score.Symbol = symbol
	}
	if !score.Valid() {
		return nil, fmt.Errorf("advisory returned invalid score for %s: %s/%.2f",
			symbol, score.Recommendation, score.Confidence)
	}

	return &score, nil
}

// StaticScorer returns preset scores; used in tests and dry runs
type StaticScorer struct {
	Scores map[string]Score
	Err    error
}

// Score returns the preset score for the symbol, or nil when none is set
func (s *StaticScorer) Score(_ context.Context, symbol string) (*Score, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if score, ok := s.Scores[symbol]; ok {
		return &score, nil
	}
	return nil, nil
}
