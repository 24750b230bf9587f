package scanner

import (
	"time"

	"bybit-trading-bot/internal/catalog"
	"bybit-trading-bot/internal/fusion"
)

// Candidate is one instrument that passed every hard filter, with its
// fused signal attached
type Candidate struct {
	Symbol     string              `json:"symbol"`
	Signal     *fusion.FusedSignal `json:"signal"`
	Instrument catalog.Instrument  `json:"instrument"`
}

// ScanResult captures the outcome of one full scan cycle
type ScanResult struct {
	ScanID         string        `json:"scanId"`
	StartedAt      time.Time     `json:"startedAt"`
	FinishedAt     time.Time     `json:"finishedAt"`
	Duration       time.Duration `json:"duration"`
	SymbolsScanned int           `json:"symbolsScanned"`
	Filtered       int           `json:"filtered"` // rejected by hard filters
	Excluded       int           `json:"excluded"` // open position or cooldown
	Failed         int           `json:"failed"`   // per-symbol errors
	Candidates     []Candidate   `json:"candidates"`
}

// OpenChecker reports whether a symbol currently has an OPEN position.
// Implemented by the position manager.
type OpenChecker interface {
	HasOpen(symbol string) bool
}
