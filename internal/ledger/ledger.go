package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrInsufficientCapital is returned when a reservation would exceed the
// available capital.
var ErrInsufficientCapital = errors.New("insufficient capital")

// ErrInvariant is returned when a mutation would leave the ledger in an
// inconsistent state. The offending operation is rejected and the ledger
// keeps serving.
var ErrInvariant = errors.New("ledger invariant violation")

// ErrUnknownReservation is returned when releasing an id that is not held.
var ErrUnknownReservation = errors.New("unknown reservation")

// Ledger is the single authority over capital. Every mutation runs under
// one mutex so no two reservations can both pass the same available check.
type Ledger struct {
	mu           sync.Mutex
	total        decimal.Decimal
	allocated    decimal.Decimal
	reservations map[string]decimal.Decimal
	logger       zerolog.Logger
}

// New creates a ledger managing the given total capital
func New(total float64, logger zerolog.Logger) (*Ledger, error) {
	if total <= 0 {
		return nil, fmt.Errorf("total capital must be positive, got %v", total)
	}
	return &Ledger{
		total:        decimal.NewFromFloat(total),
		allocated:    decimal.Zero,
		reservations: make(map[string]decimal.Decimal),
		logger:       logger.With().Str("component", "ledger").Logger(),
	}, nil
}

// Reserve sets aside amount for one position and returns a reservation id
func (l *Ledger) Reserve(amount float64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("reserve amount must be positive, got %v", amount)
	}
	amt := decimal.NewFromFloat(amount)

	l.mu.Lock()
	defer l.mu.Unlock()

	available := l.total.Sub(l.allocated)
	if amt.GreaterThan(available) {
		l.logger.Warn().
			Str("amount", amt.String()).
			Str("available", available.String()).
			Msg("Reservation rejected, insufficient capital")
		return "", ErrInsufficientCapital
	}

	id := uuid.NewString()
	next := l.allocated.Add(amt)
	if err := l.checkInvariants(next, id, amt); err != nil {
		return "", err
	}

	l.allocated = next
	l.reservations[id] = amt
	l.logger.Info().
		Str("reservation", id).
		Str("amount", amt.String()).
		Str("allocated", l.allocated.String()).
		Msg("Capital reserved")
	return id, nil
}

// Release returns the reserved amount for id back to the available pool
func (l *Ledger) Release(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	amt, ok := l.reservations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, id)
	}

	next := l.allocated.Sub(amt)
	if next.IsNegative() {
		l.logger.Error().
			Str("reservation", id).
			Str("allocated", l.allocated.String()).
			Str("amount", amt.String()).
			Msg("Release would drive allocation negative")
		return fmt.Errorf("%w: release %s would make allocated negative", ErrInvariant, id)
	}

	delete(l.reservations, id)
	l.allocated = next
	l.logger.Info().
		Str("reservation", id).
		Str("amount", amt.String()).
		Str("allocated", l.allocated.String()).
		Msg("Capital released")
	return nil
}

// checkInvariants validates the proposed allocation against total capital
// and the reservation sum. Callers hold the mutex.
func (l *Ledger) checkInvariants(nextAllocated decimal.Decimal, id string, amt decimal.Decimal) error {
	if nextAllocated.GreaterThan(l.total) {
		l.logger.Error().
			Str("allocated", nextAllocated.String()).
			Str("total", l.total.String()).
			Msg("Allocation would exceed total capital")
		return fmt.Errorf("%w: allocated %s exceeds total %s", ErrInvariant, nextAllocated, l.total)
	}

	sum := amt
	for _, r := range l.reservations {
		sum = sum.Add(r)
	}
	if !sum.Equal(nextAllocated) {
		l.logger.Error().
			Str("reservations", sum.String()).
			Str("allocated", nextAllocated.String()).
			Msg("Reservation sum diverged from allocation")
		return fmt.Errorf("%w: reservations sum %s != allocated %s", ErrInvariant, sum, nextAllocated)
	}
	return nil
}

// Total returns the managed capital
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total.InexactFloat64()
}

// Allocated returns the currently reserved capital
func (l *Ledger) Allocated() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allocated.InexactFloat64()
}

// Available returns the capital free for new reservations
func (l *Ledger) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total.Sub(l.allocated).InexactFloat64()
}

// ActiveReservations returns the number of live reservations
func (l *Ledger) ActiveReservations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reservations)
}
