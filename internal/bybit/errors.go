package bybit

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a response decodes but is missing
// fields required by the caller. Kept distinct from transport errors so
// callers can tell "the exchange is down" from "the exchange changed shape".
var ErrMalformedResponse = errors.New("malformed exchange response")

// APIError is a non-zero retCode returned by the Bybit V5 API.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit API error %d: %s", e.Code, e.Message)
}

// ErrUnknownInterval is returned for intervals outside the lookup table.
var ErrUnknownInterval = errors.New("unknown kline interval")
