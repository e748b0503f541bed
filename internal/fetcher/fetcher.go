package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrFetch is matched by every error returned from a RateFetcher.
var ErrFetch = errors.New("fetch rate")

// RateFetcher performs a single attempt at retrieving the monitored rate.
type RateFetcher interface {
	FetchRate(ctx context.Context) (decimal.Decimal, error)
}

// Quote is the full payload of a rates endpoint plus the extracted target rate.
type Quote struct {
	Base       string
	Date       string
	Rates      map[string]json.Number
	TargetRate decimal.Decimal
}

// TransportError wraps network failures and timeouts.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("rate api transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Is(target error) bool {
	return target == ErrFetch
}

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rate api error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("rate api error (%d): %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrFetch
}

// ExtractionError reports that the target rate could not be read from an
// otherwise well-formed response.
type ExtractionError struct {
	Currency string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s rate: %v", e.Currency, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
func (e *ExtractionError) Is(target error) bool {
	return target == ErrFetch
}
