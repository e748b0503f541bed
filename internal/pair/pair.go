// Package pair describes the currency pairs fxwatcher knows how to monitor.
package pair

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownPair is returned by Lookup for unregistered pair codes.
	ErrUnknownPair = errors.New("pair: unknown currency pair")
	// ErrRateMissing indicates the target currency is absent from a rates map.
	ErrRateMissing = errors.New("pair: rate missing")
	// ErrRateInvalid indicates the target rate is not a positive number.
	ErrRateInvalid = errors.New("pair: rate invalid")
)

// Pair is one monitored currency pair: where to fetch it, how to pull the
// quoted rate out of an API payload, and how to describe it to humans.
type Pair interface {
	// Code is the display identifier, e.g. "CAD-RMB".
	Code() string
	// BaseCurrency is the ISO code the API quotes against.
	BaseCurrency() string
	// TargetCurrency is the ISO code looked up in the rates map.
	TargetCurrency() string
	// DefaultURL is the rate endpoint used when none is configured.
	DefaultURL() string
	// ExtractRate returns the target rate from a "rates" map.
	ExtractRate(rates map[string]json.Number) (decimal.Decimal, error)
	// Describe renders a rate as "1 CAD = 5.0200 RMB".
	Describe(rate decimal.Decimal) string
}

var registry = map[string]Pair{
	CADRMB.Code(): CADRMB,
}

// Lookup returns the registered pair for code (case-insensitive).
func Lookup(code string) (Pair, error) {
	p, ok := registry[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownPair, code, strings.Join(Codes(), ", "))
	}
	return p, nil
}

// Codes lists registered pair codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// EnvPrefix converts a pair code to the prefix of its legacy environment
// variables ("CAD-RMB" -> "CAD_RMB").
func EnvPrefix(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", "_"))
}
