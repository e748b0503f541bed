package pair

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// CADRMB quotes Chinese yuan per Canadian dollar. The API reports the yuan
// under its ISO code CNY; users know it as RMB.
var CADRMB Pair = quotedPair{
	code:        "CAD-RMB",
	base:        "CAD",
	target:      "CNY",
	targetLabel: "RMB",
	url:         "https://api.exchangerate-api.com/v4/latest/CAD",
}

// quotedPair covers APIs that return {"base": X, "rates": {Y: n}} with the
// rate already expressed as units of Y per one X.
type quotedPair struct {
	code        string
	base        string
	target      string
	targetLabel string
	url         string
}

func (p quotedPair) Code() string           { return p.code }
func (p quotedPair) BaseCurrency() string   { return p.base }
func (p quotedPair) TargetCurrency() string { return p.target }
func (p quotedPair) DefaultURL() string     { return p.url }

func (p quotedPair) ExtractRate(rates map[string]json.Number) (decimal.Decimal, error) {
	raw, ok := rates[p.target]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s not in response", ErrRateMissing, p.target)
	}

	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s=%q: %v", ErrRateInvalid, p.target, raw.String(), err)
	}
	if !rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: %s=%s is not positive", ErrRateInvalid, p.target, rate.String())
	}
	return rate, nil
}

func (p quotedPair) Describe(rate decimal.Decimal) string {
	return fmt.Sprintf("1 %s = %s %s", p.base, rate.StringFixed(4), p.targetLabel)
}
