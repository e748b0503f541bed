package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotificationRecord is one delivered alert or daily summary.
type NotificationRecord struct {
	ID           int64
	Kind         string
	CurrencyPair string
	Rate         decimal.Decimal
	Threshold    decimal.Decimal
	SampleTS     time.Time
	Recipients   []string
	CreatedAt    time.Time
}
