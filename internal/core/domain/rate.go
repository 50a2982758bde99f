package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is a conversion rate between a display currency and the
// settlement currency, persisted for audit and as a fallback when every
// live source is unavailable.
type ExchangeRate struct {
	Base      string          `json:"base"`
	Target    string          `json:"target"`
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}
