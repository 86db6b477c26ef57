package writer

import (
	"time"

	"github.com/shopspring/decimal"
)

// money converts a float amount to a NUMERIC value with MoneyPlaces digits.
func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(MoneyPlaces)
}

// dateOnly truncates t to its calendar date in UTC, the DATE column value.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
