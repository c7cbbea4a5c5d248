package shift

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var millisPerHour = decimal.NewFromInt(int64(time.Hour / time.Millisecond))

// HoursBetween returns (to - from) in decimal hours, never negative.
func HoursBetween(from, to time.Time) decimal.Decimal {
	ms := to.Sub(from).Milliseconds()
	if ms <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(ms).Div(millisPerHour)
}

// HoursMinutes is a duration entered as separate hour and minute fields.
type HoursMinutes struct {
	Hours   int
	Minutes int
}

// Validate rejects negative parts and minute values of an hour or more.
func (hm HoursMinutes) Validate() error {
	if hm.Hours < 0 {
		return invalidArgument("hours must not be negative, got %d", hm.Hours)
	}
	if hm.Minutes < 0 || hm.Minutes > 59 {
		return invalidArgument("minutes must be between 0 and 59, got %d", hm.Minutes)
	}
	return nil
}

// Duration converts to a time.Duration.
func (hm HoursMinutes) Duration() time.Duration {
	return time.Duration(hm.Hours)*time.Hour + time.Duration(hm.Minutes)*time.Minute
}

// DecimalHours converts to decimal hours: 1h30m → 1.5.
func (hm HoursMinutes) DecimalHours() decimal.Decimal {
	return decimal.NewFromInt(int64(hm.Hours)).
		Add(decimal.NewFromInt(int64(hm.Minutes)).Div(decimal.NewFromInt(60)))
}

// IsZero returns true for 0h0m.
func (hm HoursMinutes) IsZero() bool {
	return hm.Hours == 0 && hm.Minutes == 0
}

func (hm HoursMinutes) String() string {
	return fmt.Sprintf("%dh%02dm", hm.Hours, hm.Minutes)
}
