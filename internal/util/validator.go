package util

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

var maxAmount = decimal.NewFromInt(1_000_000_000)

// ValidateAmount checks a transaction amount: positive, at most two decimal
// places, below the upper limit.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("amount has more than two decimal places: %s", amount.String())
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("amount too large, got %s", amount.String())
	}
	return nil
}

// ValidateBalance checks an account balance: non-negative, two places.
func ValidateBalance(balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("balance must not be negative, got %s", balance.String())
	}
	if !balance.Equal(balance.Round(2)) {
		return fmt.Errorf("balance has more than two decimal places: %s", balance.String())
	}
	if balance.GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("balance too large, got %s", balance.String())
	}
	return nil
}

// ValidateDate checks a YYYY-MM-DD date string.
func ValidateDate(dateStr string) error {
	_, err := ParseDay(dateStr)
	return err
}

// ParseDay parses a YYYY-MM-DD date.
func ParseDay(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	t, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %w", err)
	}
	return t, nil
}

// ParseTransactionDate accepts RFC 3339, a local timestamp or a plain day
// and returns it in UTC. The date may not be later than today.
func ParseTransactionDate(s string, now time.Time) (time.Time, error) {
	layouts := []string{
		time.RFC3339,          // 2025-12-03T00:00:00+08:00
		"2006-01-02T15:04:05", // 2025-12-03T00:00:00
		DateLayout,            // 2025-12-03
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Format(DateLayout) > now.Format(DateLayout) {
			return time.Time{}, fmt.Errorf("date %s is in the future", t.Format(DateLayout))
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ValidateName checks a display name: non-empty, bounded length.
func ValidateName(name string, max int) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if len([]rune(name)) > max {
		return fmt.Errorf("name too long, max %d characters", max)
	}
	return nil
}
