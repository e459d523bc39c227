package util

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// TestValidateAmount_Positive accepts ordinary amounts
func TestValidateAmount_Positive(t *testing.T) {
	for _, s := range []string{"0.01", "1", "100.5", "30.00", "999999999.99"} {
		if err := ValidateAmount(dec(s)); err != nil {
			t.Errorf("ValidateAmount(%s) error = %v, want nil", s, err)
		}
	}
}

func TestValidateAmount_Zero(t *testing.T) {
	if err := ValidateAmount(decimal.Zero); err == nil {
		t.Error("ValidateAmount(0) error = nil, want error")
	}
}

func TestValidateAmount_Negative(t *testing.T) {
	for _, s := range []string{"-0.01", "-100", "-9999.99"} {
		if err := ValidateAmount(dec(s)); err == nil {
			t.Errorf("ValidateAmount(%s) error = nil, want error", s)
		}
	}
}

func TestValidateAmount_TooPrecise(t *testing.T) {
	if err := ValidateAmount(dec("10.005")); err == nil {
		t.Error("ValidateAmount(10.005) error = nil, want error")
	}
	// trailing zeros are fine
	if err := ValidateAmount(dec("10.5000")); err != nil {
		t.Errorf("ValidateAmount(10.5000) error = %v, want nil", err)
	}
}

func TestValidateAmount_TooLarge(t *testing.T) {
	if err := ValidateAmount(dec("1000000000")); err == nil {
		t.Error("ValidateAmount(1e9) error = nil, want error")
	}
}

func TestValidateBalance(t *testing.T) {
	if err := ValidateBalance(decimal.Zero); err != nil {
		t.Errorf("zero balance error = %v, want nil", err)
	}
	if err := ValidateBalance(dec("-0.01")); err == nil {
		t.Error("negative balance error = nil, want error")
	}
}

func TestValidateDate_Valid(t *testing.T) {
	for _, date := range []string{"2024-01-01", "2024-12-31", "2025-06-15"} {
		if err := ValidateDate(date); err != nil {
			t.Errorf("ValidateDate(%s) error = %v, want nil", date, err)
		}
	}
}

func TestValidateDate_Invalid(t *testing.T) {
	for _, date := range []string{"", "2024/01/01", "2024-13-01", "yesterday"} {
		if err := ValidateDate(date); err == nil {
			t.Errorf("ValidateDate(%q) error = nil, want error", date)
		}
	}
}

func TestParseTransactionDate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		in      string
		wantErr bool
	}{
		{"2025-06-15", false},
		{"2025-06-01T08:30:00", false},
		{"2025-06-10T08:30:00Z", false},
		{"2025-06-16", true},
		{"15/06/2025", true},
	}
	for _, tc := range cases {
		_, err := ParseTransactionDate(tc.in, now)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseTransactionDate(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("", 64); err == nil {
		t.Error("empty name should fail")
	}
	if err := ValidateName("Comida", 64); err != nil {
		t.Errorf("valid name error = %v", err)
	}
	if err := ValidateName("abcdef", 5); err == nil {
		t.Error("long name should fail")
	}
}
