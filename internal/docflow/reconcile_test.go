package docflow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/stockbridge/stockbridge-backend/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestValidateReceiptQuantity(t *testing.T) {
	tests := []struct {
		name     string
		q        string
		ordered  string
		open     string
		received string
		wantErr  bool
	}{
		{"full receipt of untouched line", "100", "100", "100", "0", false},
		{"partial receipt", "40", "100", "100", "0", false},
		{"second receipt within cumulative cap", "40", "100", "40", "60", false},
		{"cumulative cap exceeded", "50", "100", "50", "60", true},
		{"open quantity cap exceeded", "60", "100", "40", "0", true},
		{"exactly the open quantity", "40", "100", "40", "60", false},
		{"zero quantity", "0", "100", "100", "0", true},
		{"negative quantity", "-5", "100", "100", "0", true},
		{"fractional quantities", "0.250", "1.000", "0.500", "0.500", false},
		{"fractional cumulative overflow", "0.501", "1.000", "0.501", "0.500", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReceiptQuantity(dec(tt.q), dec(tt.ordered), dec(tt.open), dec(tt.received))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateReceiptQuantityErrorKinds(t *testing.T) {
	err := ValidateReceiptQuantity(dec("0"), dec("10"), dec("10"), dec("0"))
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	err = ValidateReceiptQuantity(dec("11"), dec("10"), dec("10"), dec("0"))
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestLineOpen(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		open    string
		ordered string
		want    bool
	}{
		{"explicitly open", SourceLineOpen, "10", "10", true},
		{"explicitly open even with zero remaining", SourceLineOpen, "0", "10", true},
		{"closed", "bost_Close", "10", "10", false},
		{"missing status with open quantity", "", "5", "10", true},
		{"missing status with ordered quantity only", "", "0", "10", true},
		{"missing status and no quantities", "", "0", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LineOpen(tt.status, dec(tt.open), dec(tt.ordered)))
		})
	}
}

func TestReceiptEligible(t *testing.T) {
	// A line the ERP still marks open but with nothing left to receive is not
	// eligible for a new receipt line.
	assert.False(t, ReceiptEligible(SourceLineOpen, dec("0"), dec("10")))
	assert.True(t, ReceiptEligible(SourceLineOpen, dec("3"), dec("10")))
	assert.False(t, ReceiptEligible("bost_Close", dec("3"), dec("10")))
}
