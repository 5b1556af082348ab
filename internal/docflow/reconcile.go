package docflow

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stockbridge/stockbridge-backend/pkg/errors"
)

// SourceLineOpen is the ERP status value marking a source line as open.
const SourceLineOpen = "bost_Open"

// ValidateReceiptQuantity checks a requested receipt quantity q against the
// source line's ordered quantity, remaining open quantity, and the quantity
// already received across prior receipt lines for the same source line.
//
// Two caps apply: received + q must not exceed ordered, and q must not exceed
// the open quantity the ERP still reports. Non-positive quantities are
// rejected outright.
func ValidateReceiptQuantity(q, ordered, open, received decimal.Decimal) error {
	if q.Sign() <= 0 {
		return errors.BadRequest("quantity must be greater than zero")
	}

	if received.Add(q).GreaterThan(ordered) {
		return errors.Validation(map[string]string{
			"quantity": fmt.Sprintf(
				"receiving %s would exceed ordered quantity %s (already received %s)",
				q.String(), ordered.String(), received.String(),
			),
		})
	}

	if q.GreaterThan(open) {
		return errors.Validation(map[string]string{
			"quantity": fmt.Sprintf(
				"quantity %s exceeds open quantity %s",
				q.String(), open.String(),
			),
		})
	}

	return nil
}

// LineOpen reports whether a source line is still open. ERP responses that
// omit the line status with a positive quantity are treated as open, since
// some service layer resources do not echo line statuses.
func LineOpen(status string, open, ordered decimal.Decimal) bool {
	switch status {
	case SourceLineOpen:
		return true
	case "":
		return open.Sign() > 0 || ordered.Sign() > 0
	}
	return false
}

// ReceiptEligible reports whether a source line may receive stock: the line
// must be open and have positive remaining open quantity.
func ReceiptEligible(status string, open, ordered decimal.Decimal) bool {
	return LineOpen(status, open, ordered) && open.Sign() > 0
}
