package pricing

import (
	"strings"

	"github.com/fjod/storefront/internal/domain"
)

const (
	MsgCodeRequired = "Please enter a promo or gift card code."
	MsgCodeNotFound = "This promo code does not exist."
	MsgCodeInactive = "This promo code is not active currently."
)

// ValidationError carries a reason that can be shown to the shopper as is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateDiscount checks a looked-up code. found is nil when the lookup
// returned nothing.
func ValidateDiscount(code string, found *domain.DiscountCode) error {
	if NormalizeCode(code) == "" {
		return &ValidationError{Field: "discount_code", Reason: MsgCodeRequired}
	}
	if found == nil {
		return &ValidationError{Field: "discount_code", Reason: MsgCodeNotFound}
	}
	if !found.IsActive() {
		return &ValidationError{Field: "discount_code", Reason: MsgCodeInactive}
	}
	return nil
}
