package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match with errors.Is; detailed failures wrap one of these in *Error.
var (
	ErrMissingProductID     = errors.New("missing product id")
	ErrProductNotFound      = errors.New("product not found or inactive")
	ErrEmptyOrder           = errors.New("order must have at least one item")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrImmutableField       = errors.New("field cannot be changed")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrInvalidPagination    = errors.New("invalid pagination")
	ErrOrderNotFound        = errors.New("order not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInternal             = errors.New("internal error")
)

// Error carries the offending field or line item alongside its kind.
type Error struct {
	Kind      error
	Field     string
	Value     string
	Position  int // 1-based line item position, 0 when not about an item
	ProductID string
	Msg       string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Position > 0 {
		fmt.Fprintf(&b, "item %d", e.Position)
		if e.ProductID != "" {
			fmt.Fprintf(&b, " (product %s)", e.ProductID)
		}
		b.WriteString(": ")
	} else if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

// IsClientError reports whether err is caused by caller input rather than by storage.
func IsClientError(err error) bool {
	for _, kind := range []error{
		ErrMissingProductID, ErrProductNotFound, ErrEmptyOrder, ErrInvalidStatus,
		ErrInvalidPaymentMethod, ErrImmutableField, ErrInvalidQuantity, ErrInvalidPrice, ErrInvalidPagination,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Kind returns a short label for err, used for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMissingProductID):
		return "missing_product_id"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrEmptyOrder):
		return "empty_order"
	case errors.Is(err, ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, ErrInvalidPaymentMethod):
		return "invalid_payment_method"
	case errors.Is(err, ErrImmutableField):
		return "immutable_field"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, ErrInvalidPagination):
		return "invalid_pagination"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}
