package postgres

import (
	"errors"
	"fmt"
	"strings"

	"shop_orders/internal/domain"

	"github.com/lib/pq"
)

const (
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNumericOutOfRange   = "22003"
)

// translate maps constraint violations that stem from caller input to the
// matching domain error kind. Anything else stays a storage fault.
func translate(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeForeignKeyViolation:
			switch {
			case strings.Contains(pqErr.Constraint, "payment_method"):
				return &domain.Error{Kind: domain.ErrInvalidPaymentMethod, Field: "payment_method", Msg: "no such payment method"}
			case strings.Contains(pqErr.Constraint, "product"):
				return &domain.Error{Kind: domain.ErrProductNotFound, Msg: pqErr.Detail}
			}
		case codeNumericOutOfRange:
			if strings.Contains(pqErr.Message, "integer") {
				return &domain.Error{Kind: domain.ErrInvalidQuantity, Field: "quantity", Msg: pqErr.Message}
			}
			return &domain.Error{Kind: domain.ErrInvalidPrice, Field: "price", Msg: pqErr.Message}
		case codeCheckViolation:
			if strings.Contains(pqErr.Constraint, "quantity") {
				return &domain.Error{Kind: domain.ErrInvalidQuantity, Field: "quantity", Msg: pqErr.Message}
			}
			if strings.Contains(pqErr.Constraint, "status") {
				return &domain.Error{Kind: domain.ErrInvalidStatus, Field: "status", Msg: pqErr.Message}
			}
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
