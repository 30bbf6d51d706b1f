package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusCompleted OrderStatus = "completed"
	StatusCanceled  OrderStatus = "canceled"
)

// Storage limits of a line item: prices carry at most PriceScale decimal
// places and quantities fit a 32-bit column.
const (
	PriceScale  = 2
	MaxQuantity = 1<<31 - 1
)

// MaxPrice is the largest unit price a line item can store.
var MaxPrice = decimal.RequireFromString("9999999999.99")

// AllStatuses is the allowed status set in display order.
var AllStatuses = []OrderStatus{StatusPending, StatusPaid, StatusShipped, StatusCompleted, StatusCanceled}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	Owner         uuid.UUID       `json:"owner"`
	PaymentMethod *uuid.UUID      `json:"payment_method"`
	Status        OrderStatus     `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Note          string          `json:"note"`
	Items         []OrderItem     `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"order"`
	ProductID uuid.UUID       `json:"product"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal is quantity × price. It is never stored.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Product is the slice of a catalog product the order subsystem needs.
type Product struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	IsActive bool            `json:"is_active"`
}

// LineItemRequest is one requested line before catalog resolution.
// Nil fields were not supplied by the caller.
type LineItemRequest struct {
	ProductID *string
	Quantity  *int
	Price     *decimal.Decimal
}

// CreateOrderPayload is the input of the create workflow.
type CreateOrderPayload struct {
	PaymentMethod *string
	Note          string
	Items         []LineItemRequest
}

// OrderPatch is a partial update. Presence flags distinguish an absent key
// from a key explicitly set to null or to an empty list.
type OrderPatch struct {
	OwnerSet bool

	Status *string

	PaymentMethodSet bool
	PaymentMethod    *string

	Note *string

	ItemsSet bool
	Items    []LineItemRequest
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID        uuid.UUID
	Authenticated bool
}

// OrderFilter narrows a listing. Zero fields do not filter.
type OrderFilter struct {
	Status        string
	PaymentMethod *uuid.UUID
}

// ListQuery is a listing request as received from a caller.
type ListQuery struct {
	Status        string
	PaymentMethod string
	Page          int
	Limit         int
}

// Page is one page of a listing with its paging metadata.
type Page struct {
	CurrentPage int     `json:"current_page"`
	TotalPage   int     `json:"total_page"`
	TotalItem   int     `json:"total_item"`
	Data        []Order `json:"data"`
}

func IsValidStatus(status OrderStatus) bool {
	switch status {
	case StatusPending, StatusPaid, StatusShipped, StatusCompleted, StatusCanceled:
		return true
	default:
		return false
	}
}

// RecomputeTotal sets TotalAmount to the sum of the item subtotals.
func (o *Order) RecomputeTotal() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	o.TotalAmount = total
}
