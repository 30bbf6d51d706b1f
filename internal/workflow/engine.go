// Package workflow builds and mutates order aggregates. It performs no I/O
// beyond the catalog lookups handed to it.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shop_orders/internal/domain"

	"github.com/google/uuid"
)

type Engine struct {
	now   func() time.Time
	newID func() uuid.UUID
}

func NewEngine() *Engine {
	return &Engine{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.New,
	}
}

// NewEngineWithClock is NewEngine with a fixed time source and id generator.
func NewEngineWithClock(now func() time.Time, newID func() uuid.UUID) *Engine {
	return &Engine{now: now, newID: newID}
}

// ResolveLineItem checks one requested line against the catalog and applies
// the price fallback. position is 1-based and only used in errors.
func (e *Engine) ResolveLineItem(ctx context.Context, position int, req domain.LineItemRequest, catalog domain.Catalog) (domain.OrderItem, error) {
	if req.ProductID == nil || strings.TrimSpace(*req.ProductID) == "" {
		return domain.OrderItem{}, &domain.Error{Kind: domain.ErrMissingProductID, Position: position, Field: "product"}
	}
	rawID := strings.TrimSpace(*req.ProductID)

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 || quantity > domain.MaxQuantity {
		return domain.OrderItem{}, &domain.Error{
			Kind:      domain.ErrInvalidQuantity,
			Position:  position,
			ProductID: rawID,
			Field:     "quantity",
			Value:     fmt.Sprint(quantity),
			Msg:       fmt.Sprintf("must be between 1 and %d", domain.MaxQuantity),
		}
	}

	productID, err := uuid.Parse(rawID)
	if err != nil {
		// A malformed id cannot name any product.
		return domain.OrderItem{}, &domain.Error{Kind: domain.ErrProductNotFound, Position: position, ProductID: rawID}
	}
	product, err := catalog.FindActiveProduct(ctx, productID)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("item %d: catalog lookup for product %s: %w", position, productID, err)
	}
	if product == nil || !product.IsActive {
		return domain.OrderItem{}, &domain.Error{Kind: domain.ErrProductNotFound, Position: position, ProductID: rawID}
	}

	price := product.Price
	if req.Price != nil && req.Price.IsPositive() {
		price = *req.Price
		if !price.Equal(price.Truncate(domain.PriceScale)) || price.GreaterThan(domain.MaxPrice) {
			return domain.OrderItem{}, &domain.Error{
				Kind:      domain.ErrInvalidPrice,
				Position:  position,
				ProductID: rawID,
				Field:     "price",
				Value:     price.String(),
				Msg:       fmt.Sprintf("must have at most %d decimal places and not exceed %s", domain.PriceScale, domain.MaxPrice.StringFixed(domain.PriceScale)),
			}
		}
	}

	return domain.OrderItem{
		ID:        e.newID(),
		ProductID: product.ID,
		Quantity:  quantity,
		Price:     price,
	}, nil
}

func (e *Engine) resolveAll(ctx context.Context, orderID uuid.UUID, reqs []domain.LineItemRequest, catalog domain.Catalog) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(reqs))
	for i, req := range reqs {
		item, err := e.ResolveLineItem(ctx, i+1, req, catalog)
		if err != nil {
			return nil, err
		}
		item.OrderID = orderID
		items = append(items, item)
	}
	return items, nil
}

// BuildOrder produces a new pending order owned by owner. The first line
// that fails to resolve aborts the build.
func (e *Engine) BuildOrder(ctx context.Context, owner uuid.UUID, payload domain.CreateOrderPayload, catalog domain.Catalog) (*domain.Order, error) {
	if len(payload.Items) == 0 {
		return nil, &domain.Error{Kind: domain.ErrEmptyOrder, Field: "items"}
	}

	paymentMethod, err := parsePaymentMethod(payload.PaymentMethod)
	if err != nil {
		return nil, err
	}

	now := e.now()
	order := &domain.Order{
		ID:            e.newID(),
		Owner:         owner,
		PaymentMethod: paymentMethod,
		Status:        domain.StatusPending,
		Note:          payload.Note,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	order.Items, err = e.resolveAll(ctx, order.ID, payload.Items, catalog)
	if err != nil {
		return nil, err
	}
	order.RecomputeTotal()
	return order, nil
}

// ApplyUpdate returns a patched copy of existing; existing itself is never
// modified. Items and total are only touched when patch.ItemsSet.
func (e *Engine) ApplyUpdate(ctx context.Context, existing *domain.Order, patch domain.OrderPatch, catalog domain.Catalog) (*domain.Order, error) {
	if patch.OwnerSet {
		return nil, &domain.Error{Kind: domain.ErrImmutableField, Field: "owner", Msg: "orders cannot be reassigned"}
	}

	updated := *existing
	updated.Items = append([]domain.OrderItem(nil), existing.Items...)

	if patch.Status != nil {
		status := domain.OrderStatus(*patch.Status)
		if !domain.IsValidStatus(status) {
			return nil, &domain.Error{
				Kind:  domain.ErrInvalidStatus,
				Field: "status",
				Value: *patch.Status,
				Msg:   fmt.Sprintf("%q is not one of %s", *patch.Status, allowedStatuses()),
			}
		}
		updated.Status = status
	}

	if patch.PaymentMethodSet {
		paymentMethod, err := parsePaymentMethod(patch.PaymentMethod)
		if err != nil {
			return nil, err
		}
		updated.PaymentMethod = paymentMethod
	}

	if patch.Note != nil {
		updated.Note = *patch.Note
	}

	if patch.ItemsSet {
		items, err := e.resolveAll(ctx, existing.ID, patch.Items, catalog)
		if err != nil {
			return nil, err
		}
		updated.Items = items
		updated.RecomputeTotal()
	}

	updated.UpdatedAt = e.now()
	return &updated, nil
}

func parsePaymentMethod(raw *string) (*uuid.UUID, error) {
	if raw == nil {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, &domain.Error{Kind: domain.ErrInvalidPaymentMethod, Field: "payment_method", Value: *raw, Msg: "not a valid identifier"}
	}
	return &id, nil
}

func allowedStatuses() string {
	names := make([]string, len(domain.AllStatuses))
	for i, s := range domain.AllStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
