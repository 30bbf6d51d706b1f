package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"

	"shop_orders/internal/domain"
	"shop_orders/internal/metrics"
	"shop_orders/internal/workflow"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type OrderUseCase interface {
	CreateOrder(ctx context.Context, principal domain.Principal, payload domain.CreateOrderPayload) (*domain.Order, error)
	UpdateOrder(ctx context.Context, principal domain.Principal, id string, patch domain.OrderPatch) (*domain.Order, error)
	GetOrder(ctx context.Context, principal domain.Principal, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, principal domain.Principal, query domain.ListQuery) (*domain.Page, error)
}

var _ OrderUseCase = (*orderUseCase)(nil)

type orderUseCase struct {
	repo        domain.OrderRepository
	engine      *workflow.Engine
	metrics     *metrics.Metrics
	maxPageSize int
	log         *logrus.Logger
}

func NewOrderUseCase(repo domain.OrderRepository, engine *workflow.Engine, m *metrics.Metrics, maxPageSize int, logger *logrus.Logger) OrderUseCase {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &orderUseCase{
		repo:        repo,
		engine:      engine,
		metrics:     m,
		maxPageSize: maxPageSize,
		log:         logger,
	}
}

func (uc *orderUseCase) CreateOrder(ctx context.Context, principal domain.Principal, payload domain.CreateOrderPayload) (*domain.Order, error) {
	if !principal.Authenticated {
		return nil, domain.ErrUnauthorized
	}
	uc.log.Infof("Use Case: Creating order for user %s with %d items", principal.UserID, len(payload.Items))

	var created *domain.Order
	err := uc.repo.WithinTx(ctx, func(ctx context.Context, store domain.OrderStore) error {
		order, err := uc.engine.BuildOrder(ctx, principal.UserID, payload, store)
		if err != nil {
			return err
		}
		if err := store.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := store.InsertItems(ctx, order.ID, order.Items); err != nil {
			return fmt.Errorf("insert items of order %s: %w", order.ID, err)
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, uc.fail("create", err)
	}

	uc.metrics.OrdersCreated.Inc()
	uc.log.Infof("Use Case: Order %s created for user %s, total %s", created.ID, created.Owner, created.TotalAmount.StringFixed(2))
	return created, nil
}

func (uc *orderUseCase) UpdateOrder(ctx context.Context, principal domain.Principal, id string, patch domain.OrderPatch) (*domain.Order, error) {
	if !principal.Authenticated {
		return nil, domain.ErrUnauthorized
	}
	orderID, err := uuid.Parse(id)
	if err != nil {
		return nil, uc.fail("update", domain.ErrOrderNotFound)
	}
	uc.log.Infof("Use Case: User %s updating order %s", principal.UserID, orderID)

	var updated *domain.Order
	err = uc.repo.WithinTx(ctx, func(ctx context.Context, store domain.OrderStore) error {
		current, err := store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		order, err := uc.engine.ApplyUpdate(ctx, current, patch, store)
		if err != nil {
			return err
		}
		if patch.ItemsSet {
			if err := store.DeleteItems(ctx, orderID); err != nil {
				return fmt.Errorf("delete items of order %s: %w", orderID, err)
			}
			if err := store.InsertItems(ctx, orderID, order.Items); err != nil {
				return fmt.Errorf("insert items of order %s: %w", orderID, err)
			}
		}
		if err := store.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("update order %s: %w", orderID, err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, uc.fail("update", err)
	}

	uc.metrics.OrdersUpdated.Inc()
	uc.log.Infof("Use Case: Order %s updated, status %s, total %s", updated.ID, updated.Status, updated.TotalAmount.StringFixed(2))
	return updated, nil
}

func (uc *orderUseCase) GetOrder(ctx context.Context, principal domain.Principal, id string) (*domain.Order, error) {
	if !principal.Authenticated {
		return nil, domain.ErrUnauthorized
	}
	orderID, err := uuid.Parse(id)
	if err != nil {
		uc.log.Warnf("Use Case: Malformed order id %q", id)
		return nil, domain.ErrOrderNotFound
	}
	order, err := uc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, uc.fail("get", err)
	}
	return order, nil
}

func (uc *orderUseCase) ListOrders(ctx context.Context, principal domain.Principal, query domain.ListQuery) (*domain.Page, error) {
	if !principal.Authenticated {
		return nil, domain.ErrUnauthorized
	}
	if query.Page < 1 {
		return nil, &domain.Error{Kind: domain.ErrInvalidPagination, Field: "page", Value: fmt.Sprint(query.Page), Msg: "must be at least 1"}
	}
	if query.Limit < 1 {
		return nil, &domain.Error{Kind: domain.ErrInvalidPagination, Field: "limit", Value: fmt.Sprint(query.Limit), Msg: "must be positive"}
	}
	limit := query.Limit
	if limit > uc.maxPageSize {
		limit = uc.maxPageSize
	}

	page := &domain.Page{CurrentPage: query.Page, Data: []domain.Order{}}
	filter := domain.OrderFilter{Status: query.Status}
	if query.PaymentMethod != "" {
		pm, err := uuid.Parse(query.PaymentMethod)
		if err != nil {
			// No order can reference a malformed payment method.
			uc.log.Infof("Use Case: Malformed payment_method filter %q, returning empty page", query.PaymentMethod)
			return page, nil
		}
		filter.PaymentMethod = &pm
	}

	// A page whose offset does not fit in an int is past the end of any listing.
	offset := -1
	if query.Page-1 <= math.MaxInt/limit {
		offset = (query.Page - 1) * limit
	}
	orders, total, err := uc.repo.ListOrders(ctx, filter, limit, offset)
	if err != nil {
		return nil, uc.fail("list", err)
	}

	page.TotalItem = total
	page.TotalPage = (total + limit - 1) / limit
	if orders != nil {
		page.Data = orders
	}
	uc.log.Infof("Use Case: Listed %d of %d orders (page %d/%d)", len(page.Data), total, page.CurrentPage, page.TotalPage)
	return page, nil
}

// fail logs err, counts it and tags storage faults as ErrInternal so the
// cause never reaches the client.
func (uc *orderUseCase) fail(operation string, err error) error {
	kind := domain.Kind(err)
	uc.metrics.Failure(operation, kind)

	switch {
	case domain.IsClientError(err), errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrUnauthorized):
		uc.log.Warnf("Use Case: %s rejected: %v", operation, err)
		return err
	default:
		uc.log.Errorf("Use Case: %s failed, transaction rolled back: %v", operation, err)
		return fmt.Errorf("%w: %s: %w", domain.ErrInternal, operation, err)
	}
}
