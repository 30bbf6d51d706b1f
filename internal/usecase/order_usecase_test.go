package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"testing"

	"shop_orders/internal/domain"
	"shop_orders/internal/metrics"
	"shop_orders/internal/repository/memory"
	"shop_orders/internal/workflow"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyRepo fails the named store operation inside every unit of work.
type faultyRepo struct {
	*memory.Store
	failOn string
}

type faultyStore struct {
	domain.OrderStore
	failOn string
}

var errDiskFull = errors.New("disk full")

func (r *faultyRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, store domain.OrderStore) error) error {
	return r.Store.WithinTx(ctx, func(ctx context.Context, store domain.OrderStore) error {
		return fn(ctx, &faultyStore{OrderStore: store, failOn: r.failOn})
	})
}

func (s *faultyStore) InsertItems(ctx context.Context, orderID uuid.UUID, items []domain.OrderItem) error {
	if s.failOn == "InsertItems" {
		return errDiskFull
	}
	return s.OrderStore.InsertItems(ctx, orderID, items)
}

func (s *faultyStore) UpdateOrder(ctx context.Context, order *domain.Order) error {
	if s.failOn == "UpdateOrder" {
		return errDiskFull
	}
	return s.OrderStore.UpdateOrder(ctx, order)
}

type fixture struct {
	store   *memory.Store
	uc      OrderUseCase
	metrics *metrics.Metrics
	p1      domain.Product
	p2      domain.Product
	off     domain.Product
	user    domain.Principal
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.NewStore(quietLogger()),
		metrics: metrics.New(prometheus.NewRegistry()),
		p1:      domain.Product{ID: uuid.New(), Name: "tea", Price: decimal.RequireFromString("15.00"), IsActive: true},
		p2:      domain.Product{ID: uuid.New(), Name: "cup", Price: decimal.RequireFromString("4.25"), IsActive: true},
		off:     domain.Product{ID: uuid.New(), Name: "discontinued", Price: decimal.RequireFromString("1.00")},
		user:    domain.Principal{UserID: uuid.New(), Authenticated: true},
	}
	f.store.PutProduct(f.p1)
	f.store.PutProduct(f.p2)
	f.store.PutProduct(f.off)
	f.uc = NewOrderUseCase(f.store, workflow.NewEngine(), f.metrics, 100, quietLogger())
	return f
}

func (f *fixture) withRepo(repo domain.OrderRepository) OrderUseCase {
	return NewOrderUseCase(repo, workflow.NewEngine(), f.metrics, 100, quietLogger())
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func line(p domain.Product, qty int, price string) domain.LineItemRequest {
	req := domain.LineItemRequest{ProductID: strPtr(p.ID.String()), Quantity: intPtr(qty)}
	if price != "" {
		req.Price = decPtr(price)
	}
	return req
}

func (f *fixture) countOrders(t *testing.T) int {
	t.Helper()
	_, total, err := f.store.ListOrders(context.Background(), domain.OrderFilter{}, 100, 0)
	require.NoError(t, err)
	return total
}

func (f *fixture) create(t *testing.T, items ...domain.LineItemRequest) *domain.Order {
	t.Helper()
	order, err := f.uc.CreateOrder(context.Background(), f.user, domain.CreateOrderPayload{Items: items})
	require.NoError(t, err)
	return order
}

func TestCreateOrderPriceFallback(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, line(f.p1, 2, "0"))

	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, f.user.UserID, order.Owner)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "15.00", order.Items[0].Price.StringFixed(2))
	assert.Equal(t, "30.00", order.TotalAmount.StringFixed(2))

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "30.00", stored.TotalAmount.StringFixed(2))
	assert.Len(t, stored.Items, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersCreated))
}

func TestCreateOrderPriceOverride(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, line(f.p1, 1, "9.99"))
	assert.Equal(t, "9.99", order.Items[0].Price.StringFixed(2))
	assert.Equal(t, "9.99", order.TotalAmount.StringFixed(2))
}

func TestCreateOrderTotalIsExactSum(t *testing.T) {
	f := newFixture(t)
	order := f.create(t,
		line(f.p1, 3, ""),
		line(f.p2, 7, "0.10"),
		line(f.p2, 1, ""),
		line(f.p1, 11, "0.01"),
	)
	want := decimal.Zero
	for _, item := range order.Items {
		want = want.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	assert.True(t, want.Equal(order.TotalAmount))
	assert.Equal(t, "50.06", order.TotalAmount.StringFixed(2))
}

func TestCreateOrderWithPaymentMethodAndNote(t *testing.T) {
	f := newFixture(t)
	pm := uuid.New()
	order, err := f.uc.CreateOrder(context.Background(), f.user, domain.CreateOrderPayload{
		PaymentMethod: strPtr(pm.String()),
		Note:          "gift wrap",
		Items:         []domain.LineItemRequest{line(f.p2, 1, "")},
	})
	require.NoError(t, err)
	assert.Equal(t, pm, *order.PaymentMethod)
	assert.Equal(t, "gift wrap", order.Note)
}

func TestCreateOrderFailuresPersistNothing(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name  string
		items []domain.LineItemRequest
		want  error
	}{
		{"empty", nil, domain.ErrEmptyOrder},
		{"unknown product", []domain.LineItemRequest{line(f.p1, 1, ""), {ProductID: strPtr(uuid.NewString())}}, domain.ErrProductNotFound},
		{"inactive product", []domain.LineItemRequest{line(f.off, 1, "")}, domain.ErrProductNotFound},
		{"missing product id", []domain.LineItemRequest{line(f.p1, 1, ""), {Quantity: intPtr(2)}}, domain.ErrMissingProductID},
		{"sub-cent price", []domain.LineItemRequest{line(f.p1, 3, "0.005")}, domain.ErrInvalidPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.uc.CreateOrder(context.Background(), f.user, domain.CreateOrderPayload{Items: tc.items})
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, f.countOrders(t))
		})
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.OrderFailures.WithLabelValues("create", "product_not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrderFailures.WithLabelValues("create", "invalid_price")))
}

func TestCreateOrderStorageFaultRollsBack(t *testing.T) {
	f := newFixture(t)
	uc := f.withRepo(&faultyRepo{Store: f.store, failOn: "InsertItems"})

	_, err := uc.CreateOrder(context.Background(), f.user, domain.CreateOrderPayload{
		Items: []domain.LineItemRequest{line(f.p1, 1, "")},
	})
	require.ErrorIs(t, err, domain.ErrInternal)
	assert.ErrorIs(t, err, errDiskFull)
	assert.False(t, domain.IsClientError(err))
	assert.Zero(t, f.countOrders(t))
}

func TestCreateOrderRequiresPrincipal(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.CreateOrder(context.Background(), domain.Principal{}, domain.CreateOrderPayload{
		Items: []domain.LineItemRequest{line(f.p1, 1, "")},
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Zero(t, f.countOrders(t))
}

func TestUpdateOrderReplacesItems(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, line(f.p1, 2, ""), line(f.p2, 1, ""))
	oldIDs := []uuid.UUID{order.Items[0].ID, order.Items[1].ID}

	updated, err := f.uc.UpdateOrder(context.Background(), f.user, order.ID.String(), domain.OrderPatch{
		ItemsSet: true,
		Items:    []domain.LineItemRequest{line(f.p2, 4, "")},
	})
	require.NoError(t, err)
	assert.Equal(t, "17.00", updated.TotalAmount.StringFixed(2))

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, f.p2.ID, stored.Items[0].ProductID)
	assert.NotContains(t, oldIDs, stored.Items[0].ID)
	assert.Equal(t, "17.00", stored.TotalAmount.StringFixed(2))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OrdersUpdated))
}

func TestUpdateOrderWithoutItemsKeepsItems(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, line(f.p1, 2, ""))
	pm := uuid.New()

	updated, err := f.uc.UpdateOrder(context.Background(), f.user, order.ID.String(), domain.OrderPatch{
		Status:           strPtr("paid"),
		PaymentMethodSet: true,
		PaymentMethod:    strPtr(pm.String()),
		Note:             strPtr("ring twice"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, updated.Status)

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, stored.Status)
	assert.Equal(t, "ring twice", stored.Note)
	assert.Equal(t, pm, *stored.PaymentMethod)
	assert.Equal(t, order.Items, stored.Items)
	assert.True(t, order.TotalAmount.Equal(stored.TotalAmount))
}

func TestUpdateOrderRejectionsLeaveOrderUnchanged(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, line(f.p1, 2, ""))
	before, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)

	cases := []struct {
		name  string
		patch domain.OrderPatch
		want  error
	}{
		{"owner", domain.OrderPatch{OwnerSet: true, Note: strPtr("x")}, domain.ErrImmutableField},
		{"status", domain.OrderPatch{Status: strPtr("returned"), Note: strPtr("x")}, domain.ErrInvalidStatus},
		{"payment method", domain.OrderPatch{PaymentMethodSet: true, PaymentMethod: strPtr("visa")}, domain.ErrInvalidPaymentMethod},
		{"bad item", domain.OrderPatch{Status: strPtr("paid"), ItemsSet: true, Items: []domain.LineItemRequest{line(f.p2, 1, ""), line(f.off, 1, "")}}, domain.ErrProductNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.uc.UpdateOrder(context.Background(), f.user, order.ID.String(), tc.patch)
			assert.ErrorIs(t, err, tc.want)

			after, err := f.store.GetOrder(context.Background(), order.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestUpdateOrderStorageFaultRollsBack(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, line(f.p1, 2, ""))
	before, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)

	uc := f.withRepo(&faultyRepo{Store: f.store, failOn: "UpdateOrder"})
	_, err = uc.UpdateOrder(context.Background(), f.user, order.ID.String(), domain.OrderPatch{
		Status:   strPtr("shipped"),
		ItemsSet: true,
		Items:    []domain.LineItemRequest{line(f.p2, 9, "")},
	})
	require.ErrorIs(t, err, domain.ErrInternal)

	after, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateOrderNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.UpdateOrder(context.Background(), f.user, uuid.NewString(), domain.OrderPatch{Status: strPtr("paid")})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = f.uc.UpdateOrder(context.Background(), f.user, "42", domain.OrderPatch{Status: strPtr("paid")})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestGetOrder(t *testing.T) {
	f := newFixture(t)
	order := f.create(t, line(f.p1, 1, ""))

	got, err := f.uc.GetOrder(context.Background(), f.user, order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Len(t, got.Items, 1)

	_, err = f.uc.GetOrder(context.Background(), f.user, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = f.uc.GetOrder(context.Background(), f.user, "not-an-id")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestListOrdersPageBeyondLast(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 12; i++ {
		f.create(t, line(f.p1, 1, ""))
	}

	page, err := f.uc.ListOrders(context.Background(), f.user, domain.ListQuery{Page: 5, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 5, page.CurrentPage)
	assert.Equal(t, 2, page.TotalPage)
	assert.Equal(t, 12, page.TotalItem)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)

	page, err = f.uc.ListOrders(context.Background(), f.user, domain.ListQuery{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
}

func TestListOrdersHugePage(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.create(t, line(f.p1, 1, ""))
	}

	for _, q := range []domain.ListQuery{
		{Page: math.MaxInt64 / 5, Limit: 10},
		{Page: math.MaxInt, Limit: 1},
		{Page: math.MaxInt, Limit: 1000},
	} {
		page, err := f.uc.ListOrders(context.Background(), f.user, q)
		require.NoError(t, err, "page %d limit %d", q.Page, q.Limit)
		assert.Equal(t, q.Page, page.CurrentPage)
		assert.Equal(t, 3, page.TotalItem)
		assert.NotNil(t, page.Data)
		assert.Empty(t, page.Data)
	}
}

func TestListOrdersFilters(t *testing.T) {
	f := newFixture(t)
	pm := uuid.New()
	paid := f.create(t, line(f.p1, 1, ""))
	_, err := f.uc.UpdateOrder(context.Background(), f.user, paid.ID.String(), domain.OrderPatch{
		Status: strPtr("paid"), PaymentMethodSet: true, PaymentMethod: strPtr(pm.String()),
	})
	require.NoError(t, err)
	f.create(t, line(f.p2, 1, ""))

	page, err := f.uc.ListOrders(context.Background(), f.user, domain.ListQuery{Status: "paid", Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, paid.ID, page.Data[0].ID)

	page, err = f.uc.ListOrders(context.Background(), f.user, domain.ListQuery{PaymentMethod: pm.String(), Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalItem)

	page, err = f.uc.ListOrders(context.Background(), f.user, domain.ListQuery{PaymentMethod: "cash", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, page.TotalItem)
	assert.Zero(t, page.TotalPage)
	assert.Empty(t, page.Data)
}

func TestListOrdersInvalidPagination(t *testing.T) {
	f := newFixture(t)
	for _, q := range []domain.ListQuery{{Page: 0, Limit: 10}, {Page: 1, Limit: 0}, {Page: -1, Limit: -1}} {
		_, err := f.uc.ListOrders(context.Background(), f.user, q)
		assert.ErrorIs(t, err, domain.ErrInvalidPagination, fmt.Sprint(q))
	}
}

func TestListOrdersCapsLimit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.create(t, line(f.p1, 1, ""))
	}
	uc := NewOrderUseCase(f.store, workflow.NewEngine(), f.metrics, 2, quietLogger())
	page, err := uc.ListOrders(context.Background(), f.user, domain.ListQuery{Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 2, page.TotalPage)
}
