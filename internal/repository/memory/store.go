// Package memory is an in-process order store with the same transactional
// guarantees as the PostgreSQL store: staged writes become visible only on
// commit, and an order read for update stays locked until its unit of work ends.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"shop_orders/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Store struct {
	mu       sync.RWMutex
	orders   map[uuid.UUID]domain.Order
	items    map[uuid.UUID][]domain.OrderItem
	products map[uuid.UUID]domain.Product

	locksMu sync.Mutex
	locks   map[uuid.UUID]*orderLock

	log *logrus.Logger
}

var _ domain.OrderRepository = (*Store)(nil)

func NewStore(logger *logrus.Logger) *Store {
	return &Store{
		orders:   make(map[uuid.UUID]domain.Order),
		items:    make(map[uuid.UUID][]domain.OrderItem),
		products: make(map[uuid.UUID]domain.Product),
		locks:    make(map[uuid.UUID]*orderLock),
		log:      logger,
	}
}

// PutProduct adds or replaces a catalog product.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// LoadProducts seeds the catalog from a JSON array of products.
func (s *Store) LoadProducts(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog file: %w", err)
	}
	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return 0, fmt.Errorf("decode catalog file %s: %w", path, err)
	}
	for i, p := range products {
		if p.Price.IsNegative() || p.Price.GreaterThan(domain.MaxPrice) || !p.Price.Equal(p.Price.Truncate(domain.PriceScale)) {
			return 0, fmt.Errorf("catalog file %s: product %d (%s): price %s out of range", path, i+1, p.ID, p.Price)
		}
	}
	for _, p := range products {
		s.PutProduct(p)
	}
	s.log.Infof("Repository: Loaded %d catalog products from %s", len(products), path)
	return len(products), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) FindActiveProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok || !p.IsActive {
		return nil, nil
	}
	return &p, nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	order = cloneOrder(order)
	order.Items = cloneItems(s.items[id])
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter, limit, offset int) ([]domain.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Order, 0, len(s.orders))
	for id, order := range s.orders {
		if filter.Status != "" && string(order.Status) != filter.Status {
			continue
		}
		if filter.PaymentMethod != nil && (order.PaymentMethod == nil || *order.PaymentMethod != *filter.PaymentMethod) {
			continue
		}
		order = cloneOrder(order)
		order.Items = cloneItems(s.items[id])
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset < 0 || offset >= total {
		return []domain.Order{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, store domain.OrderStore) error) (err error) {
	t := &tx{
		s:       s,
		created: make(map[uuid.UUID]domain.Order),
		updated: make(map[uuid.UUID]domain.Order),
		items:   make(map[uuid.UUID][]domain.OrderItem),
		held:    make(map[uuid.UUID]*orderLock),
	}
	defer t.release()

	defer func() {
		if p := recover(); p != nil {
			s.log.Error("Repository: Recovered from panic, discarding staged writes")
			panic(p)
		}
	}()

	if err = fn(ctx, t); err != nil {
		s.log.Warnf("Repository: Rolling back transaction due to error: %v", err)
		return err
	}
	if err = ctx.Err(); err != nil {
		s.log.Warnf("Repository: Context done before commit, rolling back: %v", err)
		return err
	}
	t.commit()
	return nil
}

// orderLock is a per-order mutex. refs counts the transactions holding or
// waiting for it; the entry is dropped when it reaches zero.
type orderLock struct {
	mu   sync.Mutex
	refs int
}

func (s *Store) acquire(id uuid.UUID) *orderLock {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &orderLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Store) releaseLock(id uuid.UUID, l *orderLock) {
	l.mu.Unlock()

	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, id)
	}
}

func (s *Store) lockCount() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

type tx struct {
	s       *Store
	created map[uuid.UUID]domain.Order
	updated map[uuid.UUID]domain.Order
	items   map[uuid.UUID][]domain.OrderItem
	held    map[uuid.UUID]*orderLock
}

func (t *tx) FindActiveProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return t.s.FindActiveProduct(ctx, id)
}

// order returns the order as this transaction sees it.
func (t *tx) order(id uuid.UUID) (domain.Order, bool) {
	if o, ok := t.updated[id]; ok {
		return o, true
	}
	if o, ok := t.created[id]; ok {
		return o, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	o, ok := t.s.orders[id]
	return o, ok
}

func (t *tx) orderItems(id uuid.UUID) []domain.OrderItem {
	if items, ok := t.items[id]; ok {
		return items
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.items[id]
}

func (t *tx) InsertOrder(ctx context.Context, order *domain.Order) error {
	if _, exists := t.order(order.ID); exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	t.created[order.ID] = cloneOrder(*order)
	return nil
}

func (t *tx) InsertItems(ctx context.Context, orderID uuid.UUID, items []domain.OrderItem) error {
	if _, exists := t.order(orderID); !exists {
		return fmt.Errorf("insert items: order %s does not exist", orderID)
	}
	merged := cloneItems(t.orderItems(orderID))
	for _, item := range items {
		if item.Quantity < 1 {
			return fmt.Errorf("insert items: quantity %d violates minimum 1", item.Quantity)
		}
		item.OrderID = orderID
		merged = append(merged, item)
	}
	t.items[orderID] = merged
	return nil
}

func (t *tx) DeleteItems(ctx context.Context, orderID uuid.UUID) error {
	t.items[orderID] = []domain.OrderItem{}
	return nil
}

func (t *tx) UpdateOrder(ctx context.Context, order *domain.Order) error {
	if _, exists := t.order(order.ID); !exists {
		return domain.ErrOrderNotFound
	}
	t.updated[order.ID] = cloneOrder(*order)
	return nil
}

func (t *tx) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if _, held := t.held[id]; !held {
		t.held[id] = t.s.acquire(id)
	}
	order, ok := t.order(id)
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	order = cloneOrder(order)
	order.Items = cloneItems(t.orderItems(id))
	return &order, nil
}

func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, o := range t.created {
		t.s.orders[id] = o
	}
	for id, o := range t.updated {
		t.s.orders[id] = o
	}
	for id, items := range t.items {
		t.s.items[id] = items
	}
}

func (t *tx) release() {
	for id, l := range t.held {
		t.s.releaseLock(id, l)
	}
}

func cloneItems(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, len(items))
	copy(out, items)
	return out
}

// cloneOrder copies o without its items and without sharing the payment method pointer.
func cloneOrder(o domain.Order) domain.Order {
	o.Items = nil
	if o.PaymentMethod != nil {
		pm := *o.PaymentMethod
		o.PaymentMethod = &pm
	}
	return o
}
