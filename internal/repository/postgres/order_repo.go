package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shop_orders/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type postgresOrderRepository struct {
	db  *sql.DB
	log *logrus.Logger
}

func NewPostgresOrderRepository(db *sql.DB, logger *logrus.Logger) domain.OrderRepository {
	return &postgresOrderRepository{
		db:  db,
		log: logger,
	}
}

func (r *postgresOrderRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *postgresOrderRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, store domain.OrderStore) error) (err error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		r.log.Errorf("Repository: Failed to begin transaction: %v", err)
		return fmt.Errorf("could not start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Repository: Recovered from panic, rolling back transaction")
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			r.log.Warnf("Repository: Rolling back transaction due to error: %v", err)
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.log.Errorf("Repository: Failed to rollback transaction: %v", rbErr)
			}
		} else {
			if cErr := tx.Commit(); cErr != nil {
				r.log.Errorf("Repository: Failed to commit transaction: %v", cErr)
				err = fmt.Errorf("failed to commit transaction: %w", cErr)
			}
		}
	}()

	err = fn(ctx, &txStore{tx: tx, catalog: newProductRepository(tx, r.log), log: r.log})
	return err
}

func (r *postgresOrderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := getOrder(ctx, r.db, id, false, r.log)
	if err != nil {
		return nil, err
	}
	r.log.Infof("Repository: Order %s retrieved with %d items.", order.ID, len(order.Items))
	return order, nil
}

func (r *postgresOrderRepository) ListOrders(ctx context.Context, filter domain.OrderFilter, limit, offset int) ([]domain.Order, int, error) {
	where, args := filterClause(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM orders` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		r.log.Errorf("Repository: Failed to count orders: %v", err)
		return nil, 0, fmt.Errorf("could not count orders: %w", err)
	}
	if offset < 0 || offset >= total {
		return []domain.Order{}, total, nil
	}

	ordersQuery := fmt.Sprintf(`
        SELECT id, owner_id, payment_method_id, status, total_amount, note, created_at, updated_at
        FROM orders%s
        ORDER BY created_at DESC, id DESC
        LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, ordersQuery, append(args, limit, offset)...)
	if err != nil {
		r.log.Errorf("Repository: Failed to list orders (limit %d, offset %d): %v", limit, offset, err)
		return nil, 0, fmt.Errorf("could not retrieve orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	orderIDs := []string{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			r.log.Errorf("Repository: Failed to scan order row: %v", err)
			return nil, 0, fmt.Errorf("error scanning order data: %w", err)
		}
		orders = append(orders, *order)
		orderIDs = append(orderIDs, order.ID.String())
	}
	if err = rows.Err(); err != nil {
		r.log.Errorf("Repository: Error during orders iteration: %v", err)
		return nil, 0, fmt.Errorf("error iterating orders: %w", err)
	}

	itemsQuery := `
        SELECT id, order_id, product_id, quantity, price
        FROM order_items
        WHERE order_id = ANY($1::uuid[])
        ORDER BY order_id, position`
	itemRows, err := r.db.QueryContext(ctx, itemsQuery, pq.Array(orderIDs))
	if err != nil {
		r.log.Errorf("Repository: Failed to query items for %d orders: %v", len(orderIDs), err)
		return nil, 0, fmt.Errorf("could not retrieve order items for list: %w", err)
	}
	defer itemRows.Close()

	itemsMap := make(map[uuid.UUID][]domain.OrderItem)
	for itemRows.Next() {
		var item domain.OrderItem
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			r.log.Errorf("Repository: Failed to scan order item row during multi-order fetch: %v", err)
			return nil, 0, fmt.Errorf("error scanning order item data for list: %w", err)
		}
		itemsMap[item.OrderID] = append(itemsMap[item.OrderID], item)
	}
	if err = itemRows.Err(); err != nil {
		r.log.Errorf("Repository: Error during multi-order items iteration: %v", err)
		return nil, 0, fmt.Errorf("error iterating order items for list: %w", err)
	}

	for i := range orders {
		if items, ok := itemsMap[orders[i].ID]; ok {
			orders[i].Items = items
		} else {
			orders[i].Items = []domain.OrderItem{}
		}
	}

	r.log.Infof("Repository: Retrieved %d of %d orders (limit %d, offset %d)", len(orders), total, limit, offset)
	return orders, total, nil
}

func filterClause(filter domain.OrderFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PaymentMethod != nil {
		args = append(args, *filter.PaymentMethod)
		conds = append(conds, fmt.Sprintf("payment_method_id = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var paymentMethod uuid.NullUUID
	var status string
	if err := row.Scan(
		&order.ID,
		&order.Owner,
		&paymentMethod,
		&status,
		&order.TotalAmount,
		&order.Note,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	order.Status = domain.OrderStatus(status)
	if paymentMethod.Valid {
		pm := paymentMethod.UUID
		order.PaymentMethod = &pm
	}
	return order, nil
}

func getOrder(ctx context.Context, q queryer, id uuid.UUID, forUpdate bool, log *logrus.Logger) (*domain.Order, error) {
	orderQuery := `
        SELECT id, owner_id, payment_method_id, status, total_amount, note, created_at, updated_at
        FROM orders
        WHERE id = $1`
	if forUpdate {
		orderQuery += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRowContext(ctx, orderQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warnf("Repository: Order with ID %s not found", id)
			return nil, domain.ErrOrderNotFound
		}
		log.Errorf("Repository: Failed to get order by ID %s: %v", id, err)
		return nil, fmt.Errorf("could not retrieve order: %w", err)
	}

	items, err := getOrderItems(ctx, q, id, log)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func getOrderItems(ctx context.Context, q queryer, orderID uuid.UUID, log *logrus.Logger) ([]domain.OrderItem, error) {
	itemsQuery := `
        SELECT id, order_id, product_id, quantity, price
        FROM order_items
        WHERE order_id = $1
        ORDER BY position`
	rows, err := q.QueryContext(ctx, itemsQuery, orderID)
	if err != nil {
		log.Errorf("Repository: Failed to query order items for order ID %s: %v", orderID, err)
		return nil, fmt.Errorf("could not retrieve order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			log.Errorf("Repository: Failed to scan order item row for order ID %s: %v", orderID, err)
			return nil, fmt.Errorf("error scanning order item: %w", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		log.Errorf("Repository: Error during order items iteration for order ID %s: %v", orderID, err)
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	log.Debugf("Repository: Retrieved %d items for order ID %s", len(items), orderID)
	return items, nil
}

// txStore is the OrderStore bound to one sql.Tx.
type txStore struct {
	tx      *sql.Tx
	catalog *productRepository
	log     *logrus.Logger
}

func (s *txStore) FindActiveProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.catalog.FindActiveProduct(ctx, id)
}

func (s *txStore) InsertOrder(ctx context.Context, order *domain.Order) error {
	query := `
        INSERT INTO orders (id, owner_id, payment_method_id, status, total_amount, note, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.tx.ExecContext(ctx, query,
		order.ID, order.Owner, nullUUID(order.PaymentMethod), string(order.Status),
		order.TotalAmount, order.Note, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		s.log.Errorf("Repository: Failed to insert order for user %s: %v", order.Owner, err)
		return translate(err, "could not create order entry")
	}
	s.log.Infof("Repository: Order entry created with ID: %s for user: %s", order.ID, order.Owner)
	return nil
}

func (s *txStore) InsertItems(ctx context.Context, orderID uuid.UUID, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	stmt, err := s.tx.PrepareContext(ctx, `
        INSERT INTO order_items (id, order_id, product_id, quantity, price, position)
        VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		s.log.Errorf("Repository: Failed to prepare order item statement: %v", err)
		return fmt.Errorf("could not prepare item statement: %w", err)
	}
	defer stmt.Close()

	for i, item := range items {
		if _, err := stmt.ExecContext(ctx, item.ID, orderID, item.ProductID, item.Quantity, item.Price, i+1); err != nil {
			s.log.Errorf("Repository: Failed to insert order item (product_id: %s, quantity: %d) for order %s: %v", item.ProductID, item.Quantity, orderID, err)
			return translate(err, fmt.Sprintf("could not create order item (product_id: %s)", item.ProductID))
		}
	}
	s.log.Infof("Repository: Inserted %d items for order %s", len(items), orderID)
	return nil
}

func (s *txStore) DeleteItems(ctx context.Context, orderID uuid.UUID) error {
	result, err := s.tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		s.log.Errorf("Repository: Failed to delete items of order %s: %v", orderID, err)
		return fmt.Errorf("could not delete order items: %w", err)
	}
	n, _ := result.RowsAffected()
	s.log.Infof("Repository: Deleted %d items of order %s", n, orderID)
	return nil
}

func (s *txStore) UpdateOrder(ctx context.Context, order *domain.Order) error {
	query := `
        UPDATE orders
        SET payment_method_id = $1, status = $2, total_amount = $3, note = $4, updated_at = $5
        WHERE id = $6`
	result, err := s.tx.ExecContext(ctx, query,
		nullUUID(order.PaymentMethod), string(order.Status), order.TotalAmount, order.Note, order.UpdatedAt, order.ID,
	)
	if err != nil {
		s.log.Errorf("Repository: Failed to update order %s: %v", order.ID, err)
		return translate(err, "could not update order")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not confirm order update: %w", err)
	}
	if rowsAffected == 0 {
		s.log.Warnf("Repository: Order with ID %s not found for update (0 rows affected)", order.ID)
		return domain.ErrOrderNotFound
	}
	s.log.Infof("Repository: Order %s updated to status '%s'", order.ID, order.Status)
	return nil
}

func (s *txStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return getOrder(ctx, s.tx, id, true, s.log)
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
