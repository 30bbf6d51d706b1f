package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop_orders/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type productRepository struct {
	q   queryer
	log *logrus.Logger
}

func newProductRepository(q queryer, logger *logrus.Logger) *productRepository {
	return &productRepository{q: q, log: logger}
}

func (r *productRepository) FindActiveProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `
        SELECT id, name, price, is_active
        FROM products
        WHERE id = $1 AND is_active`
	product := &domain.Product{}
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Warnf("Repository: Product with ID %s not found or inactive", id)
			return nil, nil
		}
		r.log.Errorf("Repository: Failed to get product by ID %s: %v", id, err)
		return nil, fmt.Errorf("could not get product by id: %w", err)
	}

	r.log.Debugf("Repository: Product %s resolved at price %s", id, product.Price)
	return product, nil
}
