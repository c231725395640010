package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderflow/reconciler/internal/catalog/application"
	"github.com/orderflow/reconciler/internal/catalog/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := r.pool.QueryRow(ctx, `SELECT id, name, price, stand_in, created_at, updated_at FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.StandIn, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, application.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (r *Repository) GetVariant(ctx context.Context, productID, variantID string) (domain.Variant, error) {
	var v domain.Variant
	err := r.pool.QueryRow(ctx, `SELECT id, product_id, name, price FROM product_variants WHERE id=$1 AND product_id=$2`, variantID, productID).
		Scan(&v.ID, &v.ProductID, &v.Name, &v.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Variant{}, application.ErrNotFound
	}
	if err != nil {
		return domain.Variant{}, err
	}
	return v, nil
}

func (r *Repository) Create(ctx context.Context, p domain.Product) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (id, name, price, stand_in, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, p.Price, p.StandIn, p.CreatedAt, p.UpdatedAt)
	return err
}
