package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderflow/reconciler/internal/order/application"
	"github.com/orderflow/reconciler/internal/order/domain"
)

type AddressRepository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewAddressRepository(log *slog.Logger, pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{log: log, pool: pool}
}

const addressColumns = `id, user_id, full_name, street, city, state, postal_code, country, is_default, created_at, updated_at`

func (r *AddressRepository) ListForUser(ctx context.Context, userID string) ([]domain.Address, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+addressColumns+` FROM addresses WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Address
	for rows.Next() {
		var a domain.Address
		if err := scanAddress(rows, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AddressRepository) GetForUser(ctx context.Context, id, userID string) (domain.Address, error) {
	var a domain.Address
	row := r.pool.QueryRow(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id=$1 AND user_id=$2`, id, userID)
	err := row.Scan(&a.ID, &a.UserID, &a.FullName, &a.Street, &a.City, &a.State, &a.PostalCode, &a.Country, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Address{}, application.ErrNotFound
	}
	if err != nil {
		return domain.Address{}, err
	}
	return a, nil
}

// Create inserts the address; when it is flagged default, the clear-then-set
// sequence runs in the same transaction so at most one default is ever
// visible per user.
func (r *AddressRepository) Create(ctx context.Context, a domain.Address) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if a.IsDefault {
		if _, err = tx.Exec(ctx, `UPDATE addresses SET is_default=false WHERE user_id=$1`, a.UserID); err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx, `INSERT INTO addresses (`+addressColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.UserID, a.FullName, a.Street, a.City, a.State, a.PostalCode, a.Country, a.IsDefault, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *AddressRepository) Update(ctx context.Context, a domain.Address) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE addresses SET full_name=$3, street=$4, city=$5, state=$6, postal_code=$7, country=$8, updated_at=$9
		WHERE id=$1 AND user_id=$2`,
		a.ID, a.UserID, a.FullName, a.Street, a.City, a.State, a.PostalCode, a.Country, a.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return application.ErrNotFound
	}
	return nil
}

func (r *AddressRepository) Delete(ctx context.Context, id, userID string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM addresses WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return application.ErrNotFound
	}
	return nil
}

func (r *AddressRepository) SetDefault(ctx context.Context, userID, id string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err = tx.Exec(ctx, `UPDATE addresses SET is_default=false WHERE user_id=$1`, userID); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `UPDATE addresses SET is_default=true, updated_at=now() WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return application.ErrNotFound
	}
	return tx.Commit(ctx)
}

func scanAddress(rows pgx.Rows, a *domain.Address) error {
	return rows.Scan(&a.ID, &a.UserID, &a.FullName, &a.Street, &a.City, &a.State, &a.PostalCode, &a.Country, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
}
