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

type UserRepository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewUserRepository(log *slog.Logger, pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{log: log, pool: pool}
}

const userColumns = `id, email, name, auth_subject, created_at, updated_at`

func (r *UserRepository) ByAuthSubject(ctx context.Context, subject string) (domain.User, error) {
	return r.getWhere(ctx, `auth_subject=$1`, subject)
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getWhere(ctx, `email=$1`, email)
}

func (r *UserRepository) getWhere(ctx context.Context, where string, args ...any) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...).
		Scan(&u.ID, &u.Email, &u.Name, &u.AuthSubject, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, application.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u domain.User) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Email, u.Name, u.AuthSubject, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *UserRepository) AttachAuthSubject(ctx context.Context, userID, subject string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE users SET auth_subject=$2, updated_at=now() WHERE id=$1 AND auth_subject IS NULL`, userID, subject)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return application.ErrNotFound
	}
	return nil
}
