package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orderflow/reconciler/internal/order/domain"
)

type Service struct {
	log       *slog.Logger
	orders    OrderRepository
	addresses AddressRepository
}

func NewService(log *slog.Logger, orders OrderRepository, addresses AddressRepository) *Service {
	return &Service{log: log, orders: orders, addresses: addresses}
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.orders.ListForUser(ctx, userID)
}

// GetOrder scopes the lookup by the authenticated user; an order owned by
// someone else is indistinguishable from a missing one.
func (s *Service) GetOrder(ctx context.Context, id, userID string) (domain.Order, error) {
	return s.orders.GetForUser(ctx, id, userID)
}

func (s *Service) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	return s.addresses.ListForUser(ctx, userID)
}

func (s *Service) CreateAddress(ctx context.Context, a domain.Address) (domain.Address, error) {
	if err := validateAddress(a); err != nil {
		return domain.Address{}, err
	}
	now := time.Now().UTC()
	a.ID = uuid.NewString()
	a.CreatedAt = now
	a.UpdatedAt = now
	if err := s.addresses.Create(ctx, a); err != nil {
		return domain.Address{}, err
	}
	return a, nil
}

func (s *Service) UpdateAddress(ctx context.Context, a domain.Address) (domain.Address, error) {
	if err := validateAddress(a); err != nil {
		return domain.Address{}, err
	}
	existing, err := s.addresses.GetForUser(ctx, a.ID, a.UserID)
	if err != nil {
		return domain.Address{}, err
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	if err := s.addresses.Update(ctx, a); err != nil {
		return domain.Address{}, err
	}
	if a.IsDefault && !existing.IsDefault {
		if err := s.addresses.SetDefault(ctx, a.UserID, a.ID); err != nil {
			return domain.Address{}, err
		}
	}
	return a, nil
}

func (s *Service) DeleteAddress(ctx context.Context, id, userID string) error {
	return s.addresses.Delete(ctx, id, userID)
}

func (s *Service) SetDefaultAddress(ctx context.Context, userID, id string) error {
	return s.addresses.SetDefault(ctx, userID, id)
}

func validateAddress(a domain.Address) error {
	for _, f := range []string{a.FullName, a.Street, a.City, a.PostalCode, a.Country} {
		if strings.TrimSpace(f) == "" {
			return ErrValidation
		}
	}
	return nil
}

// Identity resolves the caller to a store user, provisioning one when the
// checkout arrives from someone without an account.
type Identity struct {
	log   *slog.Logger
	users UserRepository
}

func NewIdentity(log *slog.Logger, users UserRepository) *Identity {
	return &Identity{log: log, users: users}
}

// Resolve looks up by auth subject first, then by email, and finally creates
// a new user. A user found by email with no subject gets the subject
// attached so the next lookup takes the fast path.
func (i *Identity) Resolve(ctx context.Context, subject, email, name string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.User{}, ErrValidation
	}

	if subject != "" {
		u, err := i.users.ByAuthSubject(ctx, subject)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return domain.User{}, err
		}
	}

	u, err := i.users.ByEmail(ctx, email)
	if err == nil {
		if subject != "" && u.AuthSubject == nil {
			if err := i.users.AttachAuthSubject(ctx, u.ID, subject); err != nil {
				i.log.Warn("attach auth subject failed", "user_id", u.ID, "err", err)
			} else {
				u.AuthSubject = &subject
			}
		}
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	u = domain.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if subject != "" {
		u.AuthSubject = &subject
	}
	if err := i.users.Create(ctx, u); err != nil {
		return domain.User{}, err
	}
	i.log.Info("provisioned user during checkout", "user_id", u.ID)
	return u, nil
}
