package application

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/orderflow/reconciler/internal/order/domain"
)

type fakeUsers struct {
	bySubject map[string]domain.User
	byEmail   map[string]domain.User
	created   []domain.User
	attached  map[string]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		bySubject: map[string]domain.User{},
		byEmail:   map[string]domain.User{},
		attached:  map[string]string{},
	}
}

func (f *fakeUsers) ByAuthSubject(_ context.Context, subject string) (domain.User, error) {
	u, ok := f.bySubject[subject]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) ByEmail(_ context.Context, email string) (domain.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) Create(_ context.Context, u domain.User) error {
	f.created = append(f.created, u)
	f.byEmail[u.Email] = u
	if u.AuthSubject != nil {
		f.bySubject[*u.AuthSubject] = u
	}
	return nil
}

func (f *fakeUsers) AttachAuthSubject(_ context.Context, userID, subject string) error {
	f.attached[userID] = subject
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestIdentityResolveBySubject(t *testing.T) {
	users := newFakeUsers()
	want := domain.User{ID: "u1", Email: "a@example.com"}
	users.bySubject["auth0|123"] = want

	got, err := NewIdentity(discard(), users).Resolve(context.Background(), "auth0|123", "a@example.com", "A")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != "u1" {
		t.Fatalf("resolved %q, want u1", got.ID)
	}
	if len(users.created) != 0 {
		t.Fatal("should not create a user when subject matches")
	}
}

func TestIdentityResolveByEmailAttachesSubject(t *testing.T) {
	users := newFakeUsers()
	users.byEmail["b@example.com"] = domain.User{ID: "u2", Email: "b@example.com"}

	got, err := NewIdentity(discard(), users).Resolve(context.Background(), "auth0|999", "B@Example.com", "B")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != "u2" {
		t.Fatalf("resolved %q, want u2", got.ID)
	}
	if users.attached["u2"] != "auth0|999" {
		t.Fatal("subject not attached to email-matched user")
	}
}

func TestIdentityResolveProvisions(t *testing.T) {
	users := newFakeUsers()

	got, err := NewIdentity(discard(), users).Resolve(context.Background(), "", "new@example.com", "New")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(users.created) != 1 || users.created[0].ID != got.ID {
		t.Fatalf("expected one provisioned user, got %d", len(users.created))
	}
	if got.Email != "new@example.com" {
		t.Fatalf("email = %q", got.Email)
	}
}

func TestIdentityResolveRejectsEmptyEmail(t *testing.T) {
	if _, err := NewIdentity(discard(), newFakeUsers()).Resolve(context.Background(), "", "  ", ""); err != ErrValidation {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

type fakeAddresses struct {
	byUser map[string][]domain.Address
}

func (f *fakeAddresses) ListForUser(_ context.Context, userID string) ([]domain.Address, error) {
	return f.byUser[userID], nil
}

func (f *fakeAddresses) GetForUser(_ context.Context, id, userID string) (domain.Address, error) {
	for _, a := range f.byUser[userID] {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Address{}, ErrNotFound
}

func (f *fakeAddresses) Create(_ context.Context, a domain.Address) error {
	if a.IsDefault {
		f.clearDefaults(a.UserID)
	}
	f.byUser[a.UserID] = append(f.byUser[a.UserID], a)
	return nil
}

func (f *fakeAddresses) Update(_ context.Context, a domain.Address) error {
	list := f.byUser[a.UserID]
	for i := range list {
		if list[i].ID == a.ID {
			list[i] = a
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeAddresses) Delete(_ context.Context, id, userID string) error {
	list := f.byUser[userID]
	for i := range list {
		if list[i].ID == id {
			f.byUser[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeAddresses) SetDefault(_ context.Context, userID, id string) error {
	f.clearDefaults(userID)
	list := f.byUser[userID]
	for i := range list {
		if list[i].ID == id {
			list[i].IsDefault = true
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeAddresses) clearDefaults(userID string) {
	list := f.byUser[userID]
	for i := range list {
		list[i].IsDefault = false
	}
}

func defaultCount(list []domain.Address) int {
	n := 0
	for _, a := range list {
		if a.IsDefault {
			n++
		}
	}
	return n
}

func TestDefaultAddressExclusivity(t *testing.T) {
	addrs := &fakeAddresses{byUser: map[string][]domain.Address{}}
	svc := NewService(discard(), nil, addrs)
	ctx := context.Background()

	mk := func(def bool) domain.Address {
		a, err := svc.CreateAddress(ctx, domain.Address{
			UserID:     "u1",
			FullName:   "Jo Doe",
			Street:     "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
			IsDefault:  def,
		})
		if err != nil {
			t.Fatalf("CreateAddress: %v", err)
		}
		return a
	}

	first := mk(true)
	mk(false)
	third := mk(true)

	list, _ := svc.ListAddresses(ctx, "u1")
	if defaultCount(list) != 1 {
		t.Fatalf("defaults after creates = %d, want 1", defaultCount(list))
	}

	if err := svc.SetDefaultAddress(ctx, "u1", first.ID); err != nil {
		t.Fatalf("SetDefaultAddress: %v", err)
	}
	list, _ = svc.ListAddresses(ctx, "u1")
	if defaultCount(list) != 1 {
		t.Fatalf("defaults after set = %d, want 1", defaultCount(list))
	}
	got, _ := svc.ListAddresses(ctx, "u1")
	for _, a := range got {
		if a.ID == third.ID && a.IsDefault {
			t.Fatal("previous default not cleared")
		}
	}
}

func TestCreateAddressValidation(t *testing.T) {
	svc := NewService(discard(), nil, &fakeAddresses{byUser: map[string][]domain.Address{}})
	_, err := svc.CreateAddress(context.Background(), domain.Address{UserID: "u1", Street: "x"})
	if err != ErrValidation {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestGetOrderScopesByUser(t *testing.T) {
	orders := &fakeOrders{byID: map[string]domain.Order{
		"o1": {ID: "o1", UserID: "owner"},
	}}
	svc := NewService(discard(), orders, nil)

	if _, err := svc.GetOrder(context.Background(), "o1", "intruder"); err != ErrNotFound {
		t.Fatalf("cross-user get: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetOrder(context.Background(), "o1", "owner"); err != nil {
		t.Fatalf("owner get: %v", err)
	}
}

type fakeOrders struct {
	byID map[string]domain.Order
}

func (f *fakeOrders) CreateWithOutbox(_ context.Context, o domain.Order, _ string, _ []byte) error {
	f.byID[o.ID] = o
	return nil
}

func (f *fakeOrders) Get(_ context.Context, id string) (domain.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return domain.Order{}, ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) GetForUser(_ context.Context, id, userID string) (domain.Order, error) {
	o, ok := f.byID[id]
	if !ok || o.UserID != userID {
		return domain.Order{}, ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) ListForUser(_ context.Context, userID string) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.byID {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) GetByPaymentIntent(_ context.Context, intentID string) (domain.Order, error) {
	for _, o := range f.byID {
		if o.PaymentIntentID != nil && *o.PaymentIntentID == intentID {
			return o, nil
		}
	}
	return domain.Order{}, ErrNotFound
}

func (f *fakeOrders) UpdateStatusIfNewer(_ context.Context, id string, status domain.OrderStatus, eventAt time.Time, _ string) (bool, error) {
	o, ok := f.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.LastEventAt != nil && o.LastEventAt.After(eventAt) {
		return false, nil
	}
	changed := o.Status != status
	o.Status = status
	o.LastEventAt = &eventAt
	f.byID[id] = o
	return changed, nil
}

func (f *fakeOrders) ListForExport(_ context.Context) ([]ExportRecord, error) {
	var out []ExportRecord
	for _, o := range f.byID {
		out = append(out, ExportRecord{Order: o})
	}
	return out, nil
}

func (f *fakeOrders) UpsertFromRemote(_ context.Context, o domain.Order) (bool, error) {
	_, existed := f.byID[o.ID]
	f.byID[o.ID] = o
	return !existed, nil
}
