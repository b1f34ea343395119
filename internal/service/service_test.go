package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mealkyway/milkyway-server/internal/model"
	"github.com/mealkyway/milkyway-server/internal/repository"
)

type stubRepo struct {
	customer    *model.Customer
	customerErr error

	created       *model.Customer
	createErr     error
	createCalled  bool
	createdFields []string

	updated       *model.Customer
	updateCalled  bool
	updatedFields []string

	booked    []string
	bookedErr error

	insertedDates []string
	insertResult  []model.Order
	insertErr     error

	updateOrderResult *model.Order
	updateOrderErr    error

	deleteOrderErr error

	orderWithCustomer *model.OrderWithCustomer
	listResult        []model.OrderWithCustomer

	statsToday  string
	statsResult *model.Stats

	admin    *model.AdminUser
	adminErr error

	ensuredUsername string
	ensuredHash     []byte
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) GetCustomerByContact(ctx context.Context, contactNumber string) (*model.Customer, error) {
	return s.customer, s.customerErr
}

func (s *stubRepo) CreateCustomer(ctx context.Context, contactNumber, name, hall, room string) (*model.Customer, error) {
	s.createCalled = true
	s.createdFields = []string{contactNumber, name, hall, room}
	return s.created, s.createErr
}

func (s *stubRepo) UpdateCustomerProfile(ctx context.Context, customerID int64, name, hall, room string) (*model.Customer, error) {
	s.updateCalled = true
	s.updatedFields = []string{name, hall, room}
	if s.updated != nil {
		return s.updated, nil
	}
	c := *s.customer
	c.Name, c.Hall, c.Room = name, hall, room
	return &c, nil
}

func (s *stubRepo) BookedDates(ctx context.Context, customerID int64, dates []string) ([]string, error) {
	return s.booked, s.bookedErr
}

func (s *stubRepo) InsertOrders(ctx context.Context, customerID int64, quantity int, dates []string, orderType model.OrderType) ([]model.Order, error) {
	s.insertedDates = dates
	if s.insertResult != nil || s.insertErr != nil {
		return s.insertResult, s.insertErr
	}

	orders := make([]model.Order, 0, len(dates))
	for i, d := range dates {
		orders = append(orders, model.Order{
			ID:         int64(i + 1),
			CustomerID: customerID,
			Quantity:   quantity,
			Date:       d,
			OrderType:  orderType,
			CreatedAt:  time.Now(),
		})
	}
	return orders, nil
}

func (s *stubRepo) UpdateOrder(ctx context.Context, orderID int64, quantity int, date string) (*model.Order, error) {
	return s.updateOrderResult, s.updateOrderErr
}

func (s *stubRepo) DeleteOrder(ctx context.Context, orderID int64) error {
	return s.deleteOrderErr
}

func (s *stubRepo) GetOrderByID(ctx context.Context, orderID int64) (*model.OrderWithCustomer, error) {
	return s.orderWithCustomer, nil
}

func (s *stubRepo) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.OrderWithCustomer, error) {
	return s.listResult, nil
}

func (s *stubRepo) Stats(ctx context.Context, today string) (*model.Stats, error) {
	s.statsToday = today
	return s.statsResult, nil
}

func (s *stubRepo) GetAdminByUsername(ctx context.Context, username string) (*model.AdminUser, error) {
	return s.admin, s.adminErr
}

func (s *stubRepo) EnsureAdminUser(ctx context.Context, username string, passwordHash []byte) error {
	s.ensuredUsername = username
	s.ensuredHash = passwordHash
	return nil
}

func TestPlaceOrder_InvalidContactNumber(t *testing.T) {
	svc := NewService(&stubRepo{})

	_, err := svc.PlaceOrder(context.Background(), OrderRequest{
		ContactNumber: "0171111111",
		Quantity:      1,
		Dates:         []string{"2025-01-01"},
	})
	if !errors.Is(err, ErrInvalidContactNumber) {
		t.Fatalf("expected ErrInvalidContactNumber, got %v", err)
	}
}

func TestPlaceOrder_MissingProfileForNewCustomer(t *testing.T) {
	repo := &stubRepo{
		customerErr: repository.ErrCustomerNotFound,
	}
	svc := NewService(repo)

	_, err := svc.PlaceOrder(context.Background(), OrderRequest{
		ContactNumber: "01711111111",
		Quantity:      1,
		Dates:         []string{"2025-01-01"},
	})
	if !errors.Is(err, ErrMissingProfile) {
		t.Fatalf("expected ErrMissingProfile, got %v", err)
	}
	if repo.createCalled {
		t.Fatalf("customer must not be created without profile fields")
	}
}

func TestPlaceOrder_CreatesCustomerAndOrders(t *testing.T) {
	repo := &stubRepo{
		customerErr: repository.ErrCustomerNotFound,
		created: &model.Customer{
			ID:            7,
			ContactNumber: "01711111111",
			Name:          "A",
			Hall:          "RU - X",
			Room:          "101",
		},
	}
	svc := NewService(repo)

	res, err := svc.PlaceOrder(context.Background(), OrderRequest{
		ContactNumber: "01711111111",
		Name:          "A",
		Hall:          "RU - X",
		Room:          "101",
		Quantity:      2,
		Dates:         []string{"2025-01-01", "2025-01-02"},
		OrderType:     model.OrderTypeMulti,
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}

	if !repo.createCalled {
		t.Fatalf("expected customer creation")
	}
	if repo.createdFields[0] != "01711111111" {
		t.Fatalf("created contact = %q, want 01711111111", repo.createdFields[0])
	}
	if res.TotalOrders != 2 {
		t.Fatalf("TotalOrders = %d, want 2", res.TotalOrders)
	}
	if res.TotalAmount != 2*2*UnitPrice {
		t.Fatalf("TotalAmount = %d, want %d", res.TotalAmount, 2*2*UnitPrice)
	}
	if res.SkippedDates != 0 {
		t.Fatalf("SkippedDates = %d, want 0", res.SkippedDates)
	}
}

func TestPlaceOrder_AllDatesConflict(t *testing.T) {
	repo := &stubRepo{
		customer: &model.Customer{ID: 1, ContactNumber: "01711111111", Name: "A", Hall: "RU - X", Room: "101"},
		booked:   []string{"2025-01-01", "2025-01-02"},
	}
	svc := NewService(repo)

	_, err := svc.PlaceOrder(context.Background(), OrderRequest{
		ContactNumber: "01711111111",
		Name:          "A",
		Hall:          "RU - X",
		Room:          "101",
		Quantity:      2,
		Dates:         []string{"2025-01-01", "2025-01-02"},
	})

	var conflictErr *AllDatesConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("expected AllDatesConflictError, got %v", err)
	}
	if len(conflictErr.ConflictDates) != 2 {
		t.Fatalf("ConflictDates = %v, want both requested dates", conflictErr.ConflictDates)
	}
	if repo.insertedDates != nil {
		t.Fatalf("no orders must be inserted when all dates conflict")
	}
}

func TestPlaceOrder_PartialSuccess(t *testing.T) {
	repo := &stubRepo{
		customer: &model.Customer{ID: 1, ContactNumber: "01711111111", Name: "A", Hall: "RU - X", Room: "101"},
		booked:   []string{"2025-01-01"},
	}
	svc := NewService(repo)

	res, err := svc.PlaceOrder(context.Background(), OrderRequest{
		ContactNumber: "01711111111",
		Name:          "A",
		Hall:          "RU - X",
		Room:          "101",
		Quantity:      3,
		Dates:         []string{"2025-01-01", "2025-01-02", "2025-01-03"},
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}

	if res.TotalOrders != 2 {
		t.Fatalf("TotalOrders = %d, want 2", res.TotalOrders)
	}
	if res.SkippedDates != 1 {
		t.Fatalf("SkippedDates = %d, want 1", res.SkippedDates)
	}
	if res.TotalOrders != len(res.Orders) {
		t.Fatalf("TotalOrders = %d, orders = %d", res.TotalOrders, len(res.Orders))
	}
	if res.TotalAmount != res.TotalOrders*3*UnitPrice {
		t.Fatalf("TotalAmount = %d, want %d", res.TotalAmount, res.TotalOrders*3*UnitPrice)
	}
	if len(res.ConflictDates) != 1 || res.ConflictDates[0] != "2025-01-01" {
		t.Fatalf("ConflictDates = %v, want [2025-01-01]", res.ConflictDates)
	}
}

func TestPlaceOrder_RaceLostDateDropped(t *testing.T) {
	repo := &stubRepo{
		customer: &model.Customer{ID: 1, ContactNumber: "01711111111", Name: "A", Hall: "RU - X", Room: "101"},
		// Вторая дата проигрывает гонку: вставка возвращает только первую.
		insertResult: []model.Order{
			{ID: 10, CustomerID: 1, Quantity: 1, Date: "2025-01-01", OrderType: model.OrderTypeMulti},
		},
	}
	svc := NewService(repo)

	res, err := svc.PlaceOrder(context.Background(), OrderRequest{
		ContactNumber: "01711111111",
		Name:          "A",
		Hall:          "RU - X",
		Room:          "101",
		Quantity:      1,
		Dates:         []string{"2025-01-01", "2025-01-02"},
		OrderType:     model.OrderTypeMulti,
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}

	if res.TotalOrders != 1 {
		t.Fatalf("TotalOrders = %d, want 1", res.TotalOrders)
	}
	if res.SkippedDates != 1 {
		t.Fatalf("SkippedDates = %d, want 1", res.SkippedDates)
	}
	if len(res.ConflictDates) != 1 || res.ConflictDates[0] != "2025-01-02" {
		t.Fatalf("ConflictDates = %v, want [2025-01-02]", res.ConflictDates)
	}
}

func TestPlaceOrder_UpdatesChangedProfile(t *testing.T) {
	repo := &stubRepo{
		customer: &model.Customer{ID: 1, ContactNumber: "01711111111", Name: "A", Hall: "RU - X", Room: "101"},
	}
	svc := NewService(repo)

	res, err := svc.PlaceOrder(context.Background(), OrderRequest{
		ContactNumber: "01711111111",
		Name:          "A",
		Hall:          "RU - Y",
		Room:          "101",
		Quantity:      1,
		Dates:         []string{"2025-01-05"},
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}

	if !repo.updateCalled {
		t.Fatalf("expected profile update for changed hall")
	}
	if repo.updatedFields[1] != "RU - Y" {
		t.Fatalf("updated hall = %q, want RU - Y", repo.updatedFields[1])
	}
	if res.Customer.Hall != "RU - Y" {
		t.Fatalf("Hall = %q, want RU - Y", res.Customer.Hall)
	}
	if res.Customer.ContactNumber != "01711111111" {
		t.Fatalf("ContactNumber changed: %q", res.Customer.ContactNumber)
	}
}

func TestPlaceOrder_UnchangedProfileNotRewritten(t *testing.T) {
	repo := &stubRepo{
		customer: &model.Customer{ID: 1, ContactNumber: "01711111111", Name: "A", Hall: "RU - X", Room: "101"},
	}
	svc := NewService(repo)

	_, err := svc.PlaceOrder(context.Background(), OrderRequest{
		ContactNumber: "01711111111",
		Name:          "A",
		Hall:          "RU - X",
		Room:          "101",
		Quantity:      1,
		Dates:         []string{"2025-01-05"},
	})
	if err != nil {
		t.Fatalf("PlaceOrder error: %v", err)
	}

	if repo.updateCalled {
		t.Fatalf("profile must not be rewritten when nothing changed")
	}
}

func TestAuthenticateAdmin_WrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("generate hash: %v", err)
	}

	repo := &stubRepo{
		admin: &model.AdminUser{ID: 1, Username: "admin", PasswordHash: hash},
	}
	svc := NewService(repo)

	_, err = svc.AuthenticateAdmin(context.Background(), "admin", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateAdmin_Success(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("generate hash: %v", err)
	}

	repo := &stubRepo{
		admin: &model.AdminUser{ID: 1, Username: "admin", PasswordHash: hash},
	}
	svc := NewService(repo)

	admin, err := svc.AuthenticateAdmin(context.Background(), "admin", "admin123")
	if err != nil {
		t.Fatalf("AuthenticateAdmin error: %v", err)
	}
	if admin.Username != "admin" {
		t.Fatalf("Username = %q, want admin", admin.Username)
	}
}

func TestAuthenticateAdmin_UnknownUser(t *testing.T) {
	repo := &stubRepo{
		adminErr: repository.ErrAdminNotFound,
	}
	svc := NewService(repo)

	_, err := svc.AuthenticateAdmin(context.Background(), "ghost", "pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestStats_UsesServerLocalDate(t *testing.T) {
	repo := &stubRepo{
		statsResult: &model.Stats{},
	}
	svc := NewService(repo)
	svc.now = func() time.Time {
		return time.Date(2025, 3, 14, 23, 50, 0, 0, time.Local)
	}

	if _, err := svc.Stats(context.Background()); err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if repo.statsToday != "2025-03-14" {
		t.Fatalf("today = %q, want 2025-03-14", repo.statsToday)
	}
}

func TestEnsureAdmin_SkipsEmptyPassword(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	if err := svc.EnsureAdmin(context.Background(), "admin", ""); err != nil {
		t.Fatalf("EnsureAdmin error: %v", err)
	}
	if repo.ensuredUsername != "" {
		t.Fatalf("admin must not be created without a password")
	}
}

func TestEnsureAdmin_StoresBcryptHash(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	if err := svc.EnsureAdmin(context.Background(), "admin", "admin123"); err != nil {
		t.Fatalf("EnsureAdmin error: %v", err)
	}
	if repo.ensuredUsername != "admin" {
		t.Fatalf("ensured username = %q, want admin", repo.ensuredUsername)
	}
	if err := bcrypt.CompareHashAndPassword(repo.ensuredHash, []byte("admin123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}
