// Package service реализует бизнес-логику сервиса доставки молока.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mealkyway/milkyway-server/internal/model"
	"github.com/mealkyway/milkyway-server/internal/repository"
	"github.com/mealkyway/milkyway-server/internal/validation"
)

// UnitPrice задаёт фиксированную цену одной единицы за один день доставки.
const UnitPrice = 30

// ErrInvalidContactNumber возвращается для контактного номера, не подходящего под формат 01XXXXXXXXX.
var (
	ErrInvalidContactNumber = errors.New("invalid contact number")
	// ErrMissingProfile возвращается, если для нового покупателя не переданы имя, общежитие и комната.
	ErrMissingProfile = errors.New("name, hall, and room are required for new customers")
	// ErrInvalidCredentials возвращается при неверном логине или пароле оператора.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AllDatesConflictError возвращается, когда на каждую запрошенную дату уже есть заказ.
type AllDatesConflictError struct {
	ConflictDates []string
}

func (e *AllDatesConflictError) Error() string {
	return fmt.Sprintf("orders already exist for all requested dates: %s", strings.Join(e.ConflictDates, ", "))
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetCustomerByContact(ctx context.Context, contactNumber string) (*model.Customer, error)
	CreateCustomer(ctx context.Context, contactNumber, name, hall, room string) (*model.Customer, error)
	UpdateCustomerProfile(ctx context.Context, customerID int64, name, hall, room string) (*model.Customer, error)
	BookedDates(ctx context.Context, customerID int64, dates []string) ([]string, error)
	InsertOrders(ctx context.Context, customerID int64, quantity int, dates []string, orderType model.OrderType) ([]model.Order, error)
	UpdateOrder(ctx context.Context, orderID int64, quantity int, date string) (*model.Order, error)
	DeleteOrder(ctx context.Context, orderID int64) error
	GetOrderByID(ctx context.Context, orderID int64) (*model.OrderWithCustomer, error)
	ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.OrderWithCustomer, error)
	Stats(ctx context.Context, today string) (*model.Stats, error)
	GetAdminByUsername(ctx context.Context, username string) (*model.AdminUser, error)
	EnsureAdminUser(ctx context.Context, username string, passwordHash []byte) error
}

// Service содержит бизнес-логику сервиса доставки молока.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// OrderRequest описывает заявку на оформление заказа.
type OrderRequest struct {
	ContactNumber string
	Name          string
	Hall          string
	Room          string
	Quantity      int
	Dates         []string
	OrderType     model.OrderType
}

// OrderResult описывает итог оформления заказа, включая пропущенные из-за конфликтов даты.
type OrderResult struct {
	Customer      *model.Customer
	Orders        []model.Order
	TotalOrders   int
	TotalAmount   int
	SkippedDates  int
	ConflictDates []string
}

// PlaceOrder оформляет заказы на запрошенные даты: находит или создаёт покупателя,
// обновляет его профиль при расхождении данных и вставляет заказы только на
// свободные даты. Предварительная проверка занятых дат носит справочный характер,
// источником истины остаётся уникальное ограничение в хранилище: дата, проигравшая
// гонку после проверки, просто выпадает из результата.
func (s *Service) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if !validation.IsValidContactNumber(req.ContactNumber) {
		return nil, ErrInvalidContactNumber
	}

	customer, err := s.resolveCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	booked, err := s.repo.BookedDates(ctx, customer.ID, req.Dates)
	if err != nil {
		return nil, err
	}

	bookedSet := make(map[string]bool, len(booked))
	for _, d := range booked {
		bookedSet[d] = true
	}

	newDates := make([]string, 0, len(req.Dates))
	for _, d := range req.Dates {
		if !bookedSet[d] {
			newDates = append(newDates, d)
		}
	}

	if len(newDates) == 0 {
		return nil, &AllDatesConflictError{ConflictDates: booked}
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = model.OrderTypeSingle
	}

	orders, err := s.repo.InsertOrders(ctx, customer.ID, req.Quantity, newDates, orderType)
	if err != nil {
		return nil, err
	}

	insertedSet := make(map[string]bool, len(orders))
	for _, o := range orders {
		insertedSet[o.Date] = true
	}

	conflictDates := booked
	for _, d := range newDates {
		if !insertedSet[d] {
			conflictDates = append(conflictDates, d)
		}
	}

	if len(orders) == 0 {
		// Все оставшиеся даты проиграли гонку между проверкой и вставкой.
		return nil, &AllDatesConflictError{ConflictDates: conflictDates}
	}

	return &OrderResult{
		Customer:      customer,
		Orders:        orders,
		TotalOrders:   len(orders),
		TotalAmount:   len(orders) * req.Quantity * UnitPrice,
		SkippedDates:  len(req.Dates) - len(orders),
		ConflictDates: conflictDates,
	}, nil
}

func (s *Service) resolveCustomer(ctx context.Context, req OrderRequest) (*model.Customer, error) {
	customer, err := s.repo.GetCustomerByContact(ctx, req.ContactNumber)
	if err != nil {
		if !errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, err
		}

		if req.Name == "" || req.Hall == "" || req.Room == "" {
			return nil, ErrMissingProfile
		}

		return s.repo.CreateCustomer(ctx, req.ContactNumber, req.Name, req.Hall, req.Room)
	}

	// Пустые поля заявки не затирают сохранённый профиль.
	name, hall, room := customer.Name, customer.Hall, customer.Room
	if req.Name != "" {
		name = req.Name
	}
	if req.Hall != "" {
		hall = req.Hall
	}
	if req.Room != "" {
		room = req.Room
	}

	if name == customer.Name && hall == customer.Hall && room == customer.Room {
		return customer, nil
	}

	return s.repo.UpdateCustomerProfile(ctx, customer.ID, name, hall, room)
}

// LookupCustomer возвращает покупателя по контактному номеру.
func (s *Service) LookupCustomer(ctx context.Context, contactNumber string) (*model.Customer, error) {
	return s.repo.GetCustomerByContact(ctx, contactNumber)
}

// RegisterCustomer создаёт покупателя по явной заявке с формы регистрации.
func (s *Service) RegisterCustomer(ctx context.Context, contactNumber, name, hall, room string) (*model.Customer, error) {
	if !validation.IsValidContactNumber(contactNumber) {
		return nil, ErrInvalidContactNumber
	}

	return s.repo.CreateCustomer(ctx, contactNumber, name, hall, room)
}

// UpdateOrder изменяет количество и дату заказа.
func (s *Service) UpdateOrder(ctx context.Context, orderID int64, quantity int, date string) (*model.Order, error) {
	return s.repo.UpdateOrder(ctx, orderID, quantity, date)
}

// DeleteOrder удаляет заказ.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64) error {
	return s.repo.DeleteOrder(ctx, orderID)
}

// GetOrder возвращает заказ вместе с данными покупателя.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*model.OrderWithCustomer, error) {
	return s.repo.GetOrderByID(ctx, orderID)
}

// ListOrders возвращает отфильтрованный список заказов с данными покупателей.
func (s *Service) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.OrderWithCustomer, error) {
	return s.repo.ListOrders(ctx, filter)
}

// Stats возвращает счётчики заказов за сегодняшний день по локальным часам сервера и за всё время.
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	today := s.now().Format("2006-01-02")
	return s.repo.Stats(ctx, today)
}

// AuthenticateAdmin проверяет логин и пароль оператора админ-панели.
func (s *Service) AuthenticateAdmin(ctx context.Context, username, password string) (*model.AdminUser, error) {
	admin, err := s.repo.GetAdminByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(admin.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return admin, nil
}

// EnsureAdmin создаёт оператора с указанным паролем, если его ещё нет.
// При пустом пароле ничего не делает.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	return s.repo.EnsureAdminUser(ctx, username, hash)
}
