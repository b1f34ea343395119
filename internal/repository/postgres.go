// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mealkyway/milkyway-server/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCustomerExists возвращается при попытке создать покупателя с уже занятым контактным номером.
var (
	ErrCustomerExists = errors.New("customer already exists")
	// ErrCustomerNotFound возвращается, если покупатель не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateDate возвращается, если у покупателя уже есть заказ на эту дату.
	ErrDuplicateDate = errors.New("order for this date already exists")
	// ErrAdminNotFound возвращается, если оператор с таким именем не найден.
	ErrAdminNotFound = errors.New("admin user not found")
)

// OrderFilter задаёт параметры фильтрации списка заказов в админ-панели.
type OrderFilter struct {
	Date        string
	Institution string
	Hall        string
	Customer    string
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetCustomerByContact возвращает покупателя по контактному номеру.
func (r *PostgresRepository) GetCustomerByContact(ctx context.Context, contactNumber string) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, contact_number, name, hall, room, created_at FROM customers WHERE contact_number = $1`,
		contactNumber,
	)

	var c model.Customer
	err := row.Scan(&c.ID, &c.ContactNumber, &c.Name, &c.Hall, &c.Room, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return &c, nil
}

// CreateCustomer создаёт нового покупателя.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, contactNumber, name, hall, room string) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO customers (contact_number, name, hall, room) VALUES ($1, $2, $3, $4)
		 RETURNING id, contact_number, name, hall, room, created_at`,
		contactNumber, name, hall, room,
	)

	var c model.Customer
	err := row.Scan(&c.ID, &c.ContactNumber, &c.Name, &c.Hall, &c.Room, &c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrCustomerExists, contactNumber)
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}

	return &c, nil
}

// UpdateCustomerProfile безусловно перезаписывает имя, общежитие и комнату покупателя.
func (r *PostgresRepository) UpdateCustomerProfile(ctx context.Context, customerID int64, name, hall, room string) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE customers SET name = $2, hall = $3, room = $4 WHERE id = $1
		 RETURNING id, contact_number, name, hall, room, created_at`,
		customerID, name, hall, room,
	)

	var c model.Customer
	err := row.Scan(&c.ID, &c.ContactNumber, &c.Name, &c.Hall, &c.Room, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("update customer: %w", err)
	}

	return &c, nil
}

// BookedDates возвращает подмножество дат, на которые у покупателя уже есть заказы.
func (r *PostgresRepository) BookedDates(ctx context.Context, customerID int64, dates []string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT to_char(date, 'YYYY-MM-DD')
		 FROM orders
		 WHERE customer_id = $1 AND date = ANY($2::text[]::date[])`,
		customerID, dates,
	)
	if err != nil {
		return nil, fmt.Errorf("select booked dates: %w", err)
	}
	defer rows.Close()

	var booked []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		booked = append(booked, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return booked, nil
}

// InsertOrders вставляет по одному заказу на каждую дату. Дата, проигравшая гонку
// уникальному ограничению, пропускается, остальные строки вставляются как обычно.
func (r *PostgresRepository) InsertOrders(ctx context.Context, customerID int64, quantity int, dates []string, orderType model.OrderType) ([]model.Order, error) {
	orders := make([]model.Order, 0, len(dates))

	for _, date := range dates {
		row := r.pool.QueryRow(ctx,
			`INSERT INTO orders (customer_id, quantity, date, order_type) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (customer_id, date) DO NOTHING
			 RETURNING id, customer_id, quantity, to_char(date, 'YYYY-MM-DD'), order_type, created_at`,
			customerID, quantity, date, string(orderType),
		)

		var o model.Order
		err := row.Scan(&o.ID, &o.CustomerID, &o.Quantity, &o.Date, &o.OrderType, &o.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Заказ на эту дату появился между проверкой и вставкой.
				continue
			}
			return nil, fmt.Errorf("insert order: %w", err)
		}

		orders = append(orders, o)
	}

	return orders, nil
}

// UpdateOrder изменяет количество и дату заказа с повторной проверкой уникальности даты.
func (r *PostgresRepository) UpdateOrder(ctx context.Context, orderID int64, quantity int, date string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE orders SET quantity = $2, date = $3 WHERE id = $1
		 RETURNING id, customer_id, quantity, to_char(date, 'YYYY-MM-DD'), order_type, created_at`,
		orderID, quantity, date,
	)

	var o model.Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.Quantity, &o.Date, &o.OrderType, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDate, date)
		}
		return nil, fmt.Errorf("update order: %w", err)
	}

	return &o, nil
}

// DeleteOrder удаляет заказ. Повторное удаление того же идентификатора является ошибкой.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, orderID int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// GetOrderByID возвращает заказ вместе с данными покупателя.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, orderID int64) (*model.OrderWithCustomer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT o.id, o.customer_id, o.quantity, to_char(o.date, 'YYYY-MM-DD'), o.created_at,
		        c.name, c.contact_number, c.hall, c.room
		 FROM orders o
		 JOIN customers c ON c.id = o.customer_id
		 WHERE o.id = $1`,
		orderID,
	)

	var o model.OrderWithCustomer
	err := row.Scan(&o.ID, &o.CustomerID, &o.Quantity, &o.Date, &o.CreatedAt,
		&o.Name, &o.ContactNumber, &o.Hall, &o.Room)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return &o, nil
}

// ListOrders возвращает заказы с данными покупателей, отфильтрованные и отсортированные
// по времени создания, новые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context, filter OrderFilter) ([]model.OrderWithCustomer, error) {
	query := `SELECT o.id, o.customer_id, o.quantity, to_char(o.date, 'YYYY-MM-DD'), o.created_at,
	                 c.name, c.contact_number, c.hall, c.room
	          FROM orders o
	          JOIN customers c ON c.id = o.customer_id`

	var (
		conds []string
		args  []any
	)

	if filter.Date != "" {
		args = append(args, filter.Date)
		conds = append(conds, `o.date = $`+strconv.Itoa(len(args))+`::date`)
	}
	if filter.Institution != "" {
		args = append(args, filter.Institution+" -%")
		conds = append(conds, `c.hall LIKE $`+strconv.Itoa(len(args)))
	}
	if filter.Hall != "" {
		args = append(args, "%"+filter.Hall+"%")
		conds = append(conds, `c.hall ILIKE $`+strconv.Itoa(len(args)))
	}
	if filter.Customer != "" {
		args = append(args, "%"+filter.Customer+"%")
		conds = append(conds, `c.name ILIKE $`+strconv.Itoa(len(args)))
	}

	for i, cond := range conds {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}

	query += ` ORDER BY o.created_at DESC, o.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.OrderWithCustomer
	for rows.Next() {
		var o model.OrderWithCustomer
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.Quantity, &o.Date, &o.CreatedAt,
			&o.Name, &o.ContactNumber, &o.Hall, &o.Room); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// Stats возвращает счётчики заказов за указанный день и за всё время.
func (r *PostgresRepository) Stats(ctx context.Context, today string) (*model.Stats, error) {
	var s model.Stats

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(quantity), 0) FROM orders WHERE date = $1::date`,
		today,
	).Scan(&s.TodayOrders, &s.TodayQuantity)
	if err != nil {
		return nil, fmt.Errorf("today stats: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(quantity), 0) FROM orders`,
	).Scan(&s.TotalOrders, &s.TotalQuantity)
	if err != nil {
		return nil, fmt.Errorf("total stats: %w", err)
	}

	return &s, nil
}

// GetAdminByUsername возвращает оператора админ-панели по имени.
func (r *PostgresRepository) GetAdminByUsername(ctx context.Context, username string) (*model.AdminUser, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM admin_users WHERE username = $1`,
		username,
	)

	var (
		a    model.AdminUser
		hash string
	)
	err := row.Scan(&a.ID, &a.Username, &hash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}

	a.PasswordHash = []byte(hash)
	return &a, nil
}

// EnsureAdminUser создаёт оператора, если его ещё нет. Существующая запись не изменяется.
func (r *PostgresRepository) EnsureAdminUser(ctx context.Context, username string, passwordHash []byte) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO admin_users (username, password_hash) VALUES ($1, $2) ON CONFLICT (username) DO NOTHING`,
		username, string(passwordHash),
	)
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}

	return nil
}
