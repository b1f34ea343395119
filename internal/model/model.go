// Package model содержит доменные сущности сервиса доставки молока.
package model

import "time"

// Customer представляет покупателя, идентифицируемого контактным номером.
type Customer struct {
	ID            int64     `json:"id"`
	ContactNumber string    `json:"contact_number"`
	Name          string    `json:"name"`
	Hall          string    `json:"hall"`
	Room          string    `json:"room"`
	CreatedAt     time.Time `json:"created_at"`
}

// OrderType описывает способ оформления заказа: на один день или на несколько.
type OrderType string

const (
	OrderTypeSingle OrderType = "single"
	OrderTypeMulti  OrderType = "multi"
)

// Order описывает заказ покупателя на доставку в конкретную дату.
type Order struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Quantity   int       `json:"quantity"`
	Date       string    `json:"date"`
	OrderType  OrderType `json:"order_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderWithCustomer содержит заказ вместе с данными покупателя для админ-панели и экспорта.
type OrderWithCustomer struct {
	ID            int64     `json:"id"`
	CustomerID    int64     `json:"customer_id"`
	Quantity      int       `json:"quantity"`
	Date          string    `json:"date"`
	CreatedAt     time.Time `json:"created_at"`
	Name          string    `json:"name"`
	ContactNumber string    `json:"contact_number"`
	Hall          string    `json:"hall"`
	Room          string    `json:"room"`
}

// AdminUser представляет оператора админ-панели.
type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Notice содержит текст объявления, показываемого на главной странице.
type Notice struct {
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats содержит агрегированные счётчики заказов.
type Stats struct {
	TodayOrders   int `json:"todayOrders"`
	TodayQuantity int `json:"todayQuantity"`
	TotalOrders   int `json:"totalOrders"`
	TotalQuantity int `json:"totalQuantity"`
}
