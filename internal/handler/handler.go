// Package handler содержит HTTP-обработчики API сервиса доставки молока.
package handler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mealkyway/milkyway-server/internal/middleware"
	"github.com/mealkyway/milkyway-server/internal/model"
	"github.com/mealkyway/milkyway-server/internal/repository"
	"github.com/mealkyway/milkyway-server/internal/service"
	"github.com/mealkyway/milkyway-server/internal/validation"
)

// Сообщения формы заказа показываются покупателю как есть, поэтому локализованы.
const (
	msgAllDatesConflict = "আপনি ইতিমধ্যে এই তারিখের জন্য অর্ডার করেছেন"
	msgOrderSuccess     = "%d দিনের অর্ডার সফলভাবে সম্পন্ন হয়েছে"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	PlaceOrder(ctx context.Context, req service.OrderRequest) (*service.OrderResult, error)
	LookupCustomer(ctx context.Context, contactNumber string) (*model.Customer, error)
	RegisterCustomer(ctx context.Context, contactNumber, name, hall, room string) (*model.Customer, error)
	AuthenticateAdmin(ctx context.Context, username, password string) (*model.AdminUser, error)
	ListOrders(ctx context.Context, filter repository.OrderFilter) ([]model.OrderWithCustomer, error)
	GetOrder(ctx context.Context, orderID int64) (*model.OrderWithCustomer, error)
	UpdateOrder(ctx context.Context, orderID int64, quantity int, date string) (*model.Order, error)
	DeleteOrder(ctx context.Context, orderID int64) error
	Stats(ctx context.Context) (*model.Stats, error)
}

// NoticeStore определяет контракт хранилища объявления.
type NoticeStore interface {
	Get() (string, error)
	Set(content string) error
}

// Handler реализует HTTP-обработчики API сервиса доставки молока.
type Handler struct {
	service        Service
	notices        NoticeStore
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, notices NoticeStore, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		notices:        notices,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// GetCustomer сообщает, зарегистрирован ли контактный номер, и возвращает профиль для автозаполнения формы.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	contactNumber := chi.URLParam(r, "contactNumber")

	customer, err := h.service.LookupCustomer(r.Context(), contactNumber)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"exists": false})
			return
		}
		h.logger.Error("customer lookup error", zap.Error(err), zap.String("contact", contactNumber))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"exists": true, "customer": customer})
}

type customerRequest struct {
	ContactNumber string `json:"contactNumber"`
	Name          string `json:"name"`
	Hall          string `json:"hall"`
	Room          string `json:"room"`
}

// RegisterCustomer создаёт покупателя по явной заявке с формы регистрации.
func (h *Handler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.ContactNumber == "" || req.Name == "" || req.Hall == "" || req.Room == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	customer, err := h.service.RegisterCustomer(r.Context(), req.ContactNumber, req.Name, req.Hall, req.Room)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidContactNumber):
			writeError(w, http.StatusBadRequest, "Invalid contact number")
		case errors.Is(err, repository.ErrCustomerExists):
			writeError(w, http.StatusConflict, "Customer already exists")
		default:
			h.logger.Error("customer create error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to create customer")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "customer": customer})
}

type orderRequest struct {
	ContactNumber string   `json:"contactNumber"`
	Name          string   `json:"name"`
	Hall          string   `json:"hall"`
	Room          string   `json:"room"`
	Quantity      int      `json:"quantity"`
	Dates         []string `json:"dates"`
	OrderType     string   `json:"orderType"`
	// Date поддерживает старый формат заявки с одной датой.
	Date string `json:"date"`
}

type orderPayload struct {
	ID           int64  `json:"id"`
	CustomerID   int64  `json:"customer_id"`
	Quantity     int    `json:"quantity"`
	Date         string `json:"date"`
	OrderType    string `json:"order_type"`
	CreatedAt    string `json:"created_at"`
	CustomerName string `json:"customer_name"`
}

// PlaceOrder оформляет заказ на одну или несколько дат доставки.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.ContactNumber == "" || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "Contact number and quantity are required")
		return
	}

	dates := req.Dates
	if len(dates) == 0 && req.Date != "" {
		dates = []string{req.Date}
	}

	if len(dates) == 0 {
		writeError(w, http.StatusBadRequest, "At least one date is required")
		return
	}

	for _, d := range dates {
		if !validation.IsValidDate(d) {
			writeError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
			return
		}
	}

	result, err := h.service.PlaceOrder(r.Context(), service.OrderRequest{
		ContactNumber: req.ContactNumber,
		Name:          req.Name,
		Hall:          req.Hall,
		Room:          req.Room,
		Quantity:      req.Quantity,
		Dates:         dates,
		OrderType:     model.OrderType(req.OrderType),
	})
	if err != nil {
		var conflictErr *service.AllDatesConflictError
		switch {
		case errors.Is(err, service.ErrInvalidContactNumber):
			writeError(w, http.StatusBadRequest, "Invalid contact number")
		case errors.Is(err, service.ErrMissingProfile):
			writeError(w, http.StatusBadRequest, "Name, hall, and room are required for new customers")
		case errors.As(err, &conflictErr):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":         msgAllDatesConflict,
				"conflictDates": conflictErr.ConflictDates,
			})
		default:
			h.logger.Error("place order error", zap.Error(err), zap.String("contact", req.ContactNumber))
			writeError(w, http.StatusInternalServerError, "Failed to place order")
		}
		return
	}

	orderIDs := make([]int64, 0, len(result.Orders))
	orders := make([]orderPayload, 0, len(result.Orders))
	for _, o := range result.Orders {
		orderIDs = append(orderIDs, o.ID)
		orders = append(orders, orderPayload{
			ID:           o.ID,
			CustomerID:   o.CustomerID,
			Quantity:     o.Quantity,
			Date:         o.Date,
			OrderType:    string(o.OrderType),
			CreatedAt:    o.CreatedAt.Format(time.RFC3339),
			CustomerName: result.Customer.Name,
		})
	}

	conflictDates := result.ConflictDates
	if result.SkippedDates == 0 {
		conflictDates = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       fmt.Sprintf(msgOrderSuccess, result.TotalOrders),
		"orderId":       orderIDs[0],
		"orderIds":      orderIDs,
		"totalOrders":   result.TotalOrders,
		"totalAmount":   result.TotalAmount,
		"skippedDates":  result.SkippedDates,
		"conflictDates": conflictDates,
		"orders":        orders,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию оператора, ставит session cookie и возвращает токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	admin, err := h.service.AuthenticateAdmin(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.Error("admin login error", zap.Error(err), zap.String("username", req.Username))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	h.authMiddleware.SetSessionCookie(w, admin.Username)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful",
		"token":   middleware.MakeToken(req.Username, req.Password),
	})
}

// Logout безусловно завершает сессию оператора.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

// CheckAuth сообщает, аутентифицирован ли текущий запрос, не возвращая ошибку.
func (h *Handler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	username, ok := h.authMiddleware.Authenticate(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          map[string]string{"username": username},
	})
}

// ListOrders возвращает заказы с данными покупателей для админ-панели.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := repository.OrderFilter{
		Date:        r.URL.Query().Get("date"),
		Institution: r.URL.Query().Get("institution"),
		Hall:        r.URL.Query().Get("hall"),
		Customer:    r.URL.Query().Get("customer"),
	}

	if filter.Date != "" && !validation.IsValidDate(filter.Date) {
		writeError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
		return
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.logger.Error("list orders error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}

	if orders == nil {
		orders = []model.OrderWithCustomer{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// GetOrder возвращает один заказ с данными покупателя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.Error("get order error", zap.Error(err), zap.Int64("orderID", orderID))
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

type updateOrderRequest struct {
	Quantity int    `json:"quantity"`
	Date     string `json:"date"`
}

// UpdateOrder изменяет количество и дату заказа с повторной проверкой уникальности даты.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Quantity <= 0 || req.Date == "" {
		writeError(w, http.StatusBadRequest, "Quantity and date are required")
		return
	}

	if !validation.IsValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
		return
	}

	order, err := h.service.UpdateOrder(r.Context(), orderID, req.Quantity, req.Date)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "Order not found")
		case errors.Is(err, repository.ErrDuplicateDate):
			writeError(w, http.StatusBadRequest, "An order already exists for this date")
		default:
			h.logger.Error("update order error", zap.Error(err), zap.Int64("orderID", orderID))
			writeError(w, http.StatusInternalServerError, "Failed to update order")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Order updated successfully",
		"order":   order,
	})
}

// DeleteOrder удаляет заказ. Повторное удаление возвращает 404.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	if err := h.service.DeleteOrder(r.Context(), orderID); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "Order not found")
			return
		}
		h.logger.Error("delete order error", zap.Error(err), zap.Int64("orderID", orderID))
		writeError(w, http.StatusInternalServerError, "Failed to delete order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order deleted successfully"})
}

// GetStats возвращает агрегированные счётчики заказов.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetNotice возвращает текущее объявление. Нечитаемый файл отдаётся как пустое объявление.
func (h *Handler) GetNotice(w http.ResponseWriter, r *http.Request) {
	content, err := h.notices.Get()
	if err != nil {
		h.logger.Error("notice read error", zap.Error(err))
		content = ""
	}

	writeJSON(w, http.StatusOK, map[string]string{"notice": content})
}

type noticeRequest struct {
	Content string `json:"content"`
}

// UpdateNotice перезаписывает объявление.
func (h *Handler) UpdateNotice(w http.ResponseWriter, r *http.Request) {
	var req noticeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.notices.Set(req.Content); err != nil {
		h.logger.Error("notice update error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to update notice")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Notice updated successfully"})
}

// ExportOrders выгружает все заказы с данными покупателей в CSV-файл.
func (h *Handler) ExportOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), repository.OrderFilter{})
	if err != nil {
		h.logger.Error("export orders error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=orders-%d.csv", time.Now().UnixMilli()))

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Order ID", "Customer Name", "Contact Number", "Hall", "Room", "Quantity", "Delivery Date", "Order Date"})

	for _, o := range orders {
		_ = cw.Write([]string{
			strconv.FormatInt(o.ID, 10),
			o.Name,
			o.ContactNumber,
			o.Hall,
			o.Room,
			strconv.Itoa(o.Quantity),
			o.Date,
			o.CreatedAt.Format("02/01/2006 15:04:05"),
		})
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.Error("export write error", zap.Error(err))
	}
}
