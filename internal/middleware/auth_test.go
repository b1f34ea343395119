package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		username, ok := GetAdminFromContext(r.Context())
		if !ok {
			t.Fatalf("admin username not in context")
		}
		if username != "admin" {
			t.Fatalf("username from context = %q, want admin", username)
		}
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)

	m.SetSessionCookie(w, "admin")
	res := w.Result()
	resCookies := res.Cookies()
	if len(resCookies) == 0 {
		t.Fatalf("no cookies set by SetSessionCookie")
	}

	r.AddCookie(resCookies[0])

	handler := m.Middleware(next)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithTamperedCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	r.AddCookie(&http.Cookie{Name: "admin_session", Value: "admin.deadbeef"})

	handler := m.Middleware(next)
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_BearerTokenPresenceOnly(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	})

	r := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	// Токен не подписан и не проверяется, достаточно его наличия.
	r.Header.Set("Authorization", "Bearer anything-at-all")

	handler := m.Middleware(next)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called for bearer token")
	}
}

func TestAuthMiddleware_EmptyBearerRejected(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	r.Header.Set("Authorization", "Bearer ")

	handler := m.Middleware(next)
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_WithoutCredentials(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)

	handler := m.Middleware(next)
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "Unauthorized" {
		t.Fatalf("error = %q, want Unauthorized", resp.Error)
	}
}

func TestMakeToken_RoundTrip(t *testing.T) {
	token := MakeToken("admin", "admin123")
	if token == "" {
		t.Fatalf("token is empty")
	}

	if username := UsernameFromToken(token); username != "admin" {
		t.Fatalf("username = %q, want admin", username)
	}
}

func TestUsernameFromToken_Garbage(t *testing.T) {
	if username := UsernameFromToken("!!!not-base64!!!"); username != "" {
		t.Fatalf("username = %q, want empty", username)
	}
}

func TestClearSessionCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	w := httptest.NewRecorder()
	m.ClearSessionCookie(w)

	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookie set")
	}
	if cookies[0].Value != "" || cookies[0].MaxAge != -1 {
		t.Fatalf("cookie not cleared: %+v", cookies[0])
	}
}
