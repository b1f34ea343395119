// Package middleware содержит HTTP middleware сервиса доставки молока.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const adminUsernameKey contextKey = "adminUsername"

const (
	sessionCookieName = "admin_session"
	sessionCookieTTL  = 24 * time.Hour
)

// AuthMiddleware закрывает админские ручки. Запрос считается аутентифицированным
// либо по подписанному session cookie, либо по любому непустому bearer-токену
// (токен принимается по факту наличия, без криптографической проверки).
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("milkyway-secret")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Authenticate проверяет обе формы учётных данных и возвращает имя оператора.
func (a *AuthMiddleware) Authenticate(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != "" {
			return UsernameFromToken(token), true
		}
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", false
	}

	return a.parseCookie(cookie.Value)
}

// Middleware отклоняет запросы без учётных данных и кладёт имя оператора в контекст.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := a.Authenticate(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}

		ctx := context.WithValue(r.Context(), adminUsernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie устанавливает session cookie для указанного оператора.
func (a *AuthMiddleware) SetSessionCookie(w http.ResponseWriter, username string) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    a.signUsername(username),
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

// ClearSessionCookie завершает сессию, затирая cookie.
func (a *AuthMiddleware) ClearSessionCookie(w http.ResponseWriter) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) signUsername(username string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(username))
	signature := mac.Sum(nil)
	return username + "." + hex.EncodeToString(signature)
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (string, bool) {
	idx := strings.LastIndex(cookieValue, ".")
	if idx < 0 {
		return "", false
	}

	username := cookieValue[:idx]
	signature := cookieValue[idx+1:]

	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(username))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}

	return username, true
}

// MakeToken кодирует пару логин-пароль в непрозрачный токен для bearer-авторизации.
func MakeToken(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// UsernameFromToken извлекает имя оператора из токена. Для нечитаемого токена
// возвращается пустая строка, токен при этом остаётся действительным.
func UsernameFromToken(token string) string {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return ""
	}

	username, _, _ := strings.Cut(string(decoded), ":")
	return username
}

// GetAdminFromContext извлекает имя оператора из контекста запроса.
func GetAdminFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(adminUsernameKey).(string)
	return username, ok
}
