// Package middleware содержит HTTP middleware для сервиса BTO.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const nricKey contextKey = "nric"

const (
	authCookieName = "auth_token"
	authCookieTTL  = 365 * 24 * time.Hour
)

// AuthMiddleware выполняет проверку аутентификации пользователя по подписанному cookie.
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
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie авторизации и добавляет NRIC пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		nric, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), nricKey, nric)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookie устанавливает cookie авторизации для указанного NRIC.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, nric string) {
	value := a.signNric(nric)

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) signNric(nric string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(nric))
	signature := mac.Sum(nil)
	return nric + "." + hex.EncodeToString(signature)
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (string, bool) {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return "", false
	}

	nric := parts[0]
	signature := parts[1]

	expected := a.signNric(nric)
	expectedParts := strings.Split(expected, ".")
	if len(expectedParts) != 2 {
		return "", false
	}

	if !hmac.Equal([]byte(signature), []byte(expectedParts[1])) {
		return "", false
	}

	if nric == "" {
		return "", false
	}

	return nric, true
}

// GetNricFromContext извлекает NRIC пользователя из контекста запроса.
func GetNricFromContext(ctx context.Context) (string, bool) {
	nric, ok := ctx.Value(nricKey).(string)
	return nric, ok
}
