package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator: интерфейс проверки токенов (RS256)
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const (
	userIDKey ctxKey = "user_id"
	scopesKey ctxKey = "user_scopes"
)

// AnonymousUser: userId сессии, если проверка токенов отключена.
const AnonymousUser = "anonymous"

// NewMiddleware проверяет Bearer токен и кладет userId в контекст.
// nil валидатор означает локальный режим без аутентификации.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), AnonymousUser)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), scopesKey, claims.Scopes)
			ctx = WithUserID(ctx, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext достает userId, проставленный middleware.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok && id != "" {
		return id
	}
	return AnonymousUser
}

// HasScope проверяет право из токена. В локальном режиме scopes нет и доступ открыт.
func HasScope(ctx context.Context, scope string) bool {
	scopes, ok := ctx.Value(scopesKey).(map[string]bool)
	if !ok {
		return true
	}
	return scopes[scope] || scopes["admin"]
}
