package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/classarena/classarena/models"
	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const callerContextKey contextKey = "caller"

// Имена JWT claims, которые кладёт сервис аутентификации платформы.
const (
	jwtClaimUserID = "user_id"
	jwtClaimRole   = "role"
)

// Authenticator проверяет Bearer-токены и кладёт models.Caller в контекст.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		caller, err := callerFromClaims(claims)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), callerContextKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authorize пропускает только вызывающих с одной из перечисленных ролей.
func Authorize(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := GetCallerFromContext(r.Context())
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if caller.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

func callerFromClaims(claims jwt.MapClaims) (models.Caller, error) {
	idClaim, ok := claims[jwtClaimUserID]
	if !ok {
		return models.Caller{}, fmt.Errorf("missing %q claim in token", jwtClaimUserID)
	}
	// encoding/json отдаёт числа как float64
	idFloat, ok := idClaim.(float64)
	if !ok || idFloat != float64(int(idFloat)) || int(idFloat) <= 0 {
		return models.Caller{}, fmt.Errorf("invalid %q claim: %v", jwtClaimUserID, idClaim)
	}

	roleClaim, ok := claims[jwtClaimRole].(string)
	if !ok {
		return models.Caller{}, fmt.Errorf("missing or invalid %q claim", jwtClaimRole)
	}
	role := models.Role(roleClaim)
	if !role.Valid() {
		return models.Caller{}, fmt.Errorf("unknown role %q", roleClaim)
	}

	return models.Caller{UserID: int(idFloat), Role: role}, nil
}

// GetCallerFromContext достаёт аутентифицированного вызывающего из контекста
// запроса.
func GetCallerFromContext(ctx context.Context) (models.Caller, error) {
	caller, ok := ctx.Value(callerContextKey).(models.Caller)
	if !ok {
		return models.Caller{}, fmt.Errorf("caller not found in context")
	}
	return caller, nil
}

// WithCaller используется в тестах и фоновых задачах, когда запрос идёт мимо
// HTTP-слоя.
func WithCaller(ctx context.Context, caller models.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}
