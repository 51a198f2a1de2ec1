package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/classarena/classarena/models"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func callerEcho(t *testing.T) (http.Handler, *models.Caller) {
	t.Helper()
	var captured models.Caller
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := GetCallerFromContext(r.Context())
		require.NoError(t, err)
		captured = caller
		w.WriteHeader(http.StatusOK)
	})
	return handler, &captured
}

func TestAuthenticateValidToken(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	next, captured := callerEcho(t)

	token := signToken(t, testSecret, jwt.MapClaims{"user_id": 42, "role": "TEACHER"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	auth.Authenticate(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 42, captured.UserID)
	assert.Equal(t, models.RoleTeacher, captured.Role)
}

func TestAuthenticateRejects(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	})

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not a bearer token", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", jwt.MapClaims{"user_id": 1, "role": "TEACHER"})},
		{"missing user_id", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"role": "TEACHER"})},
		{"unknown role", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": 1, "role": "PRINCIPAL"})},
		{"non-positive user_id", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"user_id": 0, "role": "STUDENT"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			auth.Authenticate(next).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthorizeRoles(t *testing.T) {
	guard := Authorize(models.RoleTeacher, models.RoleAdmin)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	run := func(caller models.Caller) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithCaller(req.Context(), caller))
		rec := httptest.NewRecorder()
		guard(next).ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, run(models.Caller{UserID: 1, Role: models.RoleTeacher}))
	assert.Equal(t, http.StatusOK, run(models.Caller{UserID: 1, Role: models.RoleAdmin}))
	assert.Equal(t, http.StatusForbidden, run(models.Caller{UserID: 1, Role: models.RoleStudent}))
}
