package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepforge/billing-service/internal/middleware"
	"github.com/prepforge/billing-service/pkg/logger"
)

var testJWTSecret = []byte("test-jwt-secret")

func issueToken(t *testing.T, subject, email string, expiresIn time.Duration) string {
	t.Helper()
	claims := middleware.TokenClaims{
		UserEmail: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testJWTSecret)
	require.NoError(t, err)
	return token
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := middleware.NewJWTMiddleware(&middleware.DefaultTokenValidator{Secret: testJWTSecret}, logger.New(logger.ERROR))

	r := gin.New()
	r.GET("/protected", m.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(string(middleware.ContextUserIDKey)),
			"email":   c.GetString(string(middleware.ContextUserEmailKey)),
		})
	})
	return r
}

func get(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth_AcceptsValidToken(t *testing.T) {
	r := newAuthRouter()
	token := issueToken(t, "user-1", "user@example.com", time.Hour)

	w := get(r, "Bearer "+token)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"user-1"`)
	assert.Contains(t, w.Body.String(), `"email":"user@example.com"`)
}

func TestRequireAuth_RejectsMissingToken(t *testing.T) {
	w := get(newAuthRouter(), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_RejectsExpiredToken(t *testing.T) {
	r := newAuthRouter()
	token := issueToken(t, "user-1", "user@example.com", -time.Hour)

	w := get(r, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_RejectsTokenWithoutSubject(t *testing.T) {
	r := newAuthRouter()
	token := issueToken(t, "", "user@example.com", time.Hour)

	w := get(r, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_RejectsForeignSignature(t *testing.T) {
	r := newAuthRouter()
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	w := get(r, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
