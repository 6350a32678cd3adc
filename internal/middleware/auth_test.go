package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestJWTVerifierResolvesName(t *testing.T) {
	secret := []byte("test-secret")
	verify := JWTVerifier(secret)

	identity, err := verify(signToken(t, secret, jwt.MapClaims{"name": "alice"}))
	require.NoError(t, err)
	require.Equal(t, "alice", identity.Name)
}

func TestJWTVerifierFallsBackToSub(t *testing.T) {
	secret := []byte("test-secret")
	verify := JWTVerifier(secret)

	identity, err := verify(signToken(t, secret, jwt.MapClaims{"sub": "bob"}))
	require.NoError(t, err)
	require.Equal(t, "bob", identity.Name)
}

func TestJWTVerifierRejectsWrongSecret(t *testing.T) {
	verify := JWTVerifier([]byte("right"))

	_, err := verify(signToken(t, []byte("wrong"), jwt.MapClaims{"name": "alice"}))
	require.Error(t, err)
}

func TestJWTVerifierRejectsMissingIdentity(t *testing.T) {
	secret := []byte("test-secret")
	verify := JWTVerifier(secret)

	_, err := verify(signToken(t, secret, jwt.MapClaims{"aud": "bridge"}))
	require.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("test-secret")

	r := gin.New()
	r.GET("/protected", AuthMiddleware(JWTVerifier(secret)), func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"name": identity.Name})
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, secret, jwt.MapClaims{"name": "alice"}))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
