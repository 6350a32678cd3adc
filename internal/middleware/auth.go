package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const identityContextKey = "callerIdentity"

// Identity is the authenticated caller, threaded explicitly into every
// service call that needs attribution or authorization.
type Identity struct {
	Name string
}

// TokenVerifier resolves a raw bearer token to a caller identity.
type TokenVerifier func(token string) (Identity, error)

// JWTVerifier verifies HS256 tokens signed with the shared secret. The
// caller's display name comes from the "name" claim, falling back to "sub".
func JWTVerifier(secret []byte) TokenVerifier {
	return func(tokenStr string) (Identity, error) {
		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return secret, nil
		})
		if err != nil {
			return Identity{}, err
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return Identity{}, errors.New("invalid token claims")
		}
		name, _ := claims["name"].(string)
		if name == "" {
			name, _ = claims["sub"].(string)
		}
		if name == "" {
			return Identity{}, errors.New("token carries no identity")
		}
		return Identity{Name: name}, nil
	}
}

// IdentityFromBearer parses an Authorization header value and verifies the
// token.
func IdentityFromBearer(header string, verify TokenVerifier) (Identity, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return Identity{}, errors.New("invalid authorization header")
	}
	return verify(parts[1])
}

// AuthMiddleware validates the Authorization header and stores the caller
// identity on the request context.
func AuthMiddleware(verify TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		identity, err := IdentityFromBearer(header, verify)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// IdentityFromContext returns the caller identity set by AuthMiddleware.
func IdentityFromContext(c *gin.Context) (Identity, bool) {
	val, ok := c.Get(identityContextKey)
	if !ok {
		return Identity{}, false
	}
	identity, ok := val.(Identity)
	return identity, ok
}
