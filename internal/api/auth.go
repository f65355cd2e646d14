package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/livequiz/internal/errors"
)

const hostKey = "host"

// requireHost authenticates the quiz master from an HS256 bearer token. The sub
// claim is the host identity sessions are owned by. Tokens are issued elsewhere.
func (a *API) requireHost(c *gin.Context) {
	raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || raw == "" {
		writeError(c, errors.Unauthenticated(nil, "missing bearer token"))
		return
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.auth.Issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(a.auth.Secret), nil
	}, opts...)
	if err != nil || claims.Subject == "" {
		writeError(c, errors.Unauthenticated(err, "invalid bearer token"))
		return
	}

	c.Set(hostKey, claims.Subject)
	c.Next()
}

func host(c *gin.Context) string {
	return c.GetString(hostKey)
}
