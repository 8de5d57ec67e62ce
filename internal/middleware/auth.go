package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/api/respond"
)

// ActorIDKey is the context key holding the authenticated actor id.
const ActorIDKey = "actor_id"

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

// AuthMiddleware verifies an HS256 bearer token signed with secret and stores
// its subject under ActorIDKey.
func AuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		tokenString = strings.TrimSpace(tokenString)
		if !ok || tokenString == "" {
			respond.Abort(c, http.StatusUnauthorized, errMissingToken)
			return
		}

		sub, err := Subject(tokenString, key)
		if err != nil {
			zlog.Logger.Debug().Err(err).Msg("rejected bearer token")
			respond.Abort(c, http.StatusUnauthorized, errInvalidToken)
			return
		}

		c.Set(ActorIDKey, sub)
		c.Next()
	}
}

// Subject validates tokenString and returns its "sub" claim.
func Subject(tokenString string, key []byte) (string, error) {
	if len(key) == 0 {
		return "", errors.New("no signing key configured")
	}

	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", fmt.Errorf("token has no subject")
	}

	return sub, nil
}

// ActorID returns the authenticated actor id set by AuthMiddleware.
func ActorID(c *gin.Context) string {
	return c.GetString(ActorIDKey)
}
