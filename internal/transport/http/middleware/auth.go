package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wrdsb/user-directory-api/internal/infra/config"
)

type authError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Authenticate parses an optional bearer token and stores the actor id on the
// context. Requests without an Authorization header proceed unauthenticated;
// permission checks downstream decide whether that is acceptable. A present
// but invalid token is rejected outright.
func Authenticate(cfg config.AuthSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(UserIDKey, int64(0))
			c.Next()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abortUnauthorized(c, "Authorization header must use the Bearer scheme.")
			return
		}

		actorID, err := parseActorID(strings.TrimSpace(parts[1]), cfg)
		if err != nil {
			abortUnauthorized(c, "Authentication token is invalid or expired.")
			return
		}

		c.Set(UserIDKey, actorID)
		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = actorID
		}

		c.Next()
	}
}

func parseActorID(token string, cfg config.AuthSettings) (int64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return 0, fmt.Errorf("token is not valid")
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return 0, fmt.Errorf("read subject claim: %w", err)
	}

	actorID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse subject claim: %w", err)
	}
	if actorID <= 0 {
		return 0, fmt.Errorf("subject claim out of range")
	}

	return actorID, nil
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, authError{
		Code:    "rest_authentication_error",
		Message: message,
		Status:  http.StatusUnauthorized,
	})
}

// ActorID retrieves the authenticated actor id from context. Zero means the
// request is unauthenticated.
func ActorID(c *gin.Context) int64 {
	value, exists := c.Get(UserIDKey)
	if !exists {
		return 0
	}

	if id, ok := value.(int64); ok {
		return id
	}

	return 0
}
