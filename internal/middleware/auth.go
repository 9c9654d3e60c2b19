package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bookline/backend/internal/platform/logger"
	"github.com/bookline/backend/internal/requestdata"
)

type AuthMiddleware struct {
	log       *logger.Logger
	jwtSecret []byte
}

func NewAuthMiddleware(log *logger.Logger, jwtSecretKey string) *AuthMiddleware {
	return &AuthMiddleware{
		log:       log.With("middleware", "AuthMiddleware"),
		jwtSecret: []byte(jwtSecretKey),
	}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		rd, err := am.parseToken(tokenString)
		if err != nil {
			am.log.Debug("token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		ctx := requestdata.WithRequestData(c.Request.Context(), rd)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (am *AuthMiddleware) parseToken(tokenString string) (*requestdata.RequestData, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return am.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("missing sub claim")
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, fmt.Errorf("sub is not a uuid: %w", err)
	}
	sessionID := uuid.Nil
	if raw, ok := claims["sid"].(string); ok && raw != "" {
		sessionID, err = uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("sid is not a uuid: %w", err)
		}
	}
	return &requestdata.RequestData{
		TokenString: tokenString,
		UserID:      userID,
		SessionID:   sessionID,
	}, nil
}

// extractToken checks the query string before the Authorization header:
// EventSource cannot set headers, so stream requests pass ?token=.
func extractToken(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
