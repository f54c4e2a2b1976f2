// Package auth verifies access tokens issued by the account service. Token
// issuance, refresh and session management live outside this service; only
// HS256 verification against the shared secret happens here.
package auth

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const userIDContextKey = "userID"

// VerifyToken parses an HS256 access token and returns the user identity.
func VerifyToken(tokenString string) (uuid.UUID, error) {
	accessSecret := os.Getenv("ACCESS_SECRET")
	if accessSecret == "" {
		return uuid.Nil, fmt.Errorf("server configuration error: ACCESS_SECRET not set")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(accessSecret), nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid token or claims")
	}
	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid token claims: user_id not found or invalid type")
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user ID in token claims: %w", err)
	}
	return userID, nil
}

// VerifyRequest extracts the bearer token from the Authorization header.
// WebSocket handshakes use the same path.
func VerifyRequest(r *http.Request) (uuid.UUID, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return uuid.Nil, fmt.Errorf("authorization header required")
	}
	bearerToken := strings.Split(authHeader, " ")
	if len(bearerToken) != 2 || strings.ToLower(bearerToken[0]) != "bearer" {
		return uuid.Nil, fmt.Errorf("invalid authorization header format")
	}
	return VerifyToken(bearerToken[1])
}

// Middleware authenticates every request and stores the caller identity in
// the gin context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := VerifyRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated caller set by Middleware.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	return userID, ok
}
