// Package handlers contains middleware for the payment service.
package handlers

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxRequestIDLen bounds caller-supplied request ids; they end up in logs.
const maxRequestIDLen = 64

// CORSMiddleware handles Cross-Origin Resource Sharing for the listed
// origins. A "*" entry allows any origin.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware propagates the caller's X-Request-ID when it is a sane
// token and mints one otherwise.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// ServiceAuthMiddleware validates the Bearer token internal callers (the
// marketplace backend) present. An empty apiKey accepts any bearer token
// outside production and rejects everything in production.
func ServiceAuthMiddleware(apiKey string, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(401, ErrorResponse{
				Success: false,
				Error:   "Authorization header required",
				Code:    "UNAUTHORIZED",
			})
			return
		}

		// Expect: Bearer <token>
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			c.AbortWithStatusJSON(401, ErrorResponse{
				Success: false,
				Error:   "Invalid authorization format",
				Code:    "UNAUTHORIZED",
			})
			return
		}

		if apiKey == "" && !production {
			c.Next()
			return
		}
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(parts[1]), []byte(apiKey)) != 1 {
			log.Printf("Rejected service call from %s (request %s)", c.ClientIP(), c.GetString("request_id"))
			c.AbortWithStatusJSON(401, ErrorResponse{
				Success: false,
				Error:   "Invalid service token",
				Code:    "UNAUTHORIZED",
			})
			return
		}
		c.Next()
	}
}
