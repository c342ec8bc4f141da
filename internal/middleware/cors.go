package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS creates a middleware that handles Cross-Origin Resource Sharing (CORS)
// for the operator API. extraHeaders are accepted on requests in addition to
// the standard set, e.g. the visualization style header.
func CORS(allowedOrigins []string, extraHeaders ...string) gin.HandlerFunc {
	headers := append([]string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader}, extraHeaders...)

	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     headers,
		ExposeHeaders:    []string{RequestIDHeader, "Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
