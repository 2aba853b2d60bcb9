// internal/middleware/cors.go
package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows browser media players to issue ranged, credentialed requests
// against the streaming endpoints.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "Range"},
		ExposeHeaders: []string{
			"Content-Length", "Content-Range", "Accept-Ranges",
			"X-Total-Count", "X-Page", "X-Per-Page", "X-Total-Pages",
		},
		MaxAge: 12 * time.Hour,
	})
}
