package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"leafscan/internal/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		c.Next()

		fields := logger.Fields{
			"request_id": id,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
			"client_ip":  c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Warning("HTTPServer", "request failed", fields)
			return
		}
		s.logger.Info("HTTPServer", "request", fields)
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		s.logger.Error("HTTPServer", fmt.Errorf("panic: %v", recovered), logger.Fields{
			"path": c.Request.URL.Path,
		})
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})
}

// corsPolicy allows the listed origins ("*" allows any) with credentials,
// every method and the headers the dashboard and devices send.
func corsPolicy(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowAll || allowed[origin]
		},
		AllowMethods: []string{
			http.MethodDelete, http.MethodGet, http.MethodHead, http.MethodOptions,
			http.MethodPatch, http.MethodPost, http.MethodPut,
		},
		AllowHeaders: []string{
			"Origin", "Accept", "Authorization", "Content-Type", "Content-Length", requestIDHeader,
		},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	})
}
