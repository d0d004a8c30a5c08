package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yahyamohmuedpro99/csv-formater/internal/keys"
	"github.com/yahyamohmuedpro99/csv-formater/internal/process"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/config"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/metrics"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/server/middleware"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router wires up.
type RouterDeps struct {
	Config         config.Config
	ProcessHandler *process.Handler
	KeysHandler    *keys.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT": {Rate: 5, Burst: 20},
				"PROCESS": {Rate: 0.2, Burst: 2},
			},
			GroupFor: func(c *gin.Context) string {
				if c.Request.Method == http.MethodPost && strings.HasSuffix(c.Request.URL.Path, "/process") {
					return "PROCESS"
				}
				return "DEFAULT"
			},
		}),
	)

	process.RegisterPage(r)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	if deps.ProcessHandler != nil {
		deps.ProcessHandler.RegisterRoutes(api)
	}
	if deps.KeysHandler != nil {
		deps.KeysHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
