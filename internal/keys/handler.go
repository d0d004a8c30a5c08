package keys

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/server/respond"
)

// Handler exposes read-only key usage over HTTP.
type Handler struct {
	rotator *Rotator
}

// NewHandler constructs a Handler.
func NewHandler(rotator *Rotator) *Handler {
	return &Handler{rotator: rotator}
}

// RegisterRoutes registers the usage routes on the group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/keys/usage", h.usage)
}

func (h *Handler) usage(c *gin.Context) {
	if h.rotator == nil {
		respond.Error(c, http.StatusServiceUnavailable, "not_configured", "no API keys configured", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"quota": h.rotator.Quota(),
		"keys":  h.rotator.Usage(),
	})
}
