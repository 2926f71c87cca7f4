package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pollboard/internal/service"
)

type SystemSettingsHandler struct {
	Settings *service.SystemSettingsService
}

func (h *SystemSettingsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v2/settings")
	group.GET("/:key", h.get)
	group.PUT("/:key", h.put)
}

// @Summary Read a feature switch
// @Tags settings
// @Param key path string true "setting key"
// @Success 200 {object} map[string]any
// @Router /api/v2/settings/{key} [get]
func (h *SystemSettingsHandler) get(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		Error(c, http.StatusBadRequest, "key required", nil)
		return
	}
	enabled := h.Settings.IsEnabled(c.Request.Context(), key, false)
	Ok(c, gin.H{"key": key, "enabled": enabled}, nil)
}

type putSettingRequest struct {
	Enabled bool `json:"enabled"`
}

// @Summary Set a feature switch
// @Tags settings
// @Param key path string true "setting key"
// @Success 200 {object} map[string]any
// @Router /api/v2/settings/{key} [put]
func (h *SystemSettingsHandler) put(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		Error(c, http.StatusBadRequest, "key required", nil)
		return
	}
	var req putSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, req.Enabled); err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"key": key, "enabled": req.Enabled}, nil)
}
