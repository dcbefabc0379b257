package api

import (
	"net/http"

	"whatsapp-blaster/internal/config"
	"whatsapp-blaster/internal/database"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SettingsHandler exposes the editable system settings. Changes apply to
// the next campaign run.
type SettingsHandler struct {
	DB   *gorm.DB
	Live *config.Live
}

func NewSettingsHandler(db *gorm.DB, live *config.Live) *SettingsHandler {
	return &SettingsHandler{DB: db, Live: live}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.Live.Snapshot().Settings())
}

func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var values map[string]string
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.Live.Update(func(cfg *config.Config) error {
		return database.SaveSettings(c.Request.Context(), h.DB, cfg, values)
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.Live.Snapshot().Settings())
}
