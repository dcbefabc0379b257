package api

import (
	"net/http"
	"strconv"

	"whatsapp-blaster/internal/database"

	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	Store *database.Store
}

func NewDashboardHandler(store *database.Store) *DashboardHandler {
	return &DashboardHandler{Store: store}
}

// GetMessages returns the newest entries of the message log: outgoing
// Cloud API sends and inbound webhook messages.
func (h *DashboardHandler) GetMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	messages, err := h.Store.ListMessages(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *DashboardHandler) GetStats(c *gin.Context) {
	counts, err := h.Store.StatusCounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "by_status": counts})
}
