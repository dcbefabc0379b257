package api

import (
	"errors"
	"net/http"
	"strconv"

	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/database"

	"github.com/gin-gonic/gin"
)

type CampaignHandler struct {
	Service *campaign.Service
	Store   *database.Store
}

func NewCampaignHandler(service *campaign.Service, store *database.Store) *CampaignHandler {
	return &CampaignHandler{Service: service, Store: store}
}

func (h *CampaignHandler) Start(c *gin.Context) {
	id, err := h.Service.Start(c.Request.Context())
	if errors.Is(err, campaign.ErrAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start campaign: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "Campaign started", "run_id": id})
}

func (h *CampaignHandler) Stop(c *gin.Context) {
	if !h.Service.Stop() {
		c.JSON(http.StatusConflict, gin.H{"error": "no campaign is running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "Stopping campaign"})
}

// Status returns the run state together with the current status counts.
func (h *CampaignHandler) Status(c *gin.Context) {
	counts, err := h.Store.StatusCounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.Service.State(), "counts": counts})
}

func (h *CampaignHandler) Runs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	runs, err := h.Store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, runs)
}
