package api

import (
	"net/http"
	"strings"

	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/database"

	"github.com/gin-gonic/gin"
)

// CatalogHandler edits the lookup tables a run reads: message templates,
// attachment groups and placeholder fields.
type CatalogHandler struct {
	Store *database.Store
}

func NewCatalogHandler(store *database.Store) *CatalogHandler {
	return &CatalogHandler{Store: store}
}

func (h *CatalogHandler) GetMessages(c *gin.Context) {
	texts, err := h.Store.MessageTexts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, texts)
}

func (h *CatalogHandler) PutMessages(c *gin.Context) {
	var texts map[string]string
	if err := c.ShouldBindJSON(&texts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.SetMessages(c.Request.Context(), texts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Messages saved", "count": len(texts)})
}

// attachmentKind maps the :kind path segment; "docs" and "documents" both
// select the document catalog.
func attachmentKind(c *gin.Context) (campaign.AttachmentKind, bool) {
	switch strings.ToLower(c.Param("kind")) {
	case "docs", "documents":
		return campaign.KindDocument, true
	case "media":
		return campaign.KindMedia, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be docs or media"})
	return "", false
}

func (h *CatalogHandler) GetAttachments(c *gin.Context) {
	kind, ok := attachmentKind(c)
	if !ok {
		return
	}
	groups, err := h.Store.AttachmentCatalog(c.Request.Context(), kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *CatalogHandler) PutAttachments(c *gin.Context) {
	kind, ok := attachmentKind(c)
	if !ok {
		return
	}
	var groups map[string][]string
	if err := c.ShouldBindJSON(&groups); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.SetAttachments(c.Request.Context(), kind, groups); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Attachments saved", "count": len(groups)})
}

func (h *CatalogHandler) GetPlaceholders(c *gin.Context) {
	fields, err := h.Store.FieldMap(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, fields)
}

func (h *CatalogHandler) PutPlaceholders(c *gin.Context) {
	var fields map[string]string
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.SetPlaceholders(c.Request.Context(), fields); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Placeholders saved", "count": len(fields)})
}
