package api

import (
	"encoding/csv"
	"net/http"
	"sort"
	"strconv"

	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/database"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ContactHandler struct {
	Store  *database.Store
	Logger *zap.Logger
}

func NewContactHandler(store *database.Store, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{Store: store, Logger: orNop(logger)}
}

// GetContacts lists contacts in campaign order. Optional query parameters:
// status (name or code), limit, offset.
func (h *ContactHandler) GetContacts(c *gin.Context) {
	var filter database.ContactFilter
	if v := c.Query("status"); v != "" {
		s := campaign.ParseStatus(v)
		filter.Status = &s
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	contacts, total, err := h.Store.ListContacts(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts, "total": total})
}

// ContactRequest is one row of a bulk upsert. Status accepts a name or a
// numeric code; empty means PENDING.
type ContactRequest struct {
	Phone     string            `json:"phone" binding:"required"`
	MsgCode   string            `json:"msg_code"`
	DocCode   string            `json:"doc_code"`
	MediaCode string            `json:"media_code"`
	Status    string            `json:"status"`
	Fields    map[string]string `json:"fields"`
}

func (h *ContactHandler) CreateContacts(c *gin.Context) {
	var req []ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contacts := make([]campaign.Contact, 0, len(req))
	for _, r := range req {
		contacts = append(contacts, campaign.Contact{
			Phone:     r.Phone,
			MsgCode:   r.MsgCode,
			DocCode:   r.DocCode,
			MediaCode: r.MediaCode,
			Fields:    r.Fields,
			Status:    campaign.ParseStatus(r.Status),
		})
	}
	n, err := h.Store.UpsertContacts(c.Request.Context(), contacts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save contacts: " + err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "Contacts saved", "count": n})
}

type ResetRequest struct {
	// Statuses limits the reset; empty resets every contact.
	Statuses []string `json:"statuses"`
}

// ResetContacts puts contacts back to PENDING so the next run picks them up.
func (h *ContactHandler) ResetContacts(c *gin.Context) {
	var req ResetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	only := make([]campaign.Status, 0, len(req.Statuses))
	for _, s := range req.Statuses {
		only = append(only, campaign.ParseStatus(s))
	}
	n, err := h.Store.ResetStatuses(c.Request.Context(), only...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Contacts reset", "count": n})
}

// ExportContacts streams the contact list as CSV, one column per field.
func (h *ContactHandler) ExportContacts(c *gin.Context) {
	contacts, _, err := h.Store.ListContacts(c.Request.Context(), database.ContactFilter{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	seen := map[string]bool{}
	var fields []string
	for _, ct := range contacts {
		for k := range ct.Fields {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
	}
	sort.Strings(fields)

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=contacts.csv")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	header := append([]string{"Phone", "MsgCode", "DocCode", "MediaCode", "Status"}, fields...)
	if err := w.Write(header); err != nil {
		h.Logger.Warn("export contacts", zap.Error(err))
		return
	}
	for _, ct := range contacts {
		row := []string{ct.Phone, ct.MsgCode, ct.DocCode, ct.MediaCode, ct.Status.String()}
		for _, f := range fields {
			row = append(row, ct.Fields[f])
		}
		if err := w.Write(row); err != nil {
			h.Logger.Warn("export contacts", zap.Error(err))
			return
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.Logger.Warn("export contacts", zap.Error(err))
	}
}
