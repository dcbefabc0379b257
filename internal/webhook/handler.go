package webhook

import (
	"context"
	"net/http"

	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/models"
	"whatsapp-blaster/internal/whatsapp"
	wh "whatsapp-blaster/pkg/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MessageStore is the message log the webhook writes to.
type MessageStore interface {
	RecordMessage(ctx context.Context, msg *models.Message) error
	UpdateMessageStatus(ctx context.Context, waID, status string) error
}

// StatusFlusher writes contact statuses under the store lock.
type StatusFlusher interface {
	Flush(ctx context.Context, statuses map[string]campaign.Status) error
}

// Notifier is told about every inbound message.
type Notifier interface {
	NotifyMessage(msg models.Message)
}

type Handler struct {
	VerifyToken string
	Store       MessageStore
	Flusher     StatusFlusher
	Notifier    Notifier
	Logger      *zap.Logger
}

func NewHandler(verifyToken string, store MessageStore, flusher StatusFlusher, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		VerifyToken: verifyToken,
		Store:       store,
		Flusher:     flusher,
		Notifier:    notifier,
		Logger:      logger,
	}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "" && token != "" {
		if mode == "subscribe" && token == h.VerifyToken {
			h.Logger.Info("webhook verified")
			c.String(http.StatusOK, challenge)
		} else {
			c.Status(http.StatusForbidden)
		}
	} else {
		c.Status(http.StatusBadRequest)
	}
}

func (h *Handler) HandleMessage(c *gin.Context) {
	var payload wh.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.Logger.Warn("bad webhook payload", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}
	ctx := c.Request.Context()

	invalid := make(map[string]campaign.Status)
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				h.storeInbound(ctx, msg)
			}
			for _, st := range change.Value.Statuses {
				if err := h.Store.UpdateMessageStatus(ctx, st.ID, st.Status); err != nil {
					h.Logger.Warn("update message status", zap.String("id", st.ID), zap.Error(err))
				}
				if phone, ok := invalidRecipient(st); ok {
					invalid[phone] = campaign.StatusInvalid
				}
			}
		}
	}

	if len(invalid) > 0 && h.Flusher != nil {
		if err := h.Flusher.Flush(ctx, invalid); err != nil {
			h.Logger.Error("flush invalid recipients", zap.Int("contacts", len(invalid)), zap.Error(err))
		} else {
			h.Logger.Info("marked invalid from delivery reports", zap.Int("contacts", len(invalid)))
		}
	}

	c.Status(http.StatusOK)
}

// invalidRecipient reports the normalized phone of a failed delivery whose
// error code means the number is not on WhatsApp.
func invalidRecipient(st wh.MessageStatus) (string, bool) {
	if st.Status != "failed" {
		return "", false
	}
	for _, e := range st.Errors {
		if whatsapp.IsInvalidRecipientCode(e.Code) {
			phone := campaign.NormalizePhone(st.RecipientId)
			return phone, phone != ""
		}
	}
	return "", false
}

func (h *Handler) storeInbound(ctx context.Context, message wh.InboundMessage) {
	record := models.Message{
		WaID:    message.ID,
		Sender:  message.From,
		Content: inboundContent(message),
		Type:    message.Type,
		Status:  "received",
	}
	h.Logger.Debug("received message", zap.String("from", message.From), zap.String("type", message.Type))
	if err := h.Store.RecordMessage(ctx, &record); err != nil {
		h.Logger.Error("store inbound message", zap.String("id", message.ID), zap.Error(err))
		return
	}
	if h.Notifier != nil {
		h.Notifier.NotifyMessage(record)
	}
}

func inboundContent(message wh.InboundMessage) string {
	switch message.Type {
	case "text":
		return message.Text.Body
	case "image":
		return mediaContent("image", message.Image, caption(message.Image))
	case "video":
		return mediaContent("video", message.Video, caption(message.Video))
	case "audio":
		return mediaContent("audio", message.Audio, "")
	case "document":
		name := ""
		if message.Document != nil {
			name = message.Document.Filename
		}
		return mediaContent("document", message.Document, name)
	case "interactive":
		if in := message.Interactive; in != nil {
			switch {
			case in.ButtonReply != nil:
				return "[button]:" + in.ButtonReply.Title
			case in.ListReply != nil:
				return "[list]:" + in.ListReply.Title
			}
		}
	}
	return "[" + message.Type + "]"
}

func caption(media *wh.MediaMessage) string {
	if media == nil {
		return ""
	}
	return media.Caption
}

func mediaContent(kind string, media *wh.MediaMessage, suffix string) string {
	if media == nil {
		return "[" + kind + "]"
	}
	content := "[" + kind + "]:" + media.ID
	if suffix != "" {
		content += ":" + suffix
	}
	return content
}
