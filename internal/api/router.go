package api

import (
	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/config"
	"whatsapp-blaster/internal/database"
	"whatsapp-blaster/internal/webhook"
	"whatsapp-blaster/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Store   *database.Store
	Live    *config.Live
	Service *campaign.Service
	Webhook *webhook.Handler
	Hub     *ws.Hub
	Logger  *zap.Logger
}

// CORS allows the dashboard to call the API from another origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.Default()
	r.Use(CORS())

	contactHandler := NewContactHandler(d.Store, d.Logger)
	catalogHandler := NewCatalogHandler(d.Store)
	campaignHandler := NewCampaignHandler(d.Service, d.Store)
	settingsHandler := NewSettingsHandler(d.Store.DB(), d.Live)
	dashboardHandler := NewDashboardHandler(d.Store)

	// Webhook Routes
	if d.Webhook != nil {
		r.GET("/webhook", d.Webhook.VerifyWebhook)
		r.POST("/webhook", d.Webhook.HandleMessage)
	}

	if d.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			d.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/messages", dashboardHandler.GetMessages)
		apiGroup.GET("/stats", dashboardHandler.GetStats)

		apiGroup.GET("/contacts", contactHandler.GetContacts)
		apiGroup.POST("/contacts", contactHandler.CreateContacts)
		apiGroup.GET("/contacts/export", contactHandler.ExportContacts)
		apiGroup.POST("/contacts/reset", contactHandler.ResetContacts)

		catalogGroup := apiGroup.Group("/catalog")
		{
			catalogGroup.GET("/messages", catalogHandler.GetMessages)
			catalogGroup.PUT("/messages", catalogHandler.PutMessages)
			catalogGroup.GET("/attachments/:kind", catalogHandler.GetAttachments)
			catalogGroup.PUT("/attachments/:kind", catalogHandler.PutAttachments)
			catalogGroup.GET("/placeholders", catalogHandler.GetPlaceholders)
			catalogGroup.PUT("/placeholders", catalogHandler.PutPlaceholders)
		}

		campaignGroup := apiGroup.Group("/campaign")
		{
			campaignGroup.POST("/start", campaignHandler.Start)
			campaignGroup.POST("/stop", campaignHandler.Stop)
			campaignGroup.GET("/status", campaignHandler.Status)
			campaignGroup.GET("/runs", campaignHandler.Runs)
		}

		apiGroup.GET("/settings", settingsHandler.GetSettings)
		apiGroup.PUT("/settings", settingsHandler.UpdateSettings)
	}

	return r
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
