package whatsapp

import (
	"context"
	"fmt"
	"net/http"

	"whatsapp-blaster/internal/campaign"

	"go.uber.org/zap"
)

// Launcher opens one Cloud API client per lane. Lane i sends from the i-th
// configured phone number id.
type Launcher struct {
	BaseURL        string
	Token          string
	PhoneNumberIDs []string
	Recorder       Recorder
	Logger         *zap.Logger
	// HTTP overrides the client used by every lane. Tests point it at an
	// httptest server.
	HTTP *http.Client
}

func (l *Launcher) Launch(ctx context.Context, lane int) (campaign.Driver, error) {
	if lane < 0 || lane >= len(l.PhoneNumberIDs) {
		return nil, fmt.Errorf("lane %d: no phone number id configured (have %d)", lane, len(l.PhoneNumberIDs))
	}
	client := NewClient(l.BaseURL, l.Token, l.PhoneNumberIDs[lane], l.Recorder, l.Logger)
	if l.HTTP != nil {
		client.HTTP = l.HTTP
	}
	if !client.Alive(ctx) {
		return nil, fmt.Errorf("lane %d: phone number %s is not reachable", lane, l.PhoneNumberIDs[lane])
	}
	client.Logger.Info("cloud api lane ready", zap.Int("lane", lane))
	return client, nil
}
