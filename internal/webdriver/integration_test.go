//go:build integration

package webdriver

import (
	"context"
	"os"
	"testing"
	"time"

	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Needs a Chrome binary and a profile already logged in to WhatsApp Web.
// BLASTER_TEST_PHONE is the recipient; BLASTER_TEST_PROFILE the profile root.
func TestSendTextLive(t *testing.T) {
	phone := os.Getenv("BLASTER_TEST_PHONE")
	if phone == "" {
		t.Skip("BLASTER_TEST_PHONE not set")
	}
	settings := config.Default().Browser
	if root := os.Getenv("BLASTER_TEST_PROFILE"); root != "" {
		settings.UserDataRoot = root
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	l := &Launcher{Settings: settings, Logger: zaptest.NewLogger(t)}
	d, err := l.Launch(ctx, 0)
	require.NoError(t, err)
	defer d.Close()

	res, err := d.SendText(ctx, phone, "integration+test")
	require.NoError(t, err)
	require.Equal(t, campaign.SendSent, res)
}
