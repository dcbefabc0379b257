package webdriver

import (
	"testing"

	"whatsapp-blaster/internal/campaign"

	"github.com/stretchr/testify/assert"
)

func TestSendURL(t *testing.T) {
	assert.Equal(t,
		"https://web.whatsapp.com/send?phone=60123&text=Hi+Ali%21&app_absent=0",
		SendURL("60123", "Hi+Ali%21"))
	assert.Equal(t, "https://web.whatsapp.com/send?phone=60123&app_absent=0", SendURL("60123", ""))
}

func TestInvalidPopupXPath(t *testing.T) {
	assert.Equal(t,
		`//div[contains(text(), "Phone number shared via url is invalid")]/ancestor::div[@role='dialog']//button`,
		InvalidPopupXPath("Phone number shared via url is invalid"))
}

func TestFileInputXPath(t *testing.T) {
	assert.Contains(t, fileInputXPath(campaign.KindMedia), "image")
	assert.Contains(t, fileInputXPath(campaign.KindDocument), `@accept="*"`)
}

func TestOnChat(t *testing.T) {
	assert.True(t, onChat(SendURL("60123", "hi"), "60123"))
	assert.False(t, onChat(SendURL("601234", ""), "60123"))
	assert.False(t, onChat("https://web.whatsapp.com/", "60123"))
	assert.False(t, onChat("::", "60123"))
}
