package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"whatsapp-blaster/internal/campaign"
)

// SettingKeys are the keys that can be stored in the system_settings table
// and edited through the API, in display order.
var SettingKeys = []string{
	"MIN_TIMER",
	"MAX_TIMER",
	"LANES",
	"INVALID_MSG",
	"USER_AGENT",
	"BSR_PATH",
	"HEADLESS",
	"XPATH_TEXT",
	"XPATH_SEND",
	"XPATH_ATTACH",
	"XPATH_ASEND",
	"XPATH_DOCS",
	"XPATH_MEDIA",
}

// Get returns the current value of a setting key in its stored form.
func (c *Config) Get(key string) (string, bool) {
	switch key {
	case "MIN_TIMER":
		return formatSeconds(c.Campaign.MinDelay), true
	case "MAX_TIMER":
		return formatSeconds(c.Campaign.MaxDelay), true
	case "LANES":
		return strconv.Itoa(c.Campaign.Lanes), true
	case "HEADLESS":
		return strconv.FormatBool(c.Browser.Headless), true
	}
	if p := c.stringSetting(key); p != nil {
		return *p, true
	}
	return "", false
}

// Set applies a stored setting value. It does not validate the config as a
// whole; call Validate afterwards.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "MIN_TIMER", "MAX_TIMER":
		d, err := ParseSeconds(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if key == "MIN_TIMER" {
			c.Campaign.MinDelay = d
		} else {
			c.Campaign.MaxDelay = d
		}
		return nil
	case "LANES":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		c.Campaign.Lanes = n
		return nil
	case "HEADLESS":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		c.Browser.Headless = b
		return nil
	}
	if p := c.stringSetting(key); p != nil {
		*p = value
		return nil
	}
	return fmt.Errorf("unknown setting %q", key)
}

// Settings returns every setting key with its current value.
func (c *Config) Settings() map[string]string {
	out := make(map[string]string, len(SettingKeys))
	for _, k := range SettingKeys {
		out[k], _ = c.Get(k)
	}
	return out
}

func (c *Config) stringSetting(key string) *string {
	switch key {
	case "INVALID_MSG":
		return &c.Browser.InvalidMarkerText
	case "USER_AGENT":
		return &c.Browser.UserAgent
	case "BSR_PATH":
		return &c.Browser.Bin
	case "XPATH_TEXT":
		return &c.Browser.Selectors.Text
	case "XPATH_SEND":
		return &c.Browser.Selectors.Send
	case "XPATH_ATTACH":
		return &c.Browser.Selectors.Attach
	case "XPATH_ASEND":
		return &c.Browser.Selectors.AttachSend
	case "XPATH_DOCS":
		return &c.Browser.Selectors.Docs
	case "XPATH_MEDIA":
		return &c.Browser.Selectors.Media
	}
	return nil
}

// Clone returns a deep copy, so a running campaign keeps the settings it
// started with while the API edits the live config.
func (c *Config) Clone() *Config {
	cp := *c
	cp.PhoneNumberIDs = append([]string(nil), c.PhoneNumberIDs...)
	return &cp
}

// Options converts the campaign settings for the engine.
func (s CampaignSettings) Options() campaign.Options {
	return campaign.Options{
		Lanes: s.Lanes,
		Timing: campaign.Timing{
			MinDelay:       s.MinDelay,
			MaxDelay:       s.MaxDelay,
			AttachMinDelay: s.AttachMinDelay,
			AttachMaxDelay: s.AttachMaxDelay,
		},
		FlushTimeout: s.FlushTimeout,
	}
}

func (s CampaignSettings) Persist() campaign.PersistSettings {
	return campaign.PersistSettings{
		StaleAfter: s.LockStaleAfter,
		Attempts:   s.LockAttempts,
		RetryDelay: s.LockRetryDelay,
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
