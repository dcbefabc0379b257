package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2*time.Second, cfg.Campaign.MinDelay)
	assert.Equal(t, 5*time.Second, cfg.Campaign.MaxDelay)
	assert.Equal(t, 2, cfg.Campaign.Lanes)
	assert.Equal(t, "Phone number shared via url is invalid", cfg.Browser.InvalidMarkerText)
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
executor: cloud
phone_number_ids: ["111"]
campaign:
  min_delay: 1s
  max_delay: 3s
  lanes: 3
browser:
  headless: true
  selectors:
    send: '//button[@aria-label="Send"]'
`), 0o644))

	t.Setenv("SETTINGS_FILE", file)
	t.Setenv("MAX_TIMER", "4.5")
	t.Setenv("PHONE_NUMBER_IDS", "111, 222,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "cloud", cfg.Executor)
	assert.Equal(t, time.Second, cfg.Campaign.MinDelay)
	assert.Equal(t, 4500*time.Millisecond, cfg.Campaign.MaxDelay)
	assert.Equal(t, 3, cfg.Campaign.Lanes)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, `//button[@aria-label="Send"]`, cfg.Browser.Selectors.Send)
	assert.NotEmpty(t, cfg.Browser.Selectors.Text, "unset selectors keep their defaults")
	assert.Equal(t, []string{"111", "222"}, cfg.PhoneNumberIDs)
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("MIN_TIMER", "soon")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_TIMER")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"delays out of order", func(c *Config) { c.Campaign.MaxDelay = time.Second }, "below min delay"},
		{"too many lanes", func(c *Config) { c.Campaign.Lanes = 9 }, "lanes must be between"},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "DB_DRIVER"},
		{"cloud without numbers", func(c *Config) { c.Executor = "cloud" }, "PHONE_NUMBER_IDS"},
		{"unknown executor", func(c *Config) { c.Executor = "carrier-pigeon" }, "EXECUTOR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Set("MIN_TIMER", "1.5"))
	require.NoError(t, cfg.Set("XPATH_DOCS", "//li[1]"))
	require.NoError(t, cfg.Set("HEADLESS", "true"))
	require.Error(t, cfg.Set("LANES", "two"))
	require.Error(t, cfg.Set("NOPE", "x"))

	got := cfg.Settings()
	assert.Equal(t, "1.5", got["MIN_TIMER"])
	assert.Equal(t, "5", got["MAX_TIMER"])
	assert.Equal(t, "//li[1]", got["XPATH_DOCS"])
	assert.Equal(t, "true", got["HEADLESS"])
	assert.Len(t, got, len(SettingKeys))
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	cfg.PhoneNumberIDs = []string{"1"}
	cp := cfg.Clone()
	cp.PhoneNumberIDs[0] = "2"
	cp.Campaign.Lanes = 5
	assert.Equal(t, "1", cfg.PhoneNumberIDs[0])
	assert.Equal(t, 2, cfg.Campaign.Lanes)
}

func TestLiveSnapshotIsolation(t *testing.T) {
	live := NewLive(Default())
	snap := live.Snapshot()

	require.NoError(t, live.Update(func(c *Config) error {
		return c.Set("LANES", "5")
	}))
	assert.Equal(t, 2, snap.Campaign.Lanes, "snapshot taken before the update keeps its value")
	assert.Equal(t, 5, live.Snapshot().Campaign.Lanes)
}
