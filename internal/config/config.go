package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const MaxLanes = 8

type Config struct {
	Port           string   `yaml:"port"`
	VerifyToken    string   `yaml:"verify_token"`
	WhatsAppToken  string   `yaml:"whatsapp_token"`
	PhoneNumberIDs []string `yaml:"phone_number_ids"`
	GraphAPIURL    string   `yaml:"graph_api_url"`

	DBDriver   string `yaml:"db_driver"`
	DBPath     string `yaml:"db_path"`
	DBHost     string `yaml:"db_host"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBPort     string `yaml:"db_port"`
	DBSSLMode  string `yaml:"db_sslmode"`

	// Executor selects the delivery channel: "web" drives WhatsApp Web in a
	// browser, "cloud" uses the Graph API.
	Executor     string `yaml:"executor"`
	SettingsFile string `yaml:"-"`
	LogLevel     string `yaml:"log_level"`

	Campaign CampaignSettings `yaml:"campaign"`
	Browser  BrowserSettings  `yaml:"browser"`
}

type CampaignSettings struct {
	MinDelay       time.Duration `yaml:"min_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	AttachMinDelay time.Duration `yaml:"attach_min_delay"`
	AttachMaxDelay time.Duration `yaml:"attach_max_delay"`
	Lanes          int           `yaml:"lanes"`
	FlushTimeout   time.Duration `yaml:"flush_timeout"`
	LockStaleAfter time.Duration `yaml:"lock_stale_after"`
	LockAttempts   int           `yaml:"lock_attempts"`
	LockRetryDelay time.Duration `yaml:"lock_retry_delay"`
}

type BrowserSettings struct {
	Bin               string        `yaml:"bin"`
	UserDataRoot      string        `yaml:"user_data_root"`
	Headless          bool          `yaml:"headless"`
	UserAgent         string        `yaml:"user_agent"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	InvalidMarkerText string        `yaml:"invalid_marker_text"`
	Selectors         Selectors     `yaml:"selectors"`
}

// Selectors are the XPath expressions used to drive WhatsApp Web.
type Selectors struct {
	Text       string `yaml:"text"`
	Send       string `yaml:"send"`
	Attach     string `yaml:"attach"`
	AttachSend string `yaml:"attach_send"`
	Docs       string `yaml:"docs"`
	Media      string `yaml:"media"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Port:        "8080",
		GraphAPIURL: "https://graph.facebook.com/v22.0",
		DBDriver:    "sqlite",
		DBPath:      "./blaster.db",
		DBHost:      "localhost",
		DBPort:      "5432",
		DBSSLMode:   "disable",
		Executor:    "web",
		LogLevel:    "info",
		Campaign: CampaignSettings{
			MinDelay:       2 * time.Second,
			MaxDelay:       5 * time.Second,
			AttachMinDelay: time.Second,
			AttachMaxDelay: 2 * time.Second,
			Lanes:          2,
			FlushTimeout:   30 * time.Second,
			LockStaleAfter: 60 * time.Second,
			LockAttempts:   3,
			LockRetryDelay: 2 * time.Second,
		},
		Browser: BrowserSettings{
			UserDataRoot:      "./profiles",
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36 Edg/110.0.1587.69",
			NavigationTimeout: 15 * time.Second,
			InvalidMarkerText: "Phone number shared via url is invalid",
			Selectors: Selectors{
				Text:       `/html/body/div[1]/div/div/div[3]/div/div[4]/div/footer/div[1]/div/span/div/div[2]/div[1]/div[2]/div[1]`,
				Send:       `/html/body/div[1]/div/div/div[3]/div/div[4]/div/footer/div[1]/div/span/div/div[2]/div[2]/button`,
				Attach:     `/html/body/div[1]/div/div/div[3]/div/div[4]/div/footer/div[1]/div/span/div/div[1]/div/button`,
				AttachSend: `/html/body/div[1]/div/div/div[3]/div/div[2]/div[2]/span/div/div/div/div[2]/div/div[2]/div[2]/div/div`,
				Docs:       `//*[@id="app"]/div/span[5]/div/ul/div/div/div[1]/li/div/span`,
				Media:      `//*[@id="app"]/div/span[5]/div/ul/div/div/div[2]/li/div/span`,
			},
		},
	}
}

// LoadConfig layers defaults, the optional YAML settings file and the
// environment (including .env), then validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	cfg := Default()
	cfg.SettingsFile = getEnv("SETTINGS_FILE", "")
	if cfg.SettingsFile != "" {
		if err := cfg.LoadFile(cfg.SettingsFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.VerifyToken = getEnv("VERIFY_TOKEN", c.VerifyToken)
	c.WhatsAppToken = getEnv("WHATSAPP_TOKEN", c.WhatsAppToken)
	c.GraphAPIURL = getEnv("GRAPH_API_URL", c.GraphAPIURL)
	if ids := getEnv("PHONE_NUMBER_IDS", getEnv("PHONE_NUMBER_ID", "")); ids != "" {
		c.PhoneNumberIDs = SplitList(ids)
	}

	c.DBDriver = getEnv("DB_DRIVER", c.DBDriver)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBSSLMode = getEnv("DB_SSLMODE", c.DBSSLMode)

	c.Executor = getEnv("EXECUTOR", c.Executor)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	for key, dst := range map[string]*string{
		"BSR_PATH":    &c.Browser.Bin,
		"USER_AGENT":  &c.Browser.UserAgent,
		"INVALID_MSG": &c.Browser.InvalidMarkerText,
		"PROFILE_DIR": &c.Browser.UserDataRoot,
	} {
		*dst = getEnv(key, *dst)
	}

	var errs []error
	for key, dst := range map[string]*time.Duration{
		"MIN_TIMER": &c.Campaign.MinDelay,
		"MAX_TIMER": &c.Campaign.MaxDelay,
	} {
		if v, ok := os.LookupEnv(key); ok {
			d, err := ParseSeconds(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = d
		}
	}
	if v, ok := os.LookupEnv("LANES"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("LANES: %w", err))
		} else {
			c.Campaign.Lanes = n
		}
	}
	if v, ok := os.LookupEnv("HEADLESS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("HEADLESS: %w", err))
		} else {
			c.Browser.Headless = b
		}
	}
	return errors.Join(errs...)
}

// Validate checks the assembled configuration once all layers are applied.
func (c *Config) Validate() error {
	var errs []error
	cs := c.Campaign
	if cs.MinDelay < 0 || cs.AttachMinDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if cs.MaxDelay < cs.MinDelay {
		errs = append(errs, fmt.Errorf("max delay %s is below min delay %s", cs.MaxDelay, cs.MinDelay))
	}
	if cs.AttachMaxDelay < cs.AttachMinDelay {
		errs = append(errs, fmt.Errorf("attachment max delay %s is below min delay %s", cs.AttachMaxDelay, cs.AttachMinDelay))
	}
	if cs.Lanes < 1 || cs.Lanes > MaxLanes {
		errs = append(errs, fmt.Errorf("lanes must be between 1 and %d, got %d", MaxLanes, cs.Lanes))
	}
	if cs.FlushTimeout <= 0 || cs.LockStaleAfter <= 0 || cs.LockAttempts < 1 {
		errs = append(errs, errors.New("flush timeout, lock staleness and lock attempts must be positive"))
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	switch c.Executor {
	case "web":
	case "cloud":
		if len(c.PhoneNumberIDs) == 0 {
			errs = append(errs, errors.New("cloud executor needs at least one PHONE_NUMBER_IDS entry"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EXECUTOR %q", c.Executor))
	}
	return errors.Join(errs...)
}

// PostgresDSN builds the connection string for the postgres driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// ParseSeconds reads a delay written as seconds ("2", "2.5") or as a Go
// duration ("2500ms").
func ParseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
