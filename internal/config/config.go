package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"autoledger/internal/domain"
)

// Config is loaded from a YAML file, then overridden by environment
// variables. Category rules keep their file order: the first matching
// keyword wins.
type Config struct {
	DBPath     string `yaml:"db_path"`
	ListenAddr string `yaml:"listen_addr"`

	SpreadsheetID     string `yaml:"spreadsheet_id"`
	SheetTab          string `yaml:"sheet_tab"`
	GoogleCredentials string `yaml:"google_credentials"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	DrainSchedule string `yaml:"drain_schedule"`
	DrainOnStart  bool   `yaml:"drain_on_start"`

	AllowedSources  []string              `yaml:"allowed_sources"`
	ExcludedSources []string              `yaml:"excluded_sources"`
	CategoryRules   []domain.CategoryRule `yaml:"category_rules"`

	HTTPTimeoutSeconds int `yaml:"http_timeout_seconds"`
}

// Load reads the config file (CONFIG_PATH or ./autoledger.yaml), applies env
// overrides and defaults, and validates. A missing file is fine: everything
// has a default or can come from the environment.
func Load() (Config, error) {
	var cfg Config

	path := "autoledger.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		path = envPath
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.SpreadsheetID, "SPREADSHEET_ID")
	envOverride(&cfg.SheetTab, "SHEET_TAB")
	envOverride(&cfg.GoogleCredentials, "GOOGLE_CREDENTIALS")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.DrainSchedule, "DRAIN_SCHEDULE")
	if err := envOverrideInt(&cfg.HTTPTimeoutSeconds, "HTTP_TIMEOUT_SECONDS"); err != nil {
		return Config{}, err
	}
	if err := envOverrideBool(&cfg.DrainOnStart, "DRAIN_ON_START"); err != nil {
		return Config{}, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "./autoledger.db"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.SheetTab == "" {
		c.SheetTab = "Transactions"
	}
	if c.HTTPTimeoutSeconds == 0 {
		c.HTTPTimeoutSeconds = 30
	}
	if len(c.CategoryRules) == 0 {
		c.CategoryRules = DefaultCategoryRules()
	}
}

func (c *Config) validate() error {
	if c.DrainSchedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.DrainSchedule); err != nil {
			return fmt.Errorf("invalid drain_schedule %q: %w", c.DrainSchedule, err)
		}
	}
	if c.HTTPTimeoutSeconds < 1 {
		return fmt.Errorf("invalid http_timeout_seconds %d: must be >= 1", c.HTTPTimeoutSeconds)
	}
	if (c.SlackBotToken == "") != (c.SlackChannelID == "") {
		return fmt.Errorf("slack_bot_token and slack_channel_id must be set together")
	}
	for _, rule := range c.CategoryRules {
		if rule.Keyword == "" || rule.Category == "" {
			return fmt.Errorf("category rule %+v: keyword and category are required", rule)
		}
	}
	return nil
}

// SlackEnabled reports whether outcome notifications should be posted.
func (c Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

// SinkConfigured reports whether a spreadsheet target is set. Its absence is
// a legitimate state: records accumulate as PENDING until one is configured.
func (c Config) SinkConfigured() bool {
	return c.SpreadsheetID != ""
}

// Ruleset builds the initial classifier snapshot from the config.
func (c Config) Ruleset() domain.Ruleset {
	return domain.NewRuleset(c.AllowedSources, c.ExcludedSources, c.CategoryRules)
}

// DefaultCategoryRules is the out-of-the-box keyword mapping, used when the
// config file defines none.
func DefaultCategoryRules() []domain.CategoryRule {
	return []domain.CategoryRule{
		{Keyword: "dunkin", Category: "Coffee/Snacks"},
		{Keyword: "starbucks", Category: "Coffee/Snacks"},
		{Keyword: "grocery", Category: "Food"},
		{Keyword: "pharmacy", Category: "Health/Medical"},
		{Keyword: "rent", Category: "Rent/Utilities"},
		{Keyword: "electric", Category: "Rent/Utilities"},
		{Keyword: "uber", Category: "Transportation"},
		{Keyword: "lyft", Category: "Transportation"},
		{Keyword: "gas", Category: "Transportation"},
		{Keyword: "mcdonald", Category: "Dining/Fast Food"},
		{Keyword: "chipotle", Category: "Dining/Fast Food"},
		{Keyword: "airline", Category: "Travel"},
		{Keyword: "hotel", Category: "Travel"},
	}
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	val := os.Getenv(envKey)
	if val == "" {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", envKey, val, err)
	}
	*field = parsed
	return nil
}

func envOverrideBool(field *bool, envKey string) error {
	val := os.Getenv(envKey)
	if val == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", envKey, val, err)
	}
	*field = parsed
	return nil
}
