package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autoledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "./autoledger.db", cfg.DBPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "Transactions", cfg.SheetTab)
	assert.Equal(t, 30, cfg.HTTPTimeoutSeconds)
	assert.False(t, cfg.SinkConfigured())
	assert.False(t, cfg.SlackEnabled())
	assert.NotEmpty(t, cfg.CategoryRules)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	writeConfig(t, `
db_path: /tmp/file.db
spreadsheet_id: sheet-from-file
sheet_tab: Budget
`)
	t.Setenv("SPREADSHEET_ID", "sheet-from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/file.db", cfg.DBPath)
	// Env beats file.
	assert.Equal(t, "sheet-from-env", cfg.SpreadsheetID)
	assert.Equal(t, "Budget", cfg.SheetTab)
	assert.True(t, cfg.SinkConfigured())
}

func TestCategoryRulesKeepFileOrder(t *testing.T) {
	writeConfig(t, `
category_rules:
  - keyword: coffee
    category: Coffee/Snacks
  - keyword: blue bottle
    category: Dining/Fast Food
  - keyword: uber
    category: Transportation
`)

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.CategoryRules, 3)
	assert.Equal(t, "coffee", cfg.CategoryRules[0].Keyword)
	assert.Equal(t, "blue bottle", cfg.CategoryRules[1].Keyword)
	assert.Equal(t, "uber", cfg.CategoryRules[2].Keyword)
}

func TestInvalidDrainSchedule(t *testing.T) {
	writeConfig(t, `
drain_schedule: "not a cron line"
`)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drain_schedule")
}

func TestSlackRequiresBothFields(t *testing.T) {
	writeConfig(t, `
slack_bot_token: xoxb-test
`)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack")
}

func TestIncompleteCategoryRuleRejected(t *testing.T) {
	writeConfig(t, `
category_rules:
  - keyword: coffee
`)

	_, err := Load()
	require.Error(t, err)
}

func TestRulesetIncludesSources(t *testing.T) {
	writeConfig(t, `
allowed_sources: [com.mycu.mobile]
excluded_sources: [com.spam.pay]
`)

	cfg, err := Load()
	require.NoError(t, err)
	rs := cfg.Ruleset()
	_, allowed := rs.Allowed["com.mycu.mobile"]
	_, excluded := rs.Excluded["com.spam.pay"]
	assert.True(t, allowed)
	assert.True(t, excluded)
}
