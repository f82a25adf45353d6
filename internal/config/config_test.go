package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 0.20, cfg.Commissions.DefaultRate)
	assert.Equal(t, "fail_open", cfg.Cache.RateLimitFailMode)
}

func TestLoadConfig_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := `
database:
  type: sqlite
  sqlite:
    path: /tmp/test.db
listings:
  hits_per_page: 10
  default_areas: ["5002"]
payouts:
  minimum_cents: 10000
sync:
  area_concurrency: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "/tmp/test.db", cfg.Database.SQLite.Path)
	assert.Equal(t, 10, cfg.Listings.HitsPerPage)
	assert.Equal(t, []string{"5002"}, cfg.Listings.DefaultAreas)
	assert.Equal(t, int64(10000), cfg.Payouts.MinimumCents)
	assert.Equal(t, 4, cfg.Sync.AreaConcurrency)

	// untouched sections keep defaults
	assert.Equal(t, "bayut.p.rapidapi.com", cfg.Listings.Host)
	assert.Equal(t, "usd", cfg.Payouts.Currency)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unterminated"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DB_TYPE", "mysql")
	t.Setenv("DB_HOST", "mysql.internal")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("BAYUT_API_KEY", "rapid-key")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, "mysql.internal", cfg.Database.MySQL.Host)
	assert.Equal(t, 3307, cfg.Database.MySQL.Port)
	assert.Equal(t, "rapid-key", cfg.Listings.APIKey)
	assert.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Not/AZone"
	assert.Equal(t, "UTC", cfg.Location().String())
}
