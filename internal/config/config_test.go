package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/exposure-cli/internal/risk"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "exposure.db", cfg.Store.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Validation.MinVertices)
	assert.Equal(t, 500, cfg.Validation.MaxVertices)
	assert.InDelta(t, 50000, cfg.Validation.MaxAreaKm2, 0.001)
	assert.False(t, cfg.Validation.AllowSelfIntersection)
	assert.Equal(t, 2000, cfg.Sampling.MaxPoints)
	assert.Equal(t, 256, cfg.Sampling.CacheEntries)
	assert.Equal(t, "file", cfg.Gateway.Driver)
	assert.Equal(t, 5000, cfg.Gateway.TimeoutMs)
	assert.Equal(t, 500, cfg.Gateway.BatchSize)
	assert.Equal(t, 3, cfg.Gateway.MaxAttempts)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrentAssets)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrentHazards)
	assert.Empty(t, cfg.Layers)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/exposure
log:
  level: debug
  format: console
server:
  port: 9090
sampling:
  max_points: 500
layers:
  - name: flood
    unit: m
    source: flood.asc
    thresholds:
      - {upper_bound: 0.5, label: Low}
      - {upper_bound: 1.5, label: Medium}
    overflow_label: High
    nodata: -9999
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Sampling.MaxPoints)
	// Defaults still apply for unset values
	assert.Equal(t, 4_000_000, cfg.Sampling.MaxCandidates)

	refs, err := cfg.LayerRefs()
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "flood", refs[0].Name)
	assert.Equal(t, []string{"Low", "Medium", "High"}, refs[0].Bands())
	require.NotNil(t, refs[0].NoData)
	assert.Equal(t, -9999.0, *refs[0].NoData)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("EXPOSURE_STORE_DRIVER", "postgres")
	t.Setenv("EXPOSURE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("EXPOSURE_SERVER_PORT", "3000")
	t.Setenv("EXPOSURE_GATEWAY_TIMEOUT_MS", "250")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 250, cfg.Gateway.TimeoutMs)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "exposure.db"
	cfg.Gateway.Driver = "file"
	cfg.Gateway.RasterDir = "rasters"
	cfg.Gateway.RasterSchema = "hazard"
	cfg.Gateway.TimeoutMs = 5000
	cfg.Gateway.MaxAttempts = 3
	cfg.Engine.MaxConcurrentAssets = 4
	cfg.Engine.MaxConcurrentHazards = 4
	cfg.Sampling.MaxPoints = 2000
	cfg.Validation.MinVertices = 3
	cfg.Validation.MaxVertices = 500
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"profile", "store", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateStore_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/exposure"
	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateStore_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must be postgres or sqlite")
}

func TestValidateGateway_PostGISFallsBackToStoreURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Gateway.Driver = "postgis"

	err := cfg.Validate("profile")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.database_url")

	cfg.Store.DatabaseURL = "postgres://localhost/main"
	assert.NoError(t, cfg.Validate("profile"))
	assert.Equal(t, "postgres://localhost/main", cfg.Gateway.PostGISURL(cfg.Store))

	cfg.Gateway.DatabaseURL = "postgres://localhost/rasters"
	assert.Equal(t, "postgres://localhost/rasters", cfg.Gateway.PostGISURL(cfg.Store))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Engine.MaxConcurrentAssets = 0
	err := cfg.Validate("profile")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_assets must be between 1 and 64")

	cfg.Engine.MaxConcurrentAssets = 65
	assert.Error(t, cfg.Validate("profile"))

	cfg.Engine.MaxConcurrentAssets = 64
	assert.NoError(t, cfg.Validate("profile"))
}

func TestValidateGatewayAttempts(t *testing.T) {
	cfg := validDefaults()
	cfg.Gateway.MaxAttempts = 0

	err := cfg.Validate("profile")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.max_attempts")
}

func TestDefaultLayers_Valid(t *testing.T) {
	refs := DefaultLayers()
	require.NoError(t, validateLayers(refs))

	byName := make(map[string]risk.HazardLayerRef)
	for _, r := range refs {
		byName[r.Name] = r
	}

	flood := byName["flood_baseline"]
	_, band := flood.Classify(3.0)
	assert.Equal(t, risk.BandVeryHigh, band)

	// Lower elevation means higher risk.
	slr := byName["sea_level_rise"]
	require.True(t, slr.Reversed)
	_, band = slr.Classify(12)
	assert.Equal(t, risk.BandLow, band)
	_, band = slr.Classify(1)
	assert.Equal(t, risk.BandVeryHigh, band)

	landslide := byName["landslide_baseline"]
	_, band = landslide.Classify(1.2)
	assert.Equal(t, risk.BandMedium, band)
}

func TestLoadLayerCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layers.yaml")
	catalog := `
layers:
  - name: surge
    unit: m
    thresholds:
      - {upper_bound: 0.5, label: Low}
      - {upper_bound: 1.5, label: Medium}
      - {upper_bound: 3.0, label: High}
  - name: elevation
    unit: m
    reversed: true
    thresholds:
      - {upper_bound: 2, label: Low}
      - {upper_bound: 5, label: Medium}
      - {upper_bound: 10, label: High}
`
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o644))

	refs, err := LoadLayerCatalog(path)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.True(t, refs[1].Reversed)
	assert.Equal(t, "Very High", refs[0].Bands()[3])

	cfg := &Config{LayerCatalog: path}
	fromCfg, err := cfg.LayerRefs()
	require.NoError(t, err)
	assert.Equal(t, refs, fromCfg)
}

func TestLoadLayerCatalog_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadLayerCatalog(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("layers: []\n"), 0o644))
	_, err = LoadLayerCatalog(empty)
	assert.Error(t, err)

	unordered := filepath.Join(dir, "unordered.yaml")
	require.NoError(t, os.WriteFile(unordered, []byte(`
layers:
  - name: x
    thresholds:
      - {upper_bound: 2, label: Low}
      - {upper_bound: 1, label: High}
`), 0o644))
	_, err = LoadLayerCatalog(unordered)
	assert.Error(t, err)
}

func TestLayerRefs_DefaultsWhenUnset(t *testing.T) {
	refs, err := (&Config{}).LayerRefs()
	require.NoError(t, err)
	assert.Equal(t, DefaultLayers(), refs)
}

func TestSelectLayers(t *testing.T) {
	refs := DefaultLayers()

	all, err := SelectLayers(refs, nil)
	require.NoError(t, err)
	assert.Len(t, all, len(refs))

	picked, err := SelectLayers(refs, []string{"heat_baseline", " flood_baseline"})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "heat_baseline", picked[0].Name)
	assert.Equal(t, "flood_baseline", picked[1].Name)

	_, err = SelectLayers(refs, []string{"flood_baseline", "volcano"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "volcano")
}

func TestLayerSources(t *testing.T) {
	src := LayerSources(DefaultLayers())
	assert.Equal(t, "flood_100yr.asc", src["flood_baseline"])
}

func TestPostGISTables(t *testing.T) {
	refs := []risk.HazardLayerRef{
		{Name: "flood_baseline", Source: "rasters/Flood_100yr.asc"},
		{Name: "heat"},
	}
	tables := PostGISTables(refs, "hazard")
	assert.Equal(t, "hazard.flood_100yr", tables["flood_baseline"])
	assert.Equal(t, "hazard.heat", tables["heat"])
}
