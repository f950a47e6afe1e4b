package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/exposure-cli/internal/db"
	"github.com/sells-group/exposure-cli/internal/geometry"
	"github.com/sells-group/exposure-cli/internal/profile"
	"github.com/sells-group/exposure-cli/internal/risk"
	"github.com/sells-group/exposure-cli/internal/sampling"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig           `yaml:"store" mapstructure:"store"`
	Validation   geometry.Config       `yaml:"validation" mapstructure:"validation"`
	Sampling     sampling.Config       `yaml:"sampling" mapstructure:"sampling"`
	Gateway      GatewayConfig         `yaml:"gateway" mapstructure:"gateway"`
	Engine       profile.Config        `yaml:"engine" mapstructure:"engine"`
	Server       ServerConfig          `yaml:"server" mapstructure:"server"`
	Log          LogConfig             `yaml:"log" mapstructure:"log"`
	LayerCatalog string                `yaml:"layer_catalog" mapstructure:"layer_catalog"`
	Layers       []risk.HazardLayerRef `yaml:"layers" mapstructure:"layers"`
}

// StoreConfig configures asset persistence.
type StoreConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string        `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// GatewayConfig configures hazard raster access.
type GatewayConfig struct {
	Driver           string  `yaml:"driver" mapstructure:"driver"`
	RasterDir        string  `yaml:"raster_dir" mapstructure:"raster_dir"`
	TimeoutMs        int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	BatchSize        int     `yaml:"batch_size" mapstructure:"batch_size"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	DatabaseURL      string  `yaml:"database_url" mapstructure:"database_url"`
	RasterSchema     string  `yaml:"raster_schema" mapstructure:"raster_schema"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EXPOSURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "exposure.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("validation.min_vertices", 3)
	v.SetDefault("validation.max_vertices", 500)
	v.SetDefault("validation.min_area_km2", 1e-6)
	v.SetDefault("validation.max_area_km2", 50000.0)
	v.SetDefault("validation.min_side_meters", 0.01)
	v.SetDefault("validation.max_side_meters", 500000.0)
	v.SetDefault("validation.allow_self_intersection", false)
	v.SetDefault("sampling.max_points", 2000)
	v.SetDefault("sampling.max_candidates", 4_000_000)
	v.SetDefault("sampling.cache_entries", 256)
	v.SetDefault("gateway.driver", "file")
	v.SetDefault("gateway.raster_dir", "rasters")
	v.SetDefault("gateway.timeout_ms", 5000)
	v.SetDefault("gateway.batch_size", 500)
	v.SetDefault("gateway.max_attempts", 3)
	v.SetDefault("gateway.initial_backoff_ms", 200)
	v.SetDefault("gateway.max_backoff_ms", 2000)
	v.SetDefault("gateway.failure_threshold", 5)
	v.SetDefault("gateway.reset_timeout_secs", 30)
	v.SetDefault("gateway.rate_per_sec", 0)
	v.SetDefault("gateway.raster_schema", "hazard")
	v.SetDefault("engine.max_concurrent_assets", 4)
	v.SetDefault("engine.max_concurrent_hazards", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "profile":
		errs = append(errs, c.validateEngine()...)
		errs = append(errs, c.validateGateway()...)
	case "store":
		errs = append(errs, c.validateStore()...)
	case "serve":
		errs = append(errs, c.validateEngine()...)
		errs = append(errs, c.validateGateway()...)
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
	}
	return errs
}

func (c *Config) validateGateway() []string {
	var errs []string
	switch c.Gateway.Driver {
	case "file":
		if c.Gateway.RasterDir == "" {
			errs = append(errs, "gateway.raster_dir is required for the file driver")
		}
	case "postgis":
		if c.Gateway.DatabaseURL == "" && c.Store.DatabaseURL == "" {
			errs = append(errs, "gateway.database_url (or store.database_url) is required for the postgis driver")
		}
		if c.Gateway.RasterSchema == "" {
			errs = append(errs, "gateway.raster_schema is required for the postgis driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("gateway.driver %q must be file or postgis", c.Gateway.Driver))
	}
	if c.Gateway.TimeoutMs <= 0 {
		errs = append(errs, "gateway.timeout_ms must be > 0")
	}
	if c.Gateway.MaxAttempts < 1 || c.Gateway.MaxAttempts > 10 {
		errs = append(errs, "gateway.max_attempts must be between 1 and 10")
	}
	if c.Gateway.RatePerSec < 0 {
		errs = append(errs, "gateway.rate_per_sec must be >= 0")
	}
	return errs
}

func (c *Config) validateEngine() []string {
	var errs []string
	if c.Engine.MaxConcurrentAssets < 1 || c.Engine.MaxConcurrentAssets > 64 {
		errs = append(errs, "engine.max_concurrent_assets must be between 1 and 64")
	}
	if c.Engine.MaxConcurrentHazards < 1 || c.Engine.MaxConcurrentHazards > 64 {
		errs = append(errs, "engine.max_concurrent_hazards must be between 1 and 64")
	}
	if c.Sampling.MaxPoints < 1 {
		errs = append(errs, "sampling.max_points must be > 0")
	}
	if c.Validation.MaxVertices > 0 && c.Validation.MaxVertices < c.Validation.MinVertices {
		errs = append(errs, "validation.max_vertices must be >= min_vertices")
	}
	if c.Validation.MaxAreaKm2 > 0 && c.Validation.MaxAreaKm2 < c.Validation.MinAreaKm2 {
		errs = append(errs, "validation.max_area_km2 must be >= min_area_km2")
	}
	return errs
}

// PostGISURL returns the connection string for the PostGIS gateway.
func (g GatewayConfig) PostGISURL(store StoreConfig) string {
	if g.DatabaseURL != "" {
		return g.DatabaseURL
	}
	return store.DatabaseURL
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
