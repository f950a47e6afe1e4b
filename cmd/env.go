package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/exposure-cli/internal/asset"
	"github.com/sells-group/exposure-cli/internal/config"
	"github.com/sells-group/exposure-cli/internal/db"
	"github.com/sells-group/exposure-cli/internal/geometry"
	"github.com/sells-group/exposure-cli/internal/profile"
	"github.com/sells-group/exposure-cli/internal/raster"
	"github.com/sells-group/exposure-cli/internal/resilience"
	"github.com/sells-group/exposure-cli/internal/risk"
	"github.com/sells-group/exposure-cli/internal/sampling"
)

// exposureEnv holds everything the profile, asset and serve commands need.
type exposureEnv struct {
	Store     asset.Store // nil unless requested
	Validator *geometry.Validator
	Layers    []risk.HazardLayerRef
	Gateway   *raster.Resilient
	Engine    *profile.Engine

	rasterPool *pgxpool.Pool
}

// Close releases resources held by the environment.
func (e *exposureEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.rasterPool != nil {
		e.rasterPool.Close()
	}
}

// initEnv validates cfg for mode and builds the environment. The store is
// opened and migrated only when withStore is set. Callers should defer
// env.Close().
func initEnv(ctx context.Context, mode string, withStore bool) (*exposureEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	if withStore && mode != "serve" {
		if err := cfg.Validate("store"); err != nil {
			return nil, err
		}
	}
	layers, err := cfg.LayerRefs()
	if err != nil {
		return nil, err
	}

	env := &exposureEnv{
		Validator: geometry.NewValidator(cfg.Validation),
		Layers:    layers,
	}

	if withStore {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
		if err := st.Migrate(ctx); err != nil {
			env.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
	}

	base, pool, err := initGateway(ctx, layers)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.rasterPool = pool
	env.Gateway = wrapGateway(base)

	grids := sampling.NewGridCache(sampling.NewSampler(cfg.Sampling))
	env.Engine = profile.NewEngine(grids, env.Gateway, cfg.Engine)

	zap.L().Debug("environment ready",
		zap.String("mode", mode),
		zap.String("gateway", cfg.Gateway.Driver),
		zap.Int("layers", len(layers)),
	)
	return env, nil
}

func initStore(ctx context.Context) (asset.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "exposure.db"
		}
		return asset.NewSQLite(dsn)
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return nil, eris.Wrap(err, "connect asset store")
		}
		return asset.NewPostgresStore(pool), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initGateway builds the unwrapped raster gateway. The returned pool is
// non-nil only for the postgis driver.
func initGateway(ctx context.Context, layers []risk.HazardLayerRef) (raster.Gateway, *pgxpool.Pool, error) {
	switch cfg.Gateway.Driver {
	case "file":
		return raster.NewFileGateway(cfg.Gateway.RasterDir, config.LayerSources(layers)), nil, nil
	case "postgis":
		pool, err := db.Connect(ctx, cfg.Gateway.PostGISURL(cfg.Store), &cfg.Store.Pool)
		if err != nil {
			return nil, nil, eris.Wrap(err, "connect raster database")
		}
		gw, err := raster.NewPostGISGateway(pool, config.PostGISTables(layers, cfg.Gateway.RasterSchema))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return gw, pool, nil
	default:
		return nil, nil, eris.Errorf("unsupported gateway driver: %s", cfg.Gateway.Driver)
	}
}

func wrapGateway(base raster.Gateway) *raster.Resilient {
	g := cfg.Gateway
	breakerCfg := resilience.BreakerFromConfig(g.FailureThreshold, g.ResetTimeoutSecs)
	breakerCfg.OnStateChange = resilience.LogStateChange
	return raster.NewResilient(base, raster.Options{
		BatchSize:  g.BatchSize,
		Timeout:    time.Duration(g.TimeoutMs) * time.Millisecond,
		Policy:     resilience.PolicyFromMillis(g.MaxAttempts, g.InitialBackoffMs, g.MaxBackoffMs),
		Breakers:   resilience.NewBreakers(breakerCfg),
		RatePerSec: g.RatePerSec,
	})
}
