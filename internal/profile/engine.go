// Package profile runs the exposure pipeline for assets: sample the polygon,
// resolve hazard values through the raster gateway and aggregate them into
// risk profiles.
package profile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/exposure-cli/internal/asset"
	"github.com/sells-group/exposure-cli/internal/fault"
	"github.com/sells-group/exposure-cli/internal/geometry"
	"github.com/sells-group/exposure-cli/internal/raster"
	"github.com/sells-group/exposure-cli/internal/risk"
	"github.com/sells-group/exposure-cli/internal/sampling"
)

// Config bounds the engine's fan-out.
type Config struct {
	MaxConcurrentAssets  int `yaml:"max_concurrent_assets" mapstructure:"max_concurrent_assets"`
	MaxConcurrentHazards int `yaml:"max_concurrent_hazards" mapstructure:"max_concurrent_hazards"`
}

// Engine computes risk profiles. It holds no per-asset state beyond the
// grid cache and is safe for concurrent use.
type Engine struct {
	grids   *sampling.GridCache
	gateway raster.Gateway
	cfg     Config
}

// NewEngine creates an engine over a grid cache and a hazard gateway.
func NewEngine(grids *sampling.GridCache, gateway raster.Gateway, cfg Config) *Engine {
	if cfg.MaxConcurrentAssets <= 0 {
		cfg.MaxConcurrentAssets = 4
	}
	if cfg.MaxConcurrentHazards <= 0 {
		cfg.MaxConcurrentHazards = 4
	}
	return &Engine{grids: grids, gateway: gateway, cfg: cfg}
}

// Grids returns the engine's grid cache.
func (e *Engine) Grids() *sampling.GridCache { return e.grids }

// Profile computes the profile of one asset for one hazard. The returned
// grid is a private copy holding the resolved values and bands.
func (e *Engine) Profile(ctx context.Context, a *asset.PolygonAsset, ref risk.HazardLayerRef) (*risk.RiskProfile, *sampling.SampleGrid, error) {
	if err := ref.Validate(); err != nil {
		return nil, nil, err
	}
	start := time.Now()

	grid := e.grids.Grid(a).Clone()
	readings, err := e.gateway.BatchQuery(ctx, ref.Name, grid.Positions())
	if err != nil {
		return nil, nil, eris.Wrapf(err, "profile: query %s", ref.Name)
	}
	if len(readings) != len(grid.Points) {
		return nil, nil, eris.Errorf("profile: %s returned %d readings for %d points", ref.Name, len(readings), len(grid.Points))
	}
	for i, r := range readings {
		if r.NoData {
			grid.Points[i].RawValue = nil
			continue
		}
		v := r.Value
		grid.Points[i].RawValue = &v
	}

	p := risk.Aggregate(grid, a.AreaKm2(), ref)
	if err := p.Err(); err != nil {
		zap.L().Warn("profile: no usable samples", zap.Error(err))
	}
	zap.L().Info("profile: computed",
		zap.String("asset_id", a.ID()),
		zap.String("hazard", ref.Name),
		zap.Int("samples", p.SampleCount),
		zap.Int("excluded", p.ExcludedCount),
		zap.String("dominant_band", p.DominantBand),
		zap.String("priority", p.Priority),
		zap.Duration("elapsed", time.Since(start)),
	)
	return p, grid, nil
}

// HazardError describes why one hazard could not be profiled.
type HazardError struct {
	Kind    fault.Kind `json:"kind,omitempty"`
	Message string     `json:"message"`
}

// Report collects the profiles of one asset across hazards.
type Report struct {
	AssetID           string                            `json:"asset_id"`
	Name              string                            `json:"name"`
	Archetype         string                            `json:"archetype"`
	AreaKm2           float64                           `json:"area_km2"`
	Centroid          geometry.Point                    `json:"centroid"`
	GridSpacingMeters float64                           `json:"grid_spacing_meters"`
	SampleCount       int                               `json:"sample_count"`
	Profiles          []*risk.RiskProfile               `json:"profiles"`
	Errors            map[string]*HazardError           `json:"errors,omitempty"`
	Samples           map[string][]sampling.SamplePoint `json:"-"`
}

// Failed reports whether any hazard failed.
func (r *Report) Failed() bool { return len(r.Errors) > 0 }

// ProfileAll profiles one asset against every layer in refs. A failing
// hazard is recorded in Report.Errors and does not affect the others.
// Profiles are in refs order regardless of completion order. The error is
// non-nil only when ctx ends first.
func (e *Engine) ProfileAll(ctx context.Context, a *asset.PolygonAsset, refs []risk.HazardLayerRef) (*Report, error) {
	grid := e.grids.Grid(a)
	rep := &Report{
		AssetID:           a.ID(),
		Name:              a.Name(),
		Archetype:         a.Archetype(),
		AreaKm2:           a.AreaKm2(),
		Centroid:          a.Centroid(),
		GridSpacingMeters: grid.SpacingMeters,
		SampleCount:       len(grid.Points),
		Samples:           make(map[string][]sampling.SamplePoint, len(refs)),
	}

	profiles := make([]*risk.RiskProfile, len(refs))
	grids := make([]*sampling.SampleGrid, len(refs))
	errs := make([]error, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentHazards)
	for i, ref := range refs {
		g.Go(func() error {
			profiles[i], grids[i], errs[i] = e.Profile(gctx, a, ref)
			return nil // per-hazard failures never cancel siblings
		})
	}
	_ = g.Wait()

	for i, ref := range refs {
		if errs[i] != nil {
			if rep.Errors == nil {
				rep.Errors = make(map[string]*HazardError)
			}
			rep.Errors[ref.Name] = &HazardError{Kind: fault.KindOf(errs[i]), Message: errs[i].Error()}
			zap.L().Warn("profile: hazard failed",
				zap.String("asset_id", a.ID()),
				zap.String("hazard", ref.Name),
				zap.String("kind", string(fault.KindOf(errs[i]))),
				zap.Error(errs[i]),
			)
			continue
		}
		rep.Profiles = append(rep.Profiles, profiles[i])
		rep.Samples[ref.Name] = grids[i].Points
	}

	if err := ctx.Err(); err != nil {
		return rep, eris.Wrap(err, "profile: profile all")
	}
	return rep, nil
}

// ProfileAssets runs ProfileAll for each asset in parallel, bounded by
// MaxConcurrentAssets. Reports are in input order.
func (e *Engine) ProfileAssets(ctx context.Context, assets []*asset.PolygonAsset, refs []risk.HazardLayerRef) ([]*Report, error) {
	reports := make([]*Report, len(assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentAssets)
	for i, a := range assets {
		g.Go(func() error {
			rep, err := e.ProfileAll(gctx, a, refs)
			reports[i] = rep
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return reports, eris.Wrap(err, "profile: profile assets")
	}
	return reports, nil
}
