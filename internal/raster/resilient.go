package raster

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/exposure-cli/internal/fault"
	"github.com/sells-group/exposure-cli/internal/geometry"
	"github.com/sells-group/exposure-cli/internal/resilience"
)

// Options configures Resilient.
type Options struct {
	// BatchSize splits large queries. Default: 500.
	BatchSize int
	// Timeout bounds each batch attempt. Default: 5s.
	Timeout time.Duration
	// Policy retries timed-out batches.
	Policy resilience.Policy
	// Breakers guard each layer. Nil creates a private registry with
	// defaults.
	Breakers *resilience.Breakers
	// RatePerSec limits batch calls per layer. Zero is unlimited.
	RatePerSec float64
}

// Resilient wraps a Gateway with batching, per-attempt timeouts, retries,
// per-layer circuit breaking and optional rate limiting.
//
// A batch that keeps timing out, or a layer whose breaker is open, fails the
// whole call as unavailable. Any other batch error is a partial read
// failure: that batch becomes nodata and the rest proceeds.
type Resilient struct {
	next Gateway
	opts Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewResilient wraps next.
func NewResilient(next Gateway, opts Options) *Resilient {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Breakers == nil {
		cfg := resilience.DefaultBreakerConfig()
		cfg.OnStateChange = resilience.LogStateChange
		opts.Breakers = resilience.NewBreakers(cfg)
	}
	return &Resilient{next: next, opts: opts, limiters: make(map[string]*rate.Limiter)}
}

// Breakers exposes the breaker registry for health reporting.
func (r *Resilient) Breakers() *resilience.Breakers {
	return r.opts.Breakers
}

// BatchQuery resolves points batch by batch, preserving order.
func (r *Resilient) BatchQuery(ctx context.Context, layer string, points []geometry.Point) ([]Reading, error) {
	out := make([]Reading, 0, len(points))
	for start := 0; start < len(points); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(points))
		batch := points[start:end]

		readings, err := r.queryBatch(ctx, layer, batch)
		if err == nil && len(readings) != len(batch) {
			err = eris.Errorf("raster: %s returned %d readings for %d points", layer, len(readings), len(batch))
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrapf(ctx.Err(), "raster: query %s", layer)
			}
			if fault.Is(err, fault.KindGatewayUnavailable) {
				return nil, err
			}
			zap.L().Warn("raster: partial batch failure, marking nodata",
				zap.String("layer", layer),
				zap.Int("offset", start),
				zap.Int("points", len(batch)),
				zap.Error(err),
			)
			readings = make([]Reading, len(batch))
			for i := range readings {
				readings[i] = NoData()
			}
		}
		out = append(out, readings...)
	}
	return out, nil
}

func (r *Resilient) queryBatch(ctx context.Context, layer string, batch []geometry.Point) ([]Reading, error) {
	policy := r.opts.Policy
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.LogRetry(layer)
	}
	policy.Retryable = resilience.IsTimeout

	readings, err := resilience.Call(ctx, r.opts.Breakers.Get(layer), func(ctx context.Context) ([]Reading, error) {
		return resilience.Do(ctx, policy, func(ctx context.Context) ([]Reading, error) {
			return r.attempt(ctx, layer, batch)
		})
	})
	switch {
	case err == nil:
		return readings, nil
	case errors.Is(err, resilience.ErrOpen):
		return nil, fault.Unavailable(layer, err)
	case fault.Is(err, fault.KindTimeout):
		return nil, fault.Unavailable(layer, err)
	default:
		return nil, err
	}
}

type batchResult struct {
	readings []Reading
	err      error
}

// attempt runs one bounded call. The bound holds even if the wrapped
// gateway ignores its context.
func (r *Resilient) attempt(ctx context.Context, layer string, batch []geometry.Point) ([]Reading, error) {
	if lim := r.limiter(layer); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "raster: rate limit %s", layer)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	ch := make(chan batchResult, 1)
	go func() {
		readings, err := r.next.BatchQuery(cctx, layer, batch)
		ch <- batchResult{readings: readings, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil && ctx.Err() == nil && resilience.IsTimeout(res.err) {
			return nil, fault.Timeout(layer, res.err)
		}
		return res.readings, res.err
	case <-cctx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fault.Timeout(layer, cctx.Err())
	}
}

func (r *Resilient) limiter(layer string) *rate.Limiter {
	if r.opts.RatePerSec <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[layer]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(r.opts.RatePerSec), max(1, int(r.opts.RatePerSec)))
		r.limiters[layer] = lim
	}
	return lim
}
