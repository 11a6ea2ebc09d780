package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"cropcal/entities"
	"cropcal/pkg/apperr"
	"cropcal/pkg/metrics"
)

// Gateway sits between the pipeline and the provider.
type Gateway struct {
	provider Provider
	cache    *Cache
	timeout  time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

// NewGateway wires a provider with an optional cache. A nil logger uses
// slog.Default.
func NewGateway(p Provider, c *Cache, timeout time.Duration, logger *slog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{provider: p, cache: c, timeout: timeout, logger: logger}
}

// Fetch returns a snapshot for the location. On provider failure it returns
// the last cached snapshot, stale or not. Only when there is nothing cached
// does it fail with ErrEnvironmentalDataUnavailable; callers then run degraded.
func (g *Gateway) Fetch(ctx context.Context, locationHash string, asOf time.Time) (*entities.EnvironmentalSnapshot, error) {
	k := locationHash + "@" + asOf.Format(entities.DateLayout)
	ch := g.group.DoChan(k, func() (interface{}, error) {
		return g.fetch(context.WithoutCancel(ctx), locationHash, asOf)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entities.EnvironmentalSnapshot), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("snapshot %s: %w: %v", locationHash, apperr.ErrEnvironmentalDataUnavailable, ctx.Err())
	}
}

// ErrNoSnapshotStore is returned by Store when neither the cache nor the
// provider can hold a pushed snapshot.
var ErrNoSnapshotStore = errors.New("environment: no snapshot store configured")

// Store records a snapshot delivered out of band, e.g. by a refresh event.
// A StaticProvider receives it directly so the next Fetch serves it.
func (g *Gateway) Store(s *entities.EnvironmentalSnapshot) error {
	static, ok := g.provider.(*StaticProvider)
	if ok {
		static.Put(s)
	}
	if g.cache != nil {
		return g.cache.Put(s)
	}
	if !ok {
		return fmt.Errorf("snapshot %s: %w", s.LocationHash, ErrNoSnapshotStore)
	}
	return nil
}

// Cache exposes the backing cache for health checks. It may be nil.
func (g *Gateway) Cache() *Cache { return g.cache }

func (g *Gateway) fetch(ctx context.Context, locationHash string, asOf time.Time) (*entities.EnvironmentalSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	snap, err := g.provider.Snapshot(ctx, locationHash, asOf)
	if err == nil {
		if g.cache != nil {
			if cerr := g.cache.Put(snap); cerr != nil {
				g.logger.Warn("[env] cache put failed", "location", locationHash, "error", cerr)
			}
		}
		metrics.SnapshotFetches.WithLabelValues("ok").Inc()
		return snap, nil
	}

	g.logger.Warn("[env] provider fetch failed", "location", locationHash, "as_of", asOf.Format(entities.DateLayout), "error", err)
	if g.cache != nil {
		cached, cerr := g.cache.Get(locationHash)
		if cerr != nil {
			g.logger.Warn("[env] cache get failed", "location", locationHash, "error", cerr)
		}
		if cached != nil {
			metrics.SnapshotFetches.WithLabelValues("fallback").Inc()
			return cached, nil
		}
	}
	metrics.SnapshotFetches.WithLabelValues("unavailable").Inc()
	return nil, fmt.Errorf("snapshot %s: %w", locationHash, wrapUnavailable(err))
}

func wrapUnavailable(err error) error {
	if err == nil {
		return apperr.ErrEnvironmentalDataUnavailable
	}
	return fmt.Errorf("%w: %v", apperr.ErrEnvironmentalDataUnavailable, err)
}
