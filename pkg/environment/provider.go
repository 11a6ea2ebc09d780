// Package environment fetches environmental snapshots for a location hash.
// The gateway bounds every fetch with a timeout, collapses concurrent fetches
// for the same location and falls back to the last cached snapshot.
package environment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cropcal/entities"
	"cropcal/pkg/apperr"
)

// Provider is the external snapshot contract.
type Provider interface {
	Snapshot(ctx context.Context, locationHash string, asOf time.Time) (*entities.EnvironmentalSnapshot, error)
}

// HTTPProvider calls GET {base}/snapshots/{hash}?as_of=YYYY-MM-DD.
type HTTPProvider struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPProvider builds a client limited to rps requests per second.
func NewHTTPProvider(base string, rps float64, timeout time.Duration) *HTTPProvider {
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &HTTPProvider{
		base:    strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *HTTPProvider) Snapshot(ctx context.Context, locationHash string, asOf time.Time) (*entities.EnvironmentalSnapshot, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w: %v", apperr.ErrEnvironmentalDataUnavailable, err)
	}
	u := fmt.Sprintf("%s/snapshots/%s?as_of=%s", p.base, url.PathEscape(locationHash), asOf.Format(entities.DateLayout))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot call failed: %w: %v", apperr.ErrEnvironmentalDataUnavailable, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("snapshot non-2xx: %s, body: %s: %w", resp.Status, string(data), apperr.ErrEnvironmentalDataUnavailable)
	}
	var out entities.EnvironmentalSnapshot
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w: %v", apperr.ErrEnvironmentalDataUnavailable, err)
	}
	if out.LocationHash == "" {
		out.LocationHash = locationHash
	}
	return &out, nil
}

// StaticProvider serves snapshots pushed into it. It backs tests and
// deployments without an upstream provider.
type StaticProvider struct {
	mu    sync.RWMutex
	snaps map[string]*entities.EnvironmentalSnapshot
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{snaps: map[string]*entities.EnvironmentalSnapshot{}}
}

func (p *StaticProvider) Put(s *entities.EnvironmentalSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps[s.LocationHash] = s
}

func (p *StaticProvider) Snapshot(_ context.Context, locationHash string, _ time.Time) (*entities.EnvironmentalSnapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.snaps[locationHash]
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s: %w", locationHash, apperr.ErrEnvironmentalDataUnavailable)
	}
	cp := *s
	return &cp, nil
}
