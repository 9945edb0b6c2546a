// Package catalog maintains the in-memory snapshot of controllable entities.
//
// The snapshot is immutable once published: readers take the current pointer
// and keep it for the whole turn, so a refresh mid-turn never changes what a
// turn sees. Rebuilds are serialized through singleflight; concurrent
// refresh requests share one rebuild and one result.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hanashi-ai/hanashi/internal/model"
)

// Source lists the entities the pipeline may act on. Implementations talk to
// the host system (e.g. a Home Assistant instance) and must be safe for
// concurrent use.
type Source interface {
	ListEntities(ctx context.Context) ([]model.Entity, error)
}

// DefaultDomains lists the entity domains the deterministic layer may act
// on. Entities outside these domains never enter a snapshot: a sensor named
// like a light must not compete with the light for a match.
var DefaultDomains = []string{
	"light", "switch", "fan", "cover", "climate",
	"script", "scene", "input_boolean", "lock",
}

// Snapshot is one immutable generation of the catalog.
type Snapshot struct {
	Entities []model.Entity
	ByID     map[string]model.Entity
	BuiltAt  time.Time
}

// Age returns how long ago the snapshot was built.
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.BuiltAt)
}

// Catalog publishes entity snapshots built from a Source.
type Catalog struct {
	source  Source
	ttl     time.Duration
	domains map[string]bool
	logger  *slog.Logger

	current atomic.Pointer[Snapshot]
	group   singleflight.Group
}

// New creates a Catalog. No snapshot exists until the first Refresh; ttl
// controls when Ensure considers the current snapshot stale. A nil domains
// slice admits DefaultDomains.
func New(source Source, ttl time.Duration, domains []string, logger *slog.Logger) *Catalog {
	if domains == nil {
		domains = DefaultDomains
	}
	allowed := make(map[string]bool, len(domains))
	for _, d := range domains {
		allowed[d] = true
	}
	return &Catalog{source: source, ttl: ttl, domains: allowed, logger: logger}
}

// Current returns the latest snapshot without blocking, or nil when no
// rebuild has ever succeeded.
func (c *Catalog) Current() *Snapshot {
	return c.current.Load()
}

// Ensure returns a snapshot no older than the TTL, rebuilding if needed.
// When the rebuild fails but an older snapshot exists, the older snapshot is
// returned: a stale catalog still routes better than no catalog.
func (c *Catalog) Ensure(ctx context.Context) (*Snapshot, error) {
	if snap := c.current.Load(); snap != nil && snap.Age() < c.ttl {
		return snap, nil
	}
	snap, err := c.Refresh(ctx)
	if err != nil {
		if prev := c.current.Load(); prev != nil {
			c.logger.Warn("catalog refresh failed, serving previous snapshot",
				"error", err, "snapshot_age", prev.Age().Round(time.Second))
			return prev, nil
		}
		return nil, err
	}
	return snap, nil
}

// Refresh rebuilds the snapshot from the source and publishes it atomically.
// Concurrent callers share a single rebuild. On failure nothing is published
// and the previous snapshot (if any) stays current.
func (c *Catalog) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		entities, err := c.source.ListEntities(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrCatalogUnavailable, err)
		}
		snap := c.build(entities)
		c.current.Store(snap)
		c.logger.Info("catalog refreshed", "entities", len(snap.Entities))
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// build copies the allowed entities into a fresh snapshot. Entities without
// an ID and entities outside the allowed domains are dropped here, at the
// single choke point every Source passes through.
func (c *Catalog) build(entities []model.Entity) *Snapshot {
	snap := &Snapshot{
		Entities: make([]model.Entity, 0, len(entities)),
		ByID:     make(map[string]model.Entity, len(entities)),
		BuiltAt:  time.Now().UTC(),
	}
	for _, e := range entities {
		if e.ID == "" || !c.domains[e.Domain] {
			continue
		}
		snap.Entities = append(snap.Entities, e)
		snap.ByID[e.ID] = e
	}
	return snap
}

// RunRefreshLoop rebuilds the catalog on the TTL cadence until ctx is done.
// Failures are logged and retried at the next tick.
func (c *Catalog) RunRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Refresh(ctx); err != nil {
				c.logger.Warn("scheduled catalog refresh failed", "error", err)
			}
		}
	}
}
