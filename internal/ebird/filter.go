package ebird

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/uber/h3-go/v4"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/logging"
)

// tierCacheTTL bounds how long a (pack, species, cell) lookup result is
// reused. Packs are immutable once installed, so the TTL only bounds
// memory, not staleness.
const tierCacheTTL = 6 * time.Hour

// getLogger returns the ebird service logger, falling back to the
// default logger before logging.Init has run.
func getLogger() *slog.Logger {
	if l := logging.ForService("ebird"); l != nil {
		return l
	}
	return slog.Default()
}

// SessionProvider hands out short-lived database sessions that regional
// packs are attached to. The datastore implements it.
type SessionProvider interface {
	Conn(ctx context.Context) (*sql.Conn, error)
	Dialect() string
}

// Filter evaluates detections against regional occurrence data. Every
// failure path allows the detection through; filtering must never lose
// real detections to an internal error.
type Filter struct {
	settings conf.EBirdSettings
	registry *Registry
	sessions SessionProvider
	cache    *cache.Cache
	packs    *packSet

	metrics struct {
		mu           sync.RWMutex
		evaluations  int64
		blocked      int64
		warned       int64
		cacheHits    int64
		lookupErrors int64
	}
}

// Metrics is a point-in-time snapshot of filter counters.
type Metrics struct {
	Evaluations  int64
	Blocked      int64
	Warned       int64
	CacheHits    int64
	LookupErrors int64
}

// New creates a regional filter from the configured settings. Sessions
// provides the database sessions that pack files are attached to; on a
// non-SQLite primary store the filter opens read-only pack handles of
// its own instead. A missing registry file is not an error, the filter
// then allows everything.
func New(settings conf.EBirdSettings, sessions SessionProvider) (*Filter, error) {
	registry, err := LoadRegistry(settings.PackRoot)
	if err != nil {
		return nil, err
	}

	filter := &Filter{
		settings: settings,
		registry: registry,
		sessions: sessions,
		cache:    cache.New(tierCacheTTL, 2*tierCacheTTL),
		packs:    newPackSet(),
	}

	regions := 0
	if registry != nil {
		regions = len(registry.Regions)
	}
	getLogger().Info("eBird regional filter initialized",
		"enabled", settings.Enabled,
		"mode", settings.DetectionMode,
		"strictness", settings.Strictness,
		"h3_resolution", settings.H3Resolution,
		"regions", regions)

	return filter, nil
}

// Close releases any pack handles held by the filter.
func (f *Filter) Close() {
	f.packs.closeAll()
}

// Evaluate applies the regional occurrence policy to one detection.
// Coordinates are optional; a detection without them is always allowed.
func (f *Filter) Evaluate(ctx context.Context, scientificName string, lat, lon *float64) Decision {
	f.count(&f.metrics.evaluations)

	if !f.settings.Enabled || f.settings.DetectionMode == ModeOff {
		return Allow("regional filtering disabled")
	}
	if lat == nil || lon == nil {
		return Allow("no coordinates on detection")
	}

	region := f.registry.Locate(*lat, *lon)
	if region == nil {
		return Allow("no regional pack covers the location")
	}

	cell, err := h3.LatLngToCell(h3.NewLatLng(*lat, *lon), f.settings.H3Resolution)
	if err != nil {
		f.count(&f.metrics.lookupErrors)
		getLogger().Warn("H3 indexing failed, allowing detection",
			"scientific_name", scientificName,
			"latitude", *lat,
			"longitude", *lon,
			"resolution", f.settings.H3Resolution,
			"error", err)
		return Allow("h3 indexing failed")
	}

	tier, err := f.lookupTier(ctx, f.registry.PackPath(region), scientificName, cell.String())
	if err != nil {
		f.count(&f.metrics.lookupErrors)
		getLogger().Warn("Regional pack lookup failed, allowing detection",
			"scientific_name", scientificName,
			"region", region.ID,
			"error", err)
		return Allow("regional pack lookup failed")
	}

	return f.decide(scientificName, region.ID, tier)
}

// decide applies the blocking matrix and the unknown species policy,
// honoring warn mode by logging instead of blocking.
func (f *Filter) decide(scientificName, regionID string, tier Tier) Decision {
	var wouldBlock bool
	var reason string

	if tier == TierUnknown {
		wouldBlock = f.settings.UnknownSpecies == UnknownBlock
		reason = "species not found in regional pack"
	} else {
		wouldBlock = tier.blockedBy(Tier(f.settings.Strictness))
		if wouldBlock {
			reason = fmt.Sprintf("tier %s is at or below strictness %s", tier, f.settings.Strictness)
		} else {
			reason = fmt.Sprintf("tier %s is above strictness %s", tier, f.settings.Strictness)
		}
	}

	if !wouldBlock {
		return Decision{Blocked: false, Tier: tier, Region: regionID, Reason: reason}
	}

	if f.settings.DetectionMode == ModeWarn {
		f.count(&f.metrics.warned)
		getLogger().Warn("Detection would be filtered by regional policy",
			"scientific_name", scientificName,
			"region", regionID,
			"tier", string(tier),
			"strictness", f.settings.Strictness,
			"reason", reason)
		return Decision{Blocked: false, Tier: tier, Region: regionID, Reason: reason}
	}

	f.count(&f.metrics.blocked)
	getLogger().Info("Detection filtered by regional policy",
		"scientific_name", scientificName,
		"region", regionID,
		"tier", string(tier),
		"strictness", f.settings.Strictness)
	return Decision{Blocked: true, Tier: tier, Region: regionID, Reason: reason}
}

// Metrics returns a snapshot of the filter counters.
func (f *Filter) Metrics() Metrics {
	f.metrics.mu.RLock()
	defer f.metrics.mu.RUnlock()
	return Metrics{
		Evaluations:  f.metrics.evaluations,
		Blocked:      f.metrics.blocked,
		Warned:       f.metrics.warned,
		CacheHits:    f.metrics.cacheHits,
		LookupErrors: f.metrics.lookupErrors,
	}
}

func (f *Filter) count(counter *int64) {
	f.metrics.mu.Lock()
	*counter++
	f.metrics.mu.Unlock()
}
