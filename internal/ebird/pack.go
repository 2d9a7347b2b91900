package ebird

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for direct pack handles
	"github.com/patrickmn/go-cache"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/errors"
)

// lookupTier resolves the occurrence tier for a species inside one H3
// cell, consulting the cache first. On a SQLite primary store the pack
// is attached to a store session for the single query and detached
// again; other dialects cannot attach SQLite files, so the filter falls
// back to a read-only handle on the pack itself.
func (f *Filter) lookupTier(ctx context.Context, packPath, scientificName, cell string) (Tier, error) {
	key := packPath + "|" + scientificName + "|" + cell
	if cached, found := f.cache.Get(key); found {
		if tier, ok := cached.(Tier); ok {
			f.count(&f.metrics.cacheHits)
			return tier, nil
		}
	}

	var tier Tier
	var err error
	if f.sessions != nil && f.sessions.Dialect() == "sqlite" {
		tier, err = f.attachLookup(ctx, packPath, scientificName, cell)
	} else {
		tier, err = f.directLookup(ctx, packPath, scientificName, cell)
	}
	if err != nil {
		return TierUnknown, err
	}

	f.cache.Set(key, tier, cache.DefaultExpiration)
	return tier, nil
}

// attachLookup runs the tier query through a store session with the
// pack attached. The deferred detach runs on a context stripped of
// cancellation, so a cancelled request still leaves the session clean.
func (f *Filter) attachLookup(ctx context.Context, packPath, scientificName, cell string) (Tier, error) {
	conn, err := f.sessions.Conn(ctx)
	if err != nil {
		return TierUnknown, err
	}
	defer conn.Close()

	manager := datastore.NewAttachManager(datastore.AttachSpec{Alias: datastore.AliasEBirdPack, Path: packPath})
	attached, err := manager.Attach(ctx, conn)
	if err != nil {
		return TierUnknown, err
	}
	defer manager.Detach(context.WithoutCancel(ctx), conn, attached)

	if !attached.Has(datastore.AliasEBirdPack) {
		return TierUnknown, errors.Newf("regional pack listed in registry but missing on disk: %s", packPath).
			Component("ebird").
			Category(errors.CategoryFileIO).
			Context("pack", packPath).
			Build()
	}

	query := fmt.Sprintf(
		"SELECT tier FROM %s.species_cells WHERE scientific_name = ? AND h3_cell = ?",
		datastore.AliasEBirdPack)
	return scanTier(conn.QueryRowContext(ctx, query, scientificName, cell))
}

// directLookup queries the pack through a dedicated read-only handle.
func (f *Filter) directLookup(ctx context.Context, packPath, scientificName, cell string) (Tier, error) {
	db, err := f.packs.open(packPath)
	if err != nil {
		return TierUnknown, err
	}

	row := db.QueryRowContext(ctx,
		"SELECT tier FROM species_cells WHERE scientific_name = ? AND h3_cell = ?",
		scientificName, cell)
	return scanTier(row)
}

func scanTier(row *sql.Row) (Tier, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TierUnknown, nil
		}
		return TierUnknown, errors.New(err).
			Component("ebird").
			Category(errors.CategoryDatabase).
			Context("operation", "tier_lookup").
			Build()
	}

	tier := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if !tier.Valid() {
		return TierUnknown, errors.Newf("regional pack contains unrecognized tier %q", raw).
			Component("ebird").
			Category(errors.CategoryValidation).
			Context("operation", "tier_lookup").
			Build()
	}
	return tier, nil
}

// packSet caches read-only handles to pack files. Packs are immutable,
// so a handle stays valid for the process lifetime.
type packSet struct {
	mu      sync.Mutex
	handles map[string]*sql.DB
}

func newPackSet() *packSet {
	return &packSet{handles: make(map[string]*sql.DB)}
}

func (p *packSet) open(path string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.handles[path]; ok {
		return db, nil
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path))
	if err != nil {
		return nil, errors.New(err).
			Component("ebird").
			Category(errors.CategoryDatabase).
			Context("operation", "open_pack").
			Context("pack", path).
			Build()
	}

	// A pack serves point lookups only; one connection is plenty.
	db.SetMaxOpenConns(1)
	p.handles[path] = db
	return db, nil
}

func (p *packSet) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for path, db := range p.handles {
		if err := db.Close(); err != nil {
			getLogger().Warn("Failed to close regional pack handle",
				"pack", path,
				"error", err)
		}
		delete(p.handles, path)
	}
}
