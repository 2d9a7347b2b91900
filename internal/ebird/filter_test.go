package ebird

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/h3-go/v4"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
)

// Toronto, inside the test region below.
const (
	testLat = 43.65
	testLon = -79.38
)

func ptr(v float64) *float64 { return &v }

// testCell computes the H3 cell the filter will derive for the test
// point, so pack rows and lookups stay consistent.
func testCell(t *testing.T, resolution int) string {
	t.Helper()
	cell, err := h3.LatLngToCell(h3.NewLatLng(testLat, testLon), resolution)
	require.NoError(t, err)
	return cell.String()
}

// createPack writes a regional pack SQLite file with the given
// (scientific_name, h3_cell, tier) rows.
func createPack(t *testing.T, path string, rows ...[3]string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE species_cells (
		scientific_name TEXT NOT NULL,
		h3_cell TEXT NOT NULL,
		tier TEXT NOT NULL
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE INDEX idx_species_cells ON species_cells (scientific_name, h3_cell)`)
	require.NoError(t, err)

	for _, row := range rows {
		_, err = db.Exec(`INSERT INTO species_cells (scientific_name, h3_cell, tier) VALUES (?, ?, ?)`,
			row[0], row[1], row[2])
		require.NoError(t, err)
	}
}

// writeRegistry writes a registry.yaml with one region covering the
// test point.
func writeRegistry(t *testing.T, packRoot, packName string) {
	t.Helper()
	registry := fmt.Sprintf(`regions:
  - id: na-east
    pack: %s
    bounds:
      min_lat: 40.0
      max_lat: 50.0
      min_lon: -85.0
      max_lon: -70.0
`, packName)
	require.NoError(t, os.WriteFile(filepath.Join(packRoot, RegistryFileName), []byte(registry), 0o644))
}

func testSettings(packRoot string) conf.EBirdSettings {
	return conf.EBirdSettings{
		Enabled:        true,
		DetectionMode:  ModeFilter,
		Strictness:     string(TierRare),
		H3Resolution:   5,
		UnknownSpecies: UnknownAllow,
		PackRoot:       packRoot,
	}
}

// openSessionStore opens a file backed SQLite store for the attach
// path. Attachment is scoped per connection, so the store must not be
// an in-memory database.
func openSessionStore(t *testing.T) datastore.Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "detections.db")
	store := datastore.New(settings)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// newTestFilter builds a filter over a temp pack root populated with
// the given pack rows.
func newTestFilter(t *testing.T, settings conf.EBirdSettings, rows ...[3]string) *Filter {
	t.Helper()
	if settings.PackRoot == "" {
		settings.PackRoot = t.TempDir()
	}
	writeRegistry(t, settings.PackRoot, "na-east.sqlite")
	createPack(t, filepath.Join(settings.PackRoot, "na-east.sqlite"), rows...)

	filter, err := New(settings, openSessionStore(t))
	require.NoError(t, err)
	t.Cleanup(filter.Close)
	return filter
}

func TestDisabledFilterAllowsEverything(t *testing.T) {
	settings := testSettings(t.TempDir())
	settings.Enabled = false

	filter, err := New(settings, nil)
	require.NoError(t, err)
	defer filter.Close()

	decision := filter.Evaluate(context.Background(), "Turdus migratorius", ptr(testLat), ptr(testLon))
	assert.False(t, decision.Blocked)
}

func TestModeOffIsIdentity(t *testing.T) {
	settings := testSettings("")
	settings.DetectionMode = ModeOff

	cell := testCell(t, settings.H3Resolution)
	filter := newTestFilter(t, settings, [3]string{"Turdus migratorius", cell, "vagrant"})

	decision := filter.Evaluate(context.Background(), "Turdus migratorius", ptr(testLat), ptr(testLon))
	assert.False(t, decision.Blocked, "mode off must pass every detection through")
}

func TestMissingCoordinatesAllow(t *testing.T) {
	settings := testSettings("")
	cell := testCell(t, settings.H3Resolution)
	filter := newTestFilter(t, settings, [3]string{"Turdus migratorius", cell, "vagrant"})

	decision := filter.Evaluate(context.Background(), "Turdus migratorius", nil, ptr(testLon))
	assert.False(t, decision.Blocked)
	decision = filter.Evaluate(context.Background(), "Turdus migratorius", ptr(testLat), nil)
	assert.False(t, decision.Blocked)
}

func TestNoRegionCoverageAllows(t *testing.T) {
	settings := testSettings("")
	cell := testCell(t, settings.H3Resolution)
	filter := newTestFilter(t, settings, [3]string{"Turdus migratorius", cell, "vagrant"})

	// Helsinki is far outside the registered bounding box.
	decision := filter.Evaluate(context.Background(), "Turdus migratorius", ptr(60.17), ptr(24.94))
	assert.False(t, decision.Blocked)
	assert.Empty(t, decision.Region)
}

func TestFilterBlocksTierAtStrictness(t *testing.T) {
	settings := testSettings("")
	cell := testCell(t, settings.H3Resolution)
	filter := newTestFilter(t, settings, [3]string{"Turdus migratorius", cell, "rare"})

	decision := filter.Evaluate(context.Background(), "Turdus migratorius", ptr(testLat), ptr(testLon))
	assert.True(t, decision.Blocked)
	assert.Equal(t, TierRare, decision.Tier)
	assert.Equal(t, "na-east", decision.Region)

	metrics := filter.Metrics()
	assert.Equal(t, int64(1), metrics.Blocked)
}

func TestStrictnessBlockingMatrix(t *testing.T) {
	base := testSettings("")
	cell := testCell(t, base.H3Resolution)
	rows := [][3]string{
		{"Vagrans exampli", cell, "vagrant"},
		{"Rarus exampli", cell, "rare"},
		{"Infrequens exampli", cell, "uncommon"},
		{"Communis exampli", cell, "common"},
	}

	// blocked[strictness] lists which tiers are inside the block set.
	blocked := map[string][]bool{
		"vagrant":  {true, false, false, false},
		"rare":     {true, true, false, false},
		"uncommon": {true, true, true, false},
		"common":   {true, true, true, true},
	}

	for strictness, expects := range blocked {
		t.Run(strictness, func(t *testing.T) {
			settings := base
			settings.Strictness = strictness
			filter := newTestFilter(t, settings, rows...)

			for i, row := range rows {
				decision := filter.Evaluate(context.Background(), row[0], ptr(testLat), ptr(testLon))
				assert.Equal(t, expects[i], decision.Blocked,
					"strictness %s, tier %s", strictness, row[2])
			}
		})
	}
}

func TestUnknownSpeciesBehavior(t *testing.T) {
	base := testSettings("")
	cell := testCell(t, base.H3Resolution)
	known := [3]string{"Turdus migratorius", cell, "common"}

	t.Run("allow", func(t *testing.T) {
		settings := base
		settings.UnknownSpecies = UnknownAllow
		filter := newTestFilter(t, settings, known)

		decision := filter.Evaluate(context.Background(), "Corvus corax", ptr(testLat), ptr(testLon))
		assert.False(t, decision.Blocked)
		assert.Equal(t, TierUnknown, decision.Tier)
	})

	t.Run("block", func(t *testing.T) {
		settings := base
		settings.UnknownSpecies = UnknownBlock
		filter := newTestFilter(t, settings, known)

		decision := filter.Evaluate(context.Background(), "Corvus corax", ptr(testLat), ptr(testLon))
		assert.True(t, decision.Blocked)
		assert.Equal(t, TierUnknown, decision.Tier)
	})
}

func TestWarnModeNeverBlocks(t *testing.T) {
	settings := testSettings("")
	settings.DetectionMode = ModeWarn
	cell := testCell(t, settings.H3Resolution)
	filter := newTestFilter(t, settings, [3]string{"Turdus migratorius", cell, "vagrant"})

	decision := filter.Evaluate(context.Background(), "Turdus migratorius", ptr(testLat), ptr(testLon))
	assert.False(t, decision.Blocked)

	metrics := filter.Metrics()
	assert.Equal(t, int64(1), metrics.Warned)
	assert.Zero(t, metrics.Blocked)
}

func TestMissingPackFailsOpen(t *testing.T) {
	packRoot := t.TempDir()
	writeRegistry(t, packRoot, "na-east.sqlite")
	// Registry references a pack file that was never installed.

	settings := testSettings(packRoot)
	filter, err := New(settings, openSessionStore(t))
	require.NoError(t, err)
	defer filter.Close()

	decision := filter.Evaluate(context.Background(), "Turdus migratorius", ptr(testLat), ptr(testLon))
	assert.False(t, decision.Blocked)
	assert.Equal(t, int64(1), filter.Metrics().LookupErrors)
}

func TestTierLookupCached(t *testing.T) {
	settings := testSettings("")
	cell := testCell(t, settings.H3Resolution)
	filter := newTestFilter(t, settings, [3]string{"Turdus migratorius", cell, "common"})

	ctx := context.Background()
	filter.Evaluate(ctx, "Turdus migratorius", ptr(testLat), ptr(testLon))
	filter.Evaluate(ctx, "Turdus migratorius", ptr(testLat), ptr(testLon))

	metrics := filter.Metrics()
	assert.Equal(t, int64(2), metrics.Evaluations)
	assert.Equal(t, int64(1), metrics.CacheHits)
}

// fakeSessions simulates a non-SQLite primary store, forcing the filter
// onto direct read-only pack handles.
type fakeSessions struct{}

func (fakeSessions) Conn(context.Context) (*sql.Conn, error) {
	return nil, fmt.Errorf("no sessions on this store")
}

func (fakeSessions) Dialect() string { return "mysql" }

func TestDirectLookupWithoutAttachableStore(t *testing.T) {
	packRoot := t.TempDir()
	settings := testSettings(packRoot)
	cell := testCell(t, settings.H3Resolution)
	writeRegistry(t, packRoot, "na-east.sqlite")
	createPack(t, filepath.Join(packRoot, "na-east.sqlite"),
		[3]string{"Turdus migratorius", cell, "rare"})

	filter, err := New(settings, fakeSessions{})
	require.NoError(t, err)
	defer filter.Close()

	decision := filter.Evaluate(context.Background(), "Turdus migratorius", ptr(testLat), ptr(testLon))
	assert.True(t, decision.Blocked)
	assert.Equal(t, TierRare, decision.Tier)
}

func TestLoadRegistryMissingDirectory(t *testing.T) {
	registry, err := LoadRegistry(filepath.Join(t.TempDir(), "nonexistent"))
	require.NoError(t, err)
	assert.Nil(t, registry)

	// A nil registry never locates a region.
	assert.Nil(t, registry.Locate(testLat, testLon))
}

func TestLoadRegistryRejectsMalformedYAML(t *testing.T) {
	packRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(packRoot, RegistryFileName), []byte("regions: {broken"), 0o644))

	_, err := LoadRegistry(packRoot)
	require.Error(t, err)
}

func TestRegistryFirstMatchWins(t *testing.T) {
	registry := &Registry{
		Regions: []Region{
			{ID: "inner", Pack: "inner.sqlite", Bounds: Bounds{MinLat: 40, MaxLat: 50, MinLon: -85, MaxLon: -70}},
			{ID: "outer", Pack: "outer.sqlite", Bounds: Bounds{MinLat: 0, MaxLat: 90, MinLon: -180, MaxLon: 180}},
		},
	}

	region := registry.Locate(testLat, testLon)
	require.NotNil(t, region)
	assert.Equal(t, "inner", region.ID)

	region = registry.Locate(10, 10)
	require.NotNil(t, region)
	assert.Equal(t, "outer", region.ID)
}
