package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// enrichedFixture seeds a store and full reference set for query tests.
type enrichedFixture struct {
	store  *SQLiteStore
	engine *EnrichedQueryEngine
	base   time.Time
}

// newEnrichedFixture seeds three species across two days. Turdus merula
// has an IOC translation, Parus major only a PatLevin one, and
// Erithacus rubecula is unknown to the IOC but named by Avibase.
func newEnrichedFixture(t *testing.T) *enrichedFixture {
	t.Helper()

	store := openTestStore(t)
	dir := t.TempDir()

	manager := NewAttachManager(
		AttachSpec{Alias: AliasIOC, Path: createIOCReference(t, dir)},
		AttachSpec{Alias: AliasPatLevin, Path: createPatLevinReference(t, dir)},
		AttachSpec{Alias: AliasAvibase, Path: createAvibaseReference(t, dir)},
	)
	engine := NewEnrichedQueryEngine(store, manager, "de")

	base := time.Date(2025, 4, 12, 5, 0, 0, 0, time.UTC)
	seed := []struct {
		sci    string
		common string
		conf   float64
		at     time.Time
	}{
		{"Turdus merula", "Eurasian Blackbird", 0.55, base},
		{"Turdus merula", "Eurasian Blackbird", 0.91, base.Add(25 * time.Hour)},
		{"Parus major", "Great Tit", 0.82, base.Add(time.Hour)},
		{"Erithacus rubecula", "European Robin", 0.75, base.Add(2 * time.Hour)},
	}
	for _, s := range seed {
		require.NoError(t, store.Save(makeDetection(s.sci, s.common, s.conf, s.at), nil))
	}

	return &enrichedFixture{store: store, engine: engine, base: base}
}

func TestQueryWithoutReferencesFallsBack(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Save(makeDetection("Turdus merula", "Eurasian Blackbird", 0.9, time.Now().UTC()), nil))

	engine := NewEnrichedQueryEngine(store, NewAttachManager(), "de")
	envelopes, err := engine.Query(context.Background(), QueryFilters{})
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	envelope := envelopes[0]
	assert.Equal(t, "Eurasian Blackbird", envelope.TranslatedName, "missing references degrade to the stored common name")
	assert.Equal(t, "Eurasian Blackbird", envelope.IOCEnglishName)
	assert.Empty(t, envelope.Family)
	assert.Empty(t, envelope.OrderName)
}

func TestQueryEnrichment(t *testing.T) {
	fixture := newEnrichedFixture(t)

	envelopes, err := fixture.engine.Query(context.Background(), QueryFilters{OrderBy: OrderByTimestamp})
	require.NoError(t, err)
	require.Len(t, envelopes, 4)

	byName := map[string]DetectionEnvelope{}
	for _, envelope := range envelopes {
		byName[envelope.ScientificName] = envelope
	}

	// IOC translation wins even though PatLevin also names the species.
	merula := byName["Turdus merula"]
	assert.Equal(t, "Amsel", merula.TranslatedName)
	assert.Equal(t, "Common Blackbird", merula.IOCEnglishName)
	assert.Equal(t, "Turdidae", merula.Family)
	assert.Equal(t, "Turdus", merula.Genus)
	assert.Equal(t, "Passeriformes", merula.OrderName)

	// No IOC translation in German, so PatLevin supplies the name.
	major := byName["Parus major"]
	assert.Equal(t, "Kohlmeise", major.TranslatedName)
	assert.Equal(t, "Great Tit", major.IOCEnglishName)
	assert.Equal(t, "Paridae", major.Family)

	// Unknown to the IOC entirely; Avibase still provides a German name.
	rubecula := byName["Erithacus rubecula"]
	assert.Equal(t, "Rotkehlchen", rubecula.TranslatedName)
	assert.Equal(t, "European Robin", rubecula.IOCEnglishName)
	assert.Empty(t, rubecula.Family)
}

func TestQueryFilters(t *testing.T) {
	fixture := newEnrichedFixture(t)
	ctx := context.Background()

	envelopes, err := fixture.engine.Query(ctx, QueryFilters{Species: []string{"Turdus merula"}})
	require.NoError(t, err)
	assert.Len(t, envelopes, 2)

	minConf := 0.8
	envelopes, err = fixture.engine.Query(ctx, QueryFilters{MinConfidence: &minConf})
	require.NoError(t, err)
	assert.Len(t, envelopes, 2)

	maxConf := 0.6
	envelopes, err = fixture.engine.Query(ctx, QueryFilters{MaxConfidence: &maxConf})
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.InDelta(t, 0.55, envelopes[0].Confidence, 1e-9)

	envelopes, err = fixture.engine.Query(ctx, QueryFilters{
		Start: fixture.base.Add(30 * time.Minute),
		End:   fixture.base.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, envelopes, 2)

	envelopes, err = fixture.engine.Query(ctx, QueryFilters{Family: "Turdidae"})
	require.NoError(t, err)
	assert.Len(t, envelopes, 2)

	envelopes, err = fixture.engine.Query(ctx, QueryFilters{Genus: "Parus"})
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.Equal(t, "Parus major", envelopes[0].ScientificName)
}

func TestQueryOrderingAndPagination(t *testing.T) {
	fixture := newEnrichedFixture(t)
	ctx := context.Background()

	envelopes, err := fixture.engine.Query(ctx, QueryFilters{OrderBy: OrderByConfidence, OrderDesc: true})
	require.NoError(t, err)
	require.Len(t, envelopes, 4)
	assert.InDelta(t, 0.91, envelopes[0].Confidence, 1e-9)
	assert.InDelta(t, 0.55, envelopes[3].Confidence, 1e-9)

	envelopes, err = fixture.engine.Query(ctx, QueryFilters{OrderBy: OrderByTimestamp, Limit: 2})
	require.NoError(t, err)
	require.Len(t, envelopes, 2)
	assert.True(t, envelopes[0].Timestamp.Equal(fixture.base))

	envelopes, err = fixture.engine.Query(ctx, QueryFilters{OrderBy: OrderByTimestamp, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, envelopes, 2)
	assert.True(t, envelopes[0].Timestamp.Equal(fixture.base.Add(2*time.Hour)))

	envelopes, err = fixture.engine.Query(ctx, QueryFilters{OrderBy: OrderByFamily})
	require.NoError(t, err)
	require.Len(t, envelopes, 4)
	assert.Empty(t, envelopes[0].Family, "null family sorts first ascending")
	assert.Equal(t, "Paridae", envelopes[1].Family)
	assert.Equal(t, "Turdidae", envelopes[2].Family)
}

func TestFirstEverSurvivesConfidenceFilter(t *testing.T) {
	fixture := newEnrichedFixture(t)
	ctx := context.Background()

	// The true first Turdus merula detection has confidence 0.55. With a
	// 0.7 floor only the later detection comes back, and it must not be
	// promoted to first ever.
	minConf := 0.7
	envelopes, err := fixture.engine.Query(ctx, QueryFilters{
		Species:                []string{"Turdus merula"},
		MinConfidence:          &minConf,
		IncludeFirstDetections: true,
	})
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.False(t, envelopes[0].IsFirstEver, "filtered-out earlier detection still holds first-ever rank")
	require.NotNil(t, envelopes[0].FirstEverAt)
	assert.True(t, envelopes[0].FirstEverAt.Equal(fixture.base))

	// Without the filter the base detection is flagged.
	envelopes, err = fixture.engine.Query(ctx, QueryFilters{
		Species:                []string{"Turdus merula"},
		IncludeFirstDetections: true,
		OrderBy:                OrderByTimestamp,
	})
	require.NoError(t, err)
	require.Len(t, envelopes, 2)
	assert.True(t, envelopes[0].IsFirstEver)
	assert.False(t, envelopes[1].IsFirstEver)
}

func TestFirstInPeriodIndependentOfFirstEver(t *testing.T) {
	fixture := newEnrichedFixture(t)
	ctx := context.Background()

	// Window covering only the second day: the 0.91 detection is first
	// in period there but not first ever.
	dayTwo := fixture.base.Add(24 * time.Hour)
	envelopes, err := fixture.engine.Query(ctx, QueryFilters{
		Species:                []string{"Turdus merula"},
		Start:                  dayTwo,
		End:                    dayTwo.Add(24 * time.Hour),
		IncludeFirstDetections: true,
	})
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	envelope := envelopes[0]
	assert.False(t, envelope.IsFirstEver)
	assert.True(t, envelope.IsFirstInPeriod)
	require.NotNil(t, envelope.FirstEverAt)
	assert.True(t, envelope.FirstEverAt.Equal(fixture.base))
	require.NotNil(t, envelope.FirstPeriodAt)
	assert.True(t, envelope.FirstPeriodAt.Equal(fixture.base.Add(25*time.Hour)))
}

func TestSpeciesSummary(t *testing.T) {
	fixture := newEnrichedFixture(t)
	ctx := context.Background()

	summary, err := fixture.engine.SpeciesSummary(ctx, SummaryOptions{})
	require.NoError(t, err)
	require.Len(t, summary, 3)

	assert.Equal(t, "Turdus merula", summary[0].ScientificName, "highest count sorts first")
	assert.Equal(t, 2, summary[0].DetectionCount)
	assert.InDelta(t, 0.73, summary[0].AvgConfidence, 1e-6, "average of 0.55 and 0.91 rounded to three decimals")
	assert.True(t, summary[0].LatestDetection.Equal(fixture.base.Add(25*time.Hour)))
	assert.Equal(t, "Amsel", summary[0].TranslatedName)
	assert.Equal(t, "Turdidae", summary[0].Family)
}

func TestSpeciesSummaryFirstDetections(t *testing.T) {
	fixture := newEnrichedFixture(t)
	ctx := context.Background()

	dayTwo := fixture.base.Add(24 * time.Hour)
	summary, err := fixture.engine.SpeciesSummary(ctx, SummaryOptions{
		Since:                  dayTwo,
		IncludeFirstDetections: true,
	})
	require.NoError(t, err)
	require.Len(t, summary, 1, "only Turdus merula was heard on day two")

	row := summary[0]
	assert.Equal(t, "Turdus merula", row.ScientificName)
	require.NotNil(t, row.FirstEverAt)
	assert.True(t, row.FirstEverAt.Equal(fixture.base), "first ever ignores the since window")
	require.NotNil(t, row.FirstPeriodAt)
	assert.True(t, row.FirstPeriodAt.Equal(fixture.base.Add(25*time.Hour)))
}

func TestSpeciesSummaryFamilyFilter(t *testing.T) {
	fixture := newEnrichedFixture(t)

	summary, err := fixture.engine.SpeciesSummary(context.Background(), SummaryOptions{Family: "Paridae"})
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, "Parus major", summary[0].ScientificName)
}

func TestBestRecordings(t *testing.T) {
	store := openTestStore(t)
	engine := NewEnrichedQueryEngine(store, NewAttachManager(), "en")
	ctx := context.Background()

	base := time.Date(2025, 4, 12, 5, 0, 0, 0, time.UTC)
	save := func(sci, common string, conf float64, at time.Time, withClip bool) {
		detection := makeDetection(sci, common, conf, at)
		var audioFile *AudioFile
		if withClip {
			audioFile = &AudioFile{
				Path:            sci + "/" + at.Format("20060102_150405") + ".wav",
				DurationSeconds: 3,
				SizeBytes:       288044,
				RecordingStart:  at,
			}
		}
		require.NoError(t, store.Save(detection, audioFile))
	}

	save("Turdus merula", "Eurasian Blackbird", 0.95, base, true)
	save("Turdus merula", "Eurasian Blackbird", 0.85, base.Add(time.Minute), true)
	save("Turdus merula", "Eurasian Blackbird", 0.99, base.Add(2*time.Minute), false) // no clip, ineligible
	save("Parus major", "Great Tit", 0.80, base.Add(3*time.Minute), true)
	save("Parus major", "Great Tit", 0.75, base.Add(4*time.Minute), true)

	recordings, err := engine.BestRecordings(ctx, BestRecordingsOptions{PerSpeciesLimit: 1})
	require.NoError(t, err)
	require.Len(t, recordings, 2)
	assert.Equal(t, "Parus major", recordings[0].ScientificName)
	assert.InDelta(t, 0.80, recordings[0].Confidence, 1e-9)
	assert.Equal(t, "Turdus merula", recordings[1].ScientificName)
	assert.InDelta(t, 0.95, recordings[1].Confidence, 1e-9, "clipless detections cannot be best recordings")
	assert.NotEmpty(t, recordings[0].ClipPath)

	// Asking for one species lifts the per-species cap.
	recordings, err = engine.BestRecordings(ctx, BestRecordingsOptions{
		PerSpeciesLimit: 1,
		Species:         "Turdus merula",
	})
	require.NoError(t, err)
	require.Len(t, recordings, 2)
	assert.InDelta(t, 0.95, recordings[0].Confidence, 1e-9)
	assert.InDelta(t, 0.85, recordings[1].Confidence, 1e-9)

	recordings, err = engine.BestRecordings(ctx, BestRecordingsOptions{MinConfidence: 0.9})
	require.NoError(t, err)
	require.Len(t, recordings, 1)
	assert.InDelta(t, 0.95, recordings[0].Confidence, 1e-9)
}

func TestIsFirstEverAndFirstInPeriod(t *testing.T) {
	fixture := newEnrichedFixture(t)

	firstEver, err := fixture.engine.IsFirstEver("Turdus merula", fixture.base)
	require.NoError(t, err)
	assert.True(t, firstEver)

	firstEver, err = fixture.engine.IsFirstEver("Turdus merula", fixture.base.Add(25*time.Hour))
	require.NoError(t, err)
	assert.False(t, firstEver)

	dayTwo := fixture.base.Add(24 * time.Hour)
	firstInPeriod, err := fixture.engine.IsFirstInPeriod("Turdus merula", fixture.base.Add(25*time.Hour), dayTwo)
	require.NoError(t, err)
	assert.True(t, firstInPeriod)

	firstEver, err = fixture.engine.IsFirstEver("Corvus corax", fixture.base)
	require.NoError(t, err)
	assert.False(t, firstEver, "species with no detections is never first ever")
}
