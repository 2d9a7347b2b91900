// enriched.go: reference-enriched detection queries over an attached session
package datastore

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Order keys accepted by Query.
const (
	OrderByTimestamp      = "timestamp"
	OrderByConfidence     = "confidence"
	OrderByScientificName = "scientific_name"
	OrderByFamily         = "family"
)

// QueryFilters narrows, orders and pages an enriched detection query.
// All filters are optional and combine with AND.
type QueryFilters struct {
	Species                []string // scientific names, any match
	Family                 string
	Genus                  string
	Start                  time.Time // inclusive lower timestamp bound
	End                    time.Time // exclusive upper timestamp bound
	MinConfidence          *float64
	MaxConfidence          *float64
	Limit                  int
	Offset                 int
	OrderBy                string // one of the OrderBy constants, default timestamp
	OrderDesc              bool
	IncludeFirstDetections bool
}

// DetectionEnvelope is a detection together with its reference
// enrichment. Enrichment fields are empty when the reference databases
// are not attached or do not know the species. The envelope is never
// persisted.
type DetectionEnvelope struct {
	Detection
	ClipPath        string
	IOCEnglishName  string
	TranslatedName  string
	Family          string
	Genus           string
	OrderName       string
	IsFirstEver     bool
	IsFirstInPeriod bool
	FirstEverAt     *time.Time
	FirstPeriodAt   *time.Time
}

// SpeciesSummaryRow is one per-species aggregate row.
type SpeciesSummaryRow struct {
	ScientificName  string
	CommonName      string
	IOCEnglishName  string
	TranslatedName  string
	Family          string
	Genus           string
	OrderName       string
	DetectionCount  int
	AvgConfidence   float64
	LatestDetection time.Time
	FirstEverAt     *time.Time
	FirstPeriodAt   *time.Time
}

// SummaryOptions narrows the species summary query.
type SummaryOptions struct {
	Since                  time.Time // zero means all time
	Family                 string
	IncludeFirstDetections bool
}

// BestRecordingsOptions narrows the best recordings query.
type BestRecordingsOptions struct {
	PerSpeciesLimit int // rows kept per species, 0 means unlimited
	MinConfidence   float64
	Species         string // a specific species disables PerSpeciesLimit
	Family          string
	Genus           string
}

// EnrichedQueryEngine runs detection queries joined against the
// reference databases. Each call acquires its own session connection,
// attaches whatever reference files exist, and detaches on every exit
// path. Missing reference databases degrade enrichment columns to their
// classifier-provided fallbacks.
type EnrichedQueryEngine struct {
	store    Interface
	attach   *AttachManager
	language string
}

// NewEnrichedQueryEngine creates an engine over the given store. The
// language selects which translated common names are joined.
func NewEnrichedQueryEngine(store Interface, attach *AttachManager, language string) *EnrichedQueryEngine {
	if language == "" {
		language = "en"
	}
	return &EnrichedQueryEngine{store: store, attach: attach, language: language}
}

// Query returns the detections matching the filters, each wrapped in an
// envelope with enrichment columns resolved from the attached reference
// databases.
func (e *EnrichedQueryEngine) Query(ctx context.Context, filters QueryFilters) ([]DetectionEnvelope, error) {
	var envelopes []DetectionEnvelope
	err := e.attach.WithAttached(ctx, e.store, func(conn *sql.Conn, attached Attached) error {
		query, args := buildDetectionQuery(filters, attached, e.language)
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return databaseError(err, "enriched-query")
		}
		defer rows.Close()

		for rows.Next() {
			envelope, err := scanEnvelope(rows, filters.IncludeFirstDetections)
			if err != nil {
				return databaseError(err, "enriched-query-scan")
			}
			envelopes = append(envelopes, envelope)
		}
		return rows.Err()
	})
	return envelopes, err
}

// SpeciesSummary returns one aggregate row per detected species, ordered
// by detection count descending.
func (e *EnrichedQueryEngine) SpeciesSummary(ctx context.Context, opts SummaryOptions) ([]SpeciesSummaryRow, error) {
	var summary []SpeciesSummaryRow
	err := e.attach.WithAttached(ctx, e.store, func(conn *sql.Conn, attached Attached) error {
		query, args := buildSummaryQuery(opts, attached, e.language)
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return databaseError(err, "species-summary")
		}
		defer rows.Close()

		for rows.Next() {
			row, err := scanSummaryRow(rows, opts.IncludeFirstDetections)
			if err != nil {
				return databaseError(err, "species-summary-scan")
			}
			summary = append(summary, row)
		}
		return rows.Err()
	})
	return summary, err
}

// BestRecordings returns the highest-confidence clip-backed detections,
// up to PerSpeciesLimit rows per species. Requesting a specific species
// lifts the per-species limit.
func (e *EnrichedQueryEngine) BestRecordings(ctx context.Context, opts BestRecordingsOptions) ([]DetectionEnvelope, error) {
	var envelopes []DetectionEnvelope
	err := e.attach.WithAttached(ctx, e.store, func(conn *sql.Conn, attached Attached) error {
		query, args := buildBestRecordingsQuery(opts, attached, e.language)
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return databaseError(err, "best-recordings")
		}
		defer rows.Close()

		for rows.Next() {
			envelope, err := scanEnvelope(rows, false)
			if err != nil {
				return databaseError(err, "best-recordings-scan")
			}
			envelopes = append(envelopes, envelope)
		}
		return rows.Err()
	})
	return envelopes, err
}

// IsFirstEver reports whether ts is the earliest detection timestamp for
// the species across all time.
func (e *EnrichedQueryEngine) IsFirstEver(scientificName string, ts time.Time) (bool, error) {
	first, err := e.store.FirstDetectionSince(scientificName, time.Time{})
	if err != nil {
		return false, err
	}
	if first.IsZero() {
		return false, nil
	}
	return !first.Before(ts), nil
}

// IsFirstInPeriod reports whether ts is the earliest detection timestamp
// for the species at or after since.
func (e *EnrichedQueryEngine) IsFirstInPeriod(scientificName string, ts, since time.Time) (bool, error) {
	first, err := e.store.FirstDetectionSince(scientificName, since)
	if err != nil {
		return false, err
	}
	if first.IsZero() {
		return false, nil
	}
	return !first.Before(ts), nil
}

// enrichmentExprs holds the SQL expressions for the enrichment columns,
// built against the capability set so a missing reference database
// degrades the column instead of breaking the query.
type enrichmentExprs struct {
	iocEnglish string
	translated string
	family     string
	genus      string
	orderName  string
}

func buildEnrichmentExprs(attached Attached) enrichmentExprs {
	exprs := enrichmentExprs{
		iocEnglish: "d.common_name",
		family:     "NULL",
		genus:      "NULL",
		orderName:  "NULL",
	}

	// Translation priority: IOC, then PatLevin, then Avibase, then the
	// IOC English name, then whatever the classifier label carried.
	var sources []string
	if attached.Has(AliasIOC) {
		sources = append(sources, "t.common_name")
	}
	if attached.Has(AliasPatLevin) {
		sources = append(sources, "p.common_name")
	}
	if attached.Has(AliasAvibase) {
		sources = append(sources, "a.common_name")
	}
	if attached.Has(AliasIOC) {
		sources = append(sources, "s.english_name")
		exprs.iocEnglish = "COALESCE(s.english_name, d.common_name)"
		exprs.family = "s.family"
		exprs.genus = "s.genus"
		exprs.orderName = "s.order_name"
	}
	sources = append(sources, "d.common_name")

	if len(sources) > 1 {
		exprs.translated = "COALESCE(" + strings.Join(sources, ", ") + ")"
	} else {
		exprs.translated = sources[0]
	}
	return exprs
}

// appendReferenceJoins writes the LEFT JOINs for whichever reference
// databases are attached and appends their language bind arguments.
func appendReferenceJoins(sb *strings.Builder, args *[]any, attached Attached, language string) {
	if attached.Has(AliasIOC) {
		sb.WriteString(" LEFT JOIN ioc.species s ON d.scientific_name = s.scientific_name")
		sb.WriteString(" LEFT JOIN ioc.translations t ON s.avibase_id = t.avibase_id AND t.language_code = ?")
		*args = append(*args, language)
	}
	if attached.Has(AliasPatLevin) {
		sb.WriteString(" LEFT JOIN patlevin.patlevin_names p ON p.scientific_name = d.scientific_name AND p.language_code = ?")
		*args = append(*args, language)
	}
	if attached.Has(AliasAvibase) {
		sb.WriteString(" LEFT JOIN avibase.avibase_names a ON a.scientific_name = d.scientific_name AND a.language_code = ?")
		*args = append(*args, language)
	}
}

// baseSelectList returns the detection and enrichment columns shared by
// the envelope producing queries. scanEnvelope expects exactly this
// column order.
func baseSelectList(exprs enrichmentExprs) string {
	return "d.id, d.source_node, d.species_tensor, d.scientific_name, d.common_name, " +
		"d.confidence, d.timestamp, d.latitude, d.longitude, d.threshold, d.week, " +
		"d.sensitivity, d.overlap, d.hour_epoch, d.audio_file_id, af.path, " +
		exprs.iocEnglish + ", " + exprs.translated + ", " +
		exprs.family + ", " + exprs.genus + ", " + exprs.orderName
}

func buildDetectionQuery(filters QueryFilters, attached Attached, language string) (string, []any) {
	var sb strings.Builder
	var args []any

	if filters.IncludeFirstDetections {
		// The global ranking runs over the unfiltered table so that
		// confidence or taxonomy filters cannot promote a later
		// detection to first ever. Only the time window applies to the
		// per-period minimum.
		sb.WriteString("WITH firsts AS (")
		sb.WriteString("SELECT id, ROW_NUMBER() OVER (PARTITION BY scientific_name ORDER BY timestamp, id) AS rank_ever, ")
		sb.WriteString("MIN(timestamp) OVER (PARTITION BY scientific_name) AS first_ever_ts FROM detections")
		sb.WriteString("), period_firsts AS (")
		sb.WriteString("SELECT scientific_name, MIN(timestamp) AS first_period_ts FROM detections")
		timeClauses, timeArgs := timeFilterClauses(filters, "timestamp")
		if len(timeClauses) > 0 {
			sb.WriteString(" WHERE ")
			sb.WriteString(strings.Join(timeClauses, " AND "))
			args = append(args, timeArgs...)
		}
		sb.WriteString(" GROUP BY scientific_name) ")
	}

	exprs := buildEnrichmentExprs(attached)
	sb.WriteString("SELECT ")
	sb.WriteString(baseSelectList(exprs))
	if filters.IncludeFirstDetections {
		sb.WriteString(", (fr.rank_ever = 1), fr.first_ever_ts, ")
		sb.WriteString("CASE WHEN pf.first_period_ts IS NOT NULL AND d.timestamp = pf.first_period_ts THEN 1 ELSE 0 END, ")
		sb.WriteString("pf.first_period_ts")
	}

	sb.WriteString(" FROM detections d")
	sb.WriteString(" LEFT JOIN audio_files af ON af.id = d.audio_file_id")
	appendReferenceJoins(&sb, &args, attached, language)
	if filters.IncludeFirstDetections {
		sb.WriteString(" JOIN firsts fr ON fr.id = d.id")
		sb.WriteString(" LEFT JOIN period_firsts pf ON pf.scientific_name = d.scientific_name")
	}

	where, whereArgs := filterClauses(filters, exprs)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
		args = append(args, whereArgs...)
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderClause(filters, exprs))

	if filters.Limit > 0 || filters.Offset > 0 {
		limit := filters.Limit
		if limit <= 0 {
			limit = int(^uint(0) >> 1) // offset without limit still needs a LIMIT clause
		}
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
		if filters.Offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, filters.Offset)
		}
	}

	return sb.String(), args
}

func buildSummaryQuery(opts SummaryOptions, attached Attached, language string) (string, []any) {
	var sb strings.Builder
	var args []any

	exprs := buildEnrichmentExprs(attached)

	if opts.IncludeFirstDetections {
		sb.WriteString("WITH all_firsts AS (")
		sb.WriteString("SELECT scientific_name, MIN(timestamp) AS first_ever_ts FROM detections GROUP BY scientific_name) ")
	}

	sb.WriteString("SELECT d.scientific_name, MAX(d.common_name), ")
	sb.WriteString("COUNT(*) AS detection_count, ROUND(AVG(d.confidence), 3), MAX(d.timestamp), ")
	sb.WriteString("MAX(" + exprs.iocEnglish + "), MAX(" + exprs.translated + "), ")
	sb.WriteString("MAX(" + exprs.family + "), MAX(" + exprs.genus + "), MAX(" + exprs.orderName + ")")
	if opts.IncludeFirstDetections {
		sb.WriteString(", MAX(fe.first_ever_ts), MIN(d.timestamp)")
	}

	sb.WriteString(" FROM detections d")
	appendReferenceJoins(&sb, &args, attached, language)
	if opts.IncludeFirstDetections {
		sb.WriteString(" LEFT JOIN all_firsts fe ON fe.scientific_name = d.scientific_name")
	}

	var where []string
	if !opts.Since.IsZero() {
		where = append(where, "d.timestamp >= ?")
		args = append(args, opts.Since)
	}
	if opts.Family != "" {
		where = append(where, exprs.family+" = ?")
		args = append(args, opts.Family)
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	sb.WriteString(" GROUP BY d.scientific_name ORDER BY detection_count DESC")

	return sb.String(), args
}

func buildBestRecordingsQuery(opts BestRecordingsOptions, attached Attached, language string) (string, []any) {
	var sb strings.Builder
	var args []any

	exprs := buildEnrichmentExprs(attached)

	sb.WriteString("WITH ranked AS (")
	sb.WriteString("SELECT d.id AS id, ROW_NUMBER() OVER (PARTITION BY d.scientific_name ORDER BY d.confidence DESC, d.timestamp DESC) AS rank_quality")
	sb.WriteString(" FROM detections d")
	needsTaxonomy := opts.Family != "" || opts.Genus != ""
	if needsTaxonomy && attached.Has(AliasIOC) {
		sb.WriteString(" LEFT JOIN ioc.species s ON d.scientific_name = s.scientific_name")
	}
	sb.WriteString(" WHERE d.audio_file_id IS NOT NULL")
	if opts.MinConfidence > 0 {
		sb.WriteString(" AND d.confidence >= ?")
		args = append(args, opts.MinConfidence)
	}
	if opts.Species != "" {
		sb.WriteString(" AND d.scientific_name = ?")
		args = append(args, opts.Species)
	}
	if opts.Family != "" {
		sb.WriteString(" AND " + exprs.family + " = ?")
		args = append(args, opts.Family)
	}
	if opts.Genus != "" {
		sb.WriteString(" AND " + exprs.genus + " = ?")
		args = append(args, opts.Genus)
	}
	sb.WriteString(") ")

	sb.WriteString("SELECT ")
	sb.WriteString(baseSelectList(exprs))
	sb.WriteString(" FROM detections d")
	sb.WriteString(" JOIN ranked r ON r.id = d.id")
	sb.WriteString(" LEFT JOIN audio_files af ON af.id = d.audio_file_id")
	appendReferenceJoins(&sb, &args, attached, language)

	// A single-species request returns every qualifying clip.
	perSpecies := opts.PerSpeciesLimit
	if opts.Species != "" {
		perSpecies = 0
	}
	if perSpecies > 0 {
		sb.WriteString(" WHERE r.rank_quality <= ?")
		args = append(args, perSpecies)
	}

	sb.WriteString(" ORDER BY d.scientific_name ASC, r.rank_quality ASC")

	return sb.String(), args
}

func filterClauses(filters QueryFilters, exprs enrichmentExprs) ([]string, []any) {
	var clauses []string
	var args []any

	switch len(filters.Species) {
	case 0:
	case 1:
		clauses = append(clauses, "d.scientific_name = ?")
		args = append(args, filters.Species[0])
	default:
		placeholders := strings.Repeat("?, ", len(filters.Species)-1) + "?"
		clauses = append(clauses, "d.scientific_name IN ("+placeholders+")")
		for _, species := range filters.Species {
			args = append(args, species)
		}
	}

	if filters.Family != "" {
		clauses = append(clauses, exprs.family+" = ?")
		args = append(args, filters.Family)
	}
	if filters.Genus != "" {
		clauses = append(clauses, exprs.genus+" = ?")
		args = append(args, filters.Genus)
	}

	timeClauses, timeArgs := timeFilterClauses(filters, "d.timestamp")
	clauses = append(clauses, timeClauses...)
	args = append(args, timeArgs...)

	if filters.MinConfidence != nil {
		clauses = append(clauses, "d.confidence >= ?")
		args = append(args, *filters.MinConfidence)
	}
	if filters.MaxConfidence != nil {
		clauses = append(clauses, "d.confidence <= ?")
		args = append(args, *filters.MaxConfidence)
	}

	return clauses, args
}

func timeFilterClauses(filters QueryFilters, column string) ([]string, []any) {
	var clauses []string
	var args []any
	if !filters.Start.IsZero() {
		clauses = append(clauses, column+" >= ?")
		args = append(args, filters.Start)
	}
	if !filters.End.IsZero() {
		clauses = append(clauses, column+" < ?")
		args = append(args, filters.End)
	}
	return clauses, args
}

func orderClause(filters QueryFilters, exprs enrichmentExprs) string {
	direction := "ASC"
	if filters.OrderDesc {
		direction = "DESC"
	}

	column := "d.timestamp"
	switch filters.OrderBy {
	case OrderByConfidence:
		column = "d.confidence"
	case OrderByScientificName:
		column = "d.scientific_name"
	case OrderByFamily:
		if exprs.family != "NULL" {
			column = exprs.family
		} else {
			column = "d.scientific_name"
		}
	}

	if column == "d.timestamp" {
		return column + " " + direction
	}
	return column + " " + direction + ", d.timestamp " + direction
}

func scanEnvelope(rows *sql.Rows, includeFirsts bool) (DetectionEnvelope, error) {
	var envelope DetectionEnvelope
	var (
		sourceNode  sql.NullString
		commonName  sql.NullString
		lat, lon    sql.NullFloat64
		hourEpoch   sql.NullInt64
		audioFileID sql.NullInt64
		clipPath    sql.NullString
		iocEnglish  sql.NullString
		translated  sql.NullString
		family      sql.NullString
		genus       sql.NullString
		orderName   sql.NullString
	)

	dest := []any{
		&envelope.ID, &sourceNode, &envelope.SpeciesTensor, &envelope.ScientificName, &commonName,
		&envelope.Confidence, &envelope.Timestamp, &lat, &lon, &envelope.Threshold, &envelope.Week,
		&envelope.Sensitivity, &envelope.Overlap, &hourEpoch, &audioFileID, &clipPath,
		&iocEnglish, &translated, &family, &genus, &orderName,
	}

	var isFirstEver, isFirstInPeriod sql.NullBool
	var firstEverRaw, firstPeriodRaw any
	if includeFirsts {
		dest = append(dest, &isFirstEver, &firstEverRaw, &isFirstInPeriod, &firstPeriodRaw)
	}

	if err := rows.Scan(dest...); err != nil {
		return DetectionEnvelope{}, err
	}

	envelope.SourceNode = sourceNode.String
	envelope.CommonName = commonName.String
	envelope.Timestamp = envelope.Timestamp.UTC()
	if lat.Valid {
		envelope.Latitude = &lat.Float64
	}
	if lon.Valid {
		envelope.Longitude = &lon.Float64
	}
	if hourEpoch.Valid {
		envelope.HourEpoch = &hourEpoch.Int64
	}
	if audioFileID.Valid {
		id := uint(audioFileID.Int64)
		envelope.AudioFileID = &id
	}
	envelope.ClipPath = clipPath.String
	envelope.IOCEnglishName = iocEnglish.String
	envelope.TranslatedName = translated.String
	envelope.Family = family.String
	envelope.Genus = genus.String
	envelope.OrderName = orderName.String

	if includeFirsts {
		envelope.IsFirstEver = isFirstEver.Valid && isFirstEver.Bool
		envelope.IsFirstInPeriod = isFirstInPeriod.Valid && isFirstInPeriod.Bool
		if t, ok := toTime(firstEverRaw); ok {
			envelope.FirstEverAt = &t
		}
		if t, ok := toTime(firstPeriodRaw); ok {
			envelope.FirstPeriodAt = &t
		}
	}

	return envelope, nil
}

func scanSummaryRow(rows *sql.Rows, includeFirsts bool) (SpeciesSummaryRow, error) {
	var row SpeciesSummaryRow
	var (
		commonName sql.NullString
		latestRaw  any
		iocEnglish sql.NullString
		translated sql.NullString
		family     sql.NullString
		genus      sql.NullString
		orderName  sql.NullString
	)

	dest := []any{
		&row.ScientificName, &commonName, &row.DetectionCount, &row.AvgConfidence, &latestRaw,
		&iocEnglish, &translated, &family, &genus, &orderName,
	}

	var firstEverRaw, firstPeriodRaw any
	if includeFirsts {
		dest = append(dest, &firstEverRaw, &firstPeriodRaw)
	}

	if err := rows.Scan(dest...); err != nil {
		return SpeciesSummaryRow{}, err
	}

	row.CommonName = commonName.String
	row.IOCEnglishName = iocEnglish.String
	row.TranslatedName = translated.String
	row.Family = family.String
	row.Genus = genus.String
	row.OrderName = orderName.String
	if t, ok := toTime(latestRaw); ok {
		row.LatestDetection = t
	}
	if includeFirsts {
		if t, ok := toTime(firstEverRaw); ok {
			row.FirstEverAt = &t
		}
		if t, ok := toTime(firstPeriodRaw); ok {
			row.FirstPeriodAt = &t
		}
	}

	return row, nil
}

// sqliteTimestampFormats mirrors the formats the SQLite driver uses when
// storing time values, so timestamps coming back from SQL expressions
// can be parsed out of their text form.
var sqliteTimestampFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// toTime converts a scanned SQL value to a UTC time. Expression columns
// lose their declared type, so the driver may hand back text instead of
// a parsed time.
func toTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v.UTC(), true
	case []byte:
		return parseTimestamp(string(v))
	case string:
		return parseTimestamp(v)
	default:
		return time.Time{}, false
	}
}

func parseTimestamp(value string) (time.Time, bool) {
	for _, format := range sqliteTimestampFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
