package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
)

// QueryEngine is the subset of the enriched query engine the consumer
// needs: taxonomy resolution and first-detection checks.
type QueryEngine interface {
	Query(ctx context.Context, filters datastore.QueryFilters) ([]datastore.DetectionEnvelope, error)
	IsFirstEver(scientificName string, ts time.Time) (bool, error)
	IsFirstInPeriod(scientificName string, ts, since time.Time) (bool, error)
}

// DetectionConsumer turns committed detections into in-app
// notifications by running them through the rule matcher. It plugs into
// the ingest service as its post-commit notifier.
type DetectionConsumer struct {
	settings *conf.Settings
	matcher  *Matcher
	engine   QueryEngine
	service  *Service
	logger   *slog.Logger
}

// NewDetectionConsumer wires the matcher to the notification center.
// The engine may be nil, in which case taxonomy enrichment and
// first-detection scopes degrade to non-matching.
func NewDetectionConsumer(settings *conf.Settings, engine QueryEngine, service *Service) *DetectionConsumer {
	return &DetectionConsumer{
		settings: settings,
		matcher:  NewMatcher(settings),
		engine:   engine,
		service:  service,
		logger:   getLogger(),
	}
}

// DetectionSaved evaluates the notification rules against a freshly
// committed detection. Failures are logged, never propagated: a broken
// rule must not affect ingest.
func (c *DetectionConsumer) DetectionSaved(ctx context.Context, detected *datastore.Detection) {
	if !c.settings.Notification.Enabled || len(c.settings.Notification.Rules) == 0 {
		return
	}

	taxa := c.resolveTaxonomy(ctx, detected)
	firsts := c.resolveFirsts(detected)

	for _, outcome := range c.matcher.Evaluate(detected, taxa, firsts) {
		if outcome.Deferred {
			continue
		}

		notification := NewNotification(TypeDetection, PriorityMedium, outcome.Title, outcome.Message).
			WithComponent("notification").
			WithMetadata("rule", outcome.RuleName).
			WithMetadata("scientific_name", detected.ScientificName).
			WithMetadata("common_name", detected.CommonName).
			WithMetadata("confidence", detected.Confidence).
			WithMetadata("detection_id", detected.ID)

		if err := c.service.Publish(notification); err != nil {
			c.logger.Warn("Failed to publish detection notification",
				"rule", outcome.RuleName,
				"scientific_name", detected.ScientificName,
				"error", err)
		}
	}
}

// resolveTaxonomy looks up the genus, family and order columns for the
// species via the reference databases.
func (c *DetectionConsumer) resolveTaxonomy(ctx context.Context, detected *datastore.Detection) Taxonomy {
	if c.engine == nil || !c.needsTaxonomy() {
		return Taxonomy{}
	}

	envelopes, err := c.engine.Query(ctx, datastore.QueryFilters{
		Species: []string{detected.ScientificName},
		Limit:   1,
	})
	if err != nil {
		c.logger.Warn("Taxonomy lookup failed",
			"scientific_name", detected.ScientificName, "error", err)
		return Taxonomy{}
	}
	if len(envelopes) == 0 {
		return Taxonomy{}
	}
	return Taxonomy{
		Genus:     envelopes[0].Genus,
		Family:    envelopes[0].Family,
		OrderName: envelopes[0].OrderName,
	}
}

// resolveFirsts computes the first-detection flags the configured rule
// scopes require. Period boundaries use the server timezone; weeks
// start on Monday.
func (c *DetectionConsumer) resolveFirsts(detected *datastore.Detection) FirstFlags {
	var firsts FirstFlags
	if c.engine == nil {
		return firsts
	}

	needEver, needToday, needWeek := c.neededScopes()
	if !needEver && !needToday && !needWeek {
		return firsts
	}

	name := detected.ScientificName
	ts := detected.Timestamp

	if needEver {
		first, err := c.engine.IsFirstEver(name, ts)
		if err != nil {
			c.logger.Warn("First-ever check failed", "scientific_name", name, "error", err)
		} else {
			firsts.FirstEver = first
		}
	}

	loc := c.settings.Location()
	local := ts.In(loc)
	if needToday {
		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		first, err := c.engine.IsFirstInPeriod(name, ts, midnight)
		if err != nil {
			c.logger.Warn("First-today check failed", "scientific_name", name, "error", err)
		} else {
			firsts.FirstToday = first
		}
	}
	if needWeek {
		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		weekStart := midnight.AddDate(0, 0, -((int(local.Weekday()) + 6) % 7))
		first, err := c.engine.IsFirstInPeriod(name, ts, weekStart)
		if err != nil {
			c.logger.Warn("First-this-week check failed", "scientific_name", name, "error", err)
		} else {
			firsts.FirstThisWeek = first
		}
	}
	return firsts
}

func (c *DetectionConsumer) needsTaxonomy() bool {
	for i := range c.settings.Notification.Rules {
		rule := &c.settings.Notification.Rules[i]
		if rule.Enabled && (len(rule.Include) > 0 || len(rule.Exclude) > 0) {
			return true
		}
	}
	return false
}

func (c *DetectionConsumer) neededScopes() (ever, today, week bool) {
	for i := range c.settings.Notification.Rules {
		rule := &c.settings.Notification.Rules[i]
		if !rule.Enabled {
			continue
		}
		switch rule.Scope {
		case "new_ever":
			ever = true
		case "new_today":
			today = true
		case "new_this_week":
			week = true
		}
	}
	return ever, today, week
}
