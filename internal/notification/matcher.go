package notification

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
)

// templateErrorText is emitted in place of a notification body when a
// rule template fails to parse or execute, so a bad template is visible
// without crashing the match.
const templateErrorText = "Error rendering template"

// defaultTemplate renders when a rule leaves its template empty.
const defaultTemplate = "{{.common_name}} ({{.scientific_name}}) detected with {{.confidence_pct}}% confidence at {{.time}}"

// Taxonomy carries the enrichment columns the matcher checks taxa
// lists against. Fields may be empty when reference data is absent.
type Taxonomy struct {
	Genus     string
	Family    string
	OrderName string
}

// FirstFlags reports whether a detection is the first of its species
// ever, today, or this ISO week, as computed by the query layer.
type FirstFlags struct {
	FirstEver     bool
	FirstToday    bool
	FirstThisWeek bool
}

// Outcome is the result of matching one rule against one detection.
// Deferred outcomes fell inside quiet hours: the match is logged but no
// notification is rendered.
type Outcome struct {
	RuleName string
	Matched  bool
	Deferred bool
	Title    string
	Message  string
}

// Matcher evaluates the configured notification rules against
// persisted detections.
type Matcher struct {
	settings *conf.Settings
	location *time.Location
	logger   *slog.Logger

	// now is replaceable in tests for quiet-hours checks.
	now func() time.Time
}

// NewMatcher creates a matcher using the server timezone from the
// settings.
func NewMatcher(settings *conf.Settings) *Matcher {
	return &Matcher{
		settings: settings,
		location: settings.Location(),
		logger:   getLogger(),
		now:      time.Now,
	}
}

// Evaluate runs every configured rule against the detection and returns
// the outcomes of the rules that matched.
func (m *Matcher) Evaluate(detected *datastore.Detection, taxa Taxonomy, firsts FirstFlags) []Outcome {
	if !m.settings.Notification.Enabled {
		return nil
	}

	var outcomes []Outcome
	for i := range m.settings.Notification.Rules {
		rule := &m.settings.Notification.Rules[i]
		if !m.ruleMatches(rule, detected, taxa, firsts) {
			continue
		}

		outcome := Outcome{RuleName: rule.Name, Matched: true}
		if m.inQuietHours(m.now().In(m.location)) {
			outcome.Deferred = true
			m.logger.Info("Notification deferred by quiet hours",
				"rule", rule.Name,
				"scientific_name", detected.ScientificName)
		} else {
			outcome.Title = ruleTitle(rule, detected)
			outcome.Message = renderTemplate(rule.Template, templateContext(detected, m.location))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// ruleMatches applies the rule predicate: enabled, immediate frequency,
// confidence floor, taxa include/exclude with exclude taking
// precedence, and scope.
func (m *Matcher) ruleMatches(rule *conf.NotificationRule, detected *datastore.Detection, taxa Taxonomy, firsts FirstFlags) bool {
	if !rule.Enabled {
		return false
	}
	if rule.Frequency != "" && rule.Frequency != "immediate" {
		return false
	}
	if detected.Confidence*100 < rule.MinimumConfidence {
		return false
	}
	if len(rule.Exclude) > 0 && taxaListContains(rule.Exclude, detected, taxa) {
		return false
	}
	if len(rule.Include) > 0 && !taxaListContains(rule.Include, detected, taxa) {
		return false
	}

	switch rule.Scope {
	case "", "all":
		return true
	case "new_ever":
		return firsts.FirstEver
	case "new_today":
		return firsts.FirstToday
	case "new_this_week":
		return firsts.FirstThisWeek
	default:
		m.logger.Warn("Unknown notification rule scope", "rule", rule.Name, "scope", rule.Scope)
		return false
	}
}

// taxaListContains reports whether the list names the detection's
// species, genus, family, or order, case-insensitively.
func taxaListContains(list []string, detected *datastore.Detection, taxa Taxonomy) bool {
	candidates := []string{detected.ScientificName, detected.CommonName, taxa.Genus, taxa.Family, taxa.OrderName}
	for _, entry := range list {
		if entry == "" {
			continue
		}
		if slices.ContainsFunc(candidates, func(c string) bool {
			return c != "" && strings.EqualFold(c, entry)
		}) {
			return true
		}
	}
	return false
}

// inQuietHours reports whether the local time falls inside the
// configured quiet range. Equal start and end disable quiet hours; a
// start after the end spans midnight.
func (m *Matcher) inQuietHours(now time.Time) bool {
	startText := m.settings.Notification.QuietHours.Start
	endText := m.settings.Notification.QuietHours.End
	if startText == "" || endText == "" || startText == endText {
		return false
	}

	start, err := conf.ParseClockTime(startText)
	if err != nil {
		m.logger.Warn("Invalid quiet hours start", "value", startText, "error", err)
		return false
	}
	end, err := conf.ParseClockTime(endText)
	if err != nil {
		m.logger.Warn("Invalid quiet hours end", "value", endText, "error", err)
		return false
	}

	nowSec := now.Hour()*3600 + now.Minute()*60 + now.Second()
	startSec := start.Hour()*3600 + start.Minute()*60 + start.Second()
	endSec := end.Hour()*3600 + end.Minute()*60 + end.Second()

	if startSec < endSec {
		return nowSec >= startSec && nowSec < endSec
	}
	// Overnight range, e.g. 22:00:00 to 06:00:00.
	return nowSec >= startSec || nowSec < endSec
}

func ruleTitle(rule *conf.NotificationRule, detected *datastore.Detection) string {
	if rule.Name != "" {
		return rule.Name
	}
	return fmt.Sprintf("New detection: %s", detected.CommonName)
}

// templateContext builds the fixed template context documented for
// notification rules.
func templateContext(detected *datastore.Detection, loc *time.Location) map[string]any {
	local := detected.Timestamp.In(loc)
	context := map[string]any{
		"scientific_name": detected.ScientificName,
		"common_name":     detected.CommonName,
		"confidence_pct":  fmt.Sprintf("%.0f", detected.Confidence*100),
		"date":            local.Format(time.DateOnly),
		"time":            local.Format(time.TimeOnly),
		"timestamp":       detected.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		"latitude":        "",
		"longitude":       "",
	}
	if detected.Latitude != nil {
		context["latitude"] = fmt.Sprintf("%.5f", *detected.Latitude)
	}
	if detected.Longitude != nil {
		context["longitude"] = fmt.Sprintf("%.5f", *detected.Longitude)
	}
	return context
}

// renderTemplate expands the rule template over the context. Parse and
// execution failures yield the diagnostic string instead of an error.
func renderTemplate(text string, context map[string]any) string {
	if text == "" {
		text = defaultTemplate
	}
	tmpl, err := template.New("rule").Option("missingkey=zero").Parse(text)
	if err != nil {
		return templateErrorText
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, context); err != nil {
		return templateErrorText
	}
	return sb.String()
}
