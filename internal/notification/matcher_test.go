package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/conf"
	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
)

func matcherSettings(rules ...conf.NotificationRule) *conf.Settings {
	settings := &conf.Settings{}
	settings.Notification.Enabled = true
	settings.Notification.Rules = rules
	return settings
}

func testDetection() *datastore.Detection {
	return &datastore.Detection{
		ID:             "det-1",
		ScientificName: "Turdus merula",
		CommonName:     "Eurasian Blackbird",
		Confidence:     0.91,
		Timestamp:      time.Date(2025, 5, 1, 14, 30, 5, 0, time.UTC),
	}
}

func TestMatcherConfidenceFloor(t *testing.T) {
	rule := conf.NotificationRule{Name: "high", Enabled: true, Frequency: "immediate", MinimumConfidence: 90}
	matcher := NewMatcher(matcherSettings(rule))

	outcomes := matcher.Evaluate(testDetection(), Taxonomy{}, FirstFlags{})
	require.Len(t, outcomes, 1)
	assert.Equal(t, "high", outcomes[0].RuleName)

	low := testDetection()
	low.Confidence = 0.85
	assert.Empty(t, matcher.Evaluate(low, Taxonomy{}, FirstFlags{}))
}

func TestMatcherConfidenceEqualityMatches(t *testing.T) {
	rule := conf.NotificationRule{Name: "exact", Enabled: true, MinimumConfidence: 91}
	matcher := NewMatcher(matcherSettings(rule))
	assert.Len(t, matcher.Evaluate(testDetection(), Taxonomy{}, FirstFlags{}), 1)
}

func TestMatcherDisabledRuleAndService(t *testing.T) {
	rule := conf.NotificationRule{Name: "off", Enabled: false}
	matcher := NewMatcher(matcherSettings(rule))
	assert.Empty(t, matcher.Evaluate(testDetection(), Taxonomy{}, FirstFlags{}))

	settings := matcherSettings(conf.NotificationRule{Name: "on", Enabled: true})
	settings.Notification.Enabled = false
	assert.Empty(t, NewMatcher(settings).Evaluate(testDetection(), Taxonomy{}, FirstFlags{}))
}

func TestMatcherNonImmediateFrequencySkipped(t *testing.T) {
	rule := conf.NotificationRule{Name: "digest", Enabled: true, Frequency: "daily"}
	matcher := NewMatcher(matcherSettings(rule))
	assert.Empty(t, matcher.Evaluate(testDetection(), Taxonomy{}, FirstFlags{}))
}

func TestMatcherExcludeTakesPrecedence(t *testing.T) {
	rule := conf.NotificationRule{
		Name:    "corvids not ravens",
		Enabled: true,
		Include: []string{"Corvidae"},
		Exclude: []string{"Corvus corax"},
	}
	matcher := NewMatcher(matcherSettings(rule))

	raven := testDetection()
	raven.ScientificName = "Corvus corax"
	assert.Empty(t, matcher.Evaluate(raven, Taxonomy{Family: "Corvidae"}, FirstFlags{}))

	magpie := testDetection()
	magpie.ScientificName = "Pica pica"
	assert.Len(t, matcher.Evaluate(magpie, Taxonomy{Family: "Corvidae"}, FirstFlags{}), 1)
}

func TestMatcherIncludeMatchesTaxaLevels(t *testing.T) {
	taxa := Taxonomy{Genus: "Turdus", Family: "Turdidae", OrderName: "Passeriformes"}
	for _, entry := range []string{"Turdus merula", "turdus", "TURDIDAE", "Passeriformes"} {
		rule := conf.NotificationRule{Name: "incl", Enabled: true, Include: []string{entry}}
		matcher := NewMatcher(matcherSettings(rule))
		assert.Len(t, matcher.Evaluate(testDetection(), taxa, FirstFlags{}), 1, "include entry %q", entry)
	}

	rule := conf.NotificationRule{Name: "incl", Enabled: true, Include: []string{"Strigidae"}}
	assert.Empty(t, NewMatcher(matcherSettings(rule)).Evaluate(testDetection(), taxa, FirstFlags{}))
}

func TestMatcherScopes(t *testing.T) {
	cases := []struct {
		scope  string
		firsts FirstFlags
		want   bool
	}{
		{"all", FirstFlags{}, true},
		{"", FirstFlags{}, true},
		{"new_ever", FirstFlags{FirstEver: true}, true},
		{"new_ever", FirstFlags{FirstToday: true}, false},
		{"new_today", FirstFlags{FirstToday: true}, true},
		{"new_today", FirstFlags{}, false},
		{"new_this_week", FirstFlags{FirstThisWeek: true}, true},
		{"new_this_week", FirstFlags{FirstEver: true}, false},
	}
	for _, tc := range cases {
		rule := conf.NotificationRule{Name: "scoped", Enabled: true, Scope: tc.scope}
		matcher := NewMatcher(matcherSettings(rule))
		outcomes := matcher.Evaluate(testDetection(), Taxonomy{}, tc.firsts)
		assert.Equal(t, tc.want, len(outcomes) == 1, "scope %q with %+v", tc.scope, tc.firsts)
	}
}

func TestMatcherQuietHours(t *testing.T) {
	rule := conf.NotificationRule{Name: "always", Enabled: true}
	settings := matcherSettings(rule)
	settings.Notification.QuietHours.Start = "22:00:00"
	settings.Notification.QuietHours.End = "06:00:00"

	matcher := NewMatcher(settings)
	matcher.now = func() time.Time { return time.Date(2025, 5, 1, 23, 30, 0, 0, time.UTC) }

	outcomes := matcher.Evaluate(testDetection(), Taxonomy{}, FirstFlags{})
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Deferred)
	assert.Empty(t, outcomes[0].Message)

	// Early morning is still inside the overnight range.
	matcher.now = func() time.Time { return time.Date(2025, 5, 2, 5, 59, 59, 0, time.UTC) }
	outcomes = matcher.Evaluate(testDetection(), Taxonomy{}, FirstFlags{})
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Deferred)

	matcher.now = func() time.Time { return time.Date(2025, 5, 2, 6, 0, 0, 0, time.UTC) }
	outcomes = matcher.Evaluate(testDetection(), Taxonomy{}, FirstFlags{})
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Deferred)
	assert.NotEmpty(t, outcomes[0].Message)
}

func TestMatcherQuietHoursEqualStartEndDisabled(t *testing.T) {
	rule := conf.NotificationRule{Name: "always", Enabled: true}
	settings := matcherSettings(rule)
	settings.Notification.QuietHours.Start = "12:00:00"
	settings.Notification.QuietHours.End = "12:00:00"

	matcher := NewMatcher(settings)
	matcher.now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }

	outcomes := matcher.Evaluate(testDetection(), Taxonomy{}, FirstFlags{})
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Deferred)
}

func TestMatcherTemplateRendering(t *testing.T) {
	rule := conf.NotificationRule{
		Name:     "custom",
		Enabled:  true,
		Template: "{{.common_name}} at {{.confidence_pct}}% on {{.date}}",
	}
	matcher := NewMatcher(matcherSettings(rule))

	outcomes := matcher.Evaluate(testDetection(), Taxonomy{}, FirstFlags{})
	require.Len(t, outcomes, 1)
	assert.Equal(t, "Eurasian Blackbird at 91% on 2025-05-01", outcomes[0].Message)
	assert.Equal(t, "custom", outcomes[0].Title)
}

func TestMatcherTemplateErrorFallback(t *testing.T) {
	rule := conf.NotificationRule{Name: "broken", Enabled: true, Template: "{{.common_name"}
	matcher := NewMatcher(matcherSettings(rule))

	outcomes := matcher.Evaluate(testDetection(), Taxonomy{}, FirstFlags{})
	require.Len(t, outcomes, 1)
	assert.Equal(t, "Error rendering template", outcomes[0].Message)
}

func TestMatcherDefaultTemplate(t *testing.T) {
	rule := conf.NotificationRule{Name: "plain", Enabled: true}
	matcher := NewMatcher(matcherSettings(rule))

	outcomes := matcher.Evaluate(testDetection(), Taxonomy{}, FirstFlags{})
	require.Len(t, outcomes, 1)
	assert.Contains(t, outcomes[0].Message, "Eurasian Blackbird (Turdus merula)")
	assert.Contains(t, outcomes[0].Message, "91% confidence")
}
