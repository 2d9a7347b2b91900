//go:build ruleguard

// Package gorules holds the ruleguard rules run through golangci-lint.
// They pin conventions this codebase relies on: wrapped errors, named
// time layouts, and explicit contexts.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// wrapErrors flags %v where an error should stay unwrappable.
func wrapErrors(m dsl.Matcher) {
	m.Match(`fmt.Errorf($fmt, $*_, $err)`).
		Where(m["fmt"].Text.Matches(`%v"$`) && m["err"].Type.Implements("error")).
		Report("use %w so callers can errors.Is/As through the wrap")
}

// namedTimeFormats flags magic layout strings that have named constants.
func namedTimeFormats(m dsl.Matcher) {
	m.Match(`$t.Format("2006-01-02 15:04:05")`).
		Report("use time.DateTime").
		Suggest(`$t.Format(time.DateTime)`)
	m.Match(`$t.Format("2006-01-02")`).
		Report("use time.DateOnly").
		Suggest(`$t.Format(time.DateOnly)`)
	m.Match(`time.Parse("2006-01-02", $s)`).
		Report("use time.DateOnly").
		Suggest(`time.Parse(time.DateOnly, $s)`)
	m.Match(`$t.Format("15:04:05")`).
		Report("use time.TimeOnly").
		Suggest(`$t.Format(time.TimeOnly)`)
}

// errorsJoin flags hand-rolled multi-error strings.
func errorsJoin(m dsl.Matcher) {
	m.Match(`fmt.Errorf("%v; %v", $a, $b)`, `fmt.Errorf("%s; %s", $a, $b)`).
		Where(m["a"].Type.Implements("error") && m["b"].Type.Implements("error")).
		Report("use errors.Join($a, $b) so both errors stay unwrappable")
}

// contextBackground flags context.TODO left behind after wiring.
func contextBackground(m dsl.Matcher) {
	m.Match(`context.TODO()`).
		Report("decide the context: Background() for roots, or plumb the caller's")
}
