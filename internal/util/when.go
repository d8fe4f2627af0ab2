// Package util holds small cross-cutting helpers with no natural home
// in a single component package.
package util

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var parser = buildParser()

func buildParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseAt resolves a natural-language time expression ("tomorrow 9am",
// "in 2 hours", "2026-08-05") relative to now, for CLI flags like --at
// on journal/verify commands. Returns an error if nothing in the input
// parses as a time expression.
func ParseAt(input string, now time.Time) (time.Time, error) {
	r, err := parser.Parse(input, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q: %w", input, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%q does not look like a time expression", input)
	}
	return r.Time, nil
}
