package search

import (
	"errors"
	"fmt"
	"regexp"
	"unicode"

	"ttotp/internal/registry"
)

// ErrInvalidExpression marks a malformed query in regex search mode.
// It is recoverable: callers keep the previous visibility state and
// flag the search input instead of failing.
var ErrInvalidExpression = errors.New("invalid search expression")

// Scoring weights. A contiguous run beats the same runes scattered,
// and a match anchored at the start of the name beats both, so a
// literal prefix always scores highest for its runes.
const (
	matchScore  = 1
	runBonus    = 2
	anchorBonus = 3
)

// Match scores query against name as a case-insensitive ordered
// subsequence. A zero score means no match. The returned indices are
// the rune positions of name that matched, for highlighting; they are
// nil for the empty query, which matches everything unmodified.
//
// Matching is greedy left-most, so identical inputs always produce
// identical scores and highlights.
func Match(name, query string) (int, []int) {
	if query == "" {
		return matchScore, nil
	}

	target := []rune(name)
	score := 0
	indices := make([]int, 0, len(query))

	i := 0
	prev := -2
	for _, qr := range query {
		qr = unicode.ToLower(qr)
		for i < len(target) && unicode.ToLower(target[i]) != qr {
			i++
		}
		if i == len(target) {
			return 0, nil
		}
		score += matchScore
		if i == 0 {
			score += anchorBonus
		}
		if i == prev+1 {
			score += runBonus
		}
		indices = append(indices, i)
		prev = i
		i++
	}

	return score, indices
}

// Filter applies the fuzzy query to every entry, updating visibility
// and highlight state in place. Registry order is never changed.
func Filter(reg *registry.Registry, query string) {
	for _, e := range reg.All() {
		score, indices := Match(e.DisplayName(), query)
		e.Visible = score > 0
		e.Highlight = indices
	}
}

// FilterRegexp applies expr as a regular expression over display
// names. A malformed expression returns ErrInvalidExpression and
// leaves every entry's visibility and highlight untouched.
func FilterRegexp(reg *registry.Registry, expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	for _, e := range reg.All() {
		name := e.DisplayName()
		loc := re.FindStringIndex(name)
		if loc == nil {
			e.Visible = false
			e.Highlight = nil
			continue
		}
		e.Visible = true
		e.Highlight = runeRange(name, loc[0], loc[1])
	}
	return nil
}

// runeRange converts a byte index range into the rune indices it
// covers, matching the unit Match uses for highlights.
func runeRange(s string, start, end int) []int {
	var indices []int
	ri := 0
	for bi := range s {
		if bi >= end {
			break
		}
		if bi >= start {
			indices = append(indices, ri)
		}
		ri++
	}
	return indices
}
