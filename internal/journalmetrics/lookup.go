package journalmetrics

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/scholaris/paper-aggregator/internal/domain"
)

const (
	// matchThreshold is the minimum similarity ratio (exclusive) for a
	// fuzzy title match to count.
	matchThreshold = 85

	// lookupCacheSize bounds the per-venue memoization cache. Venue names
	// repeat heavily within a result page, and each miss costs a linear
	// scan of the table.
	lookupCacheSize = 512
)

// Venue name substrings that identify non-journal sources. No table lookup
// is attempted for these.
var skipVenues = []string{
	"arxiv",
	"unknown",
	"conference",
	"symposium",
	"proceedings",
	"dissertation",
}

// Lookup resolves a venue name to its journal metrics. The returned
// JournalInfo always carries the venue as its title; metric fields hold
// domain.MetricNA when the venue is empty, looks like a non-journal
// source, or fuzzy-matches nothing in the table.
//
// Matching normalizes both sides (lower-case, word characters only,
// collapsed whitespace) and accepts the best entry whose similarity ratio
// exceeds matchThreshold, with ties broken by table order. Results are
// memoized per normalized venue name. A nil or empty table resolves every
// venue to the defaults.
func (t *Table) Lookup(venue string) domain.JournalInfo {
	info := domain.NewJournalInfo(venue)
	if t == nil || len(t.entries) == 0 {
		return info
	}

	norm := normalizeVenue(venue)
	if norm == "" {
		return info
	}
	for _, skip := range skipVenues {
		if strings.Contains(norm, skip) {
			t.logger.Debug().Str("venue", venue).Msg("skipping non-journal venue")
			return info
		}
	}

	if cached, err := t.cache.Get(norm); err == nil {
		if entry, ok := cached.(*Entry); ok && entry != nil {
			return entry.journalInfo(venue)
		}
		return info
	}

	var best *Entry
	bestRatio := 0
	for _, entry := range t.entries {
		ratio := similarityRatio(norm, entry.normTitle)
		if ratio > matchThreshold && ratio > bestRatio {
			best = entry
			bestRatio = ratio
		}
	}

	_ = t.cache.Set(norm, best)

	if best == nil {
		t.logger.Debug().Str("venue", venue).Msg("no journal metrics match")
		return info
	}

	t.logger.Debug().
		Str("venue", venue).
		Str("journal", best.Title).
		Int("ratio", bestRatio).
		Msg("matched journal metrics")
	return best.journalInfo(venue)
}

// journalInfo builds the enriched JournalInfo for a matched entry,
// preserving the caller's venue text as the title.
func (e *Entry) journalInfo(venue string) domain.JournalInfo {
	return domain.JournalInfo{
		Title:        venue,
		ImpactFactor: e.ImpactFactor,
		JCRQuartile:  e.JCRQuartile,
		CASQuartile:  e.CASQuartile,
	}
}

// normalizeVenue lower-cases the name, drops everything but letters,
// digits and underscores, and collapses runs of whitespace.
func normalizeVenue(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// similarityRatio scores two normalized strings on a 0-100 scale using
// Levenshtein distance over the longer length. Equal strings score 100.
func similarityRatio(a, b string) int {
	if a == b {
		return 100
	}
	longest := utf8.RuneCountInString(a)
	if lb := utf8.RuneCountInString(b); lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(dist)/float64(longest))))
}
