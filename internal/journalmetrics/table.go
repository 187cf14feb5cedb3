// Package journalmetrics maps free-text venue names to journal quality
// metrics (impact factor, JCR quartile, CAS quartile) using a fuzzy match
// against a reference table loaded from disk.
package journalmetrics

import (
	"encoding/json"
	"io/fs"
	"os"
	"strings"

	"github.com/bluele/gcache"
	"github.com/rs/zerolog"

	"github.com/scholaris/paper-aggregator/internal/domain"
)

// Entry is one journal in the reference table.
type Entry struct {
	ISSN         string
	EISSN        string
	Title        string
	ImpactFactor string
	JCRQuartile  string
	CASQuartile  string

	normTitle string
}

// Table holds the journal reference data indexed for lookups. Entries are
// indexed by both ISSN and eISSN; fuzzy title matching scans entries in
// load order. A Table is immutable after construction and safe for
// concurrent use.
type Table struct {
	entries []*Entry
	byISSN  map[string]*Entry

	cache  gcache.Cache
	logger zerolog.Logger
}

// tableRecord mirrors the on-disk JSON schema.
type tableRecord struct {
	ISSN    string `json:"issn"`
	EISSN   string `json:"eissn"`
	Journal string `json:"journal"`
	IF      string `json:"IF"`
	Q       string `json:"Q"`
	B       string `json:"B"`
}

// NewTable builds a Table from the given entries. Entries without an ISSN
// or eISSN are skipped. Empty metric fields default to domain.MetricNA and
// numeric-only CAS quartiles are reformatted with a "B" prefix ("1" -> "B1")
// so every consumer sees one format.
func NewTable(entries []Entry, logger zerolog.Logger) *Table {
	t := &Table{
		byISSN: make(map[string]*Entry),
		cache:  gcache.New(lookupCacheSize).LRU().Build(),
		logger: logger.With().Str("component", "journal_metrics").Logger(),
	}

	for _, e := range entries {
		e.ISSN = strings.TrimSpace(e.ISSN)
		e.EISSN = strings.TrimSpace(e.EISSN)
		if e.ISSN == "" && e.EISSN == "" {
			continue
		}

		e.ImpactFactor = orNA(e.ImpactFactor)
		e.JCRQuartile = orNA(e.JCRQuartile)
		e.CASQuartile = formatCASQuartile(e.CASQuartile)
		e.normTitle = normalizeVenue(e.Title)

		entry := &e
		t.entries = append(t.entries, entry)
		if e.ISSN != "" {
			t.byISSN[e.ISSN] = entry
		}
		if e.EISSN != "" {
			t.byISSN[e.EISSN] = entry
		}
	}

	return t
}

// LoadTable reads a JSON array of journal records from path and builds the
// lookup table. A missing or unreadable file is not an error: it logs a
// warning and yields an empty table, so lookups degrade to default metrics.
func LoadTable(path string, logger zerolog.Logger) *Table {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).
			Msg("journal metrics table unavailable, lookups will return defaults")
		return NewTable(nil, logger)
	}
	return parseTable(data, path, logger)
}

// LoadTableFS is LoadTable reading from fsys instead of the host
// filesystem.
func LoadTableFS(fsys fs.FS, path string, logger zerolog.Logger) *Table {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).
			Msg("journal metrics table unavailable, lookups will return defaults")
		return NewTable(nil, logger)
	}
	return parseTable(data, path, logger)
}

func parseTable(data []byte, path string, logger zerolog.Logger) *Table {
	var records []tableRecord
	if err := json.Unmarshal(data, &records); err != nil {
		logger.Warn().Err(err).Str("path", path).
			Msg("journal metrics table malformed, lookups will return defaults")
		return NewTable(nil, logger)
	}

	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, Entry{
			ISSN:         r.ISSN,
			EISSN:        r.EISSN,
			Title:        r.Journal,
			ImpactFactor: r.IF,
			JCRQuartile:  r.Q,
			CASQuartile:  r.B,
		})
	}

	table := NewTable(entries, logger)
	logger.Info().Str("path", path).Int("journals", table.Len()).
		Msg("loaded journal metrics table")
	return table
}

// Len returns the number of distinct journals in the table.
func (t *Table) Len() int {
	return len(t.entries)
}

// ByISSN returns the entry registered under the given ISSN or eISSN.
func (t *Table) ByISSN(issn string) (Entry, bool) {
	entry, ok := t.byISSN[strings.TrimSpace(issn)]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

func orNA(s string) string {
	if s == "" {
		return domain.MetricNA
	}
	return s
}

// formatCASQuartile normalizes numeric-only CAS quartile values to the
// "B<n>" form used everywhere else in the dataset.
func formatCASQuartile(q string) string {
	if q == "" {
		return domain.MetricNA
	}
	if isAllDigits(q) {
		return "B" + q
	}
	return q
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
