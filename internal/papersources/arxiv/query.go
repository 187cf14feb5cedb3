package arxiv

import (
	"fmt"
	"strings"

	"github.com/scholaris/paper-aggregator/internal/papersources"
)

// advancedMarkers are the tokens whose presence means the caller already
// wrote arXiv fielded query syntax, which passes through untranslated.
var advancedMarkers = []string{"ti:", "abs:", "au:", "cat:", "AND", "OR", "ANDNOT"}

// buildSearchQuery translates a free-text query and filters into arXiv
// search_query syntax.
//
// Queries using field prefixes or boolean operators pass through with
// operator case forced upper. Otherwise a single word searches title and
// abstract directly, and a multi-word query becomes an exact-phrase search
// over both fields. A valid YearRange appends a submittedDate window.
func buildSearchQuery(query string, filters papersources.SearchFilters) string {
	query = strings.TrimSpace(query)

	var searchQuery string
	if isAdvancedQuery(query) {
		searchQuery = forceOperatorCase(query)
	} else {
		terms := strings.Fields(trimWrappingQuotes(query))
		if len(terms) == 1 {
			searchQuery = fmt.Sprintf("(ti:%s OR abs:%s)", terms[0], terms[0])
		} else {
			phrase := strings.Join(terms, " ")
			searchQuery = fmt.Sprintf(`(ti:"%s" OR abs:"%s")`, phrase, phrase)
		}
	}

	if filters.YearRange.Valid() {
		searchQuery += fmt.Sprintf(" AND submittedDate:[%d01010000 TO %d12312359]",
			filters.YearRange.Start, filters.YearRange.End)
	}

	return searchQuery
}

func isAdvancedQuery(query string) bool {
	for _, marker := range advancedMarkers {
		if strings.Contains(query, marker) {
			return true
		}
	}
	return false
}

// forceOperatorCase upper-cases boolean operators written in lower case so
// mixed-case advanced queries stay valid arXiv syntax.
func forceOperatorCase(query string) string {
	for _, op := range []string{"AND", "OR", "ANDNOT"} {
		query = strings.ReplaceAll(query, " "+strings.ToLower(op)+" ", " "+op+" ")
	}
	return query
}

// trimWrappingQuotes strips one layer of surrounding double quotes so an
// already-quoted phrase is not quoted twice.
func trimWrappingQuotes(query string) string {
	if len(query) >= 2 && strings.HasPrefix(query, `"`) && strings.HasSuffix(query, `"`) {
		return strings.TrimSpace(query[1 : len(query)-1])
	}
	return query
}

// encodeQuery percent-encodes a search_query value. The characters :()[]+-
// stay bare because arXiv's fielded syntax needs them literal; spaces become
// %20 and double quotes %22. url.Values would escape the whole set, so the
// caller splices the result into the query string directly.
func encodeQuery(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
			b.WriteByte(c)
		case c == '-' || c == '_' || c == '.' || c == '~':
			b.WriteByte(c)
		case strings.IndexByte(":()[]+", c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
