// Package papersources provides clients for searching academic paper databases.
//
// Each external database (arXiv, PubMed, Semantic Scholar, OpenAlex) implements
// the PaperSource interface: a client translates a source-agnostic query into
// the source's own query grammar, performs the rate-limited HTTP call, and
// parses the source's wire format into domain.PaperRecord. The Manager fans a
// search out across registered sources and merges the results.
//
// Example usage:
//
//	src := semanticscholar.New(semanticscholar.Config{}, journals, logger, metrics)
//	papers, err := src.Search(ctx, "CRISPR gene editing", papersources.SearchFilters{
//		PapersLimit: 20,
//	})
package papersources

import (
	"context"

	"github.com/scholaris/paper-aggregator/internal/domain"
)

// Limits applied to the per-source result count.
const (
	// DefaultPapersLimit is used when SearchFilters.PapersLimit is unset.
	DefaultPapersLimit = 10

	// MaxPapersLimit is the hard per-source cap; larger requests are clamped.
	MaxPapersLimit = 100
)

// YearRange restricts results to papers published between Start and End,
// inclusive. The range applies only when both ends are positive and
// Start <= End; any other combination is ignored.
type YearRange struct {
	Start int
	End   int
}

// Valid reports whether the range should be applied.
func (y *YearRange) Valid() bool {
	return y != nil && y.Start > 0 && y.End > 0 && y.Start <= y.End
}

// SearchFilters narrows a search. The zero value applies no filtering and
// uses DefaultPapersLimit. Fields a source does not support are ignored by
// that source.
type SearchFilters struct {
	// YearRange restricts publication years when valid.
	YearRange *YearRange

	// PapersLimit is the maximum number of papers requested from each
	// source. Zero means DefaultPapersLimit; values above MaxPapersLimit
	// are clamped.
	PapersLimit int

	// Sources selects which registered sources Manager.SearchAll queries.
	// Empty means the default source set. Individual clients ignore it.
	Sources []string

	// MinCitationCount drops papers with fewer citations.
	// Supported by Semantic Scholar and OpenAlex; zero means unset.
	MinCitationCount int

	// FieldsOfStudy restricts results to the given study fields
	// (Semantic Scholar only).
	FieldsOfStudy []string

	// PublicationTypes restricts results to the given publication types
	// (Semantic Scholar only).
	PublicationTypes []string

	// OpenAccessOnly keeps only papers with an open-access PDF.
	OpenAccessOnly bool

	// Fields overrides the field list requested from Semantic Scholar.
	// Empty means the client's default field set.
	Fields []string

	// JCRQuartiles keeps only papers whose enriched journal info carries
	// one of the given JCR quartiles (Semantic Scholar only).
	JCRQuartiles []string

	// CASQuartiles keeps only papers whose enriched journal info carries
	// one of the given CAS quartiles (Semantic Scholar only).
	CASQuartiles []string
}

// Limit returns the effective per-source result count: PapersLimit clamped
// to [1, MaxPapersLimit], or DefaultPapersLimit when unset.
func (f SearchFilters) Limit() int {
	if f.PapersLimit <= 0 {
		return DefaultPapersLimit
	}
	if f.PapersLimit > MaxPapersLimit {
		return MaxPapersLimit
	}
	return f.PapersLimit
}

// PaperSource is the capability contract every source client implements.
// Implementations must be safe for concurrent use; the Manager calls them
// from multiple goroutines.
type PaperSource interface {
	// Search queries the source for papers matching the query and filters.
	// An empty or whitespace-only query returns an empty slice without a
	// network call. Malformed-query rejections by the source are treated
	// as "no results", not an error; only unrecoverable transport failure
	// (retry exhaustion) returns an error.
	Search(ctx context.Context, query string, filters SearchFilters) ([]*domain.PaperRecord, error)

	// GetDetails retrieves a single paper by its source-native identifier.
	// Returns a domain.NotFoundError if the source has no such paper.
	GetDetails(ctx context.Context, id string) (*domain.PaperRecord, error)

	// GetCitations returns papers that cite the given paper. Sources
	// without citation data return an empty slice, never an error.
	GetCitations(ctx context.Context, id string) ([]*domain.PaperRecord, error)

	// GetReferences returns papers the given paper cites. Sources without
	// reference data return an empty slice, never an error.
	GetReferences(ctx context.Context, id string) ([]*domain.PaperRecord, error)

	// SourceName returns the registry name for this source, one of the
	// domain.Source* constants.
	SourceName() string
}
