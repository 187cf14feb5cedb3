package domain

// Source names identify the origin client that produced a PaperRecord.
// The Source Manager keys its registry by these names and writes them
// into PaperRecord.Source after retrieval.
const (
	SourceArXiv           = "arxiv"
	SourcePubMed          = "pubmed"
	SourceSemanticScholar = "semanticscholar"
	SourceOpenAlex        = "openalex"
)

// MetricNA is the sentinel value for journal metrics that are unknown or
// not applicable to the venue.
const MetricNA = "N/A"

// Author is one entry in a paper's ordered author list.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
}

// JournalInfo carries the publication venue and its quality metrics.
// Metric fields hold MetricNA when no journal table entry matched.
type JournalInfo struct {
	Title        string `json:"title"`
	ImpactFactor string `json:"impact_factor"`
	JCRQuartile  string `json:"jcr_quartile"`
	CASQuartile  string `json:"cas_quartile"`
}

// NewJournalInfo returns a JournalInfo for the given venue title with all
// metric fields set to MetricNA.
func NewJournalInfo(title string) JournalInfo {
	return JournalInfo{
		Title:        title,
		ImpactFactor: MetricNA,
		JCRQuartile:  MetricNA,
		CASQuartile:  MetricNA,
	}
}

// PaperRecord is the normalized, source-agnostic representation of one
// paper. Every source parser produces this schema.
//
// ID and Title are always present (possibly empty, never omitted from
// JSON). Authors is always a non-nil slice. ID is the source-native
// identifier (arXiv ID, PMID, Semantic Scholar paperId, OpenAlex work ID)
// and is unique within a source but not across sources. Records are
// created fresh per search call and never mutated after the manager tags
// Source.
type PaperRecord struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	Abstract        string      `json:"abstract"`
	Year            int         `json:"year,omitempty"`
	Authors         []Author    `json:"authors"`
	URL             string      `json:"url,omitempty"`
	PDFURL          string      `json:"pdf_url,omitempty"`
	CitationCount   *int        `json:"citation_count,omitempty"`
	PrimaryCategory string      `json:"primary_category,omitempty"`
	JournalInfo     JournalInfo `json:"journal_info"`
	Source          string      `json:"source,omitempty"`
}
