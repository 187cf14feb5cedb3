package semanticscholar

// SearchResponse is the paper search endpoint's response envelope.
type SearchResponse struct {
	// Total is the total number of papers matching the query.
	Total int `json:"total"`

	// Offset is the current offset in the result set.
	Offset int `json:"offset"`

	// Next is the offset for the next page; zero means no more results.
	Next int `json:"next"`

	// Data contains the papers on this page.
	Data []PaperResult `json:"data"`
}

// PaperResult is a single paper in a Graph API response. Null JSON fields
// decode to zero values; a missing year or citation count is 0.
type PaperResult struct {
	// PaperID is the Semantic Scholar unique identifier for the paper.
	PaperID string `json:"paperId"`

	// Title is the title of the paper.
	Title string `json:"title"`

	// Abstract is the paper's abstract text.
	Abstract string `json:"abstract"`

	// Year is the publication year.
	Year int `json:"year"`

	// CitationCount is the number of citations this paper has received.
	CitationCount int `json:"citationCount"`

	// Authors is the list of paper authors.
	Authors []Author `json:"authors"`

	// Venue is the publication venue name.
	Venue string `json:"venue"`

	// PublicationVenue carries richer venue metadata when known.
	PublicationVenue *PublicationVenue `json:"publicationVenue,omitempty"`

	// OpenAccessPDF describes the open access PDF if one exists.
	OpenAccessPDF *OpenAccessPDF `json:"openAccessPdf,omitempty"`
}

// Author is a paper author in the Graph API.
type Author struct {
	// AuthorID is the Semantic Scholar unique identifier for the author.
	AuthorID string `json:"authorId,omitempty"`

	// Name is the author's name.
	Name string `json:"name"`
}

// PublicationVenue is the normalized venue record attached to a paper.
type PublicationVenue struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// OpenAccessPDF describes an open access PDF.
type OpenAccessPDF struct {
	// URL is the direct URL to the PDF.
	URL string `json:"url,omitempty"`

	// Status is the open access status (e.g., "HYBRID", "GOLD", "GREEN").
	Status string `json:"status,omitempty"`
}

// LinkedPapersResponse is the citations/references endpoint envelope. Each
// element wraps the related paper under citingPaper or citedPaper
// depending on the endpoint.
type LinkedPapersResponse struct {
	Offset int           `json:"offset"`
	Next   int           `json:"next"`
	Data   []LinkedPaper `json:"data"`
}

// LinkedPaper is one entry in a citations or references listing.
type LinkedPaper struct {
	CitingPaper *PaperResult `json:"citingPaper,omitempty"`
	CitedPaper  *PaperResult `json:"citedPaper,omitempty"`
}

// paper returns whichever side of the link is populated.
func (l *LinkedPaper) paper() *PaperResult {
	if l.CitingPaper != nil {
		return l.CitingPaper
	}
	return l.CitedPaper
}

// ErrorResponse is the JSON error body returned on non-200 statuses.
type ErrorResponse struct {
	// Error is the error message from the API.
	Error string `json:"error,omitempty"`

	// Message is an alternative error message field.
	Message string `json:"message,omitempty"`
}
