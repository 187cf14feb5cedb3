package openalex

// SearchResponse is the top-level shape of a works listing.
type SearchResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// Meta carries result-set counts for a works listing.
type Meta struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Work is one scholarly work. The abstract is delivered as an inverted
// index mapping each word to its positions in the original text.
type Work struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	DisplayName           string           `json:"display_name"`
	PublicationYear       int              `json:"publication_year"`
	CitedByCount          int              `json:"cited_by_count"`
	OpenAccess            *OpenAccess      `json:"open_access"`
	Authorships           []Authorship     `json:"authorships"`
	PrimaryLocation       *Location        `json:"primary_location"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// OpenAccess describes a work's open access availability.
type OpenAccess struct {
	IsOA     bool   `json:"is_oa"`
	OAURL    string `json:"oa_url"`
	OAStatus string `json:"oa_status"`
}

// Authorship links an author and their institutions to a work.
type Authorship struct {
	Author       AuthorInfo    `json:"author"`
	Institutions []Institution `json:"institutions"`
}

// AuthorInfo identifies an author.
type AuthorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Institution is an affiliated institution.
type Institution struct {
	DisplayName string `json:"display_name"`
}

// Location is one place a work is hosted.
type Location struct {
	Source *Source `json:"source"`
	PDFURL string  `json:"pdf_url"`
}

// Source is the venue behind a location (journal, repository, conference).
type Source struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

// ErrorResponse is the error envelope returned on failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
