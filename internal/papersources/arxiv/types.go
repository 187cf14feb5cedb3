package arxiv

import "encoding/xml"

// Feed is the Atom XML envelope returned by the arXiv query API.
type Feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	Entries      []Entry  `xml:"entry"`
}

// Entry is a single paper in the Atom feed.
type Entry struct {
	ID              string   `xml:"id"` // "http://arxiv.org/abs/2301.12345v1"
	Title           string   `xml:"title"`
	Summary         string   `xml:"summary"`   // abstract
	Published       string   `xml:"published"` // "2023-01-15T18:30:00Z"
	Authors         []Author `xml:"author"`
	Links           []Link   `xml:"link"`
	PrimaryCategory Category `xml:"primary_category"`
}

// Author is a paper author. Affiliation comes from the arXiv-namespaced
// affiliation element when present.
type Author struct {
	Name        string `xml:"name"`
	Affiliation string `xml:"affiliation"`
}

// Category is an arXiv subject classification.
type Category struct {
	Term string `xml:"term,attr"`
}

// Link is an Atom link element.
type Link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}
