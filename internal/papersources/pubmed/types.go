package pubmed

import "encoding/xml"

// ESearchResult is the esearch.fcgi response: the PMIDs matching a term,
// plus an error list when parts of the term could not be resolved.
type ESearchResult struct {
	XMLName   xml.Name   `xml:"eSearchResult"`
	Count     int        `xml:"Count"`
	IDList    IDList     `xml:"IdList"`
	ErrorList *ErrorList `xml:"ErrorList,omitempty"`
}

// IDList contains the PMIDs returned by a search.
type IDList struct {
	IDs []string `xml:"Id"`
}

// ErrorList carries per-phrase resolution failures. A populated
// PhraseNotFound list means the term matched nothing meaningful even when
// PMIDs are present.
type ErrorList struct {
	PhraseNotFound []string `xml:"PhraseNotFound,omitempty"`
	FieldNotFound  []string `xml:"FieldNotFound,omitempty"`
}

// PubmedArticleSet is the efetch.fcgi response: full article metadata for
// a list of PMIDs. Only the elements the parser reads are declared; the
// decoder skips the rest of the DTD.
type PubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []PubmedArticle `xml:"PubmedArticle"`
}

// PubmedArticle is a single article in the PubMed database.
type PubmedArticle struct {
	MedlineCitation MedlineCitation `xml:"MedlineCitation"`
}

// MedlineCitation contains the core bibliographic information.
type MedlineCitation struct {
	PMID    PMID    `xml:"PMID"`
	Article Article `xml:"Article"`
}

// PMID is the PubMed identifier.
type PMID struct {
	Value string `xml:",chardata"`
}

// Article contains the article metadata.
type Article struct {
	Journal      Journal     `xml:"Journal"`
	ArticleTitle string      `xml:"ArticleTitle"`
	Abstract     *Abstract   `xml:"Abstract,omitempty"`
	AuthorList   *AuthorList `xml:"AuthorList,omitempty"`
}

// Journal contains journal information.
type Journal struct {
	Title        string       `xml:"Title,omitempty"`
	JournalIssue JournalIssue `xml:"JournalIssue"`
}

// JournalIssue carries the publication date.
type JournalIssue struct {
	PubDate PubDate `xml:"PubDate"`
}

// PubDate is the journal issue's publication date. Year may be absent for
// MedlineDate-formatted dates.
type PubDate struct {
	Year string `xml:"Year,omitempty"`
}

// Abstract contains the article abstract, which may have multiple labeled
// sections for structured abstracts.
type Abstract struct {
	AbstractTexts []AbstractText `xml:"AbstractText"`
}

// AbstractText is one section of the abstract.
type AbstractText struct {
	Label string `xml:"Label,attr,omitempty"`
	Value string `xml:",chardata"`
}

// AuthorList contains the list of authors.
type AuthorList struct {
	Authors []Author `xml:"Author"`
}

// Author is a single author. Collective names and authors missing either
// name part are not mapped.
type Author struct {
	LastName string `xml:"LastName,omitempty"`
	ForeName string `xml:"ForeName,omitempty"`
}
