// Package pubmed provides the PubMed paper source client. It speaks the
// NCBI E-utilities API: esearch resolves a term to PMIDs, efetch returns
// PubMed-DTD XML records for those PMIDs.
//
// The E-utilities documentation is available at:
// https://www.ncbi.nlm.nih.gov/books/NBK25499/
package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholaris/paper-aggregator/internal/domain"
	"github.com/scholaris/paper-aggregator/internal/observability"
	"github.com/scholaris/paper-aggregator/internal/papersources"
)

const (
	// DefaultBaseURL is the base URL for the NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// paperURLFormat builds the public article page from a PMID.
	paperURLFormat = "https://pubmed.ncbi.nlm.nih.gov/%s/"

	// Sentinels for articles missing optional metadata. Records are kept,
	// not rejected, when title or abstract is absent.
	noTitle    = "No title available"
	noAbstract = "No abstract available"
)

// Config holds configuration for the PubMed client. Zero-valued transport
// fields fall back to the papersources defaults.
type Config struct {
	// BaseURL is the E-utilities base URL.
	BaseURL string

	// APIKey is the optional NCBI API key, sent as the api_key parameter.
	// It raises the server-side rate limit from 3 to 10 requests/second.
	APIKey string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RequestInterval is the minimum spacing between requests.
	RequestInterval time.Duration

	// MaxRetries bounds total attempts per request.
	MaxRetries int

	// RetryDelay is the backoff after 5xx or transport failures.
	RetryDelay time.Duration

	// RateLimitDelay is the backoff after 429 responses.
	RateLimitDelay time.Duration

	// UserAgent overrides the default User-Agent header.
	UserAgent string
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
}

// Client implements the papersources.PaperSource interface for PubMed.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a PubMed client with the given configuration. metrics may be
// nil.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:         cfg.Timeout,
		RequestInterval: cfg.RequestInterval,
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      cfg.RetryDelay,
		RateLimitDelay:  cfg.RateLimitDelay,
		UserAgent:       cfg.UserAgent,
		Source:          domain.SourcePubMed,
		Metrics:         metrics,
	})

	return NewWithHTTPClient(cfg, httpClient, logger, metrics)
}

// NewWithHTTPClient creates a PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     observability.WithSourceContext(logger, domain.SourcePubMed),
		metrics:    metrics,
	}
}

// Search queries PubMed in two phases: esearch resolves the term to a PMID
// list, efetch returns the full records. Zero matching PMIDs (including a
// PhraseNotFound rejection) short-circuit without the second call. An empty
// query returns an empty result without a network call. When a year range
// is set, records whose year is unknown or outside the range are dropped
// after parsing; the [dp] term clause alone does not guarantee either.
func (c *Client) Search(ctx context.Context, query string, filters papersources.SearchFilters) ([]*domain.PaperRecord, error) {
	if strings.TrimSpace(query) == "" {
		return []*domain.PaperRecord{}, nil
	}

	logger := observability.WithSearchContext(ctx, c.logger, query)

	term := buildTerm(query, filters.YearRange)
	logger.Debug().Str("term", term).Msg("searching pubmed")

	ids, err := c.searchIDs(ctx, logger, term, filters.Limit())
	if err != nil {
		return nil, fmt.Errorf("pubmed search: %w", err)
	}
	if len(ids) == 0 {
		logger.Info().Msg("pubmed search matched no articles")
		return []*domain.PaperRecord{}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.efetchURL(ids), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("pubmed efetch request failed")
		return nil, fmt.Errorf("pubmed search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logUnexpectedStatus(logger, resp, "pubmed efetch rejected")
		return []*domain.PaperRecord{}, nil
	}

	var set PubmedArticleSet
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&set); err != nil {
		logger.Error().Err(err).Msg("malformed pubmed efetch response")
		return []*domain.PaperRecord{}, nil
	}

	papers := c.articlesToRecords(set.Articles, logger)
	papers = filterByYear(papers, filters.YearRange, logger)

	logger.Info().Int("papers", len(papers)).Int("ids", len(ids)).Msg("pubmed search completed")
	return papers, nil
}

// GetDetails retrieves a single paper by its PMID. A missing paper yields
// a domain.NotFoundError.
func (c *Client) GetDetails(ctx context.Context, id string) (*domain.PaperRecord, error) {
	logger := observability.WithPaperContext(ctx, c.logger, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.efetchURL([]string{id}), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pubmed details: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(domain.SourcePubMed, resp.StatusCode, string(body), nil)
	}

	var set PubmedArticleSet
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&set); err != nil {
		return nil, fmt.Errorf("pubmed details: decoding response: %w", err)
	}

	if len(set.Articles) == 0 {
		return nil, domain.NewNotFoundError("paper", id)
	}

	record := c.articleToRecord(&set.Articles[0], logger)
	if record == nil {
		return nil, domain.NewNotFoundError("paper", id)
	}
	return record, nil
}

// GetCitations returns an empty list: the E-utilities endpoints used here
// expose no citation data.
func (c *Client) GetCitations(ctx context.Context, id string) ([]*domain.PaperRecord, error) {
	return []*domain.PaperRecord{}, nil
}

// GetReferences returns an empty list: the E-utilities endpoints used here
// expose no reference data.
func (c *Client) GetReferences(ctx context.Context, id string) ([]*domain.PaperRecord, error) {
	return []*domain.PaperRecord{}, nil
}

// SourceName returns the registry name for this source.
func (c *Client) SourceName() string {
	return domain.SourcePubMed
}

// searchIDs performs the esearch phase. Every graceful outcome — a
// rejected request, an unparseable body, a PhraseNotFound error list —
// resolves to zero PMIDs; only transport failure returns an error.
func (c *Client) searchIDs(ctx context.Context, logger zerolog.Logger, term string, retmax int) ([]string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(retmax))
	params.Set("retmode", "xml")
	if c.config.APIKey != "" {
		params.Set("api_key", c.config.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/esearch.fcgi?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("pubmed esearch request failed")
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logUnexpectedStatus(logger, resp, "pubmed esearch rejected")
		return nil, nil
	}

	var result ESearchResult
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&result); err != nil {
		logger.Error().Err(err).Msg("malformed pubmed esearch response")
		return nil, nil
	}

	if result.ErrorList != nil && len(result.ErrorList.PhraseNotFound) > 0 {
		logger.Debug().Strs("phrases", result.ErrorList.PhraseNotFound).Msg("pubmed phrase not found")
		return nil, nil
	}

	return result.IDList.IDs, nil
}

// efetchURL assembles the efetch request URL for the given PMIDs.
func (c *Client) efetchURL(ids []string) string {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")
	if c.config.APIKey != "" {
		params.Set("api_key", c.config.APIKey)
	}
	return c.config.BaseURL + "/efetch.fcgi?" + params.Encode()
}

// buildTerm renders the esearch term parameter: the query as-is, with a
// publication-date clause appended when the year range applies.
func buildTerm(query string, yearRange *papersources.YearRange) string {
	if yearRange.Valid() {
		return fmt.Sprintf("%s AND %d:%d[dp]", query, yearRange.Start, yearRange.End)
	}
	return query
}

func logUnexpectedStatus(logger zerolog.Logger, resp *http.Response, msg string) {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	event := logger.Error()
	if resp.StatusCode == http.StatusBadRequest {
		// Unsupported term syntax is an expected, graceful rejection.
		event = logger.Warn()
	}
	event.Int("status", resp.StatusCode).Str("body", string(body)).Msg(msg)
}

func (c *Client) articlesToRecords(articles []PubmedArticle, logger zerolog.Logger) []*domain.PaperRecord {
	records := make([]*domain.PaperRecord, 0, len(articles))
	for i := range articles {
		if record := c.articleToRecord(&articles[i], logger); record != nil {
			records = append(records, record)
		}
	}
	return records
}

// articleToRecord converts one PubmedArticle to a PaperRecord. An article
// without a PMID is skipped: it is logged, counted, and nil is returned.
// Missing title or abstract yields sentinel text, not rejection.
func (c *Client) articleToRecord(article *PubmedArticle, logger zerolog.Logger) *domain.PaperRecord {
	citation := article.MedlineCitation

	id := strings.TrimSpace(citation.PMID.Value)
	if id == "" {
		c.metrics.RecordSkippedRecord(domain.SourcePubMed)
		logger.Warn().Str("title", citation.Article.ArticleTitle).Msg("skipping pubmed article without pmid")
		return nil
	}

	title := strings.TrimSpace(citation.Article.ArticleTitle)
	if title == "" {
		title = noTitle
	}

	abstract := extractAbstract(citation.Article.Abstract)
	if abstract == "" {
		abstract = noAbstract
	}

	record := &domain.PaperRecord{
		ID:          id,
		Title:       title,
		Abstract:    abstract,
		URL:         fmt.Sprintf(paperURLFormat, id),
		Authors:     extractAuthors(citation.Article.AuthorList),
		JournalInfo: domain.NewJournalInfo(strings.TrimSpace(citation.Article.Journal.Title)),
	}

	if year := citation.Article.Journal.JournalIssue.PubDate.Year; year != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(year)); err == nil {
			record.Year = parsed
		}
	}

	return record
}

// extractAbstract flattens the abstract sections into one string. A single
// unlabeled section passes through; labeled sections of a structured
// abstract are rendered as "LABEL: text".
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		return strings.TrimSpace(abstract.AbstractTexts[0].Value)
	}

	parts := make([]string, 0, len(abstract.AbstractTexts))
	for _, section := range abstract.AbstractTexts {
		text := strings.TrimSpace(section.Value)
		if text == "" {
			continue
		}
		if section.Label != "" {
			text = section.Label + ": " + text
		}
		parts = append(parts, text)
	}

	return strings.Join(parts, " ")
}

// extractAuthors maps authors with both name parts as "Last First".
// Authors missing either part are dropped.
func extractAuthors(authorList *AuthorList) []domain.Author {
	if authorList == nil {
		return []domain.Author{}
	}

	authors := make([]domain.Author, 0, len(authorList.Authors))
	for _, author := range authorList.Authors {
		last := strings.TrimSpace(author.LastName)
		fore := strings.TrimSpace(author.ForeName)
		if last == "" || fore == "" {
			continue
		}
		authors = append(authors, domain.Author{Name: last + " " + fore})
	}
	return authors
}

// filterByYear drops records published outside the range. Records without
// a parsed year are dropped too: PubMed can return them even with a [dp]
// clause, and an unknown year cannot satisfy the range.
func filterByYear(records []*domain.PaperRecord, yearRange *papersources.YearRange, logger zerolog.Logger) []*domain.PaperRecord {
	if !yearRange.Valid() {
		return records
	}

	kept := make([]*domain.PaperRecord, 0, len(records))
	for _, record := range records {
		if record.Year >= yearRange.Start && record.Year <= yearRange.End {
			kept = append(kept, record)
		}
	}

	if dropped := len(records) - len(kept); dropped > 0 {
		logger.Debug().Int("dropped", dropped).Int("start", yearRange.Start).Int("end", yearRange.End).Msg("dropped records outside year range")
	}
	return kept
}
