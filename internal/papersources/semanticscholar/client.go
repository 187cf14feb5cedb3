// Package semanticscholar provides the Semantic Scholar paper source
// client. It speaks the Graph API's JSON dialect and, unlike the other
// sources, enriches every record with journal metrics resolved from the
// paper's venue name.
//
// API documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholaris/paper-aggregator/internal/domain"
	"github.com/scholaris/paper-aggregator/internal/journalmetrics"
	"github.com/scholaris/paper-aggregator/internal/observability"
	"github.com/scholaris/paper-aggregator/internal/papersources"
)

const (
	// DefaultBaseURL is the Semantic Scholar Graph API endpoint.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// defaultFields is the field set requested unless the caller overrides
	// it. It covers everything the record mapping reads.
	defaultFields = "paperId,title,abstract,year,citationCount,authors,venue,publicationVenue,openAccessPdf"

	// linkedPapersLimit caps citations/references listings per request.
	linkedPapersLimit = 100

	// paperURLPrefix builds the public paper page from a paper id.
	paperURLPrefix = "https://www.semanticscholar.org/paper/"

	// unknownVenue stands in for papers without any venue metadata.
	unknownVenue = "Unknown"
)

// Config holds configuration for the Semantic Scholar client. Zero-valued
// transport fields fall back to the papersources defaults.
type Config struct {
	// BaseURL is the Graph API URL.
	BaseURL string

	// APIKey is the optional API key, sent as the x-api-key header.
	// Authenticated requests get higher rate limits.
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

// Client implements the papersources.PaperSource interface for Semantic
// Scholar.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	journals   *journalmetrics.Table
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a Semantic Scholar client with the given configuration.
// journals supplies the metrics for venue enrichment; a nil table resolves
// every venue to default metrics. metrics may be nil.
func New(cfg Config, journals *journalmetrics.Table, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:         cfg.Timeout,
		RequestInterval: cfg.RequestInterval,
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      cfg.RetryDelay,
		RateLimitDelay:  cfg.RateLimitDelay,
		UserAgent:       cfg.UserAgent,
		APIKey:          cfg.APIKey,
		APIKeyHeader:    apiKeyHeader,
		Source:          domain.SourceSemanticScholar,
		Metrics:         metrics,
	})

	return NewWithHTTPClient(cfg, journals, httpClient, logger, metrics)
}

// NewWithHTTPClient creates a Semantic Scholar client with a custom HTTP
// client. This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, journals *journalmetrics.Table, httpClient *papersources.HTTPClient, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		journals:   journals,
		logger:     observability.WithSourceContext(logger, domain.SourceSemanticScholar),
		metrics:    metrics,
	}
}

// Search queries Semantic Scholar for papers matching the query and
// filters. An empty query returns an empty result without a network call.
// After parsing and journal enrichment, the year window, citation floor,
// and quartile filters are enforced client-side: the year parameter does
// not exclude papers with unknown years, and quartiles exist only after
// enrichment.
func (c *Client) Search(ctx context.Context, query string, filters papersources.SearchFilters) ([]*domain.PaperRecord, error) {
	if strings.TrimSpace(query) == "" {
		return []*domain.PaperRecord{}, nil
	}

	logger := observability.WithSearchContext(ctx, c.logger, query)

	params := buildSearchParams(query, filters)
	logger.Debug().Str("params", params.Encode()).Msg("searching semantic scholar")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/paper/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("semantic scholar search request failed")
		return nil, fmt.Errorf("semantic scholar search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logUnexpectedStatus(logger, resp, "semantic scholar search rejected")
		return []*domain.PaperRecord{}, nil
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		logger.Error().Err(err).Msg("malformed semantic scholar response")
		return []*domain.PaperRecord{}, nil
	}

	papers := c.papersToRecords(searchResp.Data, logger)
	papers = applyRecordFilters(papers, filters)

	logger.Info().Int("papers", len(papers)).Int("total_results", searchResp.Total).Msg("semantic scholar search completed")
	return papers, nil
}

// GetDetails retrieves a single paper by its Semantic Scholar identifier
// (or any identifier the Graph API accepts, like a DOI). A missing paper
// yields a domain.NotFoundError.
func (c *Client) GetDetails(ctx context.Context, id string) (*domain.PaperRecord, error) {
	logger := observability.WithPaperContext(ctx, c.logger, id)

	params := url.Values{}
	params.Set("fields", defaultFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.paperURL(id)+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("semantic scholar details: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("paper", id)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(domain.SourceSemanticScholar, resp.StatusCode, errorMessage(body), nil)
	}

	var result PaperResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&result); err != nil {
		return nil, fmt.Errorf("semantic scholar details: decoding response: %w", err)
	}

	record := c.paperToRecord(&result, logger)
	if record == nil {
		return nil, domain.NewNotFoundError("paper", id)
	}
	return record, nil
}

// GetCitations returns papers that cite the given paper.
func (c *Client) GetCitations(ctx context.Context, id string) ([]*domain.PaperRecord, error) {
	return c.linkedPapers(ctx, id, "citations")
}

// GetReferences returns papers the given paper cites.
func (c *Client) GetReferences(ctx context.Context, id string) ([]*domain.PaperRecord, error) {
	return c.linkedPapers(ctx, id, "references")
}

// SourceName returns the registry name for this source.
func (c *Client) SourceName() string {
	return domain.SourceSemanticScholar
}

// linkedPapers fetches a citations or references listing and unwraps each
// entry's citingPaper/citedPaper into records. The error policy matches
// Search: unexpected statuses and malformed bodies degrade to an empty
// result.
func (c *Client) linkedPapers(ctx context.Context, id, relation string) ([]*domain.PaperRecord, error) {
	logger := observability.WithPaperContext(ctx, c.logger, id)

	params := url.Values{}
	params.Set("fields", defaultFields)
	params.Set("limit", strconv.Itoa(linkedPapersLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.paperURL(id)+"/"+relation+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error().Err(err).Str("relation", relation).Msg("semantic scholar request failed")
		return nil, fmt.Errorf("semantic scholar %s: %w", relation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logUnexpectedStatus(logger, resp, "semantic scholar "+relation+" rejected")
		return []*domain.PaperRecord{}, nil
	}

	var linked LinkedPapersResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&linked); err != nil {
		logger.Error().Err(err).Str("relation", relation).Msg("malformed semantic scholar response")
		return []*domain.PaperRecord{}, nil
	}

	records := make([]*domain.PaperRecord, 0, len(linked.Data))
	for i := range linked.Data {
		paper := linked.Data[i].paper()
		if paper == nil {
			continue
		}
		if record := c.paperToRecord(paper, logger); record != nil {
			records = append(records, record)
		}
	}

	logger.Debug().Int("papers", len(records)).Str("relation", relation).Msg("semantic scholar linked papers fetched")
	return records, nil
}

func (c *Client) paperURL(id string) string {
	return c.config.BaseURL + "/paper/" + url.PathEscape(id)
}

// buildSearchParams renders the query and filters into Graph API
// parameters. FieldsOfStudy and PublicationTypes become repeated values.
func buildSearchParams(query string, filters papersources.SearchFilters) url.Values {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(filters.Limit()))

	fields := defaultFields
	if len(filters.Fields) > 0 {
		fields = strings.Join(filters.Fields, ",")
	}
	params.Set("fields", fields)

	if filters.YearRange.Valid() {
		params.Set("year", fmt.Sprintf("%d-%d", filters.YearRange.Start, filters.YearRange.End))
	}
	if filters.MinCitationCount > 0 {
		params.Set("minCitationCount", strconv.Itoa(filters.MinCitationCount))
	}
	if len(filters.FieldsOfStudy) > 0 {
		params["fieldsOfStudy"] = filters.FieldsOfStudy
	}
	if len(filters.PublicationTypes) > 0 {
		params["publicationTypes"] = filters.PublicationTypes
	}
	if filters.OpenAccessOnly {
		params.Set("isOpenAccess", "true")
	}

	return params
}

func logUnexpectedStatus(logger zerolog.Logger, resp *http.Response, msg string) {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	event := logger.Error()
	if resp.StatusCode == http.StatusBadRequest {
		// Invalid query syntax is an expected, graceful rejection.
		event = logger.Warn()
	}
	event.Int("status", resp.StatusCode).Str("error", errorMessage(body)).Msg(msg)
}

// errorMessage extracts the message from a JSON error body, falling back
// to the raw body text.
func errorMessage(body []byte) string {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error != "" {
			return errResp.Error
		}
		if errResp.Message != "" {
			return errResp.Message
		}
	}
	return string(body)
}

func (c *Client) papersToRecords(papers []PaperResult, logger zerolog.Logger) []*domain.PaperRecord {
	records := make([]*domain.PaperRecord, 0, len(papers))
	for i := range papers {
		if record := c.paperToRecord(&papers[i], logger); record != nil {
			records = append(records, record)
		}
	}
	return records
}

// paperToRecord converts one API paper to a PaperRecord, resolving its
// venue and enriching the journal info from the metrics table. A paper
// without an id is skipped: it is logged, counted, and nil is returned.
func (c *Client) paperToRecord(paper *PaperResult, logger zerolog.Logger) *domain.PaperRecord {
	if paper.PaperID == "" {
		c.metrics.RecordSkippedRecord(domain.SourceSemanticScholar)
		logger.Warn().Str("title", paper.Title).Msg("skipping semantic scholar paper without id")
		return nil
	}

	citations := paper.CitationCount
	record := &domain.PaperRecord{
		ID:            paper.PaperID,
		Title:         paper.Title,
		Abstract:      paper.Abstract,
		Year:          paper.Year,
		CitationCount: &citations,
		URL:           paperURLPrefix + paper.PaperID,
		Authors:       make([]domain.Author, 0, len(paper.Authors)),
		JournalInfo:   c.journals.Lookup(resolveVenue(paper)),
	}

	if paper.OpenAccessPDF != nil {
		record.PDFURL = paper.OpenAccessPDF.URL
	}

	for _, author := range paper.Authors {
		if author.Name == "" {
			continue
		}
		record.Authors = append(record.Authors, domain.Author{Name: author.Name})
	}

	return record
}

// resolveVenue picks the display venue: the flat venue field, then the
// publication venue record's name, then "Unknown".
func resolveVenue(paper *PaperResult) string {
	if paper.Venue != "" {
		return paper.Venue
	}
	if paper.PublicationVenue != nil && paper.PublicationVenue.Name != "" {
		return paper.PublicationVenue.Name
	}
	return unknownVenue
}

// applyRecordFilters enforces the filters the search endpoint cannot: the
// year window (papers with unknown years slip through the year parameter),
// the citation floor, and quartile membership, which exists only after
// journal enrichment.
func applyRecordFilters(records []*domain.PaperRecord, filters papersources.SearchFilters) []*domain.PaperRecord {
	kept := make([]*domain.PaperRecord, 0, len(records))
	for _, record := range records {
		if filters.YearRange.Valid() && (record.Year < filters.YearRange.Start || record.Year > filters.YearRange.End) {
			continue
		}
		if filters.MinCitationCount > 0 && citationsOf(record) < filters.MinCitationCount {
			continue
		}
		if len(filters.JCRQuartiles) > 0 && !slices.Contains(filters.JCRQuartiles, record.JournalInfo.JCRQuartile) {
			continue
		}
		if len(filters.CASQuartiles) > 0 && !slices.Contains(filters.CASQuartiles, record.JournalInfo.CASQuartile) {
			continue
		}
		kept = append(kept, record)
	}
	return kept
}

func citationsOf(record *domain.PaperRecord) int {
	if record.CitationCount == nil {
		return 0
	}
	return *record.CitationCount
}
