// Package openalex provides the OpenAlex paper source client. OpenAlex
// serves work metadata as JSON from a single /works endpoint; filters ride
// in a comma-joined filter parameter and abstracts arrive as an inverted
// index that the parser reassembles into text.
package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
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
	// DefaultBaseURL is the public OpenAlex API root.
	DefaultBaseURL = "https://api.openalex.org"

	// workIDPrefix is the URL prefix OpenAlex uses for work identifiers.
	workIDPrefix = "https://openalex.org/"

	// maxAbstractWords bounds inverted-index reconstruction against
	// pathological payloads.
	maxAbstractWords = 100_000

	unknownVenue = "Unknown"
)

// Config holds the OpenAlex client settings.
type Config struct {
	BaseURL string

	// Email identifies the caller to OpenAlex's polite pool, which is
	// granted more generous rate limits.
	Email string

	Timeout         time.Duration
	RequestInterval time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	RateLimitDelay  time.Duration
	UserAgent       string
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
}

// Client implements the papersources.PaperSource interface for OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	journals   *journalmetrics.Table
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// Ensure Client implements PaperSource interface.
var _ papersources.PaperSource = (*Client)(nil)

// New creates an OpenAlex client with the given configuration.
func New(cfg Config, journals *journalmetrics.Table, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:         cfg.Timeout,
		RequestInterval: cfg.RequestInterval,
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      cfg.RetryDelay,
		RateLimitDelay:  cfg.RateLimitDelay,
		UserAgent:       cfg.UserAgent,
		Source:          domain.SourceOpenAlex,
		Metrics:         metrics,
	})

	return NewWithHTTPClient(cfg, journals, httpClient, logger, metrics)
}

// NewWithHTTPClient creates an OpenAlex client with a caller-supplied HTTP
// client. Useful for tests.
func NewWithHTTPClient(cfg Config, journals *journalmetrics.Table, httpClient *papersources.HTTPClient, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		journals:   journals,
		logger:     observability.WithSourceContext(logger, domain.SourceOpenAlex),
		metrics:    metrics,
	}
}

// Search queries the works index. Every supported filter is applied
// server-side through the filter grammar, so results come back already
// narrowed.
func (c *Client) Search(ctx context.Context, query string, filters papersources.SearchFilters) ([]*domain.PaperRecord, error) {
	if strings.TrimSpace(query) == "" {
		return []*domain.PaperRecord{}, nil
	}

	logger := observability.WithSearchContext(ctx, c.logger, query)

	params := c.buildSearchParams(query, filters)
	logger.Debug().Str("params", params.Encode()).Msg("searching openalex")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/works?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openalex search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logUnexpectedStatus(logger, resp, "openalex search rejected")
		return []*domain.PaperRecord{}, nil
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		logger.Error().Err(err).Msg("malformed openalex response")
		return []*domain.PaperRecord{}, nil
	}

	papers := c.worksToRecords(searchResp.Results, logger)
	logger.Info().Int("papers", len(papers)).Int("total_results", searchResp.Meta.Count).Msg("openalex search completed")
	return papers, nil
}

// GetDetails retrieves a single work by its OpenAlex identifier (short
// form like W2741809807, or any alias the works endpoint accepts). A
// missing work yields a domain.NotFoundError.
func (c *Client) GetDetails(ctx context.Context, id string) (*domain.PaperRecord, error) {
	logger := observability.WithPaperContext(ctx, c.logger, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.workURL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openalex details: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.NewNotFoundError("paper", id)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(domain.SourceOpenAlex, resp.StatusCode, errorMessage(body), nil)
	}

	var work Work
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&work); err != nil {
		return nil, fmt.Errorf("openalex details: decoding response: %w", err)
	}

	record := c.workToRecord(&work, logger)
	if record == nil {
		return nil, domain.NewNotFoundError("paper", id)
	}

	logger.Debug().Str("title", record.Title).Msg("openalex details fetched")
	return record, nil
}

// GetCitations returns an empty list. OpenAlex exposes citing works only
// through a filtered search, which this client does not issue.
func (c *Client) GetCitations(ctx context.Context, id string) ([]*domain.PaperRecord, error) {
	return []*domain.PaperRecord{}, nil
}

// GetReferences returns an empty list. Works carry referenced work IDs,
// not hydrated records.
func (c *Client) GetReferences(ctx context.Context, id string) ([]*domain.PaperRecord, error) {
	return []*domain.PaperRecord{}, nil
}

// SourceName returns the registry name for this source.
func (c *Client) SourceName() string {
	return domain.SourceOpenAlex
}

// buildSearchParams translates the query and filters into works-endpoint
// parameters. Filter components are comma-joined into the single filter
// parameter per the OpenAlex grammar.
func (c *Client) buildSearchParams(query string, filters papersources.SearchFilters) url.Values {
	params := url.Values{}
	params.Set("search", query)
	params.Set("per_page", strconv.Itoa(filters.Limit()))

	if parts := buildFilterList(filters); len(parts) > 0 {
		params.Set("filter", strings.Join(parts, ","))
	}
	if c.config.Email != "" {
		params.Set("mailto", c.config.Email)
	}

	return params
}

// buildFilterList renders the filter grammar components. cited_by_count
// supports > but not >=, so a minimum of n is written as >n-1.
func buildFilterList(filters papersources.SearchFilters) []string {
	var parts []string

	if filters.YearRange.Valid() {
		parts = append(parts,
			fmt.Sprintf("from_publication_date:%d-01-01", filters.YearRange.Start),
			fmt.Sprintf("to_publication_date:%d-12-31", filters.YearRange.End))
	}
	if filters.MinCitationCount > 0 {
		parts = append(parts, fmt.Sprintf("cited_by_count:>%d", filters.MinCitationCount-1))
	}
	if filters.OpenAccessOnly {
		parts = append(parts, "is_oa:true")
	}

	return parts
}

func (c *Client) workURL(id string) string {
	u := c.config.BaseURL + "/works/" + url.PathEscape(id)
	if c.config.Email != "" {
		u += "?mailto=" + url.QueryEscape(c.config.Email)
	}
	return u
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

func (c *Client) worksToRecords(works []Work, logger zerolog.Logger) []*domain.PaperRecord {
	records := make([]*domain.PaperRecord, 0, len(works))
	for i := range works {
		if record := c.workToRecord(&works[i], logger); record != nil {
			records = append(records, record)
		}
	}
	return records
}

// workToRecord converts one work to a PaperRecord, resolving its venue and
// enriching the journal info from the metrics table. A work without an id
// is skipped: it is logged, counted, and nil is returned.
func (c *Client) workToRecord(work *Work, logger zerolog.Logger) *domain.PaperRecord {
	id := strings.TrimPrefix(work.ID, workIDPrefix)
	if id == "" {
		c.metrics.RecordSkippedRecord(domain.SourceOpenAlex)
		logger.Warn().Str("title", workTitle(work)).Msg("skipping openalex work without id")
		return nil
	}

	citations := work.CitedByCount
	record := &domain.PaperRecord{
		ID:            id,
		Title:         workTitle(work),
		Abstract:      reconstructAbstract(work.AbstractInvertedIndex),
		Year:          work.PublicationYear,
		CitationCount: &citations,
		URL:           workIDPrefix + id,
		PDFURL:        resolvePDFURL(work),
		Authors:       make([]domain.Author, 0, len(work.Authorships)),
		JournalInfo:   c.journals.Lookup(resolveVenue(work)),
	}

	for _, authorship := range work.Authorships {
		if authorship.Author.DisplayName == "" {
			continue
		}
		author := domain.Author{Name: authorship.Author.DisplayName}
		if len(authorship.Institutions) > 0 {
			author.Affiliation = authorship.Institutions[0].DisplayName
		}
		record.Authors = append(record.Authors, author)
	}

	return record
}

func workTitle(work *Work) string {
	if work.Title != "" {
		return work.Title
	}
	return work.DisplayName
}

// resolvePDFURL prefers the open access URL over the primary location's
// pdf_url.
func resolvePDFURL(work *Work) string {
	if work.OpenAccess != nil && work.OpenAccess.OAURL != "" {
		return work.OpenAccess.OAURL
	}
	if work.PrimaryLocation != nil {
		return work.PrimaryLocation.PDFURL
	}
	return ""
}

func resolveVenue(work *Work) string {
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil && work.PrimaryLocation.Source.DisplayName != "" {
		return work.PrimaryLocation.Source.DisplayName
	}
	return unknownVenue
}

// reconstructAbstract rebuilds the abstract text from the inverted index
// by ordering every (word, position) pair. Indexes above maxAbstractWords
// total positions yield an empty abstract.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}

	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	if totalPairs > maxAbstractWords {
		return ""
	}

	pairs := make([]posWord, 0, totalPairs)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	var builder strings.Builder
	builder.Grow(totalPairs * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}

	return builder.String()
}
