// Package arxiv provides the arXiv paper source client. It speaks the
// arXiv query API's Atom XML dialect and translates free-text queries into
// arXiv fielded search syntax.
package arxiv

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

// DefaultBaseURL is the arXiv query API endpoint.
const DefaultBaseURL = "https://export.arxiv.org/api/query"

// Config holds configuration for the arXiv client. Zero-valued transport
// fields fall back to the papersources defaults.
type Config struct {
	// BaseURL is the arXiv query API URL.
	BaseURL string

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

// Client implements the papersources.PaperSource interface for arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates an arXiv client with the given configuration. metrics may be
// nil.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:         cfg.Timeout,
		RequestInterval: cfg.RequestInterval,
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      cfg.RetryDelay,
		RateLimitDelay:  cfg.RateLimitDelay,
		UserAgent:       cfg.UserAgent,
		Source:          domain.SourceArXiv,
		Metrics:         metrics,
	})

	return NewWithHTTPClient(cfg, httpClient, logger, metrics)
}

// NewWithHTTPClient creates an arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     observability.WithSourceContext(logger, domain.SourceArXiv),
		metrics:    metrics,
	}
}

// Search queries arXiv for papers matching the query and filters. An empty
// query returns an empty result without a network call. A rejected query
// (HTTP 400) or any other unexpected status logs and returns an empty
// result; only retry exhaustion and decode failures return an error.
func (c *Client) Search(ctx context.Context, query string, filters papersources.SearchFilters) ([]*domain.PaperRecord, error) {
	if strings.TrimSpace(query) == "" {
		return []*domain.PaperRecord{}, nil
	}

	logger := observability.WithSearchContext(ctx, c.logger, query)

	searchQuery := buildSearchQuery(query, filters)
	logger.Debug().Str("search_query", searchQuery).Msg("searching arxiv")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL(searchQuery, filters.Limit()), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error().Err(err).Msg("arxiv search request failed")
		return nil, fmt.Errorf("arxiv search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logUnexpectedStatus(logger, resp, "arxiv search rejected")
		return []*domain.PaperRecord{}, nil
	}

	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		logger.Error().Err(err).Msg("malformed arxiv response")
		return []*domain.PaperRecord{}, nil
	}

	papers := c.entriesToRecords(feed.Entries, logger)
	logger.Info().Int("papers", len(papers)).Int("total_results", feed.TotalResults).Msg("arxiv search completed")
	return papers, nil
}

// GetDetails retrieves a single paper by its arXiv identifier. A missing
// paper yields a domain.NotFoundError.
func (c *Client) GetDetails(ctx context.Context, id string) (*domain.PaperRecord, error) {
	logger := observability.WithPaperContext(ctx, c.logger, id)

	params := url.Values{}
	params.Set("id_list", id)
	params.Set("max_results", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv details: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(domain.SourceArXiv, resp.StatusCode, string(body), nil)
	}

	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("arxiv details: decoding response: %w", err)
	}

	if len(feed.Entries) == 0 {
		return nil, domain.NewNotFoundError("paper", id)
	}

	record := c.entryToRecord(&feed.Entries[0], logger)
	if record == nil {
		return nil, domain.NewNotFoundError("paper", id)
	}
	return record, nil
}

// GetCitations returns an empty list: the arXiv API exposes no citation
// graph.
func (c *Client) GetCitations(ctx context.Context, id string) ([]*domain.PaperRecord, error) {
	return []*domain.PaperRecord{}, nil
}

// GetReferences returns an empty list: the arXiv API exposes no reference
// lists.
func (c *Client) GetReferences(ctx context.Context, id string) ([]*domain.PaperRecord, error) {
	return []*domain.PaperRecord{}, nil
}

// SourceName returns the registry name for this source.
func (c *Client) SourceName() string {
	return domain.SourceArXiv
}

// searchURL assembles the query API URL. search_query is percent-encoded
// by encodeQuery and spliced in directly; see that function for why
// url.Values cannot encode it.
func (c *Client) searchURL(searchQuery string, limit int) string {
	return c.config.BaseURL +
		"?search_query=" + encodeQuery(searchQuery) +
		"&start=0" +
		"&max_results=" + strconv.Itoa(limit) +
		"&sortBy=submittedDate&sortOrder=descending"
}

func (c *Client) logUnexpectedStatus(logger zerolog.Logger, resp *http.Response, msg string) {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	event := logger.Error()
	if resp.StatusCode == http.StatusBadRequest {
		// Unsupported query syntax is an expected, graceful rejection.
		event = logger.Warn()
	}
	event.Int("status", resp.StatusCode).Str("body", string(body)).Msg(msg)
}

func (c *Client) entriesToRecords(entries []Entry, logger zerolog.Logger) []*domain.PaperRecord {
	records := make([]*domain.PaperRecord, 0, len(entries))
	for i := range entries {
		if record := c.entryToRecord(&entries[i], logger); record != nil {
			records = append(records, record)
		}
	}
	return records
}

// entryToRecord converts one Atom entry to a PaperRecord. An entry without
// a usable id is skipped: it is logged, counted, and nil is returned.
func (c *Client) entryToRecord(entry *Entry, logger zerolog.Logger) *domain.PaperRecord {
	id := extractID(entry.ID)
	if id == "" {
		c.metrics.RecordSkippedRecord(domain.SourceArXiv)
		logger.Warn().Str("title", entry.Title).Msg("skipping arxiv entry without usable id")
		return nil
	}

	record := &domain.PaperRecord{
		ID:              id,
		Title:           normalizeWhitespace(entry.Title),
		Abstract:        normalizeWhitespace(entry.Summary),
		URL:             entry.ID,
		Authors:         make([]domain.Author, 0, len(entry.Authors)),
		PrimaryCategory: entry.PrimaryCategory.Term,
		JournalInfo:     domain.NewJournalInfo("arXiv"),
	}

	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			record.PDFURL = link.Href
			break
		}
	}

	for _, author := range entry.Authors {
		name := strings.TrimSpace(author.Name)
		if name == "" {
			continue
		}
		record.Authors = append(record.Authors, domain.Author{
			Name:        name,
			Affiliation: strings.TrimSpace(author.Affiliation),
		})
	}

	if len(entry.Published) >= 4 {
		if year, err := strconv.Atoi(entry.Published[:4]); err == nil {
			record.Year = year
		}
	}

	return record
}

// extractID returns the identifier portion of the entry's canonical URL:
// "http://arxiv.org/abs/2301.12345v1" -> "2301.12345v1".
func extractID(entryURL string) string {
	entryURL = strings.TrimSpace(entryURL)
	if idx := strings.LastIndex(entryURL, "abs/"); idx >= 0 {
		return entryURL[idx+len("abs/"):]
	}
	return entryURL
}

// normalizeWhitespace trims and collapses runs of whitespace. arXiv titles
// and abstracts arrive with embedded newlines and indentation.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
