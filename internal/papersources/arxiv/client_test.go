package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/paper-aggregator/internal/domain"
	"github.com/scholaris/paper-aggregator/internal/observability"
	"github.com/scholaris/paper-aggregator/internal/papersources"
)

// Compile-time check that Client implements papersources.PaperSource.
var _ papersources.PaperSource = (*Client)(nil)

const searchFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">
  <opensearch:totalResults>42</opensearch:totalResults>
  <entry>
    <id>http://arxiv.org/abs/2301.12345v2</id>
    <title>Attention Is
        All You Need</title>
    <summary>
      We propose a new   network architecture.
    </summary>
    <published>2023-01-15T18:30:00Z</published>
    <author>
      <name>Ashish Vaswani</name>
      <arxiv:affiliation>Google Brain</arxiv:affiliation>
    </author>
    <author>
      <name>Noam Shazeer</name>
    </author>
    <link href="http://arxiv.org/abs/2301.12345v2" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2301.12345v2" rel="related" type="application/pdf"/>
    <arxiv:primary_category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2302.00001v1</id>
    <title>Minimal Entry</title>
    <summary>Short.</summary>
  </entry>
</feed>`

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return New(Config{
		BaseURL:         baseURL,
		RequestInterval: time.Millisecond,
		RetryDelay:      time.Millisecond,
		RateLimitDelay:  time.Millisecond,
	}, zerolog.Nop(), nil)
}

func TestNew(t *testing.T) {
	client := New(Config{}, zerolog.Nop(), nil)

	require.NotNil(t, client)
	assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
	assert.Equal(t, domain.SourceArXiv, client.SourceName())
}

func TestClient_Search(t *testing.T) {
	t.Run("parses atom feed into paper records", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "(ti:transformers OR abs:transformers)", r.URL.Query().Get("search_query"))
			assert.Equal(t, "0", r.URL.Query().Get("start"))
			assert.Equal(t, "10", r.URL.Query().Get("max_results"))
			assert.Equal(t, "submittedDate", r.URL.Query().Get("sortBy"))
			assert.Equal(t, "descending", r.URL.Query().Get("sortOrder"))
			assert.Equal(t, "Scholaris-PaperAggregator/1.0", r.Header.Get("User-Agent"))

			w.Header().Set("Content-Type", "application/atom+xml")
			w.Write([]byte(searchFeed))
		}))
		defer server.Close()

		papers, err := testClient(t, server.URL).Search(context.Background(), "transformers", papersources.SearchFilters{})

		require.NoError(t, err)
		require.Len(t, papers, 2)

		paper := papers[0]
		assert.Equal(t, "2301.12345v2", paper.ID)
		assert.Equal(t, "Attention Is All You Need", paper.Title)
		assert.Equal(t, "We propose a new network architecture.", paper.Abstract)
		assert.Equal(t, 2023, paper.Year)
		assert.Equal(t, "http://arxiv.org/abs/2301.12345v2", paper.URL)
		assert.Equal(t, "http://arxiv.org/pdf/2301.12345v2", paper.PDFURL)
		assert.Equal(t, "cs.LG", paper.PrimaryCategory)
		assert.Equal(t, "arXiv", paper.JournalInfo.Title)
		assert.Equal(t, domain.MetricNA, paper.JournalInfo.ImpactFactor)
		assert.Nil(t, paper.CitationCount)

		require.Len(t, paper.Authors, 2)
		assert.Equal(t, "Ashish Vaswani", paper.Authors[0].Name)
		assert.Equal(t, "Google Brain", paper.Authors[0].Affiliation)
		assert.Equal(t, "Noam Shazeer", paper.Authors[1].Name)
		assert.Empty(t, paper.Authors[1].Affiliation)

		minimal := papers[1]
		assert.Equal(t, "2302.00001v1", minimal.ID)
		assert.Zero(t, minimal.Year)
		assert.Empty(t, minimal.PDFURL)
		assert.NotNil(t, minimal.Authors)
		assert.Empty(t, minimal.Authors)
	})

	t.Run("encodes the query with arXiv syntax characters bare", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, `(ti:"machine learning" OR abs:"machine learning")`, r.URL.Query().Get("search_query"))
			assert.Contains(t, r.URL.RawQuery, "%22machine%20learning%22")
			assert.Contains(t, r.URL.RawQuery, "(ti:")
			assert.NotContains(t, r.URL.RawQuery, "+OR+")

			w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
		}))
		defer server.Close()

		_, err := testClient(t, server.URL).Search(context.Background(), "machine learning", papersources.SearchFilters{})

		require.NoError(t, err)
	})

	t.Run("applies year range and papers limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.Query().Get("search_query"), " AND submittedDate:[202001010000 TO 202312312359]")
			assert.Equal(t, "5", r.URL.Query().Get("max_results"))

			w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
		}))
		defer server.Close()

		filters := papersources.SearchFilters{
			YearRange:   &papersources.YearRange{Start: 2020, End: 2023},
			PapersLimit: 5,
		}
		papers, err := testClient(t, server.URL).Search(context.Background(), "quantum entanglement", filters)

		require.NoError(t, err)
		assert.Empty(t, papers)
	})

	t.Run("empty query short-circuits without a request", func(t *testing.T) {
		var requestCount atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestCount.Add(1)
		}))
		defer server.Close()

		papers, err := testClient(t, server.URL).Search(context.Background(), "   ", papersources.SearchFilters{})

		require.NoError(t, err)
		assert.NotNil(t, papers)
		assert.Empty(t, papers)
		assert.Equal(t, int32(0), requestCount.Load())
	})

	t.Run("skips entries without a usable id", func(t *testing.T) {
		metrics := observability.NewMetrics("test_arxiv_skip")

		feed := `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id></id>
    <title>Broken Entry</title>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2303.00002v1</id>
    <title>Good Entry</title>
  </entry>
</feed>`

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(feed))
		}))
		defer server.Close()

		client := New(Config{
			BaseURL:         server.URL,
			RequestInterval: time.Millisecond,
		}, zerolog.Nop(), metrics)

		papers, err := client.Search(context.Background(), "anything", papersources.SearchFilters{})

		require.NoError(t, err)
		require.Len(t, papers, 1)
		assert.Equal(t, "2303.00002v1", papers[0].ID)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RecordsSkipped.WithLabelValues(domain.SourceArXiv)))
	})

	t.Run("bad request returns empty result without error or retry", func(t *testing.T) {
		var requestCount atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestCount.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("malformed query"))
		}))
		defer server.Close()

		papers, err := testClient(t, server.URL).Search(context.Background(), "ti:((broken", papersources.SearchFilters{})

		require.NoError(t, err)
		assert.Empty(t, papers)
		assert.Equal(t, int32(1), requestCount.Load())
	})

	t.Run("persistent server errors surface after retries", func(t *testing.T) {
		var requestCount atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestCount.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := New(Config{
			BaseURL:         server.URL,
			RequestInterval: time.Millisecond,
			MaxRetries:      2,
			RetryDelay:      time.Millisecond,
		}, zerolog.Nop(), nil)

		papers, err := client.Search(context.Background(), "resilience", papersources.SearchFilters{})

		require.Error(t, err)
		assert.Nil(t, papers)
		assert.Contains(t, err.Error(), "arxiv search")
		assert.Contains(t, err.Error(), "retries exhausted")
		assert.Equal(t, int32(2), requestCount.Load())
	})

	t.Run("malformed response body returns empty result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("this is not xml at all <<<"))
		}))
		defer server.Close()

		papers, err := testClient(t, server.URL).Search(context.Background(), "noise", papersources.SearchFilters{})

		require.NoError(t, err)
		assert.Empty(t, papers)
	})
}

func TestClient_GetDetails(t *testing.T) {
	t.Run("fetches a paper by id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "2301.12345v2", r.URL.Query().Get("id_list"))
			assert.Equal(t, "1", r.URL.Query().Get("max_results"))

			w.Write([]byte(searchFeed))
		}))
		defer server.Close()

		paper, err := testClient(t, server.URL).GetDetails(context.Background(), "2301.12345v2")

		require.NoError(t, err)
		require.NotNil(t, paper)
		assert.Equal(t, "2301.12345v2", paper.ID)
		assert.Equal(t, "Attention Is All You Need", paper.Title)
	})

	t.Run("returns not found for an unknown id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
		}))
		defer server.Close()

		paper, err := testClient(t, server.URL).GetDetails(context.Background(), "9999.99999")

		require.Error(t, err)
		assert.Nil(t, paper)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		var notFound *domain.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "9999.99999", notFound.ID)
	})

	t.Run("returns an api error for unexpected statuses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("blocked"))
		}))
		defer server.Close()

		_, err := testClient(t, server.URL).GetDetails(context.Background(), "2301.12345v2")

		require.Error(t, err)
		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, domain.SourceArXiv, apiErr.Source)
	})
}

func TestClient_CitationsAndReferences(t *testing.T) {
	client := New(Config{}, zerolog.Nop(), nil)

	citations, err := client.GetCitations(context.Background(), "2301.12345")
	require.NoError(t, err)
	assert.NotNil(t, citations)
	assert.Empty(t, citations)

	references, err := client.GetReferences(context.Background(), "2301.12345")
	require.NoError(t, err)
	assert.NotNil(t, references)
	assert.Empty(t, references)
}
