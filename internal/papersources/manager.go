package papersources

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholaris/paper-aggregator/internal/domain"
	"github.com/scholaris/paper-aggregator/internal/observability"
)

// DefaultSources is the source subset SearchAll queries when the caller's
// filters name none.
var DefaultSources = []string{domain.SourcePubMed, domain.SourceSemanticScholar}

// Manager coordinates registered paper sources. It provides thread-safe
// registration and fans search and detail requests out across sources
// concurrently, merging the contributions.
//
// The Manager is the error-swallowing boundary: a source that fails
// contributes nothing to the aggregate result, and neither SearchAll nor
// GetDetailsAll returns an error.
type Manager struct {
	mu      sync.RWMutex
	sources map[string]PaperSource
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewManager creates a manager with an empty source registry.
// metrics may be nil; recording is then a no-op.
func NewManager(logger zerolog.Logger, metrics *observability.Metrics) *Manager {
	return &Manager{
		sources: make(map[string]PaperSource),
		logger:  logger,
		metrics: metrics,
	}
}

// Register adds a source to the registry under its SourceName.
// Re-registering a name replaces the previous client.
func (m *Manager) Register(source PaperSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[source.SourceName()] = source
}

// Get returns the source registered under name, or nil if none is.
func (m *Manager) Get(name string) PaperSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sources[name]
}

// SourceNames returns the names of all registered sources, sorted.
func (m *Manager) SourceNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.sources))
	for name := range m.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// searchOutcome carries one source's contribution through the fan-out
// channel.
type searchOutcome struct {
	source string
	papers []*domain.PaperRecord
	err    error
}

// SearchAll queries the selected sources concurrently and merges their
// results. Sources are selected by filters.Sources, defaulting to
// DefaultSources; names with no registered client are logged and skipped.
//
// The merge preserves configured source order, not goroutine completion
// order: papers from the first selected source come first. Records sharing
// an ID are deduplicated, first occurrence wins, and every surviving record
// is tagged with the name of the source that produced it.
//
// A failing source is logged and contributes an empty list; SearchAll never
// fails as a whole.
func (m *Manager) SearchAll(ctx context.Context, query string, filters SearchFilters) []*domain.PaperRecord {
	ctx = observability.WithSearchID(ctx, uuid.NewString())
	logger := observability.WithSearchContext(ctx, m.logger, query)

	names := filters.Sources
	if len(names) == 0 {
		names = DefaultSources
	}

	targets := m.resolve(names, logger)
	m.metrics.RecordFanout("search")

	merged := make([]*domain.PaperRecord, 0)
	if len(targets) == 0 {
		logger.Warn().Strs("requested", names).Msg("no registered sources matched the request")
		return merged
	}

	resultChan := make(chan searchOutcome, len(targets))
	var wg sync.WaitGroup

	for _, source := range targets {
		wg.Add(1)
		go func(s PaperSource) {
			defer wg.Done()

			name := s.SourceName()
			start := time.Now()
			m.metrics.RecordSearchStarted(name)

			papers, err := s.Search(ctx, query, filters)
			if err != nil {
				m.metrics.RecordSearchFailed(name, time.Since(start).Seconds())
			} else {
				m.metrics.RecordSearchCompleted(name, len(papers), time.Since(start).Seconds())
			}

			resultChan <- searchOutcome{source: name, papers: papers, err: err}
		}(source)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	bySource := make(map[string][]*domain.PaperRecord, len(targets))
	for outcome := range resultChan {
		if outcome.err != nil {
			logger.Error().
				Err(outcome.err).
				Str("source", outcome.source).
				Msg("source search failed")
			continue
		}
		bySource[outcome.source] = outcome.papers
	}

	// Reassemble in configured order so the merge is deterministic.
	seen := make(map[string]struct{})
	duplicates := 0
	for _, source := range targets {
		name := source.SourceName()
		for _, paper := range bySource[name] {
			if _, dup := seen[paper.ID]; dup {
				duplicates++
				logger.Debug().
					Str("source", name).
					Str("paper_id", paper.ID).
					Msg("duplicate paper dropped")
				continue
			}
			seen[paper.ID] = struct{}{}
			paper.Source = name
			merged = append(merged, paper)
		}
	}

	if duplicates > 0 {
		m.metrics.RecordDuplicatesDropped(duplicates)
	}

	logger.Info().
		Int("papers", len(merged)).
		Int("duplicates", duplicates).
		Int("sources", len(targets)).
		Msg("multi-source search completed")

	return merged
}

// detailOutcome carries one source's detail lookup through the fan-out
// channel.
type detailOutcome struct {
	source string
	paper  *domain.PaperRecord
	err    error
}

// GetDetailsAll queries every registered source for the paper concurrently
// and returns a map from source name to the record it produced. A source
// that fails or has no such paper contributes no entry. GetDetailsAll never
// fails as a whole.
func (m *Manager) GetDetailsAll(ctx context.Context, paperID string) map[string]*domain.PaperRecord {
	ctx = observability.WithSearchID(ctx, uuid.NewString())
	logger := observability.WithPaperContext(ctx, m.logger, paperID)

	m.mu.RLock()
	targets := make([]PaperSource, 0, len(m.sources))
	for _, source := range m.sources {
		targets = append(targets, source)
	}
	m.mu.RUnlock()

	m.metrics.RecordFanout("details")

	details := make(map[string]*domain.PaperRecord, len(targets))
	if len(targets) == 0 {
		return details
	}

	resultChan := make(chan detailOutcome, len(targets))
	var wg sync.WaitGroup

	for _, source := range targets {
		wg.Add(1)
		go func(s PaperSource) {
			defer wg.Done()

			paper, err := s.GetDetails(ctx, paperID)
			resultChan <- detailOutcome{source: s.SourceName(), paper: paper, err: err}
		}(source)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for outcome := range resultChan {
		if outcome.err != nil {
			if errors.Is(outcome.err, domain.ErrNotFound) {
				logger.Debug().
					Str("source", outcome.source).
					Msg("paper not found in source")
			} else {
				logger.Error().
					Err(outcome.err).
					Str("source", outcome.source).
					Msg("source detail fetch failed")
			}
			continue
		}
		if outcome.paper != nil {
			details[outcome.source] = outcome.paper
		}
	}

	logger.Info().Int("sources", len(details)).Msg("detail aggregation completed")

	return details
}

// resolve maps requested source names to registered clients, preserving
// request order. Unknown names are logged and skipped.
func (m *Manager) resolve(names []string, logger zerolog.Logger) []PaperSource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	targets := make([]PaperSource, 0, len(names))
	for _, name := range names {
		source, ok := m.sources[name]
		if !ok {
			m.metrics.RecordUnknownSource()
			logger.Warn().Str("source", name).Msg("unknown paper source requested")
			continue
		}
		targets = append(targets, source)
	}
	return targets
}
