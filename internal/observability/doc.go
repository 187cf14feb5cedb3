// Package observability provides logging and metrics support for the paper
// aggregator.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for searches, papers, and source transports
//   - Context helpers for correlating per-source logs with a fan-out call
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("query", query).Msg("search started")
//
// Add search context to a logger:
//
//	logger = observability.WithSearchContext(ctx, logger, query)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("paper_aggregator")
//
// Record metrics:
//
//	metrics.RecordSearchStarted("arxiv")
//	metrics.RecordSearchCompleted("arxiv", 25, 1.2)
//
// A nil *Metrics is a valid no-op recorder; components treat metrics as an
// optional dependency.
//
// # Context Helpers
//
// Store and retrieve the fan-out search ID:
//
//	ctx = observability.WithSearchID(ctx, searchID)
//	searchID := observability.SearchIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - search_id: Fan-out call identifier
//   - query: User's search query
//   - source: Paper source (arxiv, pubmed, semanticscholar, openalex)
//   - paper_id: Source-native paper identifier
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
