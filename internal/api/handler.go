// Package api implements the HTTP endpoints for ingesting reviews, browsing
// them, running similarity searches and drafting reply suggestions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/reviewpulse/reviewpulse/internal/enrich"
	"github.com/reviewpulse/reviewpulse/internal/events"
	"github.com/reviewpulse/reviewpulse/internal/reply"
	"github.com/reviewpulse/reviewpulse/internal/review"
	"github.com/reviewpulse/reviewpulse/internal/review/validator"
	"github.com/reviewpulse/reviewpulse/internal/similarity"
	"github.com/reviewpulse/reviewpulse/pkg/config"
	apperrors "github.com/reviewpulse/reviewpulse/pkg/errors"
	"github.com/reviewpulse/reviewpulse/pkg/logger"
	"github.com/reviewpulse/reviewpulse/pkg/metrics"
)

// ReviewStore is the persistence surface the handlers need.
type ReviewStore interface {
	InsertBatch(ctx context.Context, reviews []review.Review) (int, error)
	List(ctx context.Context, filters review.ListFilters) ([]review.Review, int, error)
	Get(ctx context.Context, id int64) (*review.Review, error)
	Corpus(ctx context.Context) ([]review.CorpusEntry, error)
	Locations(ctx context.Context) ([]string, error)
	Analytics(ctx context.Context) (*review.Analytics, error)
}

// SimilarityIndex is the search surface the handlers need.
type SimilarityIndex interface {
	Build(docs []similarity.Document)
	Query(text string, k int) []similarity.Hit
	Stats() similarity.Stats
}

// ReplyGenerator drafts reply suggestions for a review.
type ReplyGenerator interface {
	Suggest(ctx context.Context, r *review.Review) *reply.Suggestion
}

// SearchAggregates exposes the rolling search analytics.
type SearchAggregates interface {
	Stats() events.AggregatedStats
}

// ResultCache caches search results between index rebuilds.
// cache.SearchCache is the Redis-backed implementation.
type ResultCache interface {
	GetOrCompute(ctx context.Context, query string, k int, computeFn func() (*review.SearchResult, error)) (*review.SearchResult, bool, error)
	Invalidate(ctx context.Context) error
	Stats() (hits, misses int64)
}

// Handler implements the review API. Cache, collector and aggregator are
// optional; when absent the handlers degrade to direct operation.
type Handler struct {
	store      ReviewStore
	index      SimilarityIndex
	replies    ReplyGenerator
	enricher   *enrich.Enricher
	cache      ResultCache
	collector  *events.Collector
	aggregates SearchAggregates
	metrics    *metrics.Metrics
	simCfg     config.SimilarityConfig
	logger     *slog.Logger
}

// New creates a Handler. Nil cache, collector, aggregates and metrics are
// allowed.
func New(
	store ReviewStore,
	index SimilarityIndex,
	replies ReplyGenerator,
	enricher *enrich.Enricher,
	searchCache ResultCache,
	collector *events.Collector,
	aggregates SearchAggregates,
	m *metrics.Metrics,
	simCfg config.SimilarityConfig,
) *Handler {
	return &Handler{
		store:      store,
		index:      index,
		replies:    replies,
		enricher:   enricher,
		cache:      searchCache,
		collector:  collector,
		aggregates: aggregates,
		metrics:    m,
		simCfg:     simCfg,
		logger:     slog.Default().With("component", "api-handler"),
	}
}

// RegisterRoutes attaches every endpoint to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/reviews/ingest", h.Ingest)
	mux.HandleFunc("GET /api/v1/reviews", h.ListReviews)
	mux.HandleFunc("GET /api/v1/reviews/{id}", h.GetReview)
	mux.HandleFunc("POST /api/v1/reviews/{id}/reply", h.SuggestReply)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/locations", h.Locations)
	mux.HandleFunc("GET /api/v1/analytics", h.Analytics)
	mux.HandleFunc("GET /api/v1/analytics/search", h.SearchAnalytics)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// IngestRequest is the ingest endpoint's payload.
type IngestRequest struct {
	Reviews []review.CreateRequest `json:"reviews"`
}

// IngestResponse reports how many reviews were accepted.
type IngestResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Ingest validates, enriches and persists a batch of reviews, then rebuilds
// the similarity index over the full corpus.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Reviews) == 0 {
		h.writeError(w, http.StatusBadRequest, "reviews must not be empty")
		return
	}
	if err := validator.ValidateBatch(req.Reviews); err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": verr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reviews := make([]review.Review, 0, len(req.Reviews))
	for _, cr := range req.Reviews {
		sentiment, score := h.enricher.Sentiment(cr.ReviewText)
		reviews = append(reviews, review.Review{
			BusinessName:   cr.BusinessName,
			Location:       cr.Location,
			CustomerName:   cr.CustomerName,
			Rating:         cr.Rating,
			ReviewText:     cr.ReviewText,
			Date:           cr.Date,
			Sentiment:      sentiment,
			SentimentScore: score,
			Topics:         h.enricher.Topics(cr.ReviewText),
		})
	}

	count, err := h.store.InsertBatch(ctx, reviews)
	if err != nil {
		log.Error("ingest insert failed", "count", len(reviews), "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to store reviews")
		return
	}

	if err := h.RebuildIndex(ctx); err != nil {
		// reviews are stored; the index catches up on the next rebuild
		log.Error("index rebuild after ingest failed", "error", err)
	}

	if h.metrics != nil {
		h.metrics.ReviewsIngestedTotal.Add(float64(count))
		h.metrics.IngestBatchSize.Observe(float64(count))
	}
	latencyMs := time.Since(start).Milliseconds()
	log.Info("ingest completed", "count", count, "latency_ms", latencyMs)

	if h.collector != nil {
		h.collector.Track(events.IngestEvent{
			Type:      events.EventIngest,
			Count:     count,
			LatencyMs: latencyMs,
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestIDFromContext(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, IngestResponse{
		Message: fmt.Sprintf("Successfully ingested %d reviews", count),
		Count:   count,
	})
}

// RebuildIndex reloads the corpus, rebuilds the similarity index and drops
// cached search results.
func (h *Handler) RebuildIndex(ctx context.Context) error {
	start := time.Now()
	corpus, err := h.store.Corpus(ctx)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IndexBuildsTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	docs := make([]similarity.Document, len(corpus))
	for i, entry := range corpus {
		docs[i] = similarity.Document{ID: entry.ID, Text: entry.Text}
	}
	h.index.Build(docs)

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			h.logger.Warn("cache invalidation after rebuild failed", "error", err)
		}
	}

	if h.metrics != nil {
		stats := h.index.Stats()
		h.metrics.IndexBuildsTotal.WithLabelValues("success").Inc()
		h.metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
		h.metrics.IndexDocuments.Set(float64(stats.Documents))
		h.metrics.IndexVocabularySize.Set(float64(stats.VocabularySize))
	}
	return nil
}

// ListReviews returns one page of reviews, optionally filtered by location,
// sentiment and a free-text search over names and review text.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page := 1
	if s := q.Get("page"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = parsed
	}
	limit := 10
	if s := q.Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > 100 {
			parsed = 100
		}
		limit = parsed
	}

	filters := review.ListFilters{
		Location:  q.Get("location"),
		Sentiment: q.Get("sentiment"),
		Search:    q.Get("search"),
		Page:      page,
		Limit:     limit,
	}

	reviews, total, err := h.store.List(ctx, filters)
	if err != nil {
		logger.FromContext(ctx).Error("list reviews failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list reviews")
		return
	}

	// an empty result set still reports one page
	pages := 1
	if total > 0 {
		pages = (total + limit - 1) / limit
	}
	h.writeJSON(w, http.StatusOK, review.ListResult{
		Reviews: reviews,
		Total:   total,
		Page:    page,
		Pages:   pages,
	})
}

// GetReview returns a single review by id.
func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	rev, err := h.store.Get(r.Context(), id)
	if err != nil {
		if apperrors.HTTPStatusCode(err) == http.StatusNotFound {
			h.writeError(w, http.StatusNotFound, "review not found")
			return
		}
		logger.FromContext(r.Context()).Error("get review failed", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to fetch review")
		return
	}
	h.writeJSON(w, http.StatusOK, rev)
}

// SuggestReply drafts an owner response for the review.
func (h *Handler) SuggestReply(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	rev, err := h.store.Get(ctx, id)
	if err != nil {
		if apperrors.HTTPStatusCode(err) == http.StatusNotFound {
			h.writeError(w, http.StatusNotFound, "review not found")
			return
		}
		logger.FromContext(ctx).Error("reply lookup failed", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to fetch review")
		return
	}

	suggestion := h.replies.Suggest(ctx, rev)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"review_id":  rev.ID,
		"suggestion": suggestion,
	})
}

// Search runs a similarity query over the indexed corpus and returns the
// matching reviews with their scores.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	k := h.simCfg.DefaultK
	if s := r.URL.Query().Get("k"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		if parsed > h.simCfg.MaxK {
			parsed = h.simCfg.MaxK
		}
		k = parsed
	}

	var (
		result   *review.SearchResult
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, query, k, func() (*review.SearchResult, error) {
			return h.runSearch(ctx, query, k)
		})
	} else {
		result, err = h.runSearch(ctx, query, k)
	}
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Info("search completed",
		"query", query,
		"k", k,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)

	if h.metrics != nil {
		resultType := "hits"
		if len(result.Results) == 0 {
			resultType = "zero"
		}
		h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
		cacheStatus := "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
		if h.cache != nil {
			if cacheHit {
				h.metrics.CacheHitsTotal.Inc()
			} else {
				h.metrics.CacheMissesTotal.Inc()
			}
		}
	}
	if h.collector != nil {
		h.collector.Track(events.SearchEvent{
			Type:      events.EventSearch,
			Query:     query,
			K:         k,
			Returned:  len(result.Results),
			LatencyMs: latencyMs,
			CacheHit:  cacheHit,
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestIDFromContext(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) runSearch(ctx context.Context, query string, k int) (*review.SearchResult, error) {
	hits := h.index.Query(query, k)
	results := make([]review.SimilarReview, 0, len(hits))
	for _, hit := range hits {
		rev, err := h.store.Get(ctx, hit.ID)
		if err != nil {
			// indexed review no longer in the store; skip it
			h.logger.Warn("search hit missing from store", "id", hit.ID, "error", err)
			continue
		}
		results = append(results, review.SimilarReview{Review: *rev, Score: hit.Score})
	}
	return &review.SearchResult{Query: query, Results: results}, nil
}

// Locations returns every distinct review location.
func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.store.Locations(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("locations failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to fetch locations")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

// Analytics returns aggregate sentiment, topic, rating and location counts.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.store.Analytics(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("analytics failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to compute analytics")
		return
	}
	h.writeJSON(w, http.StatusOK, analytics)
}

// SearchAnalytics returns the rolling search activity aggregates.
func (h *Handler) SearchAnalytics(w http.ResponseWriter, r *http.Request) {
	if h.aggregates == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.aggregates.Stats())
}

// IndexStats returns document count, vocabulary size and build state of the
// similarity index.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.index.Stats())
}

// CacheStats returns hit/miss counts for the search cache.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"hit_rate": hitRate,
	})
}

// CacheInvalidate drops all cached search results.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to invalidate cache")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		h.writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
