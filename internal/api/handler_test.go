package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/reviewpulse/reviewpulse/internal/enrich"
	"github.com/reviewpulse/reviewpulse/internal/reply"
	"github.com/reviewpulse/reviewpulse/internal/review"
	"github.com/reviewpulse/reviewpulse/internal/similarity"
	"github.com/reviewpulse/reviewpulse/pkg/config"
	apperrors "github.com/reviewpulse/reviewpulse/pkg/errors"
	"github.com/reviewpulse/reviewpulse/pkg/metrics"
)

type fakeStore struct {
	reviews map[int64]review.Review
	nextID  int64
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{reviews: make(map[int64]review.Review), nextID: 1}
}

func (s *fakeStore) InsertBatch(ctx context.Context, reviews []review.Review) (int, error) {
	if s.failAll {
		return 0, fmt.Errorf("store down")
	}
	for _, r := range reviews {
		r.ID = s.nextID
		s.reviews[r.ID] = r
		s.nextID++
	}
	return len(reviews), nil
}

func (s *fakeStore) List(ctx context.Context, filters review.ListFilters) ([]review.Review, int, error) {
	if s.failAll {
		return nil, 0, fmt.Errorf("store down")
	}
	matched := make([]review.Review, 0, len(s.reviews))
	for _, r := range s.reviews {
		if filters.Location != "" && r.Location != filters.Location {
			continue
		}
		if filters.Sentiment != "" && r.Sentiment != filters.Sentiment {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	offset := (filters.Page - 1) * filters.Limit
	if offset > total {
		offset = total
	}
	end := offset + filters.Limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *fakeStore) Get(ctx context.Context, id int64) (*review.Review, error) {
	r, ok := s.reviews[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrReviewNotFound, http.StatusNotFound, "review %d", id)
	}
	return &r, nil
}

func (s *fakeStore) Corpus(ctx context.Context) ([]review.CorpusEntry, error) {
	ids := make([]int64, 0, len(s.reviews))
	for id := range s.reviews {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	entries := make([]review.CorpusEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, review.CorpusEntry{ID: id, Text: s.reviews[id].ReviewText})
	}
	return entries, nil
}

func (s *fakeStore) Locations(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, r := range s.reviews {
		seen[r.Location] = true
	}
	locations := make([]string, 0, len(seen))
	for loc := range seen {
		locations = append(locations, loc)
	}
	sort.Strings(locations)
	return locations, nil
}

func (s *fakeStore) Analytics(ctx context.Context) (*review.Analytics, error) {
	a := &review.Analytics{
		SentimentCounts:    make(map[string]int),
		TopicCounts:        make(map[string]int),
		RatingDistribution: make(map[string]int),
		LocationStats:      make(map[string]int),
	}
	for _, r := range s.reviews {
		a.SentimentCounts[r.Sentiment]++
		a.RatingDistribution[fmt.Sprintf("%d", r.Rating)]++
		a.LocationStats[r.Location]++
		for _, topic := range r.Topics {
			a.TopicCounts[topic]++
		}
	}
	return a, nil
}

type fakeCache struct {
	entries map[string]*review.SearchResult
	hits    int64
	misses  int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*review.SearchResult)}
}

func (c *fakeCache) GetOrCompute(
	ctx context.Context,
	query string,
	k int,
	computeFn func() (*review.SearchResult, error),
) (*review.SearchResult, bool, error) {
	key := fmt.Sprintf("%s:%d", query, k)
	if cached, ok := c.entries[key]; ok {
		c.hits++
		return cached, true, nil
	}
	c.misses++
	result, err := computeFn()
	if err != nil {
		return nil, false, err
	}
	c.entries[key] = result
	return result, false, nil
}

func (c *fakeCache) Invalidate(ctx context.Context) error {
	c.entries = make(map[string]*review.SearchResult)
	return nil
}

func (c *fakeCache) Stats() (hits, misses int64) {
	return c.hits, c.misses
}

func newTestHandler(store ReviewStore) *Handler {
	return New(
		store,
		similarity.NewService(similarity.Config{}),
		reply.NewGenerator(config.ReplyConfig{}),
		enrich.New(),
		nil, nil, nil, nil,
		config.SimilarityConfig{DefaultK: 5, MaxK: 20},
	)
}

func ingestBody(texts ...string) string {
	reviews := make([]review.CreateRequest, 0, len(texts))
	for i, text := range texts {
		reviews = append(reviews, review.CreateRequest{
			BusinessName: "The Copper Pot",
			Location:     "Downtown",
			CustomerName: fmt.Sprintf("Customer %d", i+1),
			Rating:       4,
			ReviewText:   text,
			Date:         "2026-08-01",
		})
	}
	body, _ := json.Marshal(IngestRequest{Reviews: reviews})
	return string(body)
}

func doRequest(h *Handler, method, target, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestIngestStoresAndIndexes(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)

	rec := doRequest(h, http.MethodPost, "/api/v1/reviews/ingest",
		ingestBody("great food and friendly service", "terrible slow service"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp IngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("Count = %d, want 2", resp.Count)
	}
	if resp.Message != "Successfully ingested 2 reviews" {
		t.Errorf("Message = %q", resp.Message)
	}
	if len(store.reviews) != 2 {
		t.Errorf("stored %d reviews, want 2", len(store.reviews))
	}
	for _, r := range store.reviews {
		if r.Sentiment == "" {
			t.Errorf("review %d missing sentiment", r.ID)
		}
	}
}

func TestIngestRejectsInvalidBatch(t *testing.T) {
	h := newTestHandler(newFakeStore())

	body, _ := json.Marshal(IngestRequest{Reviews: []review.CreateRequest{{
		BusinessName: "The Copper Pot",
		Location:     "Downtown",
		CustomerName: "Dan",
		Rating:       9,
		ReviewText:   "fine",
		Date:         "2026-08-01",
	}}})
	rec := doRequest(h, http.MethodPost, "/api/v1/reviews/ingest", string(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rating") {
		t.Errorf("expected rating error, got %s", rec.Body.String())
	}
}

func TestIngestRejectsEmptyAndMalformed(t *testing.T) {
	h := newTestHandler(newFakeStore())

	rec := doRequest(h, http.MethodPost, "/api/v1/reviews/ingest", `{"reviews":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty batch status = %d, want 400", rec.Code)
	}
	rec = doRequest(h, http.MethodPost, "/api/v1/reviews/ingest", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
}

func TestSearchReturnsRankedReviews(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)

	rec := doRequest(h, http.MethodPost, "/api/v1/reviews/ingest", ingestBody(
		"great food and friendly service",
		"terrible slow service, cold food",
		"amazing atmosphere and decor",
	))
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/search?q=great+service&k=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result review.SearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("returned %d results, want 2", len(result.Results))
	}
	if result.Results[0].Review.ID != 1 {
		t.Errorf("top result id = %d, want 1", result.Results[0].Review.ID)
	}
	if result.Results[0].Score <= result.Results[1].Score {
		t.Errorf("scores not descending: %v then %v",
			result.Results[0].Score, result.Results[1].Score)
	}
}

func TestSearchValidation(t *testing.T) {
	h := newTestHandler(newFakeStore())

	rec := doRequest(h, http.MethodGet, "/api/v1/search", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing q status = %d, want 400", rec.Code)
	}
	rec = doRequest(h, http.MethodGet, "/api/v1/search?q=food&k=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("k=0 status = %d, want 400", rec.Code)
	}
	rec = doRequest(h, http.MethodGet, "/api/v1/search?q=food&k=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("k=abc status = %d, want 400", rec.Code)
	}
}

func TestSearchEmptyIndexReturnsNoResults(t *testing.T) {
	h := newTestHandler(newFakeStore())

	rec := doRequest(h, http.MethodGet, "/api/v1/search?q=anything", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result review.SearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(result.Results) != 0 {
		t.Errorf("returned %d results, want 0", len(result.Results))
	}
}

func TestSearchClampsKToMax(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)
	doRequest(h, http.MethodPost, "/api/v1/reviews/ingest", ingestBody("decent food"))

	rec := doRequest(h, http.MethodGet, "/api/v1/search?q=food&k=500", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 after clamping", rec.Code)
	}
}

func TestGetReview(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)
	doRequest(h, http.MethodPost, "/api/v1/reviews/ingest", ingestBody("lovely meal"))

	rec := doRequest(h, http.MethodGet, "/api/v1/reviews/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var r review.Review
	if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
		t.Fatalf("decoding review: %v", err)
	}
	if r.ID != 1 || r.ReviewText != "lovely meal" {
		t.Errorf("review = %+v", r)
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/reviews/99", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing review status = %d, want 404", rec.Code)
	}
	rec = doRequest(h, http.MethodGet, "/api/v1/reviews/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestListReviewsPagination(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)
	texts := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		texts = append(texts, fmt.Sprintf("visit number %d was fine", i))
	}
	doRequest(h, http.MethodPost, "/api/v1/reviews/ingest", ingestBody(texts...))

	rec := doRequest(h, http.MethodGet, "/api/v1/reviews?page=2&limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result review.ListResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if result.Total != 25 || result.Pages != 3 || result.Page != 2 {
		t.Errorf("total/pages/page = %d/%d/%d, want 25/3/2",
			result.Total, result.Pages, result.Page)
	}
	if len(result.Reviews) != 10 {
		t.Errorf("len(Reviews) = %d, want 10", len(result.Reviews))
	}

	// no limit param falls back to 10 per page
	rec = doRequest(h, http.MethodGet, "/api/v1/reviews", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(result.Reviews) != 10 {
		t.Errorf("default page size = %d, want 10", len(result.Reviews))
	}
	if result.Pages != 3 {
		t.Errorf("pages = %d, want 3", result.Pages)
	}
}

func TestListReviewsEmptyStore(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)

	rec := doRequest(h, http.MethodGet, "/api/v1/reviews", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result review.ListResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if result.Total != 0 {
		t.Errorf("total = %d, want 0", result.Total)
	}
	if result.Pages != 1 {
		t.Errorf("pages = %d, want 1", result.Pages)
	}
	if len(result.Reviews) != 0 {
		t.Errorf("len(Reviews) = %d, want 0", len(result.Reviews))
	}
}

func TestSuggestReply(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)
	doRequest(h, http.MethodPost, "/api/v1/reviews/ingest",
		ingestBody("great food, we love this place"))

	rec := doRequest(h, http.MethodPost, "/api/v1/reviews/1/reply", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ReviewID   int64             `json:"review_id"`
		Suggestion *reply.Suggestion `json:"suggestion"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Suggestion == nil || resp.Suggestion.Reply == "" {
		t.Fatal("expected a non-empty suggestion")
	}
	if resp.Suggestion.Tone != "grateful" {
		t.Errorf("tone = %q, want grateful", resp.Suggestion.Tone)
	}

	rec = doRequest(h, http.MethodPost, "/api/v1/reviews/42/reply", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing review status = %d, want 404", rec.Code)
	}
}

func TestLocationsAndAnalytics(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)
	doRequest(h, http.MethodPost, "/api/v1/reviews/ingest",
		ingestBody("great food", "awful service"))

	rec := doRequest(h, http.MethodGet, "/api/v1/locations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("locations status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Downtown") {
		t.Errorf("locations body = %s", rec.Body.String())
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/analytics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("analytics status = %d", rec.Code)
	}
	var a review.Analytics
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decoding analytics: %v", err)
	}
	if a.LocationStats["Downtown"] != 2 {
		t.Errorf("LocationStats = %v", a.LocationStats)
	}
}

func TestIndexStats(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store)

	rec := doRequest(h, http.MethodGet, "/api/v1/index/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats similarity.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.Built || stats.Documents != 0 {
		t.Errorf("fresh stats = %+v", stats)
	}

	doRequest(h, http.MethodPost, "/api/v1/reviews/ingest", ingestBody("tasty meal"))
	rec = doRequest(h, http.MethodGet, "/api/v1/index/stats", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if !stats.Built || stats.Documents != 1 {
		t.Errorf("post-ingest stats = %+v", stats)
	}
}

func TestCacheEndpointsDisabledWithoutRedis(t *testing.T) {
	h := newTestHandler(newFakeStore())

	rec := doRequest(h, http.MethodGet, "/api/v1/cache/stats", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("cache stats = %d %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(h, http.MethodPost, "/api/v1/cache/invalidate", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("cache invalidate = %d %s", rec.Code, rec.Body.String())
	}
}

// metrics.New registers on the default Prometheus registry, so it runs once
// for the whole test binary.
var testMetrics = metrics.New()

func TestSearchCacheCounters(t *testing.T) {
	store := newFakeStore()
	h := New(
		store,
		similarity.NewService(similarity.Config{}),
		reply.NewGenerator(config.ReplyConfig{}),
		enrich.New(),
		newFakeCache(), nil, nil, testMetrics,
		config.SimilarityConfig{DefaultK: 5, MaxK: 20},
	)
	doRequest(h, http.MethodPost, "/api/v1/reviews/ingest",
		ingestBody("great food and friendly service"))

	hitsBefore := testutil.ToFloat64(testMetrics.CacheHitsTotal)
	missesBefore := testutil.ToFloat64(testMetrics.CacheMissesTotal)

	rec := doRequest(h, http.MethodGet, "/api/v1/search?q=friendly+service", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	if got := testutil.ToFloat64(testMetrics.CacheMissesTotal) - missesBefore; got != 1 {
		t.Errorf("cache misses = %v, want 1", got)
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/search?q=friendly+service", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat search status = %d", rec.Code)
	}
	if got := testutil.ToFloat64(testMetrics.CacheHitsTotal) - hitsBefore; got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
}

func TestIngestStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failAll = true
	h := newTestHandler(store)

	rec := doRequest(h, http.MethodPost, "/api/v1/reviews/ingest", ingestBody("fine"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
