// Package review defines the review domain types shared by the store, the
// HTTP layer, and the search cache.
package review

import "time"

// Review is a stored customer review with its enrichment labels.
type Review struct {
	ID             int64     `json:"id"`
	BusinessName   string    `json:"business_name"`
	Location       string    `json:"location"`
	CustomerName   string    `json:"customer_name"`
	Rating         int       `json:"rating"`
	ReviewText     string    `json:"review_text"`
	Date           string    `json:"date"`
	Sentiment      string    `json:"sentiment,omitempty"`
	SentimentScore float64   `json:"sentiment_score"`
	Topics         []string  `json:"topics"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateRequest is one review in an ingest batch, before enrichment.
type CreateRequest struct {
	BusinessName string `json:"business_name"`
	Location     string `json:"location"`
	CustomerName string `json:"customer_name"`
	Rating       int    `json:"rating"`
	ReviewText   string `json:"review_text"`
	Date         string `json:"date"`
}

// ListFilters selects and pages a review listing. Zero-value string filters
// are ignored.
type ListFilters struct {
	Location  string
	Sentiment string
	Search    string
	Page      int
	Limit     int
}

// ListResult is one page of reviews plus pagination bookkeeping.
type ListResult struct {
	Reviews []Review `json:"reviews"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	Pages   int      `json:"pages"`
}

// CorpusEntry pairs a review id with its text for similarity indexing.
type CorpusEntry struct {
	ID   int64
	Text string
}

// Analytics aggregates label and rating distributions over the whole corpus.
type Analytics struct {
	SentimentCounts    map[string]int `json:"sentiment_counts"`
	TopicCounts        map[string]int `json:"topic_counts"`
	RatingDistribution map[string]int `json:"rating_distribution"`
	LocationStats      map[string]int `json:"location_stats"`
}

// SimilarReview is one similarity-search result: the stored review plus its
// cosine score against the query.
type SimilarReview struct {
	Review Review  `json:"review"`
	Score  float64 `json:"score"`
}

// SearchResult is the full response of a similarity search, cached as a unit.
type SearchResult struct {
	Query   string          `json:"query"`
	Results []SimilarReview `json:"results"`
}
