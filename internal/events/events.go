// Package events streams review and search activity through Kafka and keeps
// rolling aggregates for the search-analytics endpoint.
package events

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventIngest EventType = "ingest"
)

// SearchEvent captures a single similarity search.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	K         int       `json:"k"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// IngestEvent captures one accepted ingest batch.
type IngestEvent struct {
	Type      EventType `json:"type"`
	Count     int       `json:"count"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}
