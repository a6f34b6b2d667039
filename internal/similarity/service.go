// Package similarity implements an in-memory tf-idf index over review text
// with cosine-similarity queries. The index is rebuilt wholesale from the
// full corpus and swapped in atomically; queries never observe a partially
// built index.
package similarity

import (
	"log/slog"
	"sync"
	"time"
)

// Service owns the live index. Build replaces it in full; Query and Stats
// read the current one. All methods are safe for concurrent use: builds are
// serialised against each other, queries run concurrently.
type Service struct {
	cfg     Config
	logger  *slog.Logger
	buildMu sync.Mutex   // serialises Build calls
	mu      sync.RWMutex // guards idx swap
	idx     *index       // nil until the first non-empty build
}

// NewService creates a Service with the given Config. Zero config fields
// fall back to defaults (vocabulary 1000, unigrams + bigrams).
func NewService(cfg Config) *Service {
	return &Service{
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "similarity"),
	}
}

// Build replaces the live index with one built from docs. An empty corpus
// resets the service to its unbuilt state. The new index is constructed
// into a fresh structure before the swap, so in-flight queries keep reading
// the previous index until the replacement is complete.
func (s *Service) Build(docs []Document) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	if len(docs) == 0 {
		s.mu.Lock()
		s.idx = nil
		s.mu.Unlock()
		s.logger.Warn("similarity index built from empty corpus, queries will return no results")
		return
	}

	start := time.Now()
	fresh := buildIndex(docs, s.cfg)

	s.mu.Lock()
	s.idx = fresh
	s.mu.Unlock()

	s.logger.Info("similarity index rebuilt",
		"documents", len(docs),
		"vocabulary_size", len(fresh.vocab),
		"duration", time.Since(start),
	)
}

// Query returns up to k documents most similar to text, ordered by score
// descending. Results with similarity <= 0 are excluded; an unbuilt index,
// a query with no vocabulary overlap, or k < 1 all yield an empty result.
func (s *Service) Query(text string, k int) []Hit {
	if k < 1 {
		return nil
	}
	s.mu.RLock()
	ix := s.idx
	s.mu.RUnlock()
	if ix == nil {
		return nil
	}
	return ix.query(text, k, s.cfg.NGramMax)
}

// Stats reports the state of the current index.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	ix := s.idx
	s.mu.RUnlock()
	if ix == nil {
		return Stats{}
	}
	return ix.stats()
}
