package similarity

import (
	"math"
	"sort"

	"github.com/reviewpulse/reviewpulse/internal/similarity/tokenizer"
)

// Document is one unit of indexed text, identified by its review id.
type Document struct {
	ID   int64
	Text string
}

// Hit is a single similarity result. Score is the cosine similarity in
// (0, 1].
type Hit struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// Stats describes the live index.
type Stats struct {
	Documents      int  `json:"documents"`
	VocabularySize int  `json:"vocabulary_size"`
	Built          bool `json:"built"`
}

// Config fixes the index parameters at construction time.
type Config struct {
	MaxVocabulary int // cap on vocabulary size, default 1000
	NGramMax      int // highest n-gram order, default 2 (unigrams + bigrams)
}

func (c Config) withDefaults() Config {
	if c.MaxVocabulary <= 0 {
		c.MaxVocabulary = 1000
	}
	if c.NGramMax <= 0 {
		c.NGramMax = 2
	}
	return c
}

// docVector is one L2-normalised sparse tf-idf row. Columns are sorted
// ascending.
type docVector struct {
	cols    []int
	weights []float64
}

// index is an immutable tf-idf matrix over a fixed vocabulary. Row order
// matches docIDs at all times; once built it is only ever read.
type index struct {
	vocab  map[string]int
	idf    []float64
	rows   []docVector
	docIDs []int64
}

// buildIndex constructs a fresh index from the corpus. Vocabulary selection
// keeps the MaxVocabulary most frequent terms by total corpus count, breaking
// ties by first-seen order during the scan.
func buildIndex(docs []Document, cfg Config) *index {
	termFreqs := make([]map[string]int, len(docs))
	corpusFreq := make(map[string]int)
	firstSeen := make(map[string]int)
	docFreq := make(map[string]int)

	for i, doc := range docs {
		terms := tokenizer.Terms(doc.Text, cfg.NGramMax)
		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			if _, seen := firstSeen[term]; !seen {
				firstSeen[term] = len(firstSeen)
			}
			corpusFreq[term]++
			tf[term]++
		}
		for term := range tf {
			docFreq[term]++
		}
		termFreqs[i] = tf
	}

	selected := selectVocabulary(corpusFreq, firstSeen, cfg.MaxVocabulary)

	vocab := make(map[string]int, len(selected))
	for i, term := range selected {
		vocab[term] = i
	}

	idf := make([]float64, len(selected))
	totalDocs := float64(len(docs))
	for i, term := range selected {
		idf[i] = math.Log((1+totalDocs)/(1+float64(docFreq[term]))) + 1
	}

	rows := make([]docVector, len(docs))
	docIDs := make([]int64, len(docs))
	for i, doc := range docs {
		rows[i] = vectorize(termFreqs[i], vocab, idf)
		docIDs[i] = doc.ID
	}

	return &index{
		vocab:  vocab,
		idf:    idf,
		rows:   rows,
		docIDs: docIDs,
	}
}

// selectVocabulary returns up to max terms ordered by first-seen position,
// keeping the most frequent terms overall.
func selectVocabulary(corpusFreq, firstSeen map[string]int, max int) []string {
	terms := make([]string, 0, len(corpusFreq))
	for term := range corpusFreq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		fi, fj := corpusFreq[terms[i]], corpusFreq[terms[j]]
		if fi != fj {
			return fi > fj
		}
		return firstSeen[terms[i]] < firstSeen[terms[j]]
	})
	if len(terms) > max {
		terms = terms[:max]
	}
	// Stable column positions follow corpus scan order, not frequency.
	sort.Slice(terms, func(i, j int) bool {
		return firstSeen[terms[i]] < firstSeen[terms[j]]
	})
	return terms
}

// vectorize projects raw term frequencies into the vocabulary, applies idf
// weighting, and L2-normalises. Terms outside the vocabulary are dropped.
func vectorize(tf map[string]int, vocab map[string]int, idf []float64) docVector {
	type weighted struct {
		col int
		w   float64
	}
	entries := make([]weighted, 0, len(tf))
	var norm float64
	for term, count := range tf {
		col, ok := vocab[term]
		if !ok {
			continue
		}
		w := float64(count) * idf[col]
		entries = append(entries, weighted{col: col, w: w})
		norm += w * w
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].col < entries[j].col })

	cols := make([]int, len(entries))
	weights := make([]float64, len(entries))
	if norm > 0 {
		norm = math.Sqrt(norm)
	}
	for i, e := range entries {
		cols[i] = e.col
		if norm > 0 {
			weights[i] = e.w / norm
		}
	}
	return docVector{cols: cols, weights: weights}
}

// query scores text against every row and returns up to k hits with strictly
// positive similarity, ordered by score descending with build order breaking
// ties.
func (ix *index) query(text string, k int, ngramMax int) []Hit {
	tf := make(map[string]int)
	for _, term := range tokenizer.Terms(text, ngramMax) {
		tf[term]++
	}
	qv := vectorize(tf, ix.vocab, ix.idf)
	if len(qv.cols) == 0 {
		return nil
	}

	qWeights := make(map[int]float64, len(qv.cols))
	for i, col := range qv.cols {
		qWeights[col] = qv.weights[i]
	}

	hits := make([]Hit, 0, len(ix.rows))
	for i, row := range ix.rows {
		var score float64
		for j, col := range row.cols {
			if qw, ok := qWeights[col]; ok {
				score += qw * row.weights[j]
			}
		}
		if score > 0 {
			hits = append(hits, Hit{ID: ix.docIDs[i], Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func (ix *index) stats() Stats {
	return Stats{
		Documents:      len(ix.docIDs),
		VocabularySize: len(ix.vocab),
		Built:          true,
	}
}
