// Package enrich derives sentiment labels and topic tags for incoming
// reviews using keyword heuristics. The enrichers run inline during ingest,
// before persistence, so stored reviews always carry their labels.
package enrich

import "strings"

// SentimentAnalyzer labels a piece of review text.
type SentimentAnalyzer interface {
	Analyze(text string) (label string, score float64)
}

// TopicExtractor tags a piece of review text with up to a few topics.
type TopicExtractor interface {
	Extract(text string) []string
}

// Enricher applies both analyzers to a review.
type Enricher struct {
	sentiment SentimentAnalyzer
	topics    TopicExtractor
}

// New returns an Enricher using the default keyword heuristics.
func New() *Enricher {
	return &Enricher{
		sentiment: NewKeywordSentiment(),
		topics:    NewKeywordTopics(),
	}
}

// NewWith builds an Enricher from the given analyzers.
func NewWith(s SentimentAnalyzer, t TopicExtractor) *Enricher {
	return &Enricher{sentiment: s, topics: t}
}

// Sentiment labels the text.
func (e *Enricher) Sentiment(text string) (string, float64) {
	return e.sentiment.Analyze(text)
}

// Topics tags the text.
func (e *Enricher) Topics(text string) []string {
	return e.topics.Extract(text)
}

// KeywordSentiment counts positive and negative marker words and labels the
// text by whichever side dominates.
type KeywordSentiment struct {
	positive []string
	negative []string
}

// NewKeywordSentiment returns the default keyword sentiment analyzer.
func NewKeywordSentiment() *KeywordSentiment {
	return &KeywordSentiment{
		positive: []string{
			"good", "great", "excellent", "amazing", "love", "best", "wonderful",
		},
		negative: []string{
			"bad", "terrible", "awful", "hate", "worst", "horrible", "disappointed",
		},
	}
}

// Analyze returns "positive" (0.7), "negative" (-0.7) or "neutral" (0.0)
// depending on which marker set occurs more often in the text.
func (k *KeywordSentiment) Analyze(text string) (string, float64) {
	lower := strings.ToLower(text)

	var pos, neg int
	for _, w := range k.positive {
		pos += strings.Count(lower, w)
	}
	for _, w := range k.negative {
		neg += strings.Count(lower, w)
	}

	switch {
	case pos > neg:
		return "positive", 0.7
	case neg > pos:
		return "negative", -0.7
	default:
		return "neutral", 0.0
	}
}

// maxTopics caps how many topics a single review can carry.
const maxTopics = 3

// KeywordTopics maps marker words to topic tags.
type KeywordTopics struct {
	// ordered so extraction is deterministic across runs
	order    []string
	keywords map[string][]string
}

// NewKeywordTopics returns the default topic extractor.
func NewKeywordTopics() *KeywordTopics {
	return &KeywordTopics{
		order: []string{
			"food quality", "service", "atmosphere", "price",
			"delivery", "cleanliness", "location", "wait time",
		},
		keywords: map[string][]string{
			"food quality": {"taste", "flavor", "delicious", "fresh", "quality", "food"},
			"service":      {"service", "staff", "waiter", "waitress", "server", "friendly", "rude"},
			"atmosphere":   {"atmosphere", "ambiance", "music", "noise", "crowded", "quiet"},
			"price":        {"price", "cost", "expensive", "cheap", "value", "money"},
			"delivery":     {"delivery", "arrived", "late", "fast", "quick", "slow"},
			"cleanliness":  {"clean", "dirty", "hygiene", "mess", "tidy"},
			"location":     {"location", "parking", "access", "convenient", "far"},
			"wait time":    {"wait", "waiting", "long", "quick", "fast", "slow"},
		},
	}
}

// Extract returns up to maxTopics topic tags whose marker words occur in the
// text, in the extractor's fixed topic order.
func (k *KeywordTopics) Extract(text string) []string {
	lower := strings.ToLower(text)

	topics := make([]string, 0, maxTopics)
	for _, topic := range k.order {
		for _, w := range k.keywords[topic] {
			if strings.Contains(lower, w) {
				topics = append(topics, topic)
				break
			}
		}
		if len(topics) == maxTopics {
			break
		}
	}
	return topics
}
