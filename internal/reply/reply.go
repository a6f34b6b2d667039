// Package reply generates suggested owner responses to customer reviews.
// An external chat-completions API produces the reply text when configured;
// rating- and sentiment-driven templates cover everything else, including
// any upstream failure.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reviewpulse/reviewpulse/internal/enrich"
	"github.com/reviewpulse/reviewpulse/internal/review"
	"github.com/reviewpulse/reviewpulse/pkg/config"
)

// Suggestion is a drafted owner response.
type Suggestion struct {
	Reply     string   `json:"reply"`
	Tone      string   `json:"tone"`
	KeyPoints []string `json:"key_points"`
}

// maxExternalTextLen bounds the review text we forward upstream. Longer
// reviews fall back to templates.
const maxExternalTextLen = 400

// Generator drafts reply suggestions for reviews.
type Generator struct {
	client *Client
	topics enrich.TopicExtractor
	logger *slog.Logger
}

// NewGenerator builds a Generator. The external client is only used when an
// API key is configured.
func NewGenerator(cfg config.ReplyConfig) *Generator {
	g := &Generator{
		topics: enrich.NewKeywordTopics(),
		logger: slog.Default().With("component", "reply"),
	}
	if cfg.APIKey != "" {
		g.client = NewClient(cfg)
	}
	return g
}

// Suggest drafts a reply for the review. The external API is tried first
// when available and the text is short enough; every failure path lands on
// the template reply, so Suggest never returns an error for a valid review.
func (g *Generator) Suggest(ctx context.Context, r *review.Review) *Suggestion {
	tone := toneFor(r)
	s := &Suggestion{
		Tone:      tone,
		KeyPoints: g.keyPoints(r),
	}

	if g.client != nil && len(r.ReviewText) < maxExternalTextLen {
		text, err := g.client.Complete(ctx, r, tone)
		if err == nil && text != "" {
			s.Reply = text
			return s
		}
		g.logger.Warn("external reply generation failed, using template",
			"review_id", r.ID, "error", err)
	}

	s.Reply = templateReply(r)
	return s
}

// toneFor picks the response tone. Rating and sentiment must agree to leave
// the professional default.
func toneFor(r *review.Review) string {
	switch {
	case r.Rating >= 4 && r.Sentiment == "positive":
		return "grateful"
	case r.Rating <= 2 && r.Sentiment == "negative":
		return "apologetic"
	default:
		return "professional"
	}
}

// keyPoints lists what the reply should touch on: the review's topics,
// with thanks prepended for positive experiences.
func (g *Generator) keyPoints(r *review.Review) []string {
	points := make([]string, 0, 4)
	if r.Rating >= 4 || r.Sentiment == "positive" {
		points = append(points, "thank the customer")
	} else if r.Rating <= 2 || r.Sentiment == "negative" {
		points = append(points, "acknowledge the issue")
	}

	topics := r.Topics
	if len(topics) == 0 {
		topics = g.topics.Extract(r.ReviewText)
	}
	for _, topic := range topics {
		points = append(points, "address "+topic)
		if len(points) == 4 {
			break
		}
	}
	return points
}

func templateReply(r *review.Review) string {
	name := strings.TrimSpace(r.CustomerName)
	if name == "" {
		name = "there"
	}

	switch {
	case r.Rating >= 4:
		return fmt.Sprintf(
			"Hi %s, thank you so much for the kind words! We're thrilled you enjoyed your visit to %s and hope to welcome you back soon.",
			name, r.BusinessName)
	case r.Rating <= 2:
		return fmt.Sprintf(
			"Hi %s, we're sorry your experience at %s fell short of what you deserved. We'd love the chance to make it right, so please reach out to us directly.",
			name, r.BusinessName)
	default:
		return fmt.Sprintf(
			"Hi %s, thank you for taking the time to share your feedback about %s. We're always working to improve, and your comments help us do that.",
			name, r.BusinessName)
	}
}
