package reply

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reviewpulse/reviewpulse/internal/review"
	"github.com/reviewpulse/reviewpulse/pkg/config"
)

func TestToneSelection(t *testing.T) {
	tests := []struct {
		name   string
		rating int
		sent   string
		want   string
	}{
		{"high rating positive", 5, "positive", "grateful"},
		{"high rating negative stays professional", 4, "negative", "professional"},
		{"high rating neutral stays professional", 5, "neutral", "professional"},
		{"low rating negative", 1, "negative", "apologetic"},
		{"low rating positive stays professional", 2, "positive", "professional"},
		{"middle rating positive", 3, "positive", "professional"},
		{"middle rating negative", 3, "negative", "professional"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toneFor(&review.Review{Rating: tt.rating, Sentiment: tt.sent})
			if got != tt.want {
				t.Errorf("toneFor(rating=%d, sentiment=%q) = %q, want %q",
					tt.rating, tt.sent, got, tt.want)
			}
		})
	}
}

func TestTemplateReplyBands(t *testing.T) {
	r := &review.Review{
		CustomerName: "Priya",
		BusinessName: "The Copper Pot",
	}

	r.Rating = 5
	if got := templateReply(r); !strings.Contains(got, "thank you so much") {
		t.Errorf("high rating template = %q", got)
	}
	r.Rating = 1
	if got := templateReply(r); !strings.Contains(got, "sorry") {
		t.Errorf("low rating template = %q", got)
	}
	r.Rating = 3
	if got := templateReply(r); !strings.Contains(got, "feedback") {
		t.Errorf("middle rating template = %q", got)
	}
}

func TestTemplateReplyMissingName(t *testing.T) {
	got := templateReply(&review.Review{Rating: 5, BusinessName: "The Copper Pot"})
	if !strings.Contains(got, "Hi there,") {
		t.Errorf("expected fallback greeting, got %q", got)
	}
}

func TestKeyPoints(t *testing.T) {
	g := NewGenerator(config.ReplyConfig{})

	got := g.keyPoints(&review.Review{
		Rating: 5,
		Topics: []string{"food quality", "service"},
	})
	want := []string{"thank the customer", "address food quality", "address service"}
	if len(got) != len(want) {
		t.Fatalf("keyPoints = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keyPoints[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestKeyPointsExtractsWhenTopicsMissing(t *testing.T) {
	g := NewGenerator(config.ReplyConfig{})

	got := g.keyPoints(&review.Review{
		Rating:     1,
		ReviewText: "The food was cold and the waiter was rude",
	})
	if got[0] != "acknowledge the issue" {
		t.Errorf("keyPoints[0] = %q, want acknowledgement first", got[0])
	}
	found := false
	for _, p := range got {
		if p == "address food quality" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected extracted food quality topic in %v", got)
	}
}

func TestSuggestUsesExternalAPI(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Thanks for visiting!"}},
			},
		})
	}))
	defer srv.Close()

	g := NewGenerator(config.ReplyConfig{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Model:    "sonar",
		Timeout:  5 * time.Second,
	})

	s := g.Suggest(context.Background(), &review.Review{
		ID:           7,
		Rating:       5,
		Sentiment:    "positive",
		CustomerName: "Dan",
		BusinessName: "The Copper Pot",
		ReviewText:   "Great food",
	})
	if s.Reply != "Thanks for visiting!" {
		t.Errorf("Reply = %q, want external text", s.Reply)
	}
	if s.Tone != "grateful" {
		t.Errorf("Tone = %q, want grateful", s.Tone)
	}
	if calls.Load() != 1 {
		t.Errorf("API called %d times, want 1", calls.Load())
	}
}

func TestSuggestFallsBackOnUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewGenerator(config.ReplyConfig{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Timeout:  2 * time.Second,
	})

	s := g.Suggest(context.Background(), &review.Review{
		Rating:       1,
		CustomerName: "Dan",
		BusinessName: "The Copper Pot",
		ReviewText:   "Terrible",
	})
	if !strings.Contains(s.Reply, "sorry") {
		t.Errorf("expected template fallback, got %q", s.Reply)
	}
}

func TestSuggestSkipsExternalForLongReviews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("external API should not be called for long reviews")
	}))
	defer srv.Close()

	g := NewGenerator(config.ReplyConfig{
		Endpoint: srv.URL,
		APIKey:   "test-key",
	})

	s := g.Suggest(context.Background(), &review.Review{
		Rating:       4,
		CustomerName: "Dan",
		BusinessName: "The Copper Pot",
		ReviewText:   strings.Repeat("lovely place ", 50),
	})
	if s.Reply == "" {
		t.Error("expected template reply")
	}
}
