package validator

import (
	"errors"
	"testing"

	"github.com/reviewpulse/reviewpulse/internal/review"
)

func validReview() review.CreateRequest {
	return review.CreateRequest{
		BusinessName: "The Daily Grind",
		Location:     "Portland",
		CustomerName: "Sam Chen",
		Rating:       4,
		ReviewText:   "Solid coffee and quick service.",
		Date:         "2026-03-14",
	}
}

func TestValidateBatchAccepts(t *testing.T) {
	if err := ValidateBatch([]review.CreateRequest{validReview()}); err != nil {
		t.Fatalf("valid batch rejected: %v", err)
	}
}

func TestValidateBatchRejects(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*review.CreateRequest)
		wantField string
	}{
		{
			name:      "empty business name",
			mutate:    func(r *review.CreateRequest) { r.BusinessName = "  " },
			wantField: "reviews[0].business_name",
		},
		{
			name:      "empty location",
			mutate:    func(r *review.CreateRequest) { r.Location = "" },
			wantField: "reviews[0].location",
		},
		{
			name:      "rating too low",
			mutate:    func(r *review.CreateRequest) { r.Rating = 0 },
			wantField: "reviews[0].rating",
		},
		{
			name:      "rating too high",
			mutate:    func(r *review.CreateRequest) { r.Rating = 6 },
			wantField: "reviews[0].rating",
		},
		{
			name:      "empty review text",
			mutate:    func(r *review.CreateRequest) { r.ReviewText = "" },
			wantField: "reviews[0].review_text",
		},
		{
			name:      "missing date",
			mutate:    func(r *review.CreateRequest) { r.Date = "" },
			wantField: "reviews[0].date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReview()
			tt.mutate(&r)
			err := ValidateBatch([]review.CreateRequest{r})
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if _, ok := ve.Fields[tt.wantField]; !ok {
				t.Errorf("expected failure on %s, got %v", tt.wantField, ve.Fields)
			}
		})
	}
}

func TestValidateBatchEmpty(t *testing.T) {
	err := ValidateBatch(nil)
	if err == nil {
		t.Fatal("expected error for empty batch")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if _, ok := ve.Fields["reviews"]; !ok {
		t.Errorf("expected batch-level failure, got %v", ve.Fields)
	}
}

func TestValidateBatchReportsIndex(t *testing.T) {
	batch := []review.CreateRequest{validReview(), validReview()}
	batch[1].Rating = 9

	err := ValidateBatch(batch)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if _, ok := ve.Fields["reviews[1].rating"]; !ok {
		t.Errorf("expected failure keyed to batch position, got %v", ve.Fields)
	}
}
