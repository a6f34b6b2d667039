// Package validator provides input validation for review ingest batches. It
// enforces field presence, length, and rating range constraints and returns
// per-field error details.
package validator

import (
	"fmt"
	"strings"

	"github.com/reviewpulse/reviewpulse/internal/review"
)

const (
	maxNameLength   = 255
	maxReviewLength = 65536
	minRating       = 1
	maxRating       = 5
	maxBatchSize    = 500
)

// ValidationError holds per-field validation failure messages. Keys are
// prefixed with the batch position, e.g. "reviews[2].rating".
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

// ValidateBatch checks every review in an ingest batch and returns a
// ValidationError describing all failures, or nil when the batch is valid.
func ValidateBatch(reviews []review.CreateRequest) error {
	errs := make(map[string]string)

	if len(reviews) == 0 {
		errs["reviews"] = "at least one review is required"
	} else if len(reviews) > maxBatchSize {
		errs["reviews"] = fmt.Sprintf("batch must contain at most %d reviews", maxBatchSize)
	}

	for i, r := range reviews {
		prefix := fmt.Sprintf("reviews[%d].", i)

		checkName(errs, prefix+"business_name", r.BusinessName)
		checkName(errs, prefix+"location", r.Location)
		checkName(errs, prefix+"customer_name", r.CustomerName)

		if r.Rating < minRating || r.Rating > maxRating {
			errs[prefix+"rating"] = fmt.Sprintf("rating must be between %d and %d", minRating, maxRating)
		}
		text := strings.TrimSpace(r.ReviewText)
		if text == "" {
			errs[prefix+"review_text"] = "review text is required"
		} else if len(text) > maxReviewLength {
			errs[prefix+"review_text"] = fmt.Sprintf("review text must be at most %d characters", maxReviewLength)
		}
		if strings.TrimSpace(r.Date) == "" {
			errs[prefix+"date"] = "date is required"
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkName(errs map[string]string, field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		errs[field] = field[strings.LastIndex(field, ".")+1:] + " is required"
		return
	}
	if len(value) > maxNameLength {
		errs[field] = fmt.Sprintf("must be at most %d characters", maxNameLength)
	}
}
