// Package store persists reviews in PostgreSQL. It owns the reviews table
// schema and every query the service runs against it; nothing else in the
// repository touches database/sql directly.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/reviewpulse/reviewpulse/pkg/errors"
	"github.com/reviewpulse/reviewpulse/pkg/postgres"

	"github.com/reviewpulse/reviewpulse/internal/review"
)

const schema = `
CREATE TABLE IF NOT EXISTS reviews (
    id              BIGSERIAL PRIMARY KEY,
    business_name   VARCHAR(255) NOT NULL,
    location        VARCHAR(255) NOT NULL,
    customer_name   VARCHAR(255) NOT NULL,
    rating          INTEGER NOT NULL,
    review_text     TEXT NOT NULL,
    review_date     VARCHAR(50) NOT NULL,
    sentiment       VARCHAR(50),
    sentiment_score DOUBLE PRECISION,
    topics          TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_reviews_location ON reviews (location);
CREATE INDEX IF NOT EXISTS idx_reviews_sentiment ON reviews (sentiment);
CREATE INDEX IF NOT EXISTS idx_reviews_created_at ON reviews (created_at DESC);
`

// Store runs all review queries against PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates a Store backed by the given client.
func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "review-store"),
	}
}

// EnsureSchema creates the reviews table and its indexes if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating reviews schema: %w", err)
	}
	return nil
}

// InsertBatch persists the reviews in a single transaction and returns the
// number inserted. Topics are stored as a JSON array.
func (s *Store) InsertBatch(ctx context.Context, reviews []review.Review) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO reviews
				(business_name, location, customer_name, rating, review_text,
				 review_date, sentiment, sentiment_score, topics)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range reviews {
			topics, err := json.Marshal(r.Topics)
			if err != nil {
				return fmt.Errorf("marshaling topics: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				r.BusinessName, r.Location, r.CustomerName, r.Rating,
				r.ReviewText, r.Date, r.Sentiment, r.SentimentScore,
				string(topics),
			); err != nil {
				return fmt.Errorf("inserting review for %s: %w", r.BusinessName, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("reviews inserted", "count", len(reviews))
	return len(reviews), nil
}

// List returns one page of reviews matching the filters, newest first, plus
// the total match count.
func (s *Store) List(ctx context.Context, filters review.ListFilters) ([]review.Review, int, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 5)

	if filters.Location != "" {
		args = append(args, filters.Location)
		where = append(where, fmt.Sprintf("location = $%d", len(args)))
	}
	if filters.Sentiment != "" {
		args = append(args, filters.Sentiment)
		where = append(where, fmt.Sprintf("sentiment = $%d", len(args)))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(review_text ILIKE $%d OR customer_name ILIKE $%d OR business_name ILIKE $%d)", n, n, n))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM reviews" + clause
	if err := s.db.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting reviews: %w", err)
	}

	offset := (filters.Page - 1) * filters.Limit
	args = append(args, filters.Limit, offset)
	listQuery := fmt.Sprintf(
		selectColumns+clause+" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		len(args)-1, len(args))

	rows, err := s.db.DB.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing reviews: %w", err)
	}
	defer rows.Close()

	reviews, err := scanReviews(rows)
	if err != nil {
		return nil, 0, err
	}
	return reviews, total, nil
}

const selectColumns = `
	SELECT id, business_name, location, customer_name, rating, review_text,
	       review_date, sentiment, sentiment_score, topics, created_at
	FROM reviews`

// Get returns a single review by id, or ErrReviewNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*review.Review, error) {
	row := s.db.DB.QueryRowContext(ctx, selectColumns+" WHERE id = $1", id)
	r, err := scanReview(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.Newf(apperrors.ErrReviewNotFound, 404, "review %d", id)
		}
		return nil, fmt.Errorf("fetching review %d: %w", id, err)
	}
	return r, nil
}

// Corpus returns every review's id and text in insertion order, for
// similarity index rebuilds.
func (s *Store) Corpus(ctx context.Context) ([]review.CorpusEntry, error) {
	rows, err := s.db.DB.QueryContext(ctx, "SELECT id, review_text FROM reviews ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("fetching corpus: %w", err)
	}
	defer rows.Close()

	entries := make([]review.CorpusEntry, 0, 256)
	for rows.Next() {
		var e review.CorpusEntry
		if err := rows.Scan(&e.ID, &e.Text); err != nil {
			return nil, fmt.Errorf("scanning corpus row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating corpus: %w", err)
	}
	return entries, nil
}

// Locations returns all distinct review locations, sorted.
func (s *Store) Locations(ctx context.Context) ([]string, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		"SELECT DISTINCT location FROM reviews ORDER BY location")
	if err != nil {
		return nil, fmt.Errorf("fetching locations: %w", err)
	}
	defer rows.Close()

	locations := make([]string, 0, 16)
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating locations: %w", err)
	}
	return locations, nil
}

// Analytics scans the label columns of every review and aggregates counts
// in-process. Rows whose stored topics fail to parse keep their other counts
// and skip topic tallying.
func (s *Store) Analytics(ctx context.Context) (*review.Analytics, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		"SELECT rating, location, sentiment, topics FROM reviews")
	if err != nil {
		return nil, fmt.Errorf("fetching analytics rows: %w", err)
	}
	defer rows.Close()

	a := &review.Analytics{
		SentimentCounts:    make(map[string]int),
		TopicCounts:        make(map[string]int),
		RatingDistribution: make(map[string]int),
		LocationStats:      make(map[string]int),
	}

	for rows.Next() {
		var (
			rating    int
			location  string
			sentiment sql.NullString
			topics    sql.NullString
		)
		if err := rows.Scan(&rating, &location, &sentiment, &topics); err != nil {
			return nil, fmt.Errorf("scanning analytics row: %w", err)
		}
		a.RatingDistribution[fmt.Sprintf("%d", rating)]++
		a.LocationStats[location]++
		if sentiment.Valid && sentiment.String != "" {
			a.SentimentCounts[sentiment.String]++
		}
		if topics.Valid && topics.String != "" {
			var parsed []string
			if err := json.Unmarshal([]byte(topics.String), &parsed); err != nil {
				continue
			}
			for _, topic := range parsed {
				a.TopicCounts[topic]++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating analytics rows: %w", err)
	}
	return a, nil
}

func scanReview(row *sql.Row) (*review.Review, error) {
	var (
		r         review.Review
		sentiment sql.NullString
		score     sql.NullFloat64
		topics    sql.NullString
	)
	err := row.Scan(&r.ID, &r.BusinessName, &r.Location, &r.CustomerName,
		&r.Rating, &r.ReviewText, &r.Date, &sentiment, &score, &topics,
		&r.CreatedAt)
	if err != nil {
		return nil, err
	}
	applyNullable(&r, sentiment, score, topics)
	return &r, nil
}

func scanReviews(rows *sql.Rows) ([]review.Review, error) {
	reviews := make([]review.Review, 0, 16)
	for rows.Next() {
		var (
			r         review.Review
			sentiment sql.NullString
			score     sql.NullFloat64
			topics    sql.NullString
		)
		err := rows.Scan(&r.ID, &r.BusinessName, &r.Location, &r.CustomerName,
			&r.Rating, &r.ReviewText, &r.Date, &sentiment, &score, &topics,
			&r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning review row: %w", err)
		}
		applyNullable(&r, sentiment, score, topics)
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating review rows: %w", err)
	}
	return reviews, nil
}

func applyNullable(r *review.Review, sentiment sql.NullString, score sql.NullFloat64, topics sql.NullString) {
	if sentiment.Valid {
		r.Sentiment = sentiment.String
	}
	if score.Valid {
		r.SentimentScore = score.Float64
	}
	r.Topics = []string{}
	if topics.Valid && topics.String != "" {
		var parsed []string
		if err := json.Unmarshal([]byte(topics.String), &parsed); err == nil {
			r.Topics = parsed
		}
	}
}
