// Package storage persists recommendations, feedback and the product
// catalog in Postgres.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/haski/recengine/internal/metrics"
	"github.com/haski/recengine/pkg/skincare"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Storage provides database operations for the recommendation service
type Storage struct {
	db *sql.DB
}

// New opens a connection pool and pings the database
func New(dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema files in lexical order. Every file is
// idempotent, so running it on each start is safe.
func (s *Storage) Migrate(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(raw)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func observe(op string, start time.Time) {
	metrics.StorageLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// UpsertProducts inserts or replaces catalog products in one transaction
func (s *Storage) UpsertProducts(ctx context.Context, products []skincare.Product) error {
	if len(products) == 0 {
		return nil
	}
	defer observe("upsert_products", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (id, name, brand, category, price, ingredients, tags,
			dermatologically_safe, recommended_for, avoid_for, average_rating, review_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    brand = EXCLUDED.brand,
		    category = EXCLUDED.category,
		    price = EXCLUDED.price,
		    ingredients = EXCLUDED.ingredients,
		    tags = EXCLUDED.tags,
		    dermatologically_safe = EXCLUDED.dermatologically_safe,
		    recommended_for = EXCLUDED.recommended_for,
		    avoid_for = EXCLUDED.avoid_for,
		    average_rating = EXCLUDED.average_rating,
		    review_count = EXCLUDED.review_count
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Brand, p.Category, p.Price,
			pq.Array(nonNil(p.Ingredients)), pq.Array(nonNil(p.Tags)), p.DermSafe,
			pq.Array(nonNil(p.RecommendedFor)), pq.Array(nonNil(p.AvoidFor)),
			p.AverageRating, p.ReviewCount); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// ListProducts returns the whole product catalog ordered by id
func (s *Storage) ListProducts(ctx context.Context) ([]skincare.Product, error) {
	defer observe("list_products", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, brand, category, price, ingredients, tags,
		       dermatologically_safe, recommended_for, avoid_for, average_rating, review_count
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []skincare.Product
	for rows.Next() {
		var p skincare.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Category, &p.Price,
			pq.Array(&p.Ingredients), pq.Array(&p.Tags), &p.DermSafe,
			pq.Array(&p.RecommendedFor), pq.Array(&p.AvoidFor),
			&p.AverageRating, &p.ReviewCount); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

// StoreRecommendation inserts a recommendation record. CreatedAt is filled
// in by the database when zero.
func (s *Storage) StoreRecommendation(ctx context.Context, rec RecommendationRecord) error {
	defer observe("store_recommendation", time.Now())

	var createdAt interface{}
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt
	}
	query := `
		INSERT INTO recommendations (id, user_id, catalog_version, applied_rule_ids, escalation_level, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, COALESCE($7, NOW()))
	`
	_, err := s.db.ExecContext(ctx, query, rec.ID, rec.UserID, rec.CatalogVersion,
		pq.Array(nonNil(rec.AppliedRuleIDs)), rec.EscalationLevel, string(rec.Payload), createdAt)
	return err
}

// GetRecommendation loads one record or returns ErrNotFound
func (s *Storage) GetRecommendation(ctx context.Context, id string) (RecommendationRecord, error) {
	defer observe("get_recommendation", time.Now())

	query := `
		SELECT id, user_id, catalog_version, applied_rule_ids, escalation_level, payload, created_at
		FROM recommendations
		WHERE id = $1
	`
	var rec RecommendationRecord
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.UserID, &rec.CatalogVersion, pq.Array(&rec.AppliedRuleIDs),
		&rec.EscalationLevel, &payload, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RecommendationRecord{}, ErrNotFound
	}
	if err != nil {
		return RecommendationRecord{}, err
	}
	rec.Payload = payload
	return rec, nil
}

// StoreFeedback inserts one feedback record and returns its id
func (s *Storage) StoreFeedback(ctx context.Context, fb skincare.FeedbackRecord) (int64, error) {
	defer observe("store_feedback", time.Now())

	var createdAt interface{}
	if !fb.CreatedAt.IsZero() {
		createdAt = fb.CreatedAt
	}
	query := `
		INSERT INTO feedback (recommendation_id, product_id, helpfulness, product_satisfaction,
			routine_completion_pct, would_recommend, adverse_reaction, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
		RETURNING id
	`
	var id int64
	err := s.db.QueryRowContext(ctx, query, fb.RecommendationID, fb.ProductID, fb.Helpfulness,
		fb.ProductSatisfaction, fb.RoutineCompletion, fb.WouldRecommend, fb.AdverseReaction, createdAt).Scan(&id)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
		return 0, ErrNotFound
	}
	return id, err
}

// ListFeedback returns feedback for one recommendation, oldest first
func (s *Storage) ListFeedback(ctx context.Context, recommendationID string) ([]skincare.FeedbackRecord, error) {
	defer observe("list_feedback", time.Now())
	return s.queryFeedback(ctx, `
		SELECT recommendation_id, product_id, helpfulness, product_satisfaction,
		       routine_completion_pct, would_recommend, adverse_reaction, created_at
		FROM feedback
		WHERE recommendation_id = $1
		ORDER BY created_at ASC, id ASC
	`, recommendationID)
}

// ListProductFeedback returns all feedback naming any of productIDs
func (s *Storage) ListProductFeedback(ctx context.Context, productIDs []string) ([]skincare.FeedbackRecord, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	defer observe("list_product_feedback", time.Now())
	return s.queryFeedback(ctx, `
		SELECT recommendation_id, product_id, helpfulness, product_satisfaction,
		       routine_completion_pct, would_recommend, adverse_reaction, created_at
		FROM feedback
		WHERE product_id = ANY($1)
		ORDER BY product_id, id
	`, pq.Array(productIDs))
}

func (s *Storage) queryFeedback(ctx context.Context, query string, args ...interface{}) ([]skincare.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []skincare.FeedbackRecord
	for rows.Next() {
		var fb skincare.FeedbackRecord
		if err := rows.Scan(&fb.RecommendationID, &fb.ProductID, &fb.Helpfulness, &fb.ProductSatisfaction,
			&fb.RoutineCompletion, &fb.WouldRecommend, &fb.AdverseReaction, &fb.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// CreateEscalation records a follow-up event and returns its id
func (s *Storage) CreateEscalation(ctx context.Context, ev EscalationEvent) (int64, error) {
	defer observe("create_escalation", time.Now())

	query := `
		INSERT INTO escalation_events (recommendation_id, kind, severity, message)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	err := s.db.QueryRowContext(ctx, query, ev.RecommendationID, ev.Kind, ev.Severity, ev.Message).Scan(&id)
	return id, err
}

// ListEscalations returns the events recorded for a recommendation
func (s *Storage) ListEscalations(ctx context.Context, recommendationID string) ([]EscalationEvent, error) {
	defer observe("list_escalations", time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recommendation_id, kind, severity, message, created_at
		FROM escalation_events
		WHERE recommendation_id = $1
		ORDER BY id ASC
	`, recommendationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EscalationEvent
	for rows.Next() {
		var ev EscalationEvent
		if err := rows.Scan(&ev.ID, &ev.RecommendationID, &ev.Kind, &ev.Severity, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
