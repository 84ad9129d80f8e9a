// Package pipeline runs one recommendation request end to end: engine,
// candidate selection, ranking and persistence. HTTP and NATS transports
// both call into it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haski/recengine/internal/engine"
	"github.com/haski/recengine/internal/feedback"
	"github.com/haski/recengine/internal/metrics"
	"github.com/haski/recengine/internal/ranking"
	"github.com/haski/recengine/internal/rules"
	"github.com/haski/recengine/pkg/events"
	"github.com/haski/recengine/pkg/skincare"
	"github.com/haski/recengine/pkg/storage"
)

var (
	// ErrUnavailable means no usable rule catalog is loaded.
	ErrUnavailable = errors.New("recommendation service unavailable")
	// ErrNotFound means the referenced recommendation does not exist.
	ErrNotFound = errors.New("recommendation not found")
)

// Store is the persistence collaborator. Both storage.Storage and
// storage.Memory satisfy it.
type Store interface {
	ListProducts(ctx context.Context) ([]skincare.Product, error)
	ListProductFeedback(ctx context.Context, productIDs []string) ([]skincare.FeedbackRecord, error)
	StoreRecommendation(ctx context.Context, rec storage.RecommendationRecord) error
	GetRecommendation(ctx context.Context, id string) (storage.RecommendationRecord, error)
	StoreFeedback(ctx context.Context, fb skincare.FeedbackRecord) (int64, error)
	ListFeedback(ctx context.Context, recommendationID string) ([]skincare.FeedbackRecord, error)
	CreateEscalation(ctx context.Context, ev storage.EscalationEvent) (int64, error)
}

// Publisher broadcasts escalation events. A nil Publisher disables publishing.
type Publisher interface {
	PublishEscalation(ctx context.Context, ev events.Escalation) error
}

// Request asks for a recommendation for one user.
type Request struct {
	UserID   string            `json:"user_id"`
	Analysis skincare.Analysis `json:"analysis"`
	Profile  skincare.Profile  `json:"profile"`
	TopK     int               `json:"top_k,omitempty"`
}

// Response is returned to the caller and stored verbatim as the
// recommendation payload.
type Response struct {
	ID             string                  `json:"id"`
	UserID         string                  `json:"user_id"`
	CatalogVersion string                  `json:"catalog_version"`
	AppliedRuleIDs []string                `json:"applied_rule_ids"`
	Recommendation engine.Recommendation   `json:"recommendation"`
	Products       []ranking.RankedProduct `json:"products"`
	CreatedAt      time.Time               `json:"created_at"`
}

// FeedbackResult is returned after a feedback record is stored.
type FeedbackResult struct {
	Feedback skincare.FeedbackRecord `json:"feedback"`
	Insights feedback.Insights       `json:"insights"`
}

// FeedbackSummary aggregates all feedback on one recommendation.
type FeedbackSummary struct {
	RecommendationID string                    `json:"recommendation_id"`
	Stats            feedback.Stats            `json:"stats"`
	Records          []skincare.FeedbackRecord `json:"records"`
}

type Service struct {
	engine    *engine.Engine
	ranker    *ranking.Ranker
	store     Store
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// New wires a Service. publisher may be nil.
func New(eng *engine.Engine, ranker *ranking.Ranker, store Store, publisher Publisher, logger zerolog.Logger) *Service {
	return &Service{
		engine:    eng,
		ranker:    ranker,
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Recommend validates the merged user context, runs the engine, ranks
// candidate products and stores the result. A *skincare.ValidationError is
// returned unchanged; a catalog problem wraps ErrUnavailable.
func (s *Service) Recommend(ctx context.Context, req Request) (*Response, error) {
	uc := skincare.Merge(req.Analysis, req.Profile)

	res, err := s.engine.Apply(uc)
	if err != nil {
		if rules.IsConfigError(err) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	candidates := ranking.SelectCandidates(res.Recommendation, products)

	ids := make([]string, 0, len(candidates))
	for _, p := range candidates {
		ids = append(ids, p.ID)
	}
	history, err := s.store.ListProductFeedback(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list product feedback: %w", err)
	}

	ranked := s.ranker.Rank(candidates, uc, res.Recommendation, feedback.ProductSignals(history), req.TopK)

	resp := &Response{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		CatalogVersion: res.CatalogVersion,
		AppliedRuleIDs: res.AppliedRuleIDs,
		Recommendation: res.Recommendation,
		Products:       ranked,
		CreatedAt:      s.now().UTC(),
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode recommendation: %w", err)
	}

	level := "none"
	if esc := res.Recommendation.Escalation; esc != nil {
		level = esc.Level.String()
	}
	err = s.store.StoreRecommendation(ctx, storage.RecommendationRecord{
		ID:              resp.ID,
		UserID:          resp.UserID,
		CatalogVersion:  resp.CatalogVersion,
		AppliedRuleIDs:  resp.AppliedRuleIDs,
		EscalationLevel: level,
		Payload:         payload,
		CreatedAt:       resp.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("store recommendation: %w", err)
	}

	if esc := res.Recommendation.Escalation; esc != nil {
		s.escalate(ctx, events.Escalation{
			RecommendationID: resp.ID,
			UserID:           resp.UserID,
			Source:           events.SourceEngine,
			Kind:             "engine",
			Severity:         level,
			Message:          esc.Message,
			RuleIDs:          esc.SourceRules,
			TsUnixNs:         resp.CreatedAt.UnixNano(),
		})
	}

	s.logger.Info().
		Str("recommendation_id", resp.ID).
		Str("user_id", resp.UserID).
		Int("rules_applied", len(resp.AppliedRuleIDs)).
		Int("products", len(ranked)).
		Str("escalation", level).
		Msg("recommendation created")

	return resp, nil
}

// Get loads a stored recommendation.
func (s *Service) Get(ctx context.Context, id string) (*Response, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	rec, err := s.store.GetRecommendation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recommendation: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(rec.Payload, &resp); err != nil {
		return nil, fmt.Errorf("decode recommendation %s: %w", id, err)
	}
	return &resp, nil
}

// SubmitFeedback validates and stores fb, then classifies it. Adverse
// reactions and other follow-ups are recorded and published as escalations.
func (s *Service) SubmitFeedback(ctx context.Context, fb skincare.FeedbackRecord) (*FeedbackResult, error) {
	if err := fb.Validate(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(fb.RecommendationID); err != nil {
		return nil, ErrNotFound
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = s.now().UTC()
	}

	if _, err := s.store.StoreFeedback(ctx, fb); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store feedback: %w", err)
	}

	insights := feedback.ClassifyInsights(fb)
	metrics.FeedbackReceived.WithLabelValues(insights.Satisfaction).Inc()

	for _, e := range insights.Escalations {
		s.escalate(ctx, events.Escalation{
			RecommendationID: fb.RecommendationID,
			Source:           events.SourceFeedback,
			Kind:             e.Type,
			Severity:         e.Severity,
			Message:          e.Message,
			TsUnixNs:         fb.CreatedAt.UnixNano(),
		})
	}

	s.logger.Info().
		Str("recommendation_id", fb.RecommendationID).
		Str("satisfaction", insights.Satisfaction).
		Str("adherence", insights.Adherence).
		Bool("requires_attention", insights.RequiresAttention()).
		Msg("feedback received")

	return &FeedbackResult{Feedback: fb, Insights: insights}, nil
}

// Feedback summarizes the feedback stored for one recommendation.
func (s *Service) Feedback(ctx context.Context, recommendationID string) (*FeedbackSummary, error) {
	if _, err := s.Get(ctx, recommendationID); err != nil {
		return nil, err
	}
	records, err := s.store.ListFeedback(ctx, recommendationID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	if records == nil {
		records = []skincare.FeedbackRecord{}
	}
	return &FeedbackSummary{
		RecommendationID: recommendationID,
		Stats:            feedback.Summarize(records),
		Records:          records,
	}, nil
}

// escalate records and publishes ev. Failures are logged; the recommendation
// itself has already been stored and stays valid.
func (s *Service) escalate(ctx context.Context, ev events.Escalation) {
	if _, err := s.store.CreateEscalation(ctx, storage.EscalationEvent{
		RecommendationID: ev.RecommendationID,
		Kind:             ev.Kind,
		Severity:         ev.Severity,
		Message:          ev.Message,
	}); err != nil {
		s.logger.Error().Err(err).Str("recommendation_id", ev.RecommendationID).Msg("failed to store escalation")
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEscalation(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("recommendation_id", ev.RecommendationID).Msg("failed to publish escalation")
	}
}
