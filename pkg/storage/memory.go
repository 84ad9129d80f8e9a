package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haski/recengine/pkg/skincare"
)

// Memory keeps everything in process. It backs the service when no
// Postgres DSN is configured and mirrors Storage's behavior, including
// ErrNotFound for feedback on unknown recommendations.
type Memory struct {
	mu              sync.RWMutex
	products        map[string]skincare.Product
	recommendations map[string]RecommendationRecord
	feedback        []skincare.FeedbackRecord
	escalations     []EscalationEvent
	now             func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		products:        map[string]skincare.Product{},
		recommendations: map[string]RecommendationRecord{},
		now:             time.Now,
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) UpsertProducts(_ context.Context, products []skincare.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range products {
		m.products[p.ID] = p
	}
	return nil
}

func (m *Memory) ListProducts(context.Context) ([]skincare.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]skincare.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) StoreRecommendation(_ context.Context, rec RecommendationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now().UTC()
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	m.recommendations[rec.ID] = rec
	return nil
}

func (m *Memory) GetRecommendation(_ context.Context, id string) (RecommendationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recommendations[id]
	if !ok {
		return RecommendationRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) StoreFeedback(_ context.Context, fb skincare.FeedbackRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recommendations[fb.RecommendationID]; !ok {
		return 0, ErrNotFound
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = m.now().UTC()
	}
	m.feedback = append(m.feedback, fb)
	return int64(len(m.feedback)), nil
}

func (m *Memory) ListFeedback(_ context.Context, recommendationID string) ([]skincare.FeedbackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []skincare.FeedbackRecord
	for _, fb := range m.feedback {
		if fb.RecommendationID == recommendationID {
			out = append(out, fb)
		}
	}
	return out, nil
}

func (m *Memory) ListProductFeedback(_ context.Context, productIDs []string) ([]skincare.FeedbackRecord, error) {
	want := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		want[id] = struct{}{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []skincare.FeedbackRecord
	for _, fb := range m.feedback {
		if _, ok := want[fb.ProductID]; ok {
			out = append(out, fb)
		}
	}
	return out, nil
}

func (m *Memory) CreateEscalation(_ context.Context, ev EscalationEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.escalations) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = m.now().UTC()
	}
	m.escalations = append(m.escalations, ev)
	return ev.ID, nil
}

func (m *Memory) ListEscalations(_ context.Context, recommendationID string) ([]EscalationEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []EscalationEvent
	for _, ev := range m.escalations {
		if ev.RecommendationID == recommendationID {
			out = append(out, ev)
		}
	}
	return out, nil
}
