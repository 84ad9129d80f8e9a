package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/haski/recengine/pkg/skincare"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.UpsertProducts(ctx, []skincare.Product{{ID: "B", Name: "b"}, {ID: "A", Name: "a"}}); err != nil {
		t.Fatal(err)
	}
	products, _ := m.ListProducts(ctx)
	if len(products) != 2 || products[0].ID != "A" {
		t.Errorf("ListProducts() = %+v, want sorted by id", products)
	}

	if _, err := m.StoreFeedback(ctx, skincare.FeedbackRecord{RecommendationID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("StoreFeedback(unknown) = %v, want ErrNotFound", err)
	}

	if err := m.StoreRecommendation(ctx, RecommendationRecord{ID: "r1", Payload: []byte(`{}`)}); err != nil {
		t.Fatal(err)
	}
	rec, err := m.GetRecommendation(ctx, "r1")
	if err != nil || rec.CreatedAt.IsZero() {
		t.Fatalf("GetRecommendation() = %+v, %v", rec, err)
	}
	if _, err := m.GetRecommendation(ctx, "r2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRecommendation(r2) = %v", err)
	}

	for _, fb := range []skincare.FeedbackRecord{
		{RecommendationID: "r1", ProductID: "A", ProductSatisfaction: 5},
		{RecommendationID: "r1", ProductID: "B", ProductSatisfaction: 2},
	} {
		if _, err := m.StoreFeedback(ctx, fb); err != nil {
			t.Fatal(err)
		}
	}
	all, _ := m.ListFeedback(ctx, "r1")
	onlyA, _ := m.ListProductFeedback(ctx, []string{"A"})
	if len(all) != 2 || len(onlyA) != 1 || onlyA[0].ProductSatisfaction != 5 {
		t.Errorf("feedback = %+v / %+v", all, onlyA)
	}

	id, _ := m.CreateEscalation(ctx, EscalationEvent{RecommendationID: "r1", Kind: "engine", Severity: "urgent"})
	events, _ := m.ListEscalations(ctx, "r1")
	if id != 1 || len(events) != 1 {
		t.Errorf("escalations = %d %+v", id, events)
	}
}

func TestLoadProducts(t *testing.T) {
	products, err := LoadProducts("../../configs/products/catalog.yaml")
	if err != nil {
		t.Fatalf("LoadProducts() error = %v", err)
	}
	if len(products) != 8 {
		t.Fatalf("len = %d, want 8", len(products))
	}
	first := products[0]
	if first.ID != "CLN-BHA-150" || !first.DermSafe || first.ReviewCount != 312 {
		t.Errorf("first product = %+v", first)
	}
}

func TestLoadProductsRejectsBadEntries(t *testing.T) {
	tests := map[string]string{
		"missing name": "products:\n  - id: X\n",
		"duplicate":    "products:\n  - {id: X, name: a}\n  - {id: X, name: b}\n",
		"bad rating":   "products:\n  - {id: X, name: a, average_rating: 7}\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "products.yaml")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadProducts(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
