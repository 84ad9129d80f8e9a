package storage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/haski/recengine/pkg/skincare"
)

type productFile struct {
	Products []productDoc `yaml:"products"`
}

type productDoc struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Brand          string   `yaml:"brand"`
	Category       string   `yaml:"category"`
	Price          float64  `yaml:"price"`
	Ingredients    []string `yaml:"ingredients"`
	Tags           []string `yaml:"tags"`
	DermSafe       bool     `yaml:"dermatologically_safe"`
	RecommendedFor []string `yaml:"recommended_for"`
	AvoidFor       []string `yaml:"avoid_for"`
	AverageRating  float64  `yaml:"average_rating"`
	ReviewCount    int      `yaml:"review_count"`
}

// LoadProducts reads a product seed file (YAML or JSON) and validates every
// entry. Tags and target conditions are normalized.
func LoadProducts(path string) ([]skincare.Product, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read products: %w", err)
	}

	var doc productFile
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("parse products: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Products))
	out := make([]skincare.Product, 0, len(doc.Products))
	for i, d := range doc.Products {
		p := skincare.Product{
			ID:             d.ID,
			Name:           d.Name,
			Brand:          d.Brand,
			Category:       d.Category,
			Price:          d.Price,
			Ingredients:    d.Ingredients,
			Tags:           skincare.NormalizeTags(d.Tags),
			DermSafe:       d.DermSafe,
			RecommendedFor: skincare.NormalizeTags(d.RecommendedFor),
			AvoidFor:       skincare.NormalizeTags(d.AvoidFor),
			AverageRating:  d.AverageRating,
			ReviewCount:    d.ReviewCount,
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("product %d (%s): %w", i, d.ID, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("product %d: duplicate id %s", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
