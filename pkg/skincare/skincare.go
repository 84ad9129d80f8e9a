package skincare

import "time"

type SkinType string

const (
	SkinOily        SkinType = "oily"
	SkinDry         SkinType = "dry"
	SkinCombination SkinType = "combination"
	SkinNormal      SkinType = "normal"
	SkinSensitive   SkinType = "sensitive"
)

type HairType string

const (
	HairStraight HairType = "straight"
	HairWavy     HairType = "wavy"
	HairCurly    HairType = "curly"
	HairCoily    HairType = "coily"
)

// Sensitivity tiers, least to most severe.
type Sensitivity string

const (
	SensitivityLow           Sensitivity = "low"
	SensitivityNormal        Sensitivity = "normal"
	SensitivitySensitive     Sensitivity = "sensitive"
	SensitivityVerySensitive Sensitivity = "very_sensitive"
)

// LifestyleActiveInfection is the lifestyle flag checked by avoid_if: active_infection.
const LifestyleActiveInfection = "active_infection"

// Analysis is the output of the skin/hair classifier for one photo.
type Analysis struct {
	SkinType   SkinType `json:"skin_type,omitempty"`
	HairType   HairType `json:"hair_type,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

// Profile holds user-confirmed data. Zero values mean "not provided".
type Profile struct {
	SkinType      SkinType        `json:"skin_type,omitempty"`
	HairType      HairType        `json:"hair_type,omitempty"`
	Conditions    []string        `json:"conditions,omitempty"`
	Sensitivity   Sensitivity     `json:"sensitivity,omitempty"`
	Age           *int            `json:"age,omitempty"`
	Pregnant      bool            `json:"pregnant"`
	Breastfeeding bool            `json:"breastfeeding"`
	Allergies     []string        `json:"allergies,omitempty"`
	Lifestyle     map[string]bool `json:"lifestyle,omitempty"`
}

// UserContext is the read-only view rules and scorers evaluate against.
type UserContext struct {
	SkinType      SkinType        `json:"skin_type,omitempty" validate:"omitempty,oneof=oily dry combination normal sensitive"`
	HairType      HairType        `json:"hair_type,omitempty" validate:"omitempty,oneof=straight wavy curly coily"`
	Conditions    []string        `json:"conditions,omitempty" validate:"dive,required"`
	Sensitivity   Sensitivity     `json:"sensitivity,omitempty" validate:"omitempty,oneof=low normal sensitive very_sensitive"`
	Age           *int            `json:"age,omitempty" validate:"omitempty,gte=0,lte=120"`
	Pregnant      bool            `json:"pregnant"`
	Breastfeeding bool            `json:"breastfeeding"`
	Allergies     []string        `json:"allergies,omitempty" validate:"dive,required"`
	Lifestyle     map[string]bool `json:"lifestyle,omitempty" validate:"dive,keys,required,endkeys"`
}

// HasCondition reports whether tag is among the detected conditions.
func (u UserContext) HasCondition(tag string) bool {
	return containsTag(u.Conditions, tag)
}

// HasAllergy reports whether tag is among the declared allergies.
func (u UserContext) HasAllergy(tag string) bool {
	return containsTag(u.Allergies, tag)
}

// Flag returns a lifestyle flag and whether it was provided at all.
func (u UserContext) Flag(name string) (bool, bool) {
	v, ok := u.Lifestyle[name]
	return v, ok
}

// Product is a catalog entry as supplied by the product store.
type Product struct {
	ID             string   `json:"id" validate:"required"`
	Name           string   `json:"name" validate:"required"`
	Brand          string   `json:"brand,omitempty"`
	Category       string   `json:"category,omitempty"`
	Price          float64  `json:"price" validate:"gte=0"`
	Ingredients    []string `json:"ingredients,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	DermSafe       bool     `json:"dermatologically_safe"`
	RecommendedFor []string `json:"recommended_for,omitempty"`
	AvoidFor       []string `json:"avoid_for,omitempty"`
	AverageRating  float64  `json:"average_rating" validate:"gte=0,lte=5"`
	ReviewCount    int      `json:"review_count" validate:"gte=0"`
}

// FeedbackRecord is one user's feedback on a stored recommendation.
type FeedbackRecord struct {
	RecommendationID    string    `json:"recommendation_id" validate:"required"`
	ProductID           string    `json:"product_id,omitempty"`
	Helpfulness         int       `json:"helpfulness" validate:"gte=1,lte=5"`
	ProductSatisfaction int       `json:"product_satisfaction" validate:"gte=1,lte=5"`
	RoutineCompletion   float64   `json:"routine_completion_pct" validate:"gte=0,lte=100"`
	WouldRecommend      bool      `json:"would_recommend"`
	AdverseReaction     string    `json:"adverse_reaction,omitempty"`
	CreatedAt           time.Time `json:"created_at,omitempty"`
}

// HasAdverseReaction reports whether the record carries a non-blank reaction note.
func (f FeedbackRecord) HasAdverseReaction() bool {
	return NormalizeTag(f.AdverseReaction) != ""
}
