package recommender

import (
	"fmt"
	"strings"

	"opportunity-recommender/internal/catalog"
	apperrors "opportunity-recommender/internal/common/errors"
)

const (
	DefaultHomeCountry = "India"
	DefaultAge         = 20
	DefaultTopK        = 5
	DefaultMaxTopK     = 100

	minAge = 0
	maxAge = 150
)

// DefaultSubRegions are the states matched when a caller is in the home
// country without naming a state.
var DefaultSubRegions = []string{
	"Rajasthan", "Delhi", "Karnataka", "Kerala", "Tamil Nadu", "Maharashtra",
	"Uttar Pradesh", "Madhya Pradesh", "Gujarat", "Telangana", "Bihar", "Punjab",
	"Haryana", "West Bengal", "Assam", "Odisha", "Goa", "Jharkhand", "Chhattisgarh",
	"Uttarakhand", "Himachal Pradesh", "Tripura", "Manipur", "Meghalaya", "Nagaland",
	"Sikkim", "Arunachal Pradesh",
}

// DefaultInterests stand in for a caller who gave none.
var DefaultInterests = []string{"Drawing", "Tech", "Painting", "Teaching", "Hairstylist"}

// Query is one recommendation request as received from a transport.
// A nil Age means the caller did not supply one.
type Query struct {
	Age       *int     `json:"age,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Region    string   `json:"region,omitempty"`
	TopK      int      `json:"top_k"`
}

// NormalizedQuery has every default applied and every bound checked.
type NormalizedQuery struct {
	Age       int
	Interests []string
	Region    string
	TopK      int
}

// QueryBuilder owns the defaulting rules, the regional hierarchy and the
// embedding-text composition.
type QueryBuilder struct {
	homeCountry      string
	subRegions       []string
	defaultAge       int
	defaultInterests []string
	maxTopK          int
}

func NewQueryBuilder(p Policy) *QueryBuilder {
	p = p.withDefaults()
	return &QueryBuilder{
		homeCountry:      p.HomeCountry,
		subRegions:       p.SubRegions,
		defaultAge:       p.DefaultAge,
		defaultInterests: p.DefaultInterests,
		maxTopK:          p.MaxTopK,
	}
}

// Normalize applies defaults and rejects input that cannot be normalized.
// TopK above the configured maximum is clamped, not rejected.
func (b *QueryBuilder) Normalize(q Query) (NormalizedQuery, error) {
	if q.TopK <= 0 {
		return NormalizedQuery{}, apperrors.NewValidationError("top_k", fmt.Sprintf("must be positive, got %d", q.TopK))
	}

	age := b.defaultAge
	if q.Age != nil {
		age = *q.Age
	}
	if age < minAge || age > maxAge {
		return NormalizedQuery{}, apperrors.NewValidationError("age", fmt.Sprintf("must be between %d and %d, got %d", minAge, maxAge, age))
	}

	interests := make([]string, 0, len(q.Interests))
	for _, s := range q.Interests {
		if s = strings.TrimSpace(s); s != "" {
			interests = append(interests, s)
		}
	}
	if len(interests) == 0 {
		interests = append(interests, b.defaultInterests...)
	}

	topK := q.TopK
	if topK > b.maxTopK {
		topK = b.maxTopK
	}

	return NormalizedQuery{
		Age:       age,
		Interests: interests,
		Region:    b.NormalizeRegion(q.Region),
		TopK:      topK,
	}, nil
}

// NormalizeRegion trims the region and maps blank to the home country.
func (b *QueryBuilder) NormalizeRegion(region string) string {
	region = strings.TrimSpace(region)
	if region == "" {
		return b.homeCountry
	}
	return region
}

// RegionSet returns the region labels a caller in region may see. A caller
// at home-country level sees every sub-region; anyone else sees their own
// region plus national-level records.
func (b *QueryBuilder) RegionSet(region string) []string {
	region = b.NormalizeRegion(region)
	if strings.EqualFold(region, b.homeCountry) {
		set := make([]string, 0, len(b.subRegions)+1)
		set = append(set, b.homeCountry)
		return append(set, b.subRegions...)
	}
	return []string{region, b.homeCountry}
}

// Filter builds the store predicate for an age and region.
func (b *QueryBuilder) Filter(age int, region string, requireEmbedding bool) catalog.Filter {
	return catalog.Filter{
		Age:              age,
		Regions:          b.RegionSet(region),
		RequireEmbedding: requireEmbedding,
	}
}

// EmbeddingText composes the text embedded for a user profile. Catalog
// embeddings must be generated with a compatible shape.
func EmbeddingText(interests []string, age int, region string) string {
	return fmt.Sprintf("%s age %d region %s", strings.Join(interests, " "), age, region)
}

// RecordText composes the text embedded for a catalog record.
func RecordText(title, description, interestTags, kind, region string) string {
	parts := make([]string, 0, 5)
	for _, s := range []string{title, description, interestTags, kind} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return fmt.Sprintf("%s region %s", strings.Join(parts, " "), strings.TrimSpace(region))
}
