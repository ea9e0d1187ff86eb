package models

// Opportunity is a catalog entry: a scholarship, program, scheme or event.
// AgeMin/AgeMax are inclusive; nil means the bound was never recorded.
type Opportunity struct {
	StoreID      string    `json:"_id,omitempty" bson:"-"`
	ID           string    `json:"id" bson:"id"`
	Title        string    `json:"title" bson:"title"`
	Description  string    `json:"description" bson:"description"`
	Type         string    `json:"type" bson:"type"`
	InterestTags string    `json:"interest_tags" bson:"interest"`
	ImageURL     string    `json:"image_url" bson:"image_url"`
	Link         string    `json:"link" bson:"link"`
	AgeMin       *int      `json:"age_min" bson:"age_min,omitempty"`
	AgeMax       *int      `json:"age_max" bson:"age_max,omitempty"`
	Region       string    `json:"region" bson:"region"`
	Embedding    []float32 `json:"embedding,omitempty" bson:"-"`
}

// HasEmbedding reports whether the record was embedded offline.
func (o *Opportunity) HasEmbedding() bool {
	return len(o.Embedding) > 0
}

// EligibleAt reports whether age falls inside both recorded bounds. A record
// missing either bound is never eligible.
func (o *Opportunity) EligibleAt(age int) bool {
	if o.AgeMin == nil || o.AgeMax == nil {
		return false
	}
	return *o.AgeMin <= age && age <= *o.AgeMax
}

// RankedOpportunity is an Opportunity with the similarity score of one query.
type RankedOpportunity struct {
	Opportunity
	Score float64 `json:"score"`
}

// IntPtr is a convenience for optional age bounds and query ages.
func IntPtr(v int) *int {
	return &v
}
