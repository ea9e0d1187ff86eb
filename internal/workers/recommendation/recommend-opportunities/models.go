package recommendopportunities

import (
	"opportunity-recommender/internal/models"
	"opportunity-recommender/internal/recommender"
)

type Input struct {
	Age       *int     `json:"age"`
	Interests []string `json:"interests"`
	Region    string   `json:"region"`
	TopK      *int     `json:"topK"`
}

type Output struct {
	Recommendations recommender.Envelope[models.RankedOpportunity] `json:"recommendations"`
}
