package browseopportunities

import (
	"opportunity-recommender/internal/models"
	"opportunity-recommender/internal/recommender"
)

type Input struct {
	Section string `json:"section"`
	Age     *int   `json:"age"`
	Region  string `json:"region"`
}

type Output struct {
	Listings recommender.Envelope[models.Opportunity] `json:"listings"`
}
