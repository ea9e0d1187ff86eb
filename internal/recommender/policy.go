package recommender

import (
	"time"

	"opportunity-recommender/internal/common/config"
)

// Policy collects the ranking knobs. Zero values take the package defaults.
type Policy struct {
	HomeCountry      string
	SubRegions       []string
	DefaultAge       int
	DefaultInterests []string
	DefaultTopK      int
	MaxTopK          int

	EmbedTimeout  time.Duration
	StoreTimeout  time.Duration
	SlowThreshold time.Duration

	// StrictIntegrity aborts a request on the first unusable candidate
	// embedding instead of skipping it.
	StrictIntegrity bool
	// StripEmbeddings drops the vectors from returned records.
	StripEmbeddings bool
}

func PolicyFromConfig(rc config.RecommenderConfig, ec config.EmbeddingConfig) Policy {
	return Policy{
		HomeCountry:      rc.HomeCountry,
		SubRegions:       rc.SubRegions,
		DefaultAge:       rc.DefaultAge,
		DefaultInterests: rc.DefaultInterests,
		DefaultTopK:      rc.DefaultTopK,
		MaxTopK:          rc.MaxTopK,
		EmbedTimeout:     config.GetDuration(ec.Timeout),
		StoreTimeout:     config.GetDuration(rc.StoreTimeout),
		SlowThreshold:    config.GetDuration(rc.SlowThreshold),
		StrictIntegrity:  rc.StrictIntegrity,
		StripEmbeddings:  rc.StripEmbeddings,
	}
}

func (p Policy) withDefaults() Policy {
	if p.HomeCountry == "" {
		p.HomeCountry = DefaultHomeCountry
	}
	if len(p.SubRegions) == 0 {
		p.SubRegions = DefaultSubRegions
	}
	if p.DefaultAge == 0 {
		p.DefaultAge = DefaultAge
	}
	if len(p.DefaultInterests) == 0 {
		p.DefaultInterests = DefaultInterests
	}
	if p.DefaultTopK <= 0 {
		p.DefaultTopK = DefaultTopK
	}
	if p.MaxTopK <= 0 {
		p.MaxTopK = DefaultMaxTopK
	}
	if p.DefaultTopK > p.MaxTopK {
		p.DefaultTopK = p.MaxTopK
	}
	return p
}
