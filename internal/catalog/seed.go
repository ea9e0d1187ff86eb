package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"opportunity-recommender/internal/common/validation"
	"opportunity-recommender/internal/models"
)

// LoadSeedFile reads a JSON object mapping collection names to record arrays.
// Every record is schema-checked; any invalid record fails the load.
func LoadSeedFile(path string) (map[string][]models.Opportunity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	seed := make(map[string][]models.Opportunity, len(raw))
	for collection, doc := range raw {
		valid, invalid, err := validation.ValidateCatalog(doc)
		if err != nil {
			return nil, fmt.Errorf("seed collection %s: %w", collection, err)
		}
		if len(invalid) > 0 {
			first := invalid[0]
			return nil, fmt.Errorf("seed collection %s: %d invalid records, first at index %d (%s): %s",
				collection, len(invalid), first.Index, first.ID, first.Errors[0].Message)
		}
		seed[collection] = valid
	}
	return seed, nil
}
