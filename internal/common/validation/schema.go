package validation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"opportunity-recommender/internal/models"
)

// OpportunitySchema is the JSON schema every catalog record must satisfy
// before it is written to a store.
const OpportunitySchema = `{
  "type": "object",
  "required": ["id", "title"],
  "properties": {
    "id":            {"type": "string", "minLength": 1},
    "title":         {"type": "string", "minLength": 1},
    "description":   {"type": "string"},
    "type":          {"type": "string"},
    "interest_tags": {"type": "string"},
    "image_url":     {"type": "string"},
    "link":          {"type": "string"},
    "region":        {"type": "string"},
    "age_min":       {"type": ["integer", "null"], "minimum": 0},
    "age_max":       {"type": ["integer", "null"], "minimum": 0},
    "embedding":     {"type": "array", "minItems": 1, "items": {"type": "number"}}
  }
}`

var opportunitySchema *gojsonschema.Schema

func init() {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(OpportunitySchema))
	if err != nil {
		panic(fmt.Sprintf("invalid opportunity schema: %v", err))
	}
	opportunitySchema = s
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// RecordResult reports the problems found in one record of a catalog file.
type RecordResult struct {
	Index  int               `json:"index"`
	ID     string            `json:"id,omitempty"`
	Errors []ValidationError `json:"errors"`
}

// ValidateCatalog checks a JSON array of opportunity records. Records that
// pass are returned decoded, in file order; the rest are reported by index.
// A non-array document is an error.
func ValidateCatalog(data []byte) ([]models.Opportunity, []RecordResult, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("catalog must be a JSON array of records: %w", err)
	}

	valid := make([]models.Opportunity, 0, len(raw))
	var invalid []RecordResult

	for i, doc := range raw {
		rec, errs := ValidateRecord(doc)
		if len(errs) > 0 {
			invalid = append(invalid, RecordResult{Index: i, ID: rec.ID, Errors: errs})
			continue
		}
		valid = append(valid, rec)
	}

	return valid, invalid, nil
}

// ValidateRecord validates a single JSON record against OpportunitySchema and
// the age-range invariant.
func ValidateRecord(doc []byte) (models.Opportunity, []ValidationError) {
	var rec models.Opportunity

	result, err := opportunitySchema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return rec, []ValidationError{{Field: "(root)", Message: err.Error(), Code: "MALFORMED_JSON"}}
	}

	if !result.Valid() {
		errs := make([]ValidationError, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = ValidationError{
				Field:   desc.Field(),
				Message: desc.Description(),
				Code:    desc.Type(),
			}
		}
		// best effort, so the report can name the record
		_ = json.Unmarshal(doc, &rec)
		return rec, errs
	}

	if err := json.Unmarshal(doc, &rec); err != nil {
		return rec, []ValidationError{{Field: "(root)", Message: err.Error(), Code: "DECODE_FAILED"}}
	}

	if rec.AgeMin != nil && rec.AgeMax != nil && *rec.AgeMin > *rec.AgeMax {
		return rec, []ValidationError{{
			Field:   "age_min",
			Message: fmt.Sprintf("age_min %d exceeds age_max %d", *rec.AgeMin, *rec.AgeMax),
			Code:    "AGE_RANGE_INVERTED",
		}}
	}

	return rec, nil
}
