package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"opportunity-recommender/internal/common/logger"
	"opportunity-recommender/internal/models"
)

// maxResultWindow is the elasticsearch default index.max_result_window.
const maxResultWindow = 10000

// indexMapping keeps region a keyword so term queries compare the whole
// value, never the analysed words of it.
const indexMapping = `{
  "mappings": {
    "properties": {
      "id":            {"type": "keyword"},
      "title":         {"type": "text"},
      "description":   {"type": "text"},
      "type":          {"type": "keyword"},
      "interest_tags": {"type": "text"},
      "image_url":     {"type": "keyword", "index": false},
      "link":          {"type": "keyword", "index": false},
      "region":        {"type": "keyword"},
      "age_min":       {"type": "integer"},
      "age_max":       {"type": "integer"},
      "embedding":     {"type": "float"}
    }
  }
}`

// Elasticsearch stores records in one index per collection. Store order is
// index order (sort by _doc).
type Elasticsearch struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewElasticsearch(client *elasticsearch.Client, index string, log logger.Logger) (*Elasticsearch, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: elasticsearch", ErrMissingClient)
	}
	if index == "" {
		return nil, fmt.Errorf("elasticsearch index name is required")
	}
	return &Elasticsearch{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "catalog", "index": index}),
	}, nil
}

func (e *Elasticsearch) Backend() string { return "elasticsearch" }

// EnsureSchema creates the index with its explicit mapping when it does not
// exist yet. An existing index is left untouched.
func (e *Elasticsearch) EnsureSchema(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{e.index}}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("check index %s: %w", e.index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case 200:
		return nil
	case 404:
	default:
		return fmt.Errorf("check index %s failed: %s", e.index, res.Status())
	}

	res, err = esapi.IndicesCreateRequest{
		Index: e.index,
		Body:  strings.NewReader(indexMapping),
	}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("create index %s: %w", e.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		status := res.String()
		// Lost a creation race with another importer.
		if strings.Contains(status, "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index %s failed: %s", e.index, status)
	}
	e.logger.Info("created index", map[string]interface{}{"index": e.index})
	return nil
}

// buildQuery renders the search body. A range clause on a missing field does
// not match, so records without both bounds are excluded.
func buildQuery(f Filter) map[string]interface{} {
	filterClauses := []interface{}{
		map[string]interface{}{
			"range": map[string]interface{}{"age_min": map[string]interface{}{"lte": f.Age}},
		},
		map[string]interface{}{
			"range": map[string]interface{}{"age_max": map[string]interface{}{"gte": f.Age}},
		},
	}

	if len(f.Regions) > 0 {
		should := make([]interface{}, 0, len(f.Regions))
		for _, r := range f.Regions {
			should = append(should, map[string]interface{}{
				"term": map[string]interface{}{
					"region": map[string]interface{}{"value": r, "case_insensitive": true},
				},
			})
		}
		filterClauses = append(filterClauses, map[string]interface{}{
			"bool": map[string]interface{}{
				"should":               should,
				"minimum_should_match": 1,
			},
		})
	}

	if f.RequireEmbedding {
		filterClauses = append(filterClauses, map[string]interface{}{
			"exists": map[string]interface{}{"field": "embedding"},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filterClauses},
		},
		"sort":             []interface{}{"_doc"},
		"size":             maxResultWindow,
		"track_total_hits": true,
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string             `json:"_id"`
			Source models.Opportunity `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *Elasticsearch) Find(ctx context.Context, f Filter) ([]models.Opportunity, error) {
	body, err := json.Marshal(buildQuery(f))
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", e.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search %s failed: %s", e.index, res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if r.Hits.Total.Value > len(r.Hits.Hits) {
		e.logger.Warn("search results truncated at the result window", map[string]interface{}{
			"matched":  r.Hits.Total.Value,
			"returned": len(r.Hits.Hits),
		})
	}

	out := make([]models.Opportunity, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		rec := hit.Source
		rec.StoreID = hit.ID
		if rec.ID == "" {
			rec.ID = hit.ID
		}
		out = append(out, rec)
	}
	return out, nil
}

// Upsert indexes each record under its id and refreshes the index once.
func (e *Elasticsearch) Upsert(ctx context.Context, records []models.Opportunity) error {
	for _, rec := range records {
		rec.StoreID = ""
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", rec.ID, err)
		}

		req := esapi.IndexRequest{
			Index:      e.index,
			DocumentID: rec.ID,
			Body:       bytes.NewReader(body),
		}
		res, err := req.Do(ctx, e.client)
		if err != nil {
			return fmt.Errorf("index %s: %w", rec.ID, err)
		}
		failed := res.IsError()
		status := res.String()
		res.Body.Close()
		if failed {
			return fmt.Errorf("index %s failed: %s", rec.ID, status)
		}
	}

	res, err := esapi.IndicesRefreshRequest{Index: []string{e.index}}.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", e.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("refresh %s failed: %s", e.index, res.String())
	}
	return nil
}
