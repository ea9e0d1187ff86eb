package catalog

import (
	"context"
	"strconv"
	"sync"

	"opportunity-recommender/internal/models"
)

// Memory is an in-process store that keeps insertion order. It serves
// tests, local development and seed-file deployments.
type Memory struct {
	mu      sync.RWMutex
	records []models.Opportunity
	byID    map[string]int
	nextSeq int
}

func NewMemory(records ...models.Opportunity) *Memory {
	m := &Memory{byID: make(map[string]int)}
	_ = m.Upsert(context.Background(), records)
	return m
}

func (m *Memory) Backend() string { return "memory" }

func (m *Memory) Find(ctx context.Context, f Filter) ([]models.Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Opportunity, 0)
	for i := range m.records {
		if f.matches(&m.records[i]) {
			rec := m.records[i]
			rec.Embedding = append([]float32(nil), rec.Embedding...)
			out = append(out, rec)
		}
	}
	return out, nil
}

// Upsert replaces records with a known id in place and appends new ones.
// Records without an id are always appended.
func (m *Memory) Upsert(ctx context.Context, records []models.Opportunity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		if idx, ok := m.byID[rec.ID]; ok && rec.ID != "" {
			rec.StoreID = m.records[idx].StoreID
			m.records[idx] = rec
			continue
		}
		m.nextSeq++
		if rec.StoreID == "" {
			rec.StoreID = strconv.Itoa(m.nextSeq)
		}
		if rec.ID != "" {
			m.byID[rec.ID] = len(m.records)
		}
		m.records = append(m.records, rec)
	}
	return nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
