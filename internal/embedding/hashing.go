package embedding

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const defaultHashingDimension = 384

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Hashing is a local, deterministic embedder. Tokens and adjacent-token
// bigrams are hashed into signed buckets and the result is L2-normalized, so
// texts sharing vocabulary land close together under cosine similarity.
type Hashing struct {
	dim int
}

func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = defaultHashingDimension
	}
	return &Hashing{dim: dim}
}

func (h *Hashing) Name() string { return "local" }

func (h *Hashing) Dimension() int { return h.dim }

// Embed never fails; text without tokens yields the zero vector.
func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acc := make([]float64, h.dim)
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	for i, tok := range tokens {
		h.add(acc, tok, 1.0)
		if i > 0 {
			h.add(acc, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, h.dim)
	if norm == 0 {
		return out, nil
	}
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (h *Hashing) add(acc []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	acc[idx] += weight
}
