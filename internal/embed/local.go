package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalProvider is a deterministic hashed bag-of-words embedder used in
// tests and local development when no model endpoint is configured. Tokens
// are hashed into a fixed number of buckets and the result is L2-normalized,
// so identical text always yields an identical unit vector and texts sharing
// vocabulary land near each other in cosine space. Not a semantic model.
type LocalProvider struct {
	dims int
}

// NewLocalProvider creates a local embedder with the standard dimensions.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{dims: Dimensions}
}

// Embed computes the hashed bag-of-words vector for the text.
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, p.dims)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(p.dims)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

// Dimensions returns the fixed vector length.
func (p *LocalProvider) Dimensions() int {
	return p.dims
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
