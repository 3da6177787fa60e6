package embed

import (
	"context"
	"math"
	"testing"
)

func TestLocalProvider_Deterministic(t *testing.T) {
	p := NewLocalProvider()
	ctx := context.Background()

	a, err := p.Embed(ctx, "What is your plan for affordable housing?")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := p.Embed(ctx, "What is your plan for affordable housing?")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if len(a) != Dimensions {
		t.Fatalf("Embed() returned %d dims, want %d", len(a), Dimensions)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("identical text produced different vectors at index %d", i)
		}
	}
}

func TestLocalProvider_UnitNorm(t *testing.T) {
	p := NewLocalProvider()

	vec, err := p.Embed(context.Background(), "transit funding and bike lanes")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-5 {
		t.Errorf("vector norm = %v, want 1.0", math.Sqrt(norm))
	}
}

func TestLocalProvider_SharedVocabularyIsCloser(t *testing.T) {
	p := NewLocalProvider()
	ctx := context.Background()

	base, _ := p.Embed(ctx, "what is your plan for affordable housing")
	similar, _ := p.Embed(ctx, "what is your plan for more affordable housing units")
	unrelated, _ := p.Embed(ctx, "do you support the downtown stadium proposal")

	if cosine(base, similar) <= cosine(base, unrelated) {
		t.Errorf("shared-vocabulary text should be closer: similar=%v unrelated=%v",
			cosine(base, similar), cosine(base, unrelated))
	}
}

func TestLocalProvider_CaseAndPunctuationInsensitive(t *testing.T) {
	p := NewLocalProvider()
	ctx := context.Background()

	a, _ := p.Embed(ctx, "Fix the potholes on Main Street!")
	b, _ := p.Embed(ctx, "fix the potholes on main street")

	if math.Abs(cosine(a, b)-1.0) > 1e-5 {
		t.Errorf("case/punctuation variants should embed identically, cosine = %v", cosine(a, b))
	}
}

func TestLocalProvider_EmptyText(t *testing.T) {
	p := NewLocalProvider()

	vec, err := p.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed(empty) error = %v", err)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("empty text should embed to the zero vector, index %d = %v", i, v)
		}
	}
}

func TestLocalProvider_CanceledContext(t *testing.T) {
	p := NewLocalProvider()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Embed(ctx, "anything"); err == nil {
		t.Error("Embed() with canceled context should error")
	}
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
