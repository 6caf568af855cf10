package grammar

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestCacheFallsBackToInProcessWithoutRedisURL(t *testing.T) {
	c := NewCache(zerolog.Nop(), "")
	schema := Schema{Type: "object", Properties: []Property{{Name: "x", Schema: Schema{Type: "string"}}}}

	g1, err := c.CompileCached(context.Background(), schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Get(context.Background(), Key(schema)); !ok {
		t.Fatal("expected schema to be cached after first compile")
	}

	g2, err := c.CompileCached(context.Background(), schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g1.Source != g2.Source {
		t.Fatal("expected identical source from cache hit")
	}
}

func TestCacheWithInvalidRedisURLStillWorks(t *testing.T) {
	c := NewCache(zerolog.Nop(), "not-a-valid-url")
	schema := Schema{Type: "object"}
	if _, err := c.CompileCached(context.Background(), schema); err != nil {
		t.Fatalf("expected graceful fallback, got error: %v", err)
	}
}
