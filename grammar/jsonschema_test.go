package grammar

import "testing"

func TestParseSchemaJSONPreservesPropertyOrder(t *testing.T) {
	raw := []byte(`{"type":"object","properties":{"city":{"type":"string"},"temp":{"type":"number"}}}`)
	s, err := ParseSchemaJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Properties) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(s.Properties))
	}
	if s.Properties[0].Name != "city" || s.Properties[1].Name != "temp" {
		t.Fatalf("expected [city temp] order, got %+v", s.Properties)
	}
}

func TestParseSchemaJSONReversedPropertyOrder(t *testing.T) {
	raw := []byte(`{"type":"object","properties":{"temp":{"type":"number"},"city":{"type":"string"}}}`)
	s, err := ParseSchemaJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Properties[0].Name != "temp" || s.Properties[1].Name != "city" {
		t.Fatalf("expected source order [temp city] preserved, got %+v", s.Properties)
	}
}

func TestParseSchemaJSONEnumAndArray(t *testing.T) {
	raw := []byte(`{"type":"object","properties":{"tags":{"type":"array","items":{"type":"string","enum":["a","b"]}}}}`)
	s, err := ParseSchemaJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tags := s.Properties[0].Schema
	if tags.Type != "array" || tags.Items == nil {
		t.Fatalf("expected array schema with items, got %+v", tags)
	}
	if len(tags.Items.Enum) != 2 {
		t.Fatalf("expected 2 enum values, got %+v", tags.Items.Enum)
	}
}

func TestParseSchemaJSONMissingTypeErrors(t *testing.T) {
	_, err := ParseSchemaJSON([]byte(`{"properties":{}}`))
	if err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestParseSchemaJSONEndToEndCompiles(t *testing.T) {
	raw := []byte(`{"type":"object","properties":{"city":{"type":"string"},"temp":{"type":"number"}}}`)
	s, err := ParseSchemaJSON(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	g, err := Compile(s)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	if g.Source == "" {
		t.Fatal("expected non-empty compiled grammar source")
	}
}
