package forms

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRegistryGet(t *testing.T) {
	r, err := NewRegistry(SeedSchemas()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	s, err := r.Get("pipeline")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Title == "" || len(s.Sections) == 0 {
		t.Fatalf("expected populated schema, got %+v", s)
	}
	if _, err := r.Get("unknown"); !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound, got %v", err)
	}
}

func TestRegistryRejectsSelectWithoutOptions(t *testing.T) {
	_, err := NewRegistry(ModuleSchema{
		Type: "bad",
		Sections: []FormSection{
			{Title: "S", Fields: []FormField{{ID: "f", Label: "F", Type: FieldSelect}}},
		},
	})
	if err == nil {
		t.Fatalf("expected validation error for select without options")
	}
}

func TestRegistryRejectsDuplicateFieldIDs(t *testing.T) {
	_, err := NewRegistry(ModuleSchema{
		Type: "bad",
		Sections: []FormSection{
			{Fields: []FormField{{ID: "f", Type: FieldText}}},
			{Fields: []FormField{{ID: "f", Type: FieldNumber}}},
		},
	})
	if err == nil {
		t.Fatalf("expected duplicate field id error")
	}
}

// Field type strings on the wire are frozen for the mobile client.
func TestWireFieldTypes(t *testing.T) {
	b, err := json.Marshal(FormField{ID: "t", Label: "T", Type: FieldDrawingThickness})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"type":"drawing_thickness"`) {
		t.Fatalf("unexpected wire form: %s", b)
	}
	for ft, want := range map[FieldType]string{
		FieldText:    "text",
		FieldNumber:  "number",
		FieldDate:    "date",
		FieldSelect:  "select",
		FieldBoolean: "boolean",
		FieldPhoto:   "photo",
	} {
		if string(ft) != want {
			t.Fatalf("field type %q drifted from wire value %q", ft, want)
		}
	}
}

func TestTypesSorted(t *testing.T) {
	r, err := NewRegistry(SeedSchemas()...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	types := r.Types()
	if len(types) != 4 {
		t.Fatalf("expected 4 seeded types, got %v", types)
	}
	for i := 1; i < len(types); i++ {
		if types[i-1] >= types[i] {
			t.Fatalf("types not sorted: %v", types)
		}
	}
}
