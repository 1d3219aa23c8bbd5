package forms

import (
	"errors"
	"sort"
	"sync"
)

// Field type strings are wire values shared with the mobile inspection
// client; renaming one breaks deployed forms.
type FieldType string

const (
	FieldText             FieldType = "text"
	FieldNumber           FieldType = "number"
	FieldDate             FieldType = "date"
	FieldSelect           FieldType = "select"
	FieldBoolean          FieldType = "boolean"
	FieldDrawingThickness FieldType = "drawing_thickness"
	FieldPhoto            FieldType = "photo"
)

type FormField struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
	Unit     string    `json:"unit,omitempty"`
}

type FormSection struct {
	Title  string      `json:"title"`
	Fields []FormField `json:"fields"`
}

// ModuleSchema declares the inspection form for one equipment type. It is
// pure data: renderers on web and mobile interpret it, nothing here does.
type ModuleSchema struct {
	Type     string        `json:"type"`
	Title    string        `json:"title"`
	Sections []FormSection `json:"sections"`
}

var ErrSchemaNotFound = errors.New("form schema not found")

// Registry holds the schemas loaded at startup, keyed by equipment type.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]ModuleSchema
}

func NewRegistry(schemas ...ModuleSchema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]ModuleSchema, len(schemas))}
	for _, s := range schemas {
		if err := validateSchema(s); err != nil {
			return nil, err
		}
		if _, dup := r.schemas[s.Type]; dup {
			return nil, errors.New("duplicate schema for equipment type " + s.Type)
		}
		r.schemas[s.Type] = s
	}
	return r, nil
}

func validateSchema(s ModuleSchema) error {
	if s.Type == "" {
		return errors.New("schema type must not be empty")
	}
	seen := make(map[string]bool)
	for _, sec := range s.Sections {
		for _, f := range sec.Fields {
			if f.ID == "" {
				return errors.New("schema " + s.Type + ": field id must not be empty")
			}
			if seen[f.ID] {
				return errors.New("schema " + s.Type + ": duplicate field id " + f.ID)
			}
			seen[f.ID] = true
			if f.Type == FieldSelect && len(f.Options) == 0 {
				return errors.New("schema " + s.Type + ": select field " + f.ID + " needs options")
			}
		}
	}
	return nil
}

func (r *Registry) Get(equipmentType string) (ModuleSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[equipmentType]
	if !ok {
		return ModuleSchema{}, ErrSchemaNotFound
	}
	return s, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
