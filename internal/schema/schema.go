// Package schema describes the label columns produced for each face crop.
//
// The accessory list is resolved once at startup and never changes during a
// run. It drives the CSV header, the system prompt, the structured output
// format requested from the model, and decoding of the model's answer.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// IdentityColumns precede the label columns in every output row.
var IdentityColumns = []string{"filename", "person_id", "xmin", "ymin", "xmax", "ymax"}

// ErrInvalid is returned for unusable field lists.
var ErrInvalid = errors.New("invalid schema")

// ErrDecode is returned when a model answer cannot be mapped onto the fields.
var ErrDecode = errors.New("decode labels")

// Field is one binary label.
type Field struct {
	Name        string
	Description string
}

// Schema is the ordered set of label fields.
type Schema struct {
	Fields []Field
}

// New validates fields and returns a Schema that owns a copy of them.
func New(fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no accessories configured", ErrInvalid)
	}
	reserved := make(map[string]struct{}, len(IdentityColumns))
	for _, col := range IdentityColumns {
		reserved[col] = struct{}{}
	}
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: field %d has no name", ErrInvalid, i)
		}
		if _, ok := reserved[name]; ok {
			return nil, fmt.Errorf("%w: %q collides with an identity column", ErrInvalid, name)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalid, name)
		}
		seen[name] = struct{}{}
	}
	return &Schema{Fields: append([]Field(nil), fields...)}, nil
}

// Names returns the label field names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Columns returns the full CSV header.
func (s *Schema) Columns() []string {
	cols := make([]string, 0, len(IdentityColumns)+len(s.Fields))
	cols = append(cols, IdentityColumns...)
	return append(cols, s.Names()...)
}

// SystemMessage builds the instruction enumerating every accessory.
func (s *Schema) SystemMessage() string {
	var b strings.Builder
	b.WriteString("You are FABLE, a vision-language model for face accessory labeling.\n")
	b.WriteString("Given an image of a person face, determine if the following accessories are present:\n")
	for i, f := range s.Fields {
		fmt.Fprintf(&b, "\n%d. %s: %s.", i+1, f.Name, f.Description)
	}
	return b.String()
}

// JSONSchema returns the structured output format: an object with one
// required integer property per field.
func (s *Schema) JSONSchema() json.RawMessage {
	type property struct {
		Type        string `json:"type"`
		Description string `json:"description,omitempty"`
	}
	props := make(map[string]property, len(s.Fields))
	for _, f := range s.Fields {
		props[f.Name] = property{Type: "integer", Description: f.Description}
	}
	doc := struct {
		Type       string              `json:"type"`
		Properties map[string]property `json:"properties"`
		Required   []string            `json:"required"`
	}{
		Type:       "object",
		Properties: props,
		Required:   s.Names(),
	}
	data, _ := json.Marshal(doc)
	return data
}

// Decode maps a JSON object onto the fields in order. Missing fields default
// to 0. Values must be integers; booleans are accepted as 0/1.
func (s *Schema) Decode(raw []byte) ([]int, error) {
	raw = bytes.TrimSpace(raw)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	labels := make([]int, len(s.Fields))
	for i, f := range s.Fields {
		value, ok := obj[f.Name]
		if !ok {
			continue
		}
		n, err := decodeInt(value)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrDecode, f.Name, err)
		}
		labels[i] = n
	}
	return labels, nil
}

func decodeInt(value json.RawMessage) (int, error) {
	switch string(value) {
	case "null":
		return 0, nil
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(value, &n); err != nil {
		return 0, fmt.Errorf("not a number: %s", value)
	}
	i, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("not an integer: %s", value)
		}
		i = int64(f)
	}
	return int(i), nil
}
