// Package schema implements the restricted JSON-Schema dialect used to
// describe workflow inputs and outputs, the field-level compatibility
// checker behind pipeline composition, and the runtime value coercion that
// bridges mismatched field types between steps.
package schema

import (
	"encoding/json"
	"fmt"
)

// Property describes one field of a workflow input or output document.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Document is the restricted dialect: a type, optional named properties and
// an optional required list. Anything richer (nested schemas, refs, enums)
// is outside the dialect and rejected by meta-validation.
type Document struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Parse validates raw against the dialect meta-schema and decodes it.
func Parse(raw []byte) (*Document, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty schema document")
	}
	if err := ValidateDocument(raw); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode schema document: %w", err)
	}
	return &doc, nil
}

// IsRequired reports whether name is in the document's required list.
func (d *Document) IsRequired(name string) bool {
	for _, r := range d.Required {
		if r == name {
			return true
		}
	}
	return false
}
