package models

import (
	"encoding/json"
	"fmt"
)

// Document is a schemaless record held by a document store
type Document map[string]interface{}

// ToDocument converts a JSON-tagged struct into a Document
func ToDocument(v interface{}) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return doc, nil
}

// Decode fills v from the document fields
func (d Document) Decode(v interface{}) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// Clone returns a shallow copy of the document
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge returns a copy of d with fields written over it
func (d Document) Merge(fields Document) Document {
	out := d.Clone()
	if out == nil {
		out = make(Document, len(fields))
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
