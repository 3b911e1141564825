package store

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/roach88/docsync/internal/ir"
)

// EncodeBody converts a document to canonical JSON for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func EncodeBody(doc ir.IRObject) ([]byte, error) {
	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return data, nil
}

// DecodeBody parses stored JSON into a document. Numbers are decoded as
// json.Number so integers above 2^53 survive; fractional numbers are
// rejected because documents have no float type.
func DecodeBody(data []byte) (ir.IRObject, error) {
	if len(data) == 0 {
		return ir.IRObject{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}

	v, err := ir.FromGo(raw)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return v.(ir.IRObject), nil
}

// DocID extracts the "_id" string from a document.
func DocID(doc ir.IRObject) (string, error) {
	id, ok := doc["_id"].(ir.IRString)
	if !ok || id == "" {
		return "", fmt.Errorf("document has no string _id")
	}
	return string(id), nil
}

func docType(doc ir.IRObject) string {
	t, _ := doc["_type"].(ir.IRString)
	return string(t)
}
