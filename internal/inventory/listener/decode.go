package listener

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-inventory-sync/internal/inventory/dto"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const productSchemaURL = "https://omnipos.schemas.local/inventory/product-update.schema.json"

// productSchema describes one inventory-change message. Unknown fields such
// as createdAt or user are allowed and ignored.
const productSchema = `{
	"type": "object",
	"required": ["_id"],
	"properties": {
		"_id": { "type": "string", "minLength": 1 },
		"name": { "type": "string" },
		"price": {
			"oneOf": [
				{ "type": "number", "minimum": 0 },
				{ "type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$" }
			]
		},
		"category": { "type": "string" },
		"description": { "type": ["string", "null"] },
		"images": {
			"type": "array",
			"items": { "type": "string", "minLength": 1 },
			"uniqueItems": true
		},
		"countInStock": { "type": "integer", "minimum": 0 },
		"rating": { "type": "number", "minimum": 0, "maximum": 5 },
		"version": { "type": "integer", "minimum": 0 }
	}
}`

// Decoder validates and decodes push messages.
type Decoder struct {
	schema *jsonschema.Schema
}

func NewDecoder() (*Decoder, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(productSchemaURL, strings.NewReader(productSchema)); err != nil {
		return nil, fmt.Errorf("product schema load failed: %w", err)
	}
	compiled, err := c.Compile(productSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("product schema compile failed: %w", err)
	}
	return &Decoder{schema: compiled}, nil
}

// MustNewDecoder panics if the embedded schema does not compile.
func MustNewDecoder() *Decoder {
	d, err := NewDecoder()
	if err != nil {
		panic(err)
	}
	return d
}

// Decode parses a single product representation.
func (d *Decoder) Decode(raw []byte) (dto.ProductPayload, error) {
	var payload dto.ProductPayload
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return payload, fmt.Errorf("empty message")
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return payload, fmt.Errorf("invalid json: %w", err)
	}
	if err := d.schema.Validate(doc); err != nil {
		return payload, fmt.Errorf("schema: %w", err)
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("unmarshal product: %w", err)
	}
	if err := payload.ToModel().Validate(); err != nil {
		return payload, err
	}
	return payload, nil
}
