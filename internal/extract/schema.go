package extract

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// extractionSchema is the canonical extraction shape. Every leaf is a
// {value, confidence} pair; a usable extraction carries at least one of
// the canonical groups.
const extractionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "$defs": {
    "field": {
      "type": "object",
      "required": ["value"],
      "properties": {
        "value": {},
        "confidence": {"type": "number", "minimum": 0, "maximum": 1}
      }
    },
    "fieldGroup": {
      "type": "object",
      "additionalProperties": {"$ref": "#/$defs/field"}
    },
    "transaction": {
      "type": "object",
      "properties": {
        "date": {"$ref": "#/$defs/field"},
        "description": {"$ref": "#/$defs/field"},
        "debit": {"$ref": "#/$defs/field"},
        "credit": {"$ref": "#/$defs/field"},
        "balance": {"$ref": "#/$defs/field"}
      }
    }
  },
  "properties": {
    "account": {"$ref": "#/$defs/fieldGroup"},
    "period": {"$ref": "#/$defs/fieldGroup"},
    "bank": {"$ref": "#/$defs/fieldGroup"},
    "balances": {"$ref": "#/$defs/fieldGroup"},
    "transactions": {
      "type": "array",
      "items": {"$ref": "#/$defs/transaction"}
    }
  },
  "anyOf": [
    {"required": ["account"]},
    {"required": ["period"]},
    {"required": ["bank"]},
    {"required": ["balances"]},
    {"required": ["transactions"]}
  ]
}`

var compiledSchema = jsonschema.MustCompileString("extraction.schema.json", extractionSchema)

// ValidateExtraction checks that data matches the canonical extraction
// shape and carries at least one canonical group.
func ValidateExtraction(data map[string]any) error {
	if err := compiledSchema.Validate(toJSONValue(data)); err != nil {
		return fmt.Errorf("extraction shape invalid: %w", err)
	}
	return nil
}

// toJSONValue rewrites the tree with only JSON-native Go types so the
// validator sees what json.Unmarshal would have produced.
func toJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = toJSONValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = toJSONValue(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
