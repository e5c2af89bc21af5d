// Package descriptor validates INIT payloads against a JSON schema and
// implements the dotted-path field-selector DSL used by MetricSink.
package descriptor

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/livepeer/pipectl/internal/apierrors"
)

// initSchema is the JSON schema for the INIT command's payload: an
// explicit, validated schema rather than reflecting over struct tags.
const initSchema = `{
  "type": "object",
  "required": ["video_reference", "workflow"],
  "properties": {
    "video_reference": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "workflow": {"type": "object"},
    "buffer_sink_queue_size": {"type": "integer", "minimum": 1},
    "video_record_sink": {"type": "object"},
    "video_metrics_sink": {"type": "object"}
  }
}`

var initSchemaLoader = gojsonschema.NewStringLoader(initSchema)

// ValidateInit validates a raw INIT payload and returns an
// apierrors.APIError of kind INVALID_PAYLOAD on any violation.
func ValidateInit(raw json.RawMessage) error {
	result, err := gojsonschema.Validate(initSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return apierrors.NewInvalidPayload("malformed INIT payload", err)
	}
	if !result.Valid() {
		msg := "INIT payload failed validation: "
		for i, e := range result.Errors() {
			if i > 0 {
				msg += "; "
			}
			msg += e.String()
		}
		return apierrors.NewInvalidPayload(msg, nil)
	}
	return nil
}

// FieldSelector resolves a dotted path (e.g. "predictions.count") into
// a prediction mapping via a small interpreter rather than reflection.
type FieldSelector string

// Resolve walks path through m, returning the leaf value or
// (nil, false) if any segment is missing or not a map.
func (p FieldSelector) Resolve(m map[string]interface{}) (interface{}, bool) {
	segments := splitDotted(string(p))
	var cur interface{} = m
	for _, seg := range segments {
		asMap, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = asMap[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func splitDotted(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// Validate is a convenience wrapper for sanity-checking a raw field
// selector string at config-load time.
func Validate(selector string) error {
	if selector == "" {
		return fmt.Errorf("descriptor: empty field selector")
	}
	return nil
}
