package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// importSchemaURL names the compiled schema resource.
const importSchemaURL = "schema://cohortwatch/event-import.json"

// importSchema describes the payload accepted by DecodeJSON: an array of
// events. new_value may be a string or an integer so that engagement
// flags can be written naturally.
var importSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"entity_id", "event_date", "field", "new_value"},
		"properties": map[string]any{
			"entity_id":  map[string]any{"type": "string", "minLength": 1},
			"event_date": map[string]any{"type": "string", "pattern": `^\d{4}[-/]\d{1,2}[-/]\d{1,2}$`},
			"field":      map[string]any{"type": "string", "minLength": 1},
			"new_value":  map[string]any{"type": []any{"string", "integer"}},
			"source":     map[string]any{"type": "string"},
		},
	},
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// compiledImportSchema compiles the import schema once per process.
func compiledImportSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		// The compiler wants plain JSON values, so round-trip the Go literal.
		b, err := json.Marshal(importSchema)
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			compileErr = fmt.Errorf("parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(importSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(importSchemaURL)
	})
	return compiled, compileErr
}

// DecodeJSON reads a JSON array of events, validating the payload shape
// before decoding. Field whitelisting still happens in Store.Append.
func DecodeJSON(r io.Reader) ([]Event, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	sch, err := compiledImportSchema()
	if err != nil {
		return nil, fmt.Errorf("compile import schema: %w", err)
	}
	if err := sch.Validate(parsed); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var items []struct {
		EntityID  string `json:"entity_id"`
		EventDate string `json:"event_date"`
		Field     string `json:"field"`
		NewValue  any    `json:"new_value"`
		Source    string `json:"source"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	events := make([]Event, 0, len(items))
	for i, it := range items {
		d, err := ParseDate(it.EventDate)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, Event{
			EntityID: it.EntityID,
			Date:     d,
			Field:    it.Field,
			NewValue: formatValue(it.NewValue),
			Source:   it.Source,
		})
	}
	return events, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
