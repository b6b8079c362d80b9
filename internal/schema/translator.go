// Package schema turns JSON Schema files into ordered YAML lines suitable for
// embedding in an API definition.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set"
	"github.com/plantarium-platform/apisync-go/pkg/models"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v2"
)

// Document is a translated schema as YAML lines without trailing newlines.
type Document struct {
	Lines []string
}

// Fallback is used when a service declares no schema.
func Fallback() Document {
	return Document{Lines: []string{"type: object", "properties: {}"}}
}

// TranslatorInterface converts a schema file to a Document.
type TranslatorInterface interface {
	Translate(path string) (Document, error)
}

// Translator implements TranslatorInterface.
type Translator struct {
	priority map[string]int
	dropped  mapset.Set
}

var priorityKeys = []string{
	"format", "title", "description", "required", "enum", "default", "example",
	"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum",
	"minLength", "maxLength", "minItems", "maxItems", "pattern",
	"properties", "items", "additionalProperties", "allOf", "oneOf", "anyOf",
}

// NewTranslator creates a Translator with the standard key ordering.
func NewTranslator() *Translator {
	priority := make(map[string]int, len(priorityKeys)+1)
	priority["type"] = 0
	for i, k := range priorityKeys {
		priority[k] = i + 1
	}
	return &Translator{
		priority: priority,
		dropped:  mapset.NewSet("$schema", "$id", "$comment", "definitions", "$defs"),
	}
}

// Translate reads the schema at path. An empty path yields the fallback document.
func (t *Translator) Translate(path string) (Document, error) {
	if strings.TrimSpace(path) == "" {
		return Fallback(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, models.NewValidationError(fmt.Sprintf("schema %s is not readable", path), err)
	}
	doc, err := t.TranslateBytes(raw)
	if err != nil {
		return Document{}, fmt.Errorf("failed to translate schema %s: %w", path, err)
	}
	return doc, nil
}

// TranslateBytes converts raw JSON Schema bytes.
func (t *Translator) TranslateBytes(raw []byte) (Document, error) {
	if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw)); err != nil {
		return Document{}, models.NewValidationError("malformed JSON schema", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return Document{}, models.NewValidationError("malformed JSON schema", err)
	}
	root, ok := value.(map[string]interface{})
	if !ok {
		return Document{}, models.NewValidationError("schema root must be an object", nil)
	}

	out, err := yaml.Marshal(t.orderMap(root))
	if err != nil {
		return Document{}, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return Document{Lines: strings.Split(strings.TrimRight(string(out), "\n"), "\n")}, nil
}

func (t *Translator) rank(key string) int {
	if r, ok := t.priority[key]; ok {
		return r
	}
	return len(t.priority)
}

func (t *Translator) orderMap(m map[string]interface{}) yaml.MapSlice {
	keys := make([]string, 0, len(m))
	for k := range m {
		if !t.dropped.Contains(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := t.rank(keys[i]), t.rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})

	ordered := make(yaml.MapSlice, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, yaml.MapItem{Key: k, Value: t.orderValue(m[k])})
	}
	return ordered
}

func (t *Translator) orderValue(v interface{}) interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		return t.orderMap(value)
	case []interface{}:
		items := make([]interface{}, len(value))
		for i, item := range value {
			items[i] = t.orderValue(item)
		}
		return items
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i
		}
		if f, err := value.Float64(); err == nil {
			return f
		}
		return value.String()
	}
	return v
}
