package patcher

import (
	_ "embed"
	"strings"

	"github.com/plantarium-platform/apisync-go/pkg/models"
)

// SchemaPlaceholder must stand alone on its template line; the schema lines
// are emitted at that line's indentation.
const SchemaPlaceholder = "{{REQUEST_SCHEMA}}"

//go:embed templates/api.yaml
var defaultTemplate []byte

// DefaultTemplate returns a copy of the built-in API definition template.
func DefaultTemplate() []byte {
	return append([]byte(nil), defaultTemplate...)
}

// TemplateValues are substituted into the API definition template.
type TemplateValues struct {
	ServiceName   string
	APIName       string
	OperationName string
	TargetURL     string
	Version       string
}

// Render fills the template placeholders and expands the schema placeholder line.
func Render(template []byte, values TemplateValues, schema []string) ([]byte, error) {
	replacer := strings.NewReplacer(
		"{{SERVICE_NAME}}", values.ServiceName,
		"{{API_NAME}}", values.APIName,
		"{{OPERATION_NAME}}", values.OperationName,
		"{{TARGET_URL}}", inlineScalar(values.TargetURL),
		"{{API_VERSION}}", values.Version,
	)

	lines := splitLines(template)
	out := make([]string, 0, len(lines)+len(schema))
	found := false
	for _, line := range lines {
		if strings.TrimSpace(line) == SchemaPlaceholder {
			found = true
			out = append(out, renderBody(schema, indentOf(line), lineEnding(line))...)
			continue
		}
		out = append(out, replacer.Replace(line))
	}
	if !found {
		return nil, models.NewValidationError("template has no "+SchemaPlaceholder+" line", nil)
	}
	return joinLines(out), nil
}
