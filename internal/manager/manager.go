package manager

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/plantarium-platform/apisync-go/pkg/models"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// servicesSchema describes the JSON desired-state file.
const servicesSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "API Name": {"type": "string"},
      "Url": {"type": "string"},
      "Schema Location": {"type": "string"},
      "tag": {"type": "string", "enum": ["", "rest", "soap"]}
    }
  }
}`

// ServiceLoaderInterface reads the desired state of a run.
type ServiceLoaderInterface interface {
	LoadServices(path string) ([]models.ServiceSpec, error)
}

// ServiceLoader loads service lists from JSON, YAML or pipe separated text.
type ServiceLoader struct {
	logger *zap.Logger
}

// NewServiceLoader creates a new ServiceLoader.
func NewServiceLoader(logger *zap.Logger) *ServiceLoader {
	return &ServiceLoader{logger: logger}
}

// LoadServices reads the services file at path. The format follows the file
// extension: .json, .yaml/.yml, anything else is read as text lines of
// "name | url | schema".
func (l *ServiceLoader) LoadServices(path string) ([]models.ServiceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewValidationError(fmt.Sprintf("services file %s is not readable", path), err)
	}

	var raw []models.ServiceSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		raw, err = l.parseJSON(data)
	case ".yaml", ".yml":
		raw, err = l.parseYAML(data)
	default:
		raw, err = l.parseText(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load services from %s: %w", path, err)
	}

	services := make([]models.ServiceSpec, 0, len(raw))
	for i, s := range raw {
		s.DisplayName = strings.TrimSpace(s.DisplayName)
		s.BackendURL = strings.TrimSpace(s.BackendURL)
		s.SchemaPath = strings.TrimSpace(s.SchemaPath)
		if s.DisplayName == "" || s.BackendURL == "" {
			l.logger.Warn("Skipping service without name or url", zap.Int("index", i), zap.String("name", s.DisplayName))
			continue
		}
		if s.Tag == "" {
			s.Tag = tagFor(s.SchemaPath)
		}
		services = append(services, s)
	}

	l.logger.Info("Services loaded", zap.String("path", path), zap.Int("count", len(services)))
	return services, nil
}

func (l *ServiceLoader) parseJSON(data []byte) ([]models.ServiceSpec, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(servicesSchema),
		gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, models.NewValidationError("services file is not valid JSON", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, models.NewValidationError("services file does not match the expected layout: "+strings.Join(problems, "; "), nil)
	}

	var services []models.ServiceSpec
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, models.NewValidationError("services file could not be decoded", err)
	}
	return services, nil
}

func (l *ServiceLoader) parseYAML(data []byte) ([]models.ServiceSpec, error) {
	var services []models.ServiceSpec
	if err := yaml.Unmarshal(data, &services); err != nil {
		return nil, models.NewValidationError("services file is not a YAML list", err)
	}
	return services, nil
}

// parseText reads "name | url | schema" lines. Blank lines and # comments are ignored.
func (l *ServiceLoader) parseText(data []byte) ([]models.ServiceSpec, error) {
	var services []models.ServiceSpec
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 2 || len(fields) > 3 {
			l.logger.Warn("Skipping malformed services line", zap.Int("line", lineNo), zap.String("content", line))
			continue
		}
		spec := models.ServiceSpec{
			DisplayName: strings.TrimSpace(fields[0]),
			BackendURL:  strings.TrimSpace(fields[1]),
		}
		if len(fields) == 3 {
			spec.SchemaPath = strings.TrimSpace(fields[2])
		}
		services = append(services, spec)
	}
	if err := scanner.Err(); err != nil {
		return nil, models.NewValidationError(fmt.Sprintf("services file unreadable after line %d", lineNo), err)
	}
	return services, nil
}

func tagFor(schemaPath string) string {
	if strings.Contains(strings.ToLower(schemaPath), "soap") {
		return "soap"
	}
	return "rest"
}

// ValidateUnique fails when two services map onto the same canonical id.
func ValidateUnique(services []models.ServiceSpec) error {
	seen := make(map[string][]string)
	for _, s := range services {
		id := s.CanonicalID()
		seen[id] = append(seen[id], s.DisplayName)
	}

	var collisions []string
	for id, names := range seen {
		if len(names) > 1 {
			collisions = append(collisions, fmt.Sprintf("%s (%s)", id, strings.Join(names, ", ")))
		}
	}
	if len(collisions) == 0 {
		return nil
	}
	sort.Strings(collisions)
	return models.NewValidationError("duplicate canonical ids: "+strings.Join(collisions, "; "), nil)
}
