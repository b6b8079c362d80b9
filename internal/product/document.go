package product

import (
	"fmt"

	"github.com/plantarium-platform/apisync-go/pkg/models"
	"gopkg.in/yaml.v2"
)

// Settings describe the product and its single plan.
type Settings struct {
	Name                string
	Title               string
	Version             string
	APIVersion          string
	ViewVisibility      string
	SubscribeVisibility string
	PlanName            string
	PlanTitle           string
	PlanRateLimit       string
	PlanApproval        bool
}

// ArtifactName is the canonical file name of an API definition.
func ArtifactName(id, version string) string {
	return fmt.Sprintf("%s_%s.yaml", id, version)
}

// ParseAPIRefs returns the keys of the top-level apis mapping in document order.
func ParseAPIRefs(doc []byte) ([]string, error) {
	var root yaml.MapSlice
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, models.NewValidationError("product document does not parse", err)
	}
	for _, item := range root {
		if item.Key != "apis" {
			continue
		}
		if item.Value == nil {
			return nil, nil
		}
		apis, ok := item.Value.(yaml.MapSlice)
		if !ok {
			return nil, models.NewValidationError("product apis is not a mapping", nil)
		}
		ids := make([]string, 0, len(apis))
		for _, api := range apis {
			ids = append(ids, fmt.Sprint(api.Key))
		}
		return ids, nil
	}
	return nil, nil
}

// Render produces the product document. Key order is fixed so that equal
// inputs render to equal bytes.
func Render(s Settings, ids []string) ([]byte, error) {
	apis := make(yaml.MapSlice, 0, len(ids))
	for _, id := range ids {
		apis = append(apis, yaml.MapItem{
			Key:   id,
			Value: yaml.MapSlice{{Key: "$ref", Value: ArtifactName(id, s.APIVersion)}},
		})
	}

	doc := yaml.MapSlice{
		{Key: "product", Value: "1.0.0"},
		{Key: "info", Value: yaml.MapSlice{
			{Key: "name", Value: s.Name},
			{Key: "title", Value: s.Title},
			{Key: "version", Value: s.Version},
		}},
		{Key: "apis", Value: apis},
		{Key: "visibility", Value: yaml.MapSlice{
			{Key: "view", Value: yaml.MapSlice{{Key: "type", Value: s.ViewVisibility}, {Key: "orgs", Value: []string{}}, {Key: "enabled", Value: true}}},
			{Key: "subscribe", Value: yaml.MapSlice{{Key: "type", Value: s.SubscribeVisibility}, {Key: "orgs", Value: []string{}}, {Key: "enabled", Value: true}}},
		}},
		{Key: "plans", Value: yaml.MapSlice{
			{Key: s.PlanName, Value: yaml.MapSlice{
				{Key: "title", Value: s.PlanTitle},
				{Key: "description", Value: s.PlanTitle},
				{Key: "approval", Value: s.PlanApproval},
				{Key: "rate-limits", Value: yaml.MapSlice{
					{Key: "default", Value: yaml.MapSlice{{Key: "value", Value: s.PlanRateLimit}}},
				}},
			}},
		}},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render product %s: %w", s.Name, err)
	}
	return out, nil
}
