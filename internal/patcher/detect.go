package patcher

import (
	"strings"

	"gopkg.in/yaml.v3"
)

const requestSuffix = "Request"

// DetectSectionKey inspects the schema container of doc for keys ending in
// "Request", in any case, and returns the key exactly as it is spelled in doc.
// A key whose prefix equals operation, ignoring case, wins over other candidates.
func (p *Patcher) DetectSectionKey(doc []byte, operation string) (string, bool) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return "", false
	}
	container := mappingAt(&root, p.container)
	if container == nil {
		return "", false
	}

	var candidates []string
	for i := 0; i+1 < len(container.Content); i += 2 {
		key := container.Content[i].Value
		if len(key) > len(requestSuffix) && strings.EqualFold(key[len(key)-len(requestSuffix):], requestSuffix) {
			candidates = append(candidates, key)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	for _, c := range candidates {
		if strings.EqualFold(operationOf(c), operation) {
			return c, true
		}
	}
	return candidates[0], true
}

// DetectOperationName returns the operation prefix of the key found by
// DetectSectionKey.
func (p *Patcher) DetectOperationName(doc []byte, want string) (string, bool) {
	key, ok := p.DetectSectionKey(doc, want)
	if !ok {
		return "", false
	}
	return operationOf(key), true
}

func operationOf(key string) string {
	return key[:len(key)-len(requestSuffix)]
}

// SectionKey is the schema subsection key for an operation.
func SectionKey(operation string) string {
	return operation + requestSuffix
}
