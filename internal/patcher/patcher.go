// Package patcher edits API definition documents as text, scoped by
// indentation, so that everything outside the touched subsection keeps its
// original bytes.
package patcher

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/plantarium-platform/apisync-go/pkg/models"
	"gopkg.in/yaml.v3"
)

// MatchPolicy decides how many occurrences of a key a mutation rewrites.
type MatchPolicy int

const (
	MatchFirst MatchPolicy = iota
	MatchAll
)

// ParseMatchPolicy maps the configuration value onto a MatchPolicy.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return MatchFirst, nil
	case "all":
		return MatchAll, nil
	}
	return MatchFirst, fmt.Errorf("unknown match policy %q", s)
}

var (
	ErrSectionNotFound   = models.NewNotFoundError("section not found", nil)
	ErrSectionExists     = models.NewValidationError("section already present", nil)
	ErrTargetURLNotFound = models.NewNotFoundError("target-url not found", nil)
)

// DocumentPatcherInterface is the contract used by the reconciler.
type DocumentPatcherInterface interface {
	FindSection(doc []byte, key string) (Section, bool)
	ReplaceSection(doc []byte, key string, content []string) ([]byte, error)
	InsertSection(doc []byte, key string, content []string) ([]byte, error)
	RemoveSection(doc []byte, key string, sink io.Writer) ([]byte, error)
	Verify(doc []byte, key string) error
	UpdateTargetURL(doc []byte, url string) ([]byte, error)
	DetectOperationName(doc []byte, want string) (string, bool)
	DetectSectionKey(doc []byte, operation string) (string, bool)
}

// Patcher implements DocumentPatcherInterface.
type Patcher struct {
	container []string
	policy    MatchPolicy

	mu       sync.Mutex
	inserted map[string]insertion
}

// insertion records what an insert changed around the new key.
type insertion struct {
	created  int    // container levels created, deepest last
	level    int    // index of the existing level whose inline value was rewritten
	original string // that level's line before the rewrite, empty when untouched
	lastLine string // last document line before a line ending was appended
	eol      string // line ending appended to lastLine, empty when none
}

// DefaultContainer is the path holding request schema subsections.
func DefaultContainer() []string {
	return []string{"components", "schemas"}
}

// ParseContainer splits a dotted container path such as "components.schemas".
func ParseContainer(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, ".") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return DefaultContainer()
	}
	return parts
}

// NewPatcher creates a Patcher for the given container path.
func NewPatcher(container []string, policy MatchPolicy) *Patcher {
	if len(container) == 0 {
		container = DefaultContainer()
	}
	return &Patcher{container: container, policy: policy, inserted: make(map[string]insertion)}
}

func (p *Patcher) record(key string, rec insertion) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inserted[key] = rec
}

func (p *Patcher) take(key string) (insertion, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.inserted[key]
	delete(p.inserted, key)
	return rec, ok
}

// FindSection locates the first line matching "key:" and its body.
func (p *Patcher) FindSection(doc []byte, key string) (Section, bool) {
	sections := findSections(splitLines(doc), key)
	if len(sections) == 0 {
		return Section{}, false
	}
	return sections[0], true
}

func (p *Patcher) selected(sections []Section) []Section {
	if p.policy == MatchFirst && len(sections) > 1 {
		return sections[:1]
	}
	return sections
}

// ReplaceSection rewrites the body of key with content, indented one level
// below the key line. Lines outside the rewritten sections are copied as is.
func (p *Patcher) ReplaceSection(doc []byte, key string, content []string) ([]byte, error) {
	lines := splitLines(doc)
	sections := p.selected(findSections(lines, key))
	if len(sections) == 0 {
		return doc, fmt.Errorf("%w: %s", ErrSectionNotFound, key)
	}

	out := make([]string, 0, len(lines)+len(content))
	cursor := 0
	for _, s := range sections {
		eol := lineEnding(lines[s.Start])
		out = append(out, lines[cursor:s.Start]...)
		out = append(out, keyLine(s.Indent, key, eol))
		out = append(out, renderBody(content, s.ChildIndent, eol)...)
		cursor = s.End
	}
	out = append(out, lines[cursor:]...)

	result := joinLines(out)
	if err := p.Verify(result, key); err != nil {
		return doc, err
	}
	return result, nil
}

// locateContainer walks the container path through lines. It returns the
// sections found, in order, and stops at the first missing element.
func (p *Patcher) locateContainer(lines []string) []Section {
	var levels []Section
	start, end, parent := 0, len(lines), -1
	for _, name := range p.container {
		want := blockIndent(lines, start, end, parent)
		re := keyPattern(name)
		idx := -1
		for i := start; i < end; i++ {
			if isBlank(lines[i]) || indentOf(lines[i]) != want {
				continue
			}
			if re.MatchString(lines[i]) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return levels
		}
		s := scanSection(lines, idx)
		levels = append(levels, s)
		start, end, parent = idx+1, s.BodyEnd, s.Indent
	}
	return levels
}

// InsertSection adds key with content under the container path. Missing
// container elements are created; when the container is absent entirely the
// whole structure is appended to the end of the document.
func (p *Patcher) InsertSection(doc []byte, key string, content []string) ([]byte, error) {
	lines := splitLines(doc)
	if len(findSections(lines, key)) > 0 {
		return doc, fmt.Errorf("%w: %s", ErrSectionExists, key)
	}

	eol := "\n"
	if len(lines) > 0 && lineEnding(lines[0]) != "" {
		eol = lineEnding(lines[0])
	}

	levels := p.locateContainer(lines)
	rec := insertion{created: len(p.container) - len(levels)}
	insertAt, indent := len(lines), 0
	if len(levels) > 0 {
		last := levels[len(levels)-1]
		if isEmptyInline(inlineValue(lines[last.Start])) {
			rec.level, rec.original = len(levels)-1, lines[last.Start]
			lines[last.Start] = keyLine(last.Indent, p.container[len(levels)-1], lineEnding(lines[last.Start]))
		}
		insertAt = last.Start + 1
		indent = blockIndent(lines, last.Start+1, last.BodyEnd, last.Indent)
	} else if len(lines) > 0 && lineEnding(lines[len(lines)-1]) == "" {
		rec.lastLine, rec.eol = lines[len(lines)-1], eol
		lines[len(lines)-1] += eol
	}

	var added []string
	for _, name := range p.container[len(levels):] {
		added = append(added, keyLine(indent, name, eol))
		indent += indentUnit
	}
	added = append(added, keyLine(indent, key, eol))
	added = append(added, renderBody(content, indent+indentUnit, eol)...)

	out := make([]string, 0, len(lines)+len(added))
	out = append(out, lines[:insertAt]...)
	out = append(out, added...)
	out = append(out, lines[insertAt:]...)

	result := joinLines(out)
	if err := p.Verify(result, key); err != nil {
		return doc, err
	}
	p.record(key, rec)
	return result, nil
}

// RemoveSection deletes key and its body, writing the removed lines to sink.
// Everything else is kept, except for the container lines and line ending
// that inserting key into this document added; those are taken back.
func (p *Patcher) RemoveSection(doc []byte, key string, sink io.Writer) ([]byte, error) {
	lines := splitLines(doc)
	sections := p.selected(findSections(lines, key))
	if len(sections) == 0 {
		return doc, fmt.Errorf("%w: %s", ErrSectionNotFound, key)
	}

	inside := false
	if levels := p.locateContainer(lines); len(levels) == len(p.container) {
		c := levels[len(levels)-1]
		inside = sections[0].Start > c.Start && sections[0].Start < c.BodyEnd
	}

	out := make([]string, 0, len(lines))
	cursor := 0
	for _, s := range sections {
		out = append(out, lines[cursor:s.Start]...)
		if sink != nil {
			for _, l := range lines[s.Start:s.BodyEnd] {
				if _, err := io.WriteString(sink, l); err != nil {
					return doc, fmt.Errorf("failed to write removed section %s: %w", key, err)
				}
			}
		}
		cursor = s.BodyEnd
	}
	out = append(out, lines[cursor:]...)

	if rec, ok := p.take(key); ok && inside {
		out = p.undoInsertion(out, rec)
	}
	return joinLines(out), nil
}

func isBareEmpty(lines []string, s Section) bool {
	return s.BodyEnd == s.Start+1 && inlineValue(lines[s.Start]) == ""
}

// undoInsertion prunes the container levels an insertion created while they
// are still empty, restores a rewritten inline value and drops an appended
// final line ending.
func (p *Patcher) undoInsertion(lines []string, rec insertion) []string {
	kept := len(p.container) - rec.created
	for i := 0; i < rec.created; i++ {
		levels := p.locateContainer(lines)
		if len(levels) <= kept {
			break
		}
		s := levels[len(levels)-1]
		if !isBareEmpty(lines, s) {
			return lines
		}
		lines = append(lines[:s.Start:s.Start], lines[s.Start+1:]...)
	}

	if rec.original != "" {
		levels := p.locateContainer(lines)
		if len(levels) != rec.level+1 || !isBareEmpty(lines, levels[rec.level]) {
			return lines
		}
		lines[levels[rec.level].Start] = rec.original
	}

	if rec.eol != "" && len(lines) > 0 && lines[len(lines)-1] == rec.lastLine+rec.eol {
		lines[len(lines)-1] = rec.lastLine
	}
	return lines
}

// Verify parses doc and checks that key appears exactly once under the
// container path.
func (p *Patcher) Verify(doc []byte, key string) error {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return models.NewValidationError("patched document does not parse", err)
	}
	container := mappingAt(&root, p.container)
	if container == nil {
		return models.NewValidationError(fmt.Sprintf("container %s missing after patch", strings.Join(p.container, ".")), nil)
	}
	count := 0
	for i := 0; i+1 < len(container.Content); i += 2 {
		if container.Content[i].Value == key {
			count++
		}
	}
	if count != 1 {
		return models.NewValidationError(fmt.Sprintf("expected exactly one %s under %s, found %d", key, strings.Join(p.container, "."), count), nil)
	}
	return nil
}

// mappingAt descends through mapping keys and returns the mapping at path.
func mappingAt(root *yaml.Node, path []string) *yaml.Node {
	node := root
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil
		}
		node = node.Content[0]
	}
	for _, name := range path {
		if node.Kind != yaml.MappingNode {
			return nil
		}
		var next *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == name {
				next = node.Content[i+1]
				break
			}
		}
		if next == nil {
			return nil
		}
		node = next
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	return node
}
