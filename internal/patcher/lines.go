package patcher

import (
	"regexp"
	"strings"
)

const indentUnit = 2

// splitLines splits doc into lines that keep their terminators, so joining
// them again reproduces the input byte for byte.
func splitLines(doc []byte) []string {
	if len(doc) == 0 {
		return nil
	}
	lines := strings.SplitAfter(string(doc), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func joinLines(lines []string) []byte {
	return []byte(strings.Join(lines, ""))
}

func indentOf(line string) int {
	n := 0
	for _, c := range line {
		if c != ' ' && c != '\t' {
			break
		}
		n++
	}
	return n
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

func lineEnding(line string) string {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return "\r\n"
	case strings.HasSuffix(line, "\n"):
		return "\n"
	}
	return ""
}

func keyPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`^\s*` + regexp.QuoteMeta(key) + `:(\s|$)`)
}

func keyLine(indent int, key, eol string) string {
	if eol == "" {
		eol = "\n"
	}
	return strings.Repeat(" ", indent) + key + ":" + eol
}

// inlineValue returns what follows "key:" on a mapping line.
func inlineValue(line string) string {
	trimmed := strings.TrimSpace(line)
	idx := strings.Index(trimmed, ":")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(trimmed[idx+1:])
}

func isEmptyInline(value string) bool {
	switch value {
	case "{}", "~", "null":
		return true
	}
	return false
}

// renderBody indents every non-empty content line by indent spaces.
func renderBody(content []string, indent int, eol string) []string {
	if eol == "" {
		eol = "\n"
	}
	pad := strings.Repeat(" ", indent)
	out := make([]string, 0, len(content))
	for _, c := range content {
		c = strings.TrimRight(c, "\r\n")
		if strings.TrimSpace(c) == "" {
			continue
		}
		out = append(out, pad+c+eol)
	}
	return out
}

// Section is a located key line and the nested body beneath it.
type Section struct {
	Key         string
	Start       int // index of the key line
	BodyEnd     int // exclusive end of the body, trailing blank lines excluded
	End         int // exclusive end of the body, trailing blank lines included
	Indent      int
	ChildIndent int // indentation of the body, or Indent+2 when the body is empty
}

// scanSection applies the boundary rule: the body is every following line
// indented deeper than the key line, plus blank lines, up to the first
// non-blank line at the same or a shallower indentation.
func scanSection(lines []string, start int) Section {
	indent := indentOf(lines[start])
	s := Section{
		Key:         strings.TrimSuffix(strings.Fields(strings.TrimSpace(lines[start]))[0], ":"),
		Start:       start,
		BodyEnd:     start + 1,
		Indent:      indent,
		ChildIndent: -1,
	}
	j := start + 1
	for j < len(lines) {
		if isBlank(lines[j]) {
			j++
			continue
		}
		if indentOf(lines[j]) <= indent {
			break
		}
		if s.ChildIndent < 0 {
			s.ChildIndent = indentOf(lines[j])
		}
		j++
		s.BodyEnd = j
	}
	s.End = j
	if s.ChildIndent < 0 {
		s.ChildIndent = indent + indentUnit
	}
	return s
}

func findSections(lines []string, key string) []Section {
	re := keyPattern(key)
	var sections []Section
	for i := 0; i < len(lines); i++ {
		if !re.MatchString(lines[i]) {
			continue
		}
		s := scanSection(lines, i)
		s.Key = key
		sections = append(sections, s)
		i = s.End - 1
	}
	return sections
}

// blockIndent is the indentation of the direct children in lines[start:end].
func blockIndent(lines []string, start, end, parentIndent int) int {
	min := -1
	for i := start; i < end; i++ {
		if isBlank(lines[i]) || isComment(lines[i]) {
			continue
		}
		if n := indentOf(lines[i]); min < 0 || n < min {
			min = n
		}
	}
	if min >= 0 {
		return min
	}
	if parentIndent < 0 {
		return 0
	}
	return parentIndent + indentUnit
}
