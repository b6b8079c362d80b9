package patcher

import "strings"

const targetURLKey = "target-url:"

func isBlockIndicator(v string) bool {
	switch v {
	case "|", "|-", "|+", ">", ">-", ">+":
		return true
	}
	return false
}

// nextDeeper returns the index of the first non-blank line after i when it is
// indented deeper than line i, or -1.
func nextDeeper(lines []string, i int) int {
	indent := indentOf(lines[i])
	for j := i + 1; j < len(lines); j++ {
		if isBlank(lines[j]) {
			continue
		}
		if indentOf(lines[j]) > indent {
			return j
		}
		return -1
	}
	return -1
}

// inlineScalar renders url for an inline mapping value. It is single quoted
// when a plain scalar would be cut short by a comment or read as a mapping,
// flow collection or other indicator.
func inlineScalar(url string) string {
	if url == "" {
		return "''"
	}
	quote := strings.ContainsAny(url[:1], "-?:,[]{}#&*!|>'\"%@` \t") ||
		strings.HasSuffix(url, ":") || strings.HasSuffix(url, " ") ||
		strings.Contains(url, ": ") || strings.Contains(url, " #") ||
		strings.ContainsAny(url, "\t\r\n")
	if !quote {
		return url
	}
	return "'" + strings.ReplaceAll(url, "'", "''") + "'"
}

func replaceScalarLine(line, url string) string {
	return line[:indentOf(line)] + url + lineEnding(line)
}

// UpdateTargetURL sets every target-url leaf in doc to url. It understands
// an inline value, a nested "value:" key with an inline or block scalar, and
// a block scalar indicator directly on the target-url line.
func (p *Patcher) UpdateTargetURL(doc []byte, url string) ([]byte, error) {
	lines := splitLines(doc)
	updated := 0

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimLeft(line, " \t")
		prefix := line[:len(line)-len(trimmed)]
		if strings.HasPrefix(trimmed, "- ") {
			prefix += "- "
			trimmed = trimmed[2:]
		}
		if !strings.HasPrefix(trimmed, targetURLKey) {
			continue
		}
		rest := strings.TrimSpace(trimmed[len(targetURLKey):])

		switch {
		case rest == "":
			if p.updateNestedValue(lines, i, url) {
				updated++
			}
		case isBlockIndicator(rest):
			if j := nextDeeper(lines, i); j >= 0 {
				lines[j] = replaceScalarLine(lines[j], url)
				updated++
			}
		default:
			lines[i] = prefix + targetURLKey + " " + inlineScalar(url) + lineEnding(line)
			updated++
		}
	}

	if updated == 0 {
		return doc, ErrTargetURLNotFound
	}
	return joinLines(lines), nil
}

// updateNestedValue rewrites the "value:" child of the mapping opened at line i.
func (p *Patcher) updateNestedValue(lines []string, i int, url string) bool {
	s := scanSection(lines, i)
	for j := s.Start + 1; j < s.BodyEnd; j++ {
		trimmed := strings.TrimSpace(lines[j])
		if !strings.HasPrefix(trimmed, "value:") || indentOf(lines[j]) != s.ChildIndent {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "value:"))
		if isBlockIndicator(rest) || rest == "" {
			k := nextDeeper(lines, j)
			if k < 0 {
				return false
			}
			lines[k] = replaceScalarLine(lines[k], url)
			return true
		}
		lines[j] = lines[j][:indentOf(lines[j])] + "value: " + inlineScalar(url) + lineEnding(lines[j])
		return true
	}
	return false
}
