// Package frontmatter splits YAML front matter from page sources.
package frontmatter

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the document started with a YAML
// front matter delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("yaml front matter start delimiter found but closing delimiter is missing")

// Split separates `---` delimited front matter from the body.
//
// If the document does not start with a delimiter, had is false and body is the
// full input. Both LF and CRLF line endings are accepted.
func Split(content []byte) (frontmatter []byte, body []byte, had bool, err error) {
	nl := newline(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		return []byte{}, content[start+len(open):], true, nil
	}

	closeSeq := []byte(nl + "---")
	for offset := start; ; {
		idx := bytes.Index(content[offset:], closeSeq)
		if idx < 0 {
			return nil, nil, false, ErrMissingClosingDelimiter
		}
		end := offset + idx + len(nl)
		rest := content[end+3:]
		if len(rest) == 0 {
			return content[start:end], rest, true, nil
		}
		if bytes.HasPrefix(rest, []byte(nl)) {
			return content[start:end], rest[len(nl):], true, nil
		}
		// "---" followed by more text on the same line is part of the YAML.
		offset = end
	}
}

// ParseYAML parses raw YAML front matter (without delimiters) into a map.
func ParseYAML(frontmatter []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(frontmatter)) == 0 {
		return map[string]any{}, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal(frontmatter, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// Parse splits and decodes front matter in one step. Documents without front matter
// yield an empty, non-nil map.
func Parse(content []byte) (map[string]any, []byte, error) {
	fm, body, _, err := Split(content)
	if err != nil {
		return nil, nil, err
	}
	fields, err := ParseYAML(fm)
	if err != nil {
		return nil, nil, err
	}
	return fields, body, nil
}

func newline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
