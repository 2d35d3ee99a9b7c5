// Package jsonpath extracts values from JSON documents with a small JSONPath
// subset: dotted names, quoted bracket names, array indexes and the [*]
// wildcard, all relative to the root $.
package jsonpath

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNotFound is returned when a path matches nothing.
var ErrNotFound = errors.New("path not found")

// SyntaxError reports a malformed path expression.
type SyntaxError struct {
	Path string
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid JSONPath %q: %s", e.Path, e.Msg)
}

// Extract returns the value at path in body. Strings come back unquoted,
// other scalars as their JSON text, objects and arrays as raw JSON and a
// JSON null as "null".
func Extract(body []byte, path string) (string, error) {
	if len(body) == 0 {
		return "", errors.New("empty JSON document")
	}
	if !gjson.ValidBytes(body) {
		return "", errors.New("invalid JSON document")
	}

	gpath, err := toGJSON(path)
	if err != nil {
		return "", err
	}

	result := gjson.GetBytes(body, gpath)
	if !result.Exists() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// ExtractAll evaluates every named path against body. Values found are
// returned even when some paths fail; the error then names each failure.
func ExtractAll(body []byte, paths map[string]string) (map[string]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(paths))
	var failures []string
	for _, name := range names {
		value, err := Extract(body, paths[name])
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		results[name] = value
	}

	if len(failures) > 0 {
		return results, fmt.Errorf("extraction errors: %s", strings.Join(failures, "; "))
	}
	return results, nil
}

// toGJSON converts a JSONPath expression to gjson path syntax:
// $.users[0]['first.name'] becomes users.0.first\.name.
func toGJSON(path string) (string, error) {
	if !strings.HasPrefix(path, "$") {
		return "", &SyntaxError{Path: path, Msg: "must start with $"}
	}

	rest := path[1:]
	var parts []string
	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			if end == 0 {
				return "", &SyntaxError{Path: path, Msg: "empty name"}
			}
			parts = append(parts, escape(rest[:end]))
			rest = rest[end:]

		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return "", &SyntaxError{Path: path, Msg: "unclosed ["}
			}
			inner := rest[1:end]
			rest = rest[end+1:]

			switch {
			case inner == "*":
				parts = append(parts, "#")
			case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0]:
				parts = append(parts, escape(inner[1:len(inner)-1]))
			default:
				if n, err := strconv.Atoi(inner); err != nil || n < 0 {
					return "", &SyntaxError{Path: path, Msg: fmt.Sprintf("bad index %q", inner)}
				}
				parts = append(parts, inner)
			}

		default:
			return "", &SyntaxError{Path: path, Msg: fmt.Sprintf("unexpected %q", rest[0])}
		}
	}

	if len(parts) == 0 {
		return "@this", nil
	}
	return strings.Join(parts, "."), nil
}

func escape(name string) string {
	if !strings.ContainsAny(name, `.*?|#@\!=<>%`) {
		return name
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteByte(name[i])
	}
	return b.String()
}
