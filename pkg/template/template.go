// Package template resolves {{Node.field}} references against the outputs of earlier nodes.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var referencePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

var bracketIndexPattern = regexp.MustCompile(`\[(\d+)\]`)

// Reference is one {{NodeName.path}} occurrence in a template.
type Reference struct {
	Raw  string
	Expr string
}

// References lists the references found in tpl in order of appearance.
func References(tpl string) []Reference {
	matches := referencePattern.FindAllStringSubmatch(tpl, -1)
	refs := make([]Reference, 0, len(matches))

	for _, m := range matches {
		refs = append(refs, Reference{Raw: m[0], Expr: m[1]})
	}

	return refs
}

// NeedsTemplating checks if a string contains at least one reference.
func NeedsTemplating(input string) bool {
	return referencePattern.MatchString(input)
}

// Resolve substitutes every reference in tpl with the referenced value.
//
// outputs maps a node display name to that node's output. When tpl consists of exactly one
// reference the referenced value is returned as-is, keeping its type. Otherwise a string is
// returned with each value stringified. Unknown nodes or fields resolve to "".
func Resolve(tpl string, outputs map[string]any) any {
	loc := referencePattern.FindStringSubmatchIndex(tpl)
	if loc == nil {
		return tpl
	}

	if loc[0] == 0 && loc[1] == len(tpl) {
		value, ok := Lookup(tpl[loc[2]:loc[3]], outputs)
		if !ok || value == nil {
			return ""
		}

		return value
	}

	return referencePattern.ReplaceAllStringFunc(tpl, func(match string) string {
		expr := referencePattern.FindStringSubmatch(match)[1]

		value, ok := Lookup(expr, outputs)
		if !ok {
			return ""
		}

		return Stringify(value)
	})
}

// ResolveConfig interpolates the string values of config and returns a new map.
// Numbers, booleans, objects and arrays pass through untouched.
func ResolveConfig(config map[string]any, outputs map[string]any) map[string]any {
	resolved := make(map[string]any, len(config))

	for key, value := range config {
		if s, ok := value.(string); ok {
			resolved[key] = Resolve(s, outputs)

			continue
		}

		resolved[key] = value
	}

	return resolved
}

// Lookup resolves "NodeName.path" against outputs.
// Node names may contain dots or spaces; the longest name present in outputs wins.
func Lookup(expr string, outputs map[string]any) (any, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" || outputs == nil {
		return nil, false
	}

	if value, ok := outputs[expr]; ok {
		return value, true
	}

	for i := len(expr) - 1; i > 0; i-- {
		if expr[i] != '.' {
			continue
		}

		root, ok := outputs[strings.TrimSpace(expr[:i])]
		if !ok {
			continue
		}

		return traverse(root, expr[i+1:])
	}

	return nil, false
}

func traverse(root any, path string) (any, bool) {
	path = bracketIndexPattern.ReplaceAllString(path, ".$1")
	current := root

	for _, segment := range strings.Split(path, ".") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		switch v := current.(type) {
		case map[string]any:
			next, ok := v[segment]
			if !ok {
				return nil, false
			}

			current = next
		case map[string]string:
			next, ok := v[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}

			current = v[i]
		case []map[string]any:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}

			current = v[i]
		case []string:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(v) {
				return nil, false
			}

			current = v[i]
		default:
			return nil, false
		}
	}

	return current, true
}

// Stringify renders a resolved value for embedding inside a larger string.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case json.Number:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(b)
	}
}
