package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"confsched/internal/apperr"
)

// feedSchema describes the day -> room -> event shape. It is kept free of
// $ref so keyword locations in validation errors resolve directly against
// schemaTree.
const feedSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schedule"],
  "properties": {
    "schedule": {
      "type": "object",
      "required": ["conference"],
      "properties": {
        "conference": {
          "type": "object",
          "properties": {
            "title": {"type": "string"},
            "time_zone_name": {"type": "string"},
            "days": {
              "type": "array",
              "items": {
                "type": "object",
                "properties": {
                  "index": {"type": ["number", "string"]},
                  "date": {"type": ["string", "null"]},
                  "rooms": {
                    "type": "object",
                    "additionalProperties": {
                      "type": "array",
                      "items": {
                        "type": "object",
                        "required": ["title"],
                        "properties": {
                          "title": {"type": "string"},
                          "id": {"type": ["string", "number"]},
                          "guid": {"type": "string"},
                          "date": {"type": ["string", "null"]},
                          "start": {"type": ["string", "null"]},
                          "duration": {"type": ["string", "null"]},
                          "room": {"type": ["string", "null"]},
                          "track": {"type": ["string", "null"]},
                          "type": {"type": ["string", "null"]},
                          "language": {"type": ["string", "null"]},
                          "abstract": {"type": ["string", "null"]},
                          "description": {"type": ["string", "null"]},
                          "persons": {"type": "array"}
                        }
                      }
                    }
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var (
	compiledSchema = jsonschema.MustCompileString("feed.schema.json", feedSchema)
	schemaTree     = mustTree(feedSchema)
)

func mustTree(src string) any {
	var tree any
	if err := json.Unmarshal([]byte(src), &tree); err != nil {
		panic(err)
	}
	return tree
}

// Validate checks the day -> room -> event shape and reports every problem
// found, not just the first one. Issues are ordered by path.
func Validate(doc Document) error {
	err := compiledSchema.Validate(doc.tree)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return apperr.Schema("validate feed", []apperr.Issue{{Path: "$", Message: err.Error()}})
	}

	var issues []apperr.Issue
	for _, leaf := range leaves(ve, nil) {
		issues = append(issues, toIssues(leaf, doc.tree)...)
	}
	sortIssues(issues)
	return apperr.Schema("validate feed", issues)
}

func leaves(ve *jsonschema.ValidationError, out []*jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return append(out, ve)
	}
	for _, c := range ve.Causes {
		out = leaves(c, out)
	}
	return out
}

// toIssues rewrites one library error in the feed's own vocabulary:
// dotted instance paths, "required" per missing key, and
// "expected <types>, received <type>".
func toIssues(ve *jsonschema.ValidationError, tree any) []apperr.Issue {
	segs := pointerSegments(ve.InstanceLocation)
	kw := pointerSegments(ve.KeywordLocation)
	if len(kw) == 0 {
		return []apperr.Issue{{Path: dotted(segs), Message: ve.Message}}
	}
	keyword := kw[len(kw)-1]
	node, _ := lookup(schemaTree, kw[:len(kw)-1]).(map[string]any)
	instance := lookup(tree, segs)

	switch keyword {
	case "required":
		obj, _ := instance.(map[string]any)
		names, _ := node["required"].([]any)
		var out []apperr.Issue
		for _, n := range names {
			name, _ := n.(string)
			if _, present := obj[name]; !present {
				out = append(out, apperr.Issue{Path: dotted(append(clone(segs), name)), Message: "required"})
			}
		}
		return out
	case "type":
		return []apperr.Issue{{
			Path:    dotted(segs),
			Message: fmt.Sprintf("expected %s, received %s", describe(node["type"]), typeName(instance)),
		}}
	}
	return []apperr.Issue{{Path: dotted(segs), Message: ve.Message}}
}

// pointerSegments splits a JSON pointer. Library locations may carry a
// leading "#".
func pointerSegments(ptr string) []string {
	ptr = strings.TrimPrefix(ptr, "#")
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return nil
	}
	parts := strings.Split(ptr, "/")
	for i, p := range parts {
		parts[i] = unescapePointer(p)
	}
	return parts
}

func lookup(v any, segs []string) any {
	for _, s := range segs {
		switch c := v.(type) {
		case map[string]any:
			v = c[s]
		case []any:
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 || i >= len(c) {
				return nil
			}
			v = c[i]
		default:
			return nil
		}
	}
	return v
}

func dotted(segs []string) string {
	if len(segs) == 0 {
		return "$"
	}
	return strings.Join(segs, ".")
}

func describe(types any) string {
	switch t := types.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, " | ")
	}
	return "value"
}

func typeName(raw any) string {
	switch raw.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", raw)
	}
}

// sortIssues orders issues by path segment, numeric segments numerically.
func sortIssues(issues []apperr.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := strings.Split(issues[i].Path, "."), strings.Split(issues[j].Path, ".")
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] == b[k] {
				continue
			}
			na, errA := strconv.Atoi(a[k])
			nb, errB := strconv.Atoi(b[k])
			if errA == nil && errB == nil {
				return na < nb
			}
			return a[k] < b[k]
		}
		return len(a) < len(b)
	})
}

func clone(p []string) []string {
	out := make([]string, len(p), len(p)+1)
	copy(out, p)
	return out
}
