package toon

import (
	"github.com/smartsuite-tools/ssc/internal/types"
)

// Param keys worth sending to a consumer describing a table. Everything
// else in a field's params (colors, icons, widths, help docs) is
// presentation noise.
var paramWhitelist = map[string]bool{
	"required":           true,
	"unique":             true,
	"primary":            true,
	"linked_application": true,
	"entries_allowed":    true,
	"choices":            true,
}

// FilterField reduces a field descriptor to {slug, label, field_type,
// params?}, keeping only the whitelisted params. Choices keep only
// their label and value.
func FilterField(f types.Field) map[string]any {
	out := map[string]any{
		"slug":       f.Slug,
		"label":      f.Label,
		"field_type": f.FieldType,
	}

	params := map[string]any{}
	for k, v := range f.Params {
		if !paramWhitelist[k] {
			continue
		}
		if k == "choices" {
			if filtered := filterChoices(v); filtered != nil {
				params[k] = filtered
			}
			continue
		}
		params[k] = v
	}
	if len(params) > 0 {
		out["params"] = params
	}
	return out
}

// CollapseRichDocs replaces composite rich-document values in a record
// with their HTML payload, so rows served straight from the upstream
// read the same as cached rows. The composite shape is a mapping with
// both "data" and "html" keys; a non-string html collapses to "".
func CollapseRichDocs(rec map[string]any) {
	for k, v := range rec {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if _, hasData := m["data"]; !hasData {
			continue
		}
		htmlVal, hasHTML := m["html"]
		if !hasHTML {
			continue
		}
		s, _ := htmlVal.(string)
		rec[k] = s
	}
}

// FilterStructure applies FilterField to every field in order.
func FilterStructure(structure []types.Field) []map[string]any {
	out := make([]map[string]any, 0, len(structure))
	for _, f := range structure {
		out = append(out, FilterField(f))
	}
	return out
}

func filterChoices(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, c := range list {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		choice := map[string]any{}
		if label, ok := m["label"]; ok {
			choice["label"] = label
		}
		if value, ok := m["value"]; ok {
			choice["value"] = value
		}
		out = append(out, choice)
	}
	return out
}
