package util

import (
	"strings"

	"github.com/OFFIS-RIT/kiwi/graphmerge/pkg/common"
)

// SanitizeText drops invalid UTF-8 and NUL bytes. Postgres rejects both in
// text and jsonb columns.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// SanitizeValue applies SanitizeText to every string inside v.
func SanitizeValue(v common.Value) common.Value {
	switch v.Kind() {
	case common.KindString:
		s, _ := v.AsString()
		return common.String(SanitizeText(s))
	case common.KindList:
		items, _ := v.AsList()
		out := make([]common.Value, len(items))
		for i, item := range items {
			out[i] = SanitizeValue(item)
		}
		return common.List(out...)
	case common.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]common.Value, len(m))
		for k, item := range m {
			out[SanitizeText(k)] = SanitizeValue(item)
		}
		return common.Map(out)
	default:
		return v
	}
}

// SanitizeProperties returns a sanitized copy of p.
func SanitizeProperties(p common.Properties) common.Properties {
	if p == nil {
		return nil
	}
	out := make(common.Properties, len(p))
	for k, v := range p {
		out[SanitizeText(k)] = SanitizeValue(v)
	}
	return out
}
