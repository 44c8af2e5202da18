package table

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cast"

	"rocket-console/internal/schema"
)

const truncateAt = 60

// Cell is one rendered table cell.
type Cell struct {
	Text  string
	Image string
	// Toggle cells render as a switch showing On.
	Toggle bool
	On     bool
}

// Format renders v through the column's formatter.
func Format(col schema.Column, v any, loc *time.Location) string {
	if col.Formatter != nil {
		return col.Formatter(v)
	}
	if v == nil {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	switch col.Format {
	case "date":
		if t, ok := asTime(v); ok {
			return t.In(loc).Format("2006-01-02")
		}
	case "datetime":
		if t, ok := asTime(v); ok {
			return t.In(loc).Format("2006-01-02 15:04")
		}
	case "yesno":
		if b, err := cast.ToBoolE(v); err == nil {
			if b {
				return "Yes"
			}
			return "No"
		}
	case "truncate":
		s := cast.ToString(v)
		if utf8.RuneCountInString(s) > truncateAt {
			return string([]rune(s)[:truncateAt]) + "…"
		}
		return s
	case "join":
		return joinValues(v)
	}
	return cast.ToString(v)
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func joinValues(v any) string {
	items, ok := v.([]any)
	if !ok {
		return cast.ToString(v)
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			for _, k := range []string{"name", "label", "title", "id"} {
				if s := cast.ToString(obj[k]); s != "" {
					parts = append(parts, s)
					break
				}
			}
			continue
		}
		parts = append(parts, cast.ToString(item))
	}
	return strings.Join(parts, ", ")
}
