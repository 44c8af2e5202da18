package transform

import (
	"strings"
	"time"
)

const (
	// WidgetDatetimeLayout is the value format of a datetime-local input.
	WidgetDatetimeLayout = "2006-01-02T15:04"
	// WireDatetimeLayout is the UTC ISO 8601 form the backend stores.
	WireDatetimeLayout = "2006-01-02T15:04:05.000Z"
)

var wireLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// localDatetime turns a wire timestamp into the wall-clock string shown by the
// control. Values that do not parse are returned unchanged.
func (c Codec) localDatetime(wire any) any {
	switch v := wire.(type) {
	case nil:
		return ""
	case time.Time:
		return v.In(c.loc()).Format(WidgetDatetimeLayout)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return ""
		}
		t, ok := parseWire(s)
		if !ok {
			return v
		}
		return t.In(c.loc()).Format(WidgetDatetimeLayout)
	}
	return wire
}

// utcDatetime interprets the control's wall-clock string in the codec's
// location and renders it as UTC ISO 8601.
func (c Codec) utcDatetime(widget any) any {
	switch v := widget.(type) {
	case nil:
		return nil
	case time.Time:
		return v.UTC().Format(WireDatetimeLayout)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return ""
		}
		if t, err := time.ParseInLocation(WidgetDatetimeLayout, s, c.loc()); err == nil {
			return t.UTC().Format(WireDatetimeLayout)
		}
		if t, ok := parseWire(s); ok {
			return t.UTC().Format(WireDatetimeLayout)
		}
		return v
	}
	return widget
}

// parseWire accepts the timestamp shapes backends commonly emit. Layouts
// without a zone are read as UTC.
func parseWire(s string) (time.Time, bool) {
	for _, layout := range wireLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
