// Package transform maps values between their wire representation (what the
// backend sends and expects) and their widget representation (what an input
// control holds).
//
// Hydrate runs when a form opens, Serialize right before a submission is
// handed to the transport. For every widget kind except file and datetime,
// Serialize(Hydrate(x)) == x provided select and multiSelect values match an
// entry of the field's options. Datetime controls hold minute precision, so a
// datetime round trip is exact only for wire values already in
// WireDatetimeLayout with zero seconds; otherwise seconds are dropped and the
// value comes back in WireDatetimeLayout.
package transform

import (
	"mime/multipart"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"

	"rocket-console/internal/schema"
)

// ValueMap is the live state of an open form keyed by Field.Key().
type ValueMap map[string]any

// Clone returns a shallow copy; slices are copied one level deep so the copy
// can be edited without touching the original.
func (v ValueMap) Clone() ValueMap {
	out := make(ValueMap, len(v))
	for k, val := range v {
		if s, ok := val.([]any); ok {
			cp := make([]any, len(s))
			copy(cp, s)
			val = cp
		}
		out[k] = val
	}
	return out
}

// Codec carries the location used to present datetimes as wall-clock time.
type Codec struct {
	Location *time.Location
}

func NewCodec(loc *time.Location) Codec {
	if loc == nil {
		loc = time.Local
	}
	return Codec{Location: loc}
}

func (c Codec) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Hydrate converts a wire value into the value the field's widget holds.
func (c Codec) Hydrate(wire any, f schema.Field) any {
	switch f.Widget {
	case schema.WidgetSelect:
		return hydrateSelect(wire, f.Options)
	case schema.WidgetMultiSelect:
		return normalizeIDs(wire)
	case schema.WidgetCheckboxGroup:
		if wire == nil {
			return []any{}
		}
		return wire
	case schema.WidgetDatetime:
		return c.localDatetime(wire)
	case schema.WidgetFile:
		// An input cannot be pre-populated with file contents; see Preview.
		return nil
	default:
		return wire
	}
}

// Serialize converts a widget value into what the backend expects.
func (c Codec) Serialize(widget any, f schema.Field) any {
	switch f.Widget {
	case schema.WidgetSelect:
		return coerce(unwrapOption(widget), f.WireType)
	case schema.WidgetMultiSelect:
		ids := normalizeIDs(widget)
		for i, id := range ids {
			ids[i] = coerce(id, f.WireType)
		}
		return ids
	case schema.WidgetDatetime:
		return c.utcDatetime(widget)
	case schema.WidgetFile:
		return widget
	default:
		return coerce(widget, f.WireType)
	}
}

// HydrateAll builds a fresh value map for fields. A field reads row[f.Name]
// when the row carries it and falls back to the field's own default.
func (c Codec) HydrateAll(fields []schema.Field, row schema.Row) ValueMap {
	values := make(ValueMap, len(fields))
	for _, f := range fields {
		wire, ok := row[f.Name]
		if !ok {
			wire = f.Value
		}
		values[f.Key()] = c.Hydrate(wire, f)
	}
	return values
}

// SerializeAll reshapes values into a new wire map keyed by field name. The
// input map is never modified. File fields without a new upload are left out
// so the backend keeps the stored file.
func (c Codec) SerializeAll(fields []schema.Field, values ValueMap) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v := values[f.Key()]
		if f.Widget == schema.WidgetFile && !HasFiles(v) {
			continue
		}
		out[f.Name] = c.Serialize(v, f)
	}
	return out
}

// Preview returns the stored URL(s) of a file field for display next to the
// (always empty) input.
func Preview(f schema.Field, wire any) []string {
	if f.Widget != schema.WidgetFile || wire == nil {
		return nil
	}
	switch v := wire.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		urls := make([]string, 0, len(v))
		for _, item := range v {
			if s := cast.ToString(item); s != "" {
				urls = append(urls, s)
			}
		}
		return urls
	}
	return nil
}

// HasFiles reports whether a file widget value carries at least one upload.
func HasFiles(v any) bool {
	switch files := v.(type) {
	case []*multipart.FileHeader:
		return len(files) > 0
	case *multipart.FileHeader:
		return files != nil
	}
	return false
}

// FindOption returns the option whose value matches v.
func FindOption(opts []schema.Option, v any) (schema.Option, bool) {
	for _, o := range opts {
		if SameValue(o.Value, v) {
			return o, true
		}
	}
	return schema.Option{}, false
}

// SameValue compares two wire scalars, treating 3, 3.0 and "3" as equal.
func SameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	as, errA := cast.ToStringE(a)
	bs, errB := cast.ToStringE(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return as == bs
}

func hydrateSelect(wire any, opts []schema.Option) any {
	if wire == nil {
		return nil
	}
	if o, ok := wire.(schema.Option); ok {
		wire = o.Value
	}
	if m, ok := wire.(map[string]any); ok {
		wire = objectID(m)
	}
	if o, ok := FindOption(opts, wire); ok {
		return o
	}
	return nil
}

func unwrapOption(v any) any {
	switch o := v.(type) {
	case schema.Option:
		return o.Value
	case *schema.Option:
		if o == nil {
			return nil
		}
		return o.Value
	case map[string]any:
		return objectID(o)
	}
	return v
}

// normalizeIDs accepts a scalar, a list of ids, a list of {id} objects or a
// list of options and returns the raw ids.
func normalizeIDs(v any) []any {
	switch s := v.(type) {
	case nil:
		return []any{}
	case []any:
		ids := make([]any, 0, len(s))
		for _, item := range s {
			if id := unwrapOption(item); id != nil {
				ids = append(ids, id)
			}
		}
		return ids
	case []schema.Option:
		ids := make([]any, len(s))
		for i, o := range s {
			ids[i] = o.Value
		}
		return ids
	case []string:
		ids := make([]any, len(s))
		for i, id := range s {
			ids[i] = id
		}
		return ids
	case string:
		if s == "" {
			return []any{}
		}
		return []any{s}
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		ids := make([]any, rv.Len())
		for i := range ids {
			ids[i] = rv.Index(i).Interface()
		}
		return ids
	}
	return []any{unwrapOption(v)}
}

func objectID(m map[string]any) any {
	if id, ok := m["id"]; ok {
		return id
	}
	return m["value"]
}

func coerce(v any, wt schema.WireType) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return v
	}
	switch wt {
	case schema.WireNumber:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return v
		}
		s := strings.TrimSpace(cast.ToString(v))
		if n, err := cast.ToInt64E(s); err == nil {
			return n
		}
		if f, err := cast.ToFloat64E(s); err == nil {
			return f
		}
		if b, ok := v.(bool); ok {
			if b {
				return int64(1)
			}
			return int64(0)
		}
	case schema.WireBoolean:
		if b, err := cast.ToBoolE(v); err == nil {
			return b
		}
	case schema.WireString:
		if s, err := cast.ToStringE(v); err == nil {
			return s
		}
	}
	return v
}
