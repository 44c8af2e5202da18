package schema

import "fmt"

// WidgetKind selects the input control a Field renders as.
type WidgetKind string

const (
	WidgetText          WidgetKind = "text"
	WidgetNumber        WidgetKind = "number"
	WidgetTextarea      WidgetKind = "textarea"
	WidgetPassword      WidgetKind = "password"
	WidgetDate          WidgetKind = "date"
	WidgetDatetime      WidgetKind = "datetime"
	WidgetCheckbox      WidgetKind = "checkbox"
	WidgetCheckboxGroup WidgetKind = "checkboxGroup"
	WidgetSelect        WidgetKind = "select"
	WidgetMultiSelect   WidgetKind = "multiSelect"
	WidgetFile          WidgetKind = "file"
)

var widgetKinds = map[WidgetKind]bool{
	WidgetText: true, WidgetNumber: true, WidgetTextarea: true, WidgetPassword: true,
	WidgetDate: true, WidgetDatetime: true, WidgetCheckbox: true, WidgetCheckboxGroup: true,
	WidgetSelect: true, WidgetMultiSelect: true, WidgetFile: true,
}

// Valid reports whether k is a known widget kind.
func (k WidgetKind) Valid() bool {
	return widgetKinds[k]
}

// IsMultiValued is true for widgets whose value is a list.
func (k WidgetKind) IsMultiValued() bool {
	return k == WidgetMultiSelect || k == WidgetCheckboxGroup || k == WidgetFile
}

// HasOptions is true for widgets that pick from Field.Options.
func (k WidgetKind) HasOptions() bool {
	return k == WidgetSelect || k == WidgetMultiSelect || k == WidgetCheckboxGroup
}

// WireType declares the backend type of a select value when it differs from
// the type of its option values.
type WireType string

const (
	WireDefault WireType = ""
	WireNumber  WireType = "number"
	WireBoolean WireType = "boolean"
	WireString  WireType = "string"
)

// Option is one entry of a select, multi-select or checkbox group.
type Option struct {
	Value any    `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

// OptionSource describes where options are fetched from when they are not
// declared statically.
type OptionSource struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	ValueKey string `yaml:"value_key" json:"value_key"`
	LabelKey string `yaml:"label_key" json:"label_key"`
}

// FieldRule is a single value constraint evaluated after the required check.
type FieldRule struct {
	Operator string `yaml:"operator" json:"operator"` // min, max, min_length, max_length, pattern
	Value    any    `yaml:"value" json:"value"`
	Message  string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Field is the declarative description of one form input.
type Field struct {
	Name         string        `yaml:"name" json:"name"`
	DisplayKey   string        `yaml:"display_key,omitempty" json:"display_key,omitempty"`
	Label        string        `yaml:"label" json:"label"`
	Widget       WidgetKind    `yaml:"widget" json:"widget"`
	Required     bool          `yaml:"required,omitempty" json:"required,omitempty"`
	Value        any           `yaml:"value,omitempty" json:"value,omitempty"`
	Placeholder  string        `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Options      []Option      `yaml:"options,omitempty" json:"options,omitempty"`
	OptionsFrom  *OptionSource `yaml:"options_from,omitempty" json:"options_from,omitempty"`
	LayoutGroup  string        `yaml:"layout_group,omitempty" json:"layout_group,omitempty"`
	ColumnSpan   int           `yaml:"column_span,omitempty" json:"column_span,omitempty"`
	FileAccept   string        `yaml:"file_accept,omitempty" json:"file_accept,omitempty"`
	FileMultiple bool          `yaml:"file_multiple,omitempty" json:"file_multiple,omitempty"`
	WireType     WireType      `yaml:"wire_type,omitempty" json:"wire_type,omitempty"`
	Rules        []FieldRule   `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// Key is the Value Map key for the field: DisplayKey when set, Name otherwise.
func (f Field) Key() string {
	if f.DisplayKey != "" {
		return f.DisplayKey
	}
	return f.Name
}

// Span returns the grid width of the field within its row, clamped to 1..12.
func (f Field) Span() int {
	switch {
	case f.ColumnSpan <= 0:
		return 12
	case f.ColumnSpan > 12:
		return 12
	default:
		return f.ColumnSpan
	}
}

// WithValue returns a copy of the field carrying v as its value.
func (f Field) WithValue(v any) Field {
	f.Value = v
	return f
}

// WithOptions returns a copy of the field with its option list replaced.
func (f Field) WithOptions(opts []Option) Field {
	cp := make([]Option, len(opts))
	copy(cp, opts)
	f.Options = cp
	return f
}

func (f Field) check() error {
	if f.Name == "" {
		return fmt.Errorf("field without name")
	}
	if !f.Widget.Valid() {
		return fmt.Errorf("field %s: unknown widget %q", f.Name, f.Widget)
	}
	if f.Widget != WidgetFile && (f.FileAccept != "" || f.FileMultiple) {
		return fmt.Errorf("field %s: file_accept/file_multiple only apply to file widgets", f.Name)
	}
	if f.OptionsFrom != nil && !f.Widget.HasOptions() {
		return fmt.Errorf("field %s: options_from on a %s widget", f.Name, f.Widget)
	}
	switch f.WireType {
	case WireDefault, WireNumber, WireBoolean, WireString:
	default:
		return fmt.Errorf("field %s: unknown wire_type %q", f.Name, f.WireType)
	}
	return nil
}

// CloneFields copies a field list so per-open augmentation never reaches the
// page schema.
func CloneFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		if f.Options != nil {
			f = f.WithOptions(f.Options)
		}
		out[i] = f
	}
	return out
}
