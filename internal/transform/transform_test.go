package transform

import (
	"mime/multipart"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocket-console/internal/schema"
)

var categories = []schema.Option{
	{Value: 3, Label: "Fiction"},
	{Value: 5, Label: "Science"},
	{Value: 8, Label: "History"},
}

func TestSelect_RoundTrip(t *testing.T) {
	c := NewCodec(time.UTC)
	f := schema.Field{Name: "category", Widget: schema.WidgetSelect, Options: categories}

	for _, wire := range []any{3, 5, 8} {
		hydrated := c.Hydrate(wire, f)
		require.IsType(t, schema.Option{}, hydrated)
		assert.Equal(t, wire, c.Serialize(hydrated, f))
	}
}

func TestSelect_MatchesAcrossNumericTypes(t *testing.T) {
	c := NewCodec(time.UTC)
	f := schema.Field{Name: "category", Widget: schema.WidgetSelect, Options: categories}

	// JSON decoding yields float64, form posts yield strings.
	assert.Equal(t, categories[1], c.Hydrate(float64(5), f))
	assert.Equal(t, categories[1], c.Hydrate("5", f))
	assert.Equal(t, categories[0], c.Hydrate(map[string]any{"id": float64(3), "name": "Fiction"}, f))
}

func TestSelect_UnknownValueIsUnset(t *testing.T) {
	c := NewCodec(time.UTC)
	f := schema.Field{Name: "category", Widget: schema.WidgetSelect, Options: categories}
	assert.Nil(t, c.Hydrate(42, f))
	assert.Nil(t, c.Serialize(c.Hydrate(42, f), f))

	// Options not loaded yet.
	empty := schema.Field{Name: "category", Widget: schema.WidgetSelect}
	assert.Nil(t, c.Hydrate(3, empty))
}

func TestSelect_WireTypeCoercion(t *testing.T) {
	c := NewCodec(time.UTC)
	status := schema.Field{
		Name: "is_active", Widget: schema.WidgetSelect, WireType: schema.WireNumber,
		Options: []schema.Option{{Value: "1", Label: "Active"}, {Value: "0", Label: "Inactive"}},
	}
	assert.Equal(t, int64(1), c.Serialize(schema.Option{Value: "1", Label: "Active"}, status))

	flag := schema.Field{
		Name: "published", Widget: schema.WidgetSelect, WireType: schema.WireBoolean,
		Options: []schema.Option{{Value: "true", Label: "Yes"}, {Value: "false", Label: "No"}},
	}
	assert.Equal(t, false, c.Serialize(schema.Option{Value: "false", Label: "No"}, flag))

	code := schema.Field{Name: "code", Widget: schema.WidgetSelect, WireType: schema.WireString,
		Options: []schema.Option{{Value: 7, Label: "Seven"}}}
	assert.Equal(t, "7", c.Serialize(schema.Option{Value: 7, Label: "Seven"}, code))

	// Without a declared wire type the option value passes through untouched,
	// whatever the field is called.
	role := schema.Field{Name: "role_id", Widget: schema.WidgetSelect,
		Options: []schema.Option{{Value: "2", Label: "Editor"}}}
	assert.Equal(t, "2", c.Serialize(schema.Option{Value: "2", Label: "Editor"}, role))
}

func TestMultiSelect_NormalizesAllWireShapes(t *testing.T) {
	c := NewCodec(time.UTC)
	f := schema.Field{Name: "category_id", Widget: schema.WidgetMultiSelect, Options: categories}

	assert.Equal(t, []any{3}, c.Hydrate(3, f))
	assert.Equal(t, []any{3, 5}, c.Hydrate([]any{3, 5}, f))
	assert.Equal(t, []any{float64(3), float64(5)},
		c.Hydrate([]any{map[string]any{"id": float64(3)}, map[string]any{"id": float64(5)}}, f))
	assert.Equal(t, []any{}, c.Hydrate(nil, f))
}

func TestMultiSelect_RoundTrip(t *testing.T) {
	c := NewCodec(time.UTC)
	f := schema.Field{Name: "category_id", Widget: schema.WidgetMultiSelect, Options: categories}

	wire := []any{3, 5}
	assert.Equal(t, wire, c.Serialize(c.Hydrate(wire, f), f))

	// Option objects unwrap to ids.
	assert.Equal(t, []any{3, 8}, c.Serialize([]schema.Option{categories[0], categories[2]}, f))
}

func TestCheckboxGroup_PassesThrough(t *testing.T) {
	c := NewCodec(time.UTC)
	f := schema.Field{Name: "days", Widget: schema.WidgetCheckboxGroup}
	wire := []any{"mon", "wed"}
	assert.Equal(t, wire, c.Serialize(c.Hydrate(wire, f), f))
}

func TestDatetime_LocalisesAndRestores(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	c := NewCodec(tokyo)
	f := schema.Field{Name: "starts_at", Widget: schema.WidgetDatetime}

	wire := "2024-03-01T22:30:00.000Z"
	local := c.Hydrate(wire, f)
	assert.Equal(t, "2024-03-02T07:30", local)
	assert.Equal(t, wire, c.Serialize(local, f))
}

func TestDatetime_AcceptsOtherWireShapes(t *testing.T) {
	c := NewCodec(time.UTC)
	f := schema.Field{Name: "starts_at", Widget: schema.WidgetDatetime}

	assert.Equal(t, "2024-03-01T22:30", c.Hydrate("2024-03-01T22:30:00Z", f))
	assert.Equal(t, "2024-03-01T22:30", c.Hydrate("2024-03-01 22:30:00", f))
	assert.Equal(t, "2024-03-01T23:30", c.Hydrate("2024-03-02T00:30:00+01:00", f))
	assert.Equal(t, "", c.Hydrate(nil, f))
	assert.Equal(t, "not a date", c.Hydrate("not a date", f))
	assert.Equal(t, "", c.Serialize("", f))
}

func TestDatetime_RoundTripDropsSeconds(t *testing.T) {
	c := NewCodec(time.UTC)
	f := schema.Field{Name: "starts_at", Widget: schema.WidgetDatetime}

	assert.Equal(t, "2024-03-01T22:30:00.000Z", c.Serialize(c.Hydrate("2024-03-01T22:30:45Z", f), f))
	assert.Equal(t, "2024-03-01T22:30:00.000Z", c.Serialize(c.Hydrate("2024-03-01 22:30:00", f), f))
}

func TestFile_HydratesOnlyForPreview(t *testing.T) {
	c := NewCodec(time.UTC)
	f := schema.Field{Name: "cover", Widget: schema.WidgetFile}

	assert.Nil(t, c.Hydrate("https://cdn.example.com/cover.png", f))
	assert.Equal(t, []string{"https://cdn.example.com/cover.png"}, Preview(f, "https://cdn.example.com/cover.png"))
	assert.Nil(t, Preview(schema.Field{Name: "title", Widget: schema.WidgetText}, "x"))

	files := []*multipart.FileHeader{{Filename: "cover.png"}}
	assert.Equal(t, files, c.Serialize(files, f))
}

func TestIdentityWidgets(t *testing.T) {
	c := NewCodec(time.UTC)
	cases := []struct {
		kind schema.WidgetKind
		wire any
	}{
		{schema.WidgetText, "hello"},
		{schema.WidgetNumber, float64(12)},
		{schema.WidgetTextarea, "line\nline"},
		{schema.WidgetPassword, "s3cret"},
		{schema.WidgetDate, "2024-01-31"},
		{schema.WidgetCheckbox, false},
	}
	for _, tc := range cases {
		f := schema.Field{Name: "x", Widget: tc.kind}
		assert.Equal(t, tc.wire, c.Serialize(c.Hydrate(tc.wire, f), f), string(tc.kind))
	}
}

func TestHydrateAll_UsesDisplayKeyAndDefaults(t *testing.T) {
	c := NewCodec(time.UTC)
	fields := []schema.Field{
		{Name: "is_active", DisplayKey: "isActive", Widget: schema.WidgetCheckbox, Value: true},
		{Name: "title", Widget: schema.WidgetText, Value: "untitled"},
	}

	values := c.HydrateAll(fields, schema.Row{"is_active": false})
	assert.Equal(t, ValueMap{"isActive": false, "title": "untitled"}, values)

	values = c.HydrateAll(fields, nil)
	assert.Equal(t, ValueMap{"isActive": true, "title": "untitled"}, values)
}

func TestSerializeAll_DoesNotMutateValues(t *testing.T) {
	c := NewCodec(time.UTC)
	fields := []schema.Field{
		{Name: "category", Widget: schema.WidgetSelect, Options: categories},
		{Name: "tags", DisplayKey: "tagIds", Widget: schema.WidgetMultiSelect, Options: categories},
		{Name: "cover", Widget: schema.WidgetFile},
	}
	values := ValueMap{
		"category": categories[0],
		"tagIds":   []any{categories[1], 8},
		"cover":    nil,
	}
	before := values.Clone()

	wire := c.SerializeAll(fields, values)
	assert.Equal(t, map[string]any{"category": 3, "tags": []any{5, 8}}, wire)
	assert.Equal(t, before, values)
}

func TestSameValue(t *testing.T) {
	assert.True(t, SameValue(3, float64(3)))
	assert.True(t, SameValue("3", 3))
	assert.True(t, SameValue(nil, nil))
	assert.False(t, SameValue(nil, 0))
	assert.False(t, SameValue(3, 4))
}
