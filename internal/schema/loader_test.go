package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePages = `
pages:
  - name: readings
    title: Readings
    endpoint: /readings
    row_key: id
    capabilities: {creatable: true, editable: true, deletable: true, toggleable: true, searchable: true}
    toggle_field: is_active
    columns:
      - {key: title, label: Title}
      - {key: is_active, label: Active, toggle: true}
    fields:
      - {name: title, label: Title, widget: text, required: true, layout_group: head, column_span: 8}
      - {name: is_active, display_key: isActive, label: Status, widget: select, wire_type: number,
         options: [{value: 1, label: Active}, {value: 0, label: Inactive}], layout_group: head, column_span: 4}
      - {name: category_id, label: Categories, widget: multiSelect,
         options_from: {endpoint: /categories/all, value_key: id, label_key: name}}
    actions:
      - {label: Words, link: "/pages/words?reading={id}"}
`

func TestParse_ValidPages(t *testing.T) {
	pages, err := Parse([]byte(samplePages))
	require.NoError(t, err)
	require.Len(t, pages, 1)

	p := pages[0]
	assert.Equal(t, "readings", p.Name)
	assert.Equal(t, "id", p.RowKey)
	require.Len(t, p.Fields, 3)
	assert.Equal(t, "isActive", p.Fields[1].Key())
	assert.Equal(t, WireNumber, p.Fields[1].WireType)
	assert.Equal(t, 4, p.Fields[1].Span())
	assert.Equal(t, 12, p.Fields[2].Span())
	assert.Equal(t, "/categories/all", p.Fields[2].OptionsFrom.Endpoint)

	actions := p.CustomActions()
	require.Len(t, actions, 1)
	assert.Equal(t, "/pages/words?reading=7", actions[0].Link(Row{"id": 7}))
}

func TestParse_RejectsMissingRowKey(t *testing.T) {
	_, err := Parse([]byte(`
pages:
  - name: users
    endpoint: /users
    fields: []
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row_key")
}

func TestParse_RejectsUnknownWidget(t *testing.T) {
	_, err := Parse([]byte(`
pages:
  - name: users
    endpoint: /users
    row_key: id
    fields:
      - {name: avatar, label: Avatar, widget: colour}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown widget")
}

func TestParse_RejectsFileOptionsOnText(t *testing.T) {
	_, err := Parse([]byte(`
pages:
  - name: users
    endpoint: /users
    row_key: id
    fields:
      - {name: avatar, label: Avatar, widget: text, file_multiple: true}
`))
	require.Error(t, err)
}

func TestParse_RejectsDuplicateKeys(t *testing.T) {
	_, err := Parse([]byte(`
pages:
  - name: users
    endpoint: /users
    row_key: id
    fields:
      - {name: a, display_key: x, label: A, widget: text}
      - {name: x, label: X, widget: text}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate field key")
}

func TestLoadFile_PopulatesRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePages), 0o644))

	reg := NewRegistry()
	require.NoError(t, LoadFile(path, reg))
	require.NotNil(t, reg.GetPage("readings"))
	assert.Nil(t, reg.GetPage("users"))
	assert.Equal(t, []string{"readings"}, reg.Names())
}

func TestFieldWithOptions_DoesNotShareBacking(t *testing.T) {
	f := Field{Name: "role", Widget: WidgetSelect, Options: []Option{{Value: 1, Label: "Admin"}}}
	clone := f.WithOptions(f.Options)
	clone.Options[0].Label = "Changed"
	assert.Equal(t, "Admin", f.Options[0].Label)

	fields := CloneFields([]Field{f})
	fields[0].Options[0].Label = "Other"
	assert.Equal(t, "Admin", f.Options[0].Label)
}

func TestExpandLink(t *testing.T) {
	assert.Equal(t, "/a/3/b/x", ExpandLink("/a/{id}/b/{slug}", Row{"id": 3, "slug": "x"}))
	assert.Equal(t, "/a/{unterminated", ExpandLink("/a/{unterminated", Row{}))
	assert.Equal(t, "/a/", ExpandLink("/a/{missing}", Row{}))
}

func TestPage_EndpointPaths(t *testing.T) {
	p := &Page{Endpoint: "/books/"}
	assert.Equal(t, "/books/list", p.ListPath())
	assert.Equal(t, "/books/import", p.ImportPath())

	p.ListLink = "/search"
	p.ImportLink = "/bulk"
	assert.Equal(t, "/books/search", p.ListPath())
	assert.Equal(t, "/books/bulk", p.ImportPath())
}
