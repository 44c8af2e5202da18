package schema

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Row is one record of a list as returned by the backend.
type Row = map[string]any

// Column is a projection rule for one table column.
type Column struct {
	Key      string `yaml:"key" json:"key"`
	Label    string `yaml:"label" json:"label"`
	Width    string `yaml:"width,omitempty" json:"width,omitempty"`
	Format   string `yaml:"format,omitempty" json:"format,omitempty"`
	Toggle   bool   `yaml:"toggle,omitempty" json:"toggle,omitempty"`
	Sortable *bool  `yaml:"sortable,omitempty" json:"sortable,omitempty"`

	// Formatter overrides Format when the page is built in code.
	Formatter func(any) string `yaml:"-" json:"-"`
}

// IsSortable defaults to true.
func (c Column) IsSortable() bool {
	return c.Sortable == nil || *c.Sortable
}

// CustomAction is a row-scoped affordance attached to a table.
type CustomAction struct {
	Label   string
	Link    func(Row) string
	OnClick func(Row)
}

// ActionDef is the file form of a CustomAction; Link may carry {field}
// placeholders that are filled from the row.
type ActionDef struct {
	Label string `yaml:"label" json:"label"`
	Link  string `yaml:"link" json:"link"`
}

// Action builds the CustomAction for this definition.
func (d ActionDef) Action() CustomAction {
	tmpl := d.Link
	return CustomAction{
		Label: d.Label,
		Link:  func(r Row) string { return ExpandLink(tmpl, r) },
	}
}

// ExpandLink replaces {field} placeholders in tmpl with row values.
func ExpandLink(tmpl string, r Row) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(tmpl, '{')
		if open < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		end := strings.IndexByte(tmpl[open:], '}')
		if end < 0 {
			b.WriteString(tmpl)
			return b.String()
		}
		b.WriteString(tmpl[:open])
		key := tmpl[open+1 : open+end]
		b.WriteString(cast.ToString(r[key]))
		tmpl = tmpl[open+end+1:]
	}
}

// Check is a cross-field expression evaluated against the whole value map.
// The expression yields true when the record is invalid.
type Check struct {
	Expression string `yaml:"expression" json:"expression"`
	Field      string `yaml:"field,omitempty" json:"field,omitempty"`
	Message    string `yaml:"message" json:"message"`
}

// Capabilities are the table's feature flags.
type Capabilities struct {
	Creatable  bool `yaml:"creatable" json:"creatable"`
	Editable   bool `yaml:"editable" json:"editable"`
	Deletable  bool `yaml:"deletable" json:"deletable"`
	Toggleable bool `yaml:"toggleable" json:"toggleable"`
	Searchable bool `yaml:"searchable" json:"searchable"`
	Importable bool `yaml:"importable" json:"importable"`
	Exportable bool `yaml:"exportable" json:"exportable"`
}

// DeleteTarget overrides the default DELETE {endpoint}/{id}.
type DeleteTarget struct {
	Method string `yaml:"method,omitempty" json:"method,omitempty"`
	URL    string `yaml:"url,omitempty" json:"url,omitempty"`
}

// Page is one list-backed screen: its table schema, form schemas and
// persistence endpoints.
type Page struct {
	Name         string            `yaml:"name" json:"name"`
	Title        string            `yaml:"title" json:"title"`
	Endpoint     string            `yaml:"endpoint" json:"endpoint"`
	RowKey       string            `yaml:"row_key" json:"row_key"`
	PageSize     int               `yaml:"page_size,omitempty" json:"page_size,omitempty"`
	Capabilities Capabilities      `yaml:"capabilities" json:"capabilities"`
	ListLink     string            `yaml:"list_link,omitempty" json:"list_link,omitempty"`
	CreateLink   string            `yaml:"create_link,omitempty" json:"create_link,omitempty"`
	ImportLink   string            `yaml:"import_link,omitempty" json:"import_link,omitempty"`
	Delete       *DeleteTarget     `yaml:"delete,omitempty" json:"delete,omitempty"`
	ToggleField  string            `yaml:"toggle_field,omitempty" json:"toggle_field,omitempty"`
	Columns      []Column          `yaml:"columns" json:"columns"`
	Fields       []Field           `yaml:"fields" json:"fields"`
	EditFields   []Field           `yaml:"edit_fields,omitempty" json:"edit_fields,omitempty"`
	EditRemap    map[string]string `yaml:"edit_remap,omitempty" json:"edit_remap,omitempty"`
	Checks       []Check           `yaml:"checks,omitempty" json:"checks,omitempty"`
	Actions      []ActionDef       `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// CreateFields returns the schema of the create form.
func (p *Page) CreateFields() []Field {
	return p.Fields
}

// UpdateFields returns the schema of the edit form, defaulting to the create
// schema.
func (p *Page) UpdateFields() []Field {
	if len(p.EditFields) > 0 {
		return p.EditFields
	}
	return p.Fields
}

// ListPath is the paginated list endpoint, {endpoint}/list unless
// list_link overrides the suffix.
func (p *Page) ListPath() string {
	return joinLink(p.Endpoint, p.ListLink, "/list")
}

// ImportPath is where uploaded import files are forwarded.
func (p *Page) ImportPath() string {
	return joinLink(p.Endpoint, p.ImportLink, "/import")
}

func joinLink(endpoint, link, def string) string {
	if link == "" {
		link = def
	}
	return strings.TrimRight(endpoint, "/") + link
}

// KeyOf returns the primary key of a row as a string.
func (p *Page) KeyOf(r Row) string {
	return cast.ToString(r[p.RowKey])
}

// CustomActions builds the page's row actions.
func (p *Page) CustomActions() []CustomAction {
	out := make([]CustomAction, len(p.Actions))
	for i, d := range p.Actions {
		out[i] = d.Action()
	}
	return out
}

// Validate checks the page definition for the mistakes the loader rejects.
func (p *Page) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("page without name")
	}
	if p.Endpoint == "" {
		return fmt.Errorf("page %s: endpoint is required", p.Name)
	}
	if p.RowKey == "" {
		return fmt.Errorf("page %s: row_key is required", p.Name)
	}
	if p.Capabilities.Toggleable && p.ToggleField == "" {
		return fmt.Errorf("page %s: toggleable pages need toggle_field", p.Name)
	}
	for _, set := range [][]Field{p.Fields, p.EditFields} {
		seen := make(map[string]bool, len(set))
		for _, f := range set {
			if err := f.check(); err != nil {
				return fmt.Errorf("page %s: %w", p.Name, err)
			}
			if seen[f.Key()] {
				return fmt.Errorf("page %s: duplicate field key %s", p.Name, f.Key())
			}
			seen[f.Key()] = true
		}
	}
	for _, c := range p.Columns {
		if c.Key == "" {
			return fmt.Errorf("page %s: column without key", p.Name)
		}
	}
	return nil
}
