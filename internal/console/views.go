package console

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/gofiber/fiber/v2"

	"rocket-console/internal/form"
	"rocket-console/internal/listfetch"
	"rocket-console/internal/notify"
	"rocket-console/internal/schema"
	"rocket-console/internal/table"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = []string{"index", "list", "form", "login", "activity", "error"}

// Views renders the embedded templates. Each page template is parsed
// together with the shared layout.
type Views struct {
	pages map[string]*template.Template
}

// NewViews parses every page template.
func NewViews() (*Views, error) {
	funcs := template.FuncMap{
		"add": func(a, b int) int { return a + b },
	}
	v := &Views{pages: make(map[string]*template.Template, len(pageTemplates))}
	for _, name := range pageTemplates {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// Render executes the named page template into the response.
func (v *Views) Render(c *fiber.Ctx, status int, name string, data any) error {
	t, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %s", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(buf.Bytes())
}

type baseView struct {
	Title    string
	Operator string
	Nav      []navItem
	Toasts   []notify.Message
	InFlight int64
}

type navItem struct {
	Name   string
	Title  string
	Active bool
}

type indexView struct {
	baseView
	Pages []*schema.Page
}

type listView struct {
	baseView
	Page         *schema.Page
	Caps         schema.Capabilities
	Columns      []columnView
	Rows         []rowView
	Actions      []string
	Search       string
	Params       listfetch.Params
	TotalRecords int
	TotalPages   int
	Error        string
	Loaded       bool
	PrevHref     template.URL
	NextHref     template.URL
	Selected     int
	HasForm      bool
}

type columnView struct {
	Key      string
	Label    string
	Width    string
	Sortable bool
	Sorted   table.Direction
}

type rowView struct {
	ID       string
	Cells    []table.Cell
	Selected bool
	On       bool
}

type formView struct {
	baseView
	Page     *schema.Page
	Title    string
	Mode     form.Mode
	Action   string
	Rows     []formRowView
	FormErr  string
	HasFiles bool
}

type formRowView struct {
	Fields []fieldView
}

type fieldView struct {
	Key         string
	Label       string
	Widget      schema.WidgetKind
	Required    bool
	Placeholder string
	Value       string
	Checked     bool
	Options     []optionView
	Error       string
	Previews    []string
	Span        int
	Accept      string
	Multiple    bool
}

type optionView struct {
	Value    string
	Label    string
	Selected bool
}

type loginView struct {
	baseView
	Email   string
	Message string
}

type activityView struct {
	baseView
	Columns []columnView
	Rows    []rowView
}

type errorView struct {
	baseView
	Err *AppError
}

func (s *Console) base(ws *Workspace, title, active string) baseView {
	b := baseView{Title: title, InFlight: s.busy.Count()}
	for _, p := range s.registry.AllPages() {
		b.Nav = append(b.Nav, navItem{Name: p.Name, Title: pageTitle(p), Active: p.Name == active})
	}
	if ws != nil {
		b.Operator = ws.Operator
		b.Toasts = ws.Toasts.Drain()
	}
	return b
}

func (s *Console) loginView(c *fiber.Ctx, status int, email, message string) error {
	return s.views.Render(c, status, "login", loginView{
		baseView: baseView{Title: "Sign in"},
		Email:    email,
		Message:  message,
	})
}

func pageTitle(p *schema.Page) string {
	if p.Title != "" {
		return p.Title
	}
	return p.Name
}
