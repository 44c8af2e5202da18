package console

import (
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"rocket-console/internal/activity"
	"rocket-console/internal/listfetch"
	"rocket-console/internal/metrics"
	"rocket-console/internal/schema"
	"rocket-console/internal/table"
	"rocket-console/internal/transport"
)

var listQueryKeys = []string{"page", "size", "search", "sort"}

// Index handles GET /.
func (s *Console) Index(c *fiber.Ctx) error {
	ws := getWorkspace(c)
	return s.views.Render(c, fiber.StatusOK, "index", indexView{
		baseView: s.base(ws, "Console", ""),
		Pages:    s.registry.AllPages(),
	})
}

// List handles GET /pages/:page. Query parameters replace the fetch params
// and issue one request; without them the current state is rendered,
// fetching only on the first visit.
func (s *Console) List(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	ps, err := s.pageState(ws, p)
	if err != nil {
		return err
	}

	queries := c.Queries()
	if hasListQuery(queries) {
		next := listfetch.ParseParams(queries, ps.list.Params())
		if err := ps.list.SetParams(c.UserContext(), next); errors.Is(err, transport.ErrSessionExpired) {
			return err
		}
	} else if !ps.list.State().Loaded {
		if err := ps.list.Refresh(c.UserContext()); errors.Is(err, transport.ErrSessionExpired) {
			return err
		}
	}
	return s.renderList(c, fiber.StatusOK, ws, ps)
}

func hasListQuery(q map[string]string) bool {
	for _, k := range listQueryKeys {
		if _, ok := q[k]; ok {
			return true
		}
	}
	for k := range q {
		if strings.HasPrefix(k, "filter[") {
			return true
		}
	}
	return false
}

func (s *Console) renderList(c *fiber.Ctx, status int, ws *Workspace, ps *pageState) error {
	state := ps.list.State()
	sortState := ps.table.Sort()
	rows := ps.table.Sorted(state.Data)

	v := listView{
		baseView:     s.base(ws, pageTitle(ps.page), ps.page.Name),
		Page:         ps.page,
		Caps:         ps.table.Capabilities(),
		Search:       ps.table.SearchTerm(),
		Params:       state.Params,
		TotalRecords: state.TotalRecords,
		TotalPages:   state.TotalPages,
		Error:        state.Error,
		Loaded:       state.Loaded,
		Selected:     len(ps.table.Selected()),
	}
	if m := ws.Forms.Current(); m != nil && m.Page() == ps.page.Name {
		v.HasForm = true
	}
	for _, col := range ps.table.Columns() {
		cv := columnView{Key: col.Key, Label: col.Label, Width: col.Width, Sortable: col.IsSortable()}
		if cv.Label == "" {
			cv.Label = col.Key
		}
		if sortState.Key == col.Key {
			cv.Sorted = sortState.Dir
		}
		v.Columns = append(v.Columns, cv)
	}
	for _, r := range rows {
		id := ps.table.Key(r)
		rv := rowView{ID: id, Selected: ps.table.IsSelected(id)}
		for _, col := range ps.table.Columns() {
			rv.Cells = append(rv.Cells, ps.table.Cell(col, r))
		}
		v.Rows = append(v.Rows, rv)
	}
	for _, a := range ps.table.Actions() {
		v.Actions = append(v.Actions, a.Label)
	}
	if state.Params.Page > 1 {
		v.PrevHref = pageHref(ps.page, state.Params.WithPage(state.Params.Page-1))
	}
	if state.Params.Page < state.TotalPages {
		v.NextHref = pageHref(ps.page, state.Params.WithPage(state.Params.Page+1))
	}
	return s.views.Render(c, status, "list", v)
}

// Search handles POST /pages/:page/search. The submitted term is dispatched
// to the fetch hook on page one.
func (s *Console) Search(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	ps, err := s.pageState(ws, p)
	if err != nil {
		return err
	}
	if !p.Capabilities.Searchable {
		return NotAllowedError(p.Name, "search")
	}
	ps.table.SetSearchTerm(c.FormValue("search"))
	term := ps.table.SubmitSearch()
	if err := ps.list.SetParams(c.UserContext(), ps.list.Params().WithSearch(term)); errors.Is(err, transport.ErrSessionExpired) {
		return err
	}
	return redirectToList(c, p)
}

// Sort handles GET /pages/:page/sort/:key.
func (s *Console) Sort(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	ps, err := s.pageState(ws, p)
	if err != nil {
		return err
	}
	ps.table.ClickHeader(c.Params("key"))
	return redirectToList(c, p)
}

// Select handles POST /pages/:page/rows/:id/select.
func (s *Console) Select(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	ps, err := s.pageState(ws, p)
	if err != nil {
		return err
	}
	ps.table.ToggleSelected(c.Params("id"))
	return redirectToList(c, p)
}

// SelectAll handles POST /pages/:page/select-all.
func (s *Console) SelectAll(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	ps, err := s.pageState(ws, p)
	if err != nil {
		return err
	}
	ps.table.ToggleAll(ps.list.State().Data)
	return redirectToList(c, p)
}

// Delete handles POST /pages/:page/rows/:id/delete. The confirmation dialog
// posts here.
func (s *Console) Delete(c *fiber.Ctx) error {
	return s.mutateRow(c, activity.ActionDelete, func(ps *pageState, row schema.Row) error {
		return ps.table.Delete(c.UserContext(), row)
	})
}

// Toggle handles POST /pages/:page/rows/:id/toggle.
func (s *Console) Toggle(c *fiber.Ctx) error {
	return s.mutateRow(c, activity.ActionToggle, func(ps *pageState, row schema.Row) error {
		return ps.table.ToggleStatus(c.UserContext(), row)
	})
}

func (s *Console) mutateRow(c *fiber.Ctx, action string, fn func(*pageState, schema.Row) error) error {
	ws, p := getWorkspace(c), getPage(c)
	ps, err := s.pageState(ws, p)
	if err != nil {
		return err
	}
	id := c.Params("id")
	row, ok := findRow(ps, id)
	if !ok {
		return RowNotFoundError(p.Name, id)
	}

	started := time.Now()
	err = fn(ps, row)
	if errors.Is(err, table.ErrNotAllowed) {
		return NotAllowedError(p.Name, action)
	}
	s.activity.Record(activity.NewEntry(ws.ID, ws.Operator, p.Name, action, id, started, "", err))
	if errors.Is(err, transport.ErrSessionExpired) {
		return err
	}
	return redirectToList(c, p)
}

// Action handles GET /pages/:page/rows/:id/actions/:n.
func (s *Console) Action(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	ps, err := s.pageState(ws, p)
	if err != nil {
		return err
	}
	id := c.Params("id")
	row, ok := findRow(ps, id)
	if !ok {
		return RowNotFoundError(p.Name, id)
	}
	n, err := strconv.Atoi(c.Params("n"))
	if err != nil {
		return NewAppError("UNKNOWN_ACTION", fiber.StatusNotFound, "Unknown row action")
	}
	link, err := ps.table.TriggerAction(n, row)
	if err != nil {
		return NewAppError("UNKNOWN_ACTION", fiber.StatusNotFound, "Unknown row action")
	}
	if link == "" {
		return redirectToList(c, p)
	}
	return c.Redirect(link, fiber.StatusSeeOther)
}

// Export handles GET /pages/:page/export: the loaded rows, in table order,
// as CSV.
func (s *Console) Export(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	if !p.Capabilities.Exportable {
		return NotAllowedError(p.Name, "export")
	}
	ps, err := s.pageState(ws, p)
	if err != nil {
		return err
	}
	rows := ps.table.Sorted(ps.list.State().Data)

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.csv"`, p.Name))
	return ps.table.WriteCSV(c.Response().BodyWriter(), rows)
}

// Import handles POST /pages/:page/import by forwarding the uploaded file to
// the backend's import endpoint.
func (s *Console) Import(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	if !p.Capabilities.Importable {
		return NotAllowedError(p.Name, "import")
	}
	ps, err := s.pageState(ws, p)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		ws.Toasts.Error("Choose a file to import")
		return redirectToList(c, p)
	}

	body := transport.NewMultipart()
	if err := body.AddUpload("file", fh); err != nil {
		return err
	}

	started := time.Now()
	env, err := ws.Client.Post(c.UserContext(), p.ImportPath(), body, nil)
	msg := ""
	if err == nil {
		msg = env.Message
		if msg == "" {
			msg = "Import completed"
		}
	}
	metrics.Mutations.WithLabelValues(p.Name, activity.ActionImport, metrics.Result(err == nil)).Inc()
	s.activity.Record(activity.NewEntry(ws.ID, ws.Operator, p.Name, activity.ActionImport, fh.Filename, started, msg, err))

	switch {
	case errors.Is(err, transport.ErrSessionExpired):
		return err
	case err != nil:
		s.log.Warnw("import failed", "page", p.Name, "file", fh.Filename, "error", err)
		ws.Toasts.Error(transport.UserMessage(err))
	default:
		ws.Toasts.Success(msg)
		s.refresh(ps.list)
	}
	return redirectToList(c, p)
}

func findRow(ps *pageState, id string) (schema.Row, bool) {
	if id == "" {
		return nil, false
	}
	for _, r := range ps.list.State().Data {
		if ps.table.Key(r) == id {
			return r, true
		}
	}
	return nil, false
}

func pageHref(p *schema.Page, params listfetch.Params) template.URL {
	return template.URL("/pages/" + url.PathEscape(p.Name) + "?" + params.Values().Encode())
}

func redirectToList(c *fiber.Ctx, p *schema.Page) error {
	return c.Redirect("/pages/"+url.PathEscape(p.Name), fiber.StatusSeeOther)
}
