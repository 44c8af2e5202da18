package console

import (
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cast"

	"rocket-console/internal/activity"
	"rocket-console/internal/schema"
	"rocket-console/internal/table"
)

const activityLimit = 200

var activityColumns = []schema.Column{
	{Key: "created_at", Label: "When", Format: "datetime"},
	{Key: "operator", Label: "Operator"},
	{Key: "page", Label: "Page"},
	{Key: "action", Label: "Action"},
	{Key: "record_id", Label: "Record"},
	{Key: "status", Label: "Status"},
	{Key: "message", Label: "Message", Format: "truncate"},
	{Key: "duration_ms", Label: "Duration (ms)"},
}

// ListPages handles GET /_pages.
func (s *Console) ListPages(c *fiber.Ctx) error {
	pages := s.registry.AllPages()
	if pages == nil {
		pages = []*schema.Page{}
	}
	return c.JSON(fiber.Map{"data": pages})
}

// GetPage handles GET /_pages/:page.
func (s *Console) GetPage(c *fiber.Ctx) error {
	name := c.Params("page")
	p := s.registry.GetPage(name)
	if p == nil {
		return UnknownPageError(name)
	}
	return c.JSON(fiber.Map{"data": p})
}

// ReloadPages handles POST /_pages/reload. An invalid file leaves the
// loaded pages untouched.
func (s *Console) ReloadPages(c *fiber.Ctx) error {
	if s.settings.PagesFile == "" {
		return NewAppError("NO_PAGES_FILE", fiber.StatusConflict, "No pages file is configured")
	}
	if err := schema.LoadFile(s.settings.PagesFile, s.registry); err != nil {
		return ValidationError([]ErrorDetail{{Message: err.Error()}})
	}
	s.options.Invalidate()
	s.log.Infow("pages reloaded", "file", s.settings.PagesFile, "pages", len(s.registry.Names()))
	return c.JSON(fiber.Map{"data": s.registry.Names()})
}

// Activity handles GET /activity: the most recent mutations, rendered
// through a table engine over the local rows.
func (s *Console) Activity(c *fiber.Ctx) error {
	ws := getWorkspace(c)
	engine, err := s.activityTable(ws)
	if err != nil {
		return err
	}
	entries, err := s.activity.Recent(c.UserContext(), activityLimit)
	if err != nil {
		return err
	}

	rows := make([]schema.Row, len(entries))
	for i, e := range entries {
		rows[i] = entryRow(e)
	}
	rows = engine.Sorted(rows)

	sortState := engine.Sort()
	v := activityView{baseView: s.base(ws, "Activity", "")}
	for _, col := range engine.Columns() {
		cv := columnView{Key: col.Key, Label: col.Label, Sortable: col.IsSortable()}
		if sortState.Key == col.Key {
			cv.Sorted = sortState.Dir
		}
		v.Columns = append(v.Columns, cv)
	}
	for _, r := range rows {
		rv := rowView{ID: engine.Key(r)}
		for _, col := range engine.Columns() {
			rv.Cells = append(rv.Cells, engine.Cell(col, r))
		}
		v.Rows = append(v.Rows, rv)
	}
	return s.views.Render(c, fiber.StatusOK, "activity", v)
}

// SortActivity handles GET /activity/sort/:key.
func (s *Console) SortActivity(c *fiber.Ctx) error {
	engine, err := s.activityTable(getWorkspace(c))
	if err != nil {
		return err
	}
	engine.ClickHeader(c.Params("key"))
	return c.Redirect("/activity", fiber.StatusSeeOther)
}

func (s *Console) activityTable(ws *Workspace) (*table.Engine, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.activity != nil {
		return ws.activity, nil
	}
	engine, err := table.New(table.Config{
		Page:     "activity",
		Columns:  activityColumns,
		RowKey:   func(r schema.Row) string { return cast.ToString(r["id"]) },
		Notifier: ws.Toasts,
		Language: s.lang,
		Location: s.settings.Location,
		Log:      s.log,
	})
	if err != nil {
		return nil, err
	}
	ws.activity = engine
	return engine, nil
}

func entryRow(e activity.Entry) schema.Row {
	return schema.Row{
		"id":          e.ID,
		"created_at":  e.CreatedAt,
		"operator":    e.Operator,
		"page":        e.Page,
		"action":      e.Action,
		"record_id":   e.RecordID,
		"status":      e.Status,
		"message":     e.Message,
		"duration_ms": e.DurationMs,
	}
}
