package console

import (
	"context"
	"errors"
	"mime/multipart"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cast"

	"rocket-console/internal/activity"
	"rocket-console/internal/form"
	"rocket-console/internal/schema"
	"rocket-console/internal/table"
	"rocket-console/internal/transform"
	"rocket-console/internal/transport"
	"rocket-console/internal/validate"
)

// NewForm handles GET /pages/:page/new.
func (s *Console) NewForm(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	if !p.Capabilities.Creatable {
		return NotAllowedError(p.Name, "create")
	}
	ps, err := s.pageState(ws, p)
	if err != nil {
		return err
	}
	fields := s.options.Resolve(c.UserContext(), ws.Client, p.CreateFields())
	return s.openForm(c, ws, ps, form.ModeCreate, "", fields, nil)
}

// EditForm handles GET /pages/:page/rows/:id/edit. The form hydrates from
// the loaded row, remapped when the row shape differs from the field names.
func (s *Console) EditForm(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	if !p.Capabilities.Editable {
		return NotAllowedError(p.Name, "edit")
	}
	ps, err := s.pageState(ws, p)
	if err != nil {
		return err
	}
	id := c.Params("id")
	row, ok := findRow(ps, id)
	if !ok {
		return RowNotFoundError(p.Name, id)
	}
	fields := s.options.Resolve(c.UserContext(), ws.Client, p.UpdateFields())
	return s.openForm(c, ws, ps, form.ModeEdit, id, fields, table.EditTarget(row, p.EditRemap))
}

func (s *Console) openForm(c *fiber.Ctx, ws *Workspace, ps *pageState, mode form.Mode, id string, fields []schema.Field, row schema.Row) error {
	p := ps.page
	title := "New " + pageTitle(p)
	if mode == form.ModeEdit {
		title = "Edit " + pageTitle(p)
	}

	m, err := ws.Forms.Open(form.Config{
		Page:      p.Name,
		Title:     title,
		Mode:      mode,
		RecordID:  id,
		Fields:    fields,
		Checks:    p.Checks,
		Codec:     s.codec,
		Persister: s.persister(ws, p),
		Notifier:  ws.Toasts,
		OnSaved:   func() { s.refresh(ps.list) },
		Log:       s.log,
	}, row)
	if errors.Is(err, form.ErrAlreadyOpen) {
		ws.Toasts.Error("Finish or cancel the open form first.")
		if open := ws.Forms.Current(); open != nil {
			return s.renderForm(c, fiber.StatusConflict, ws, open)
		}
		return NewAppError("FORM_OPEN", fiber.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}
	return s.renderForm(c, fiber.StatusOK, ws, m)
}

// persister sends submissions to the page's endpoints and records each
// outcome in the activity trail.
func (s *Console) persister(ws *Workspace, p *schema.Page) form.Persister {
	rest := form.RESTPersister{Client: ws.Client, Endpoint: p.Endpoint, CreateLink: p.CreateLink}
	return form.PersisterFunc(func(ctx context.Context, sub form.Submission) (form.Result, error) {
		started := time.Now()
		res, err := rest.Persist(ctx, sub)

		recErr := err
		if err == nil && !res.Success {
			recErr = errors.New(res.Message)
		}
		action := activity.ActionCreate
		if sub.Mode == form.ModeEdit {
			action = activity.ActionEdit
		}
		s.activity.Record(activity.NewEntry(ws.ID, ws.Operator, p.Name, action, sub.RecordID, started, res.Message, recErr))
		return res, err
	})
}

// ShowForm handles GET /pages/:page/form.
func (s *Console) ShowForm(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	m := ws.Forms.Current()
	if m == nil || m.Page() != p.Name {
		return redirectToList(c, p)
	}
	return s.renderForm(c, fiber.StatusOK, ws, m)
}

// SubmitForm handles POST /pages/:page/form.
func (s *Console) SubmitForm(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	m := ws.Forms.Current()
	if m == nil || m.Page() != p.Name {
		return NewAppError("NO_OPEN_FORM", fiber.StatusConflict, "There is no open form for "+pageTitle(p))
	}

	if err := readForm(c, m); err != nil {
		return err
	}

	_, err := m.Submit(c.UserContext())
	switch {
	case err == nil:
		return redirectToList(c, p)
	case errors.Is(err, form.ErrBusy):
		return s.renderForm(c, fiber.StatusConflict, ws, m)
	case errors.Is(err, transport.ErrSessionExpired):
		return err
	case errors.Is(err, form.ErrClosed):
		return redirectToList(c, p)
	default:
		return s.renderForm(c, fiber.StatusUnprocessableEntity, ws, m)
	}
}

// CancelForm handles POST /pages/:page/form/cancel.
func (s *Console) CancelForm(c *fiber.Ctx) error {
	ws, p := getWorkspace(c), getPage(c)
	if err := ws.Forms.Close(); err != nil {
		return NewAppError("FORM_BUSY", fiber.StatusConflict, "The form is still being saved.")
	}
	return redirectToList(c, p)
}

// readForm copies the posted values into the modal's Value Map. File fields
// without an upload keep their current value.
func readForm(c *fiber.Ctx, m *form.Modal) error {
	values, files, err := postedValues(c)
	if err != nil {
		return NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid form body")
	}

	for _, f := range m.Fields() {
		key := f.Key()
		raw := values[key]
		var v any
		switch f.Widget {
		case schema.WidgetFile:
			uploads := files[key]
			if len(uploads) == 0 {
				continue
			}
			if !f.FileMultiple {
				uploads = uploads[:1]
			}
			v = uploads
		case schema.WidgetCheckbox:
			v = len(raw) > 0 && cast.ToBool(raw[len(raw)-1])
		case schema.WidgetSelect:
			v = nil
			if len(raw) > 0 && raw[0] != "" {
				if opt, ok := transform.FindOption(f.Options, raw[0]); ok {
					v = opt
				}
			}
		case schema.WidgetMultiSelect, schema.WidgetCheckboxGroup:
			list := make([]any, 0, len(raw))
			for _, r := range raw {
				if r == "" {
					continue
				}
				if opt, ok := transform.FindOption(f.Options, r); ok {
					list = append(list, opt.Value)
				} else {
					list = append(list, r)
				}
			}
			v = list
		default:
			v = ""
			if len(raw) > 0 {
				v = raw[0]
			}
		}
		if err := m.SetField(key, v); err != nil {
			return err
		}
	}
	return nil
}

func postedValues(c *fiber.Ctx) (map[string][]string, map[string][]*multipart.FileHeader, error) {
	if mf, err := c.MultipartForm(); err == nil {
		return mf.Value, mf.File, nil
	}
	values := map[string][]string{}
	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		values[string(k)] = append(values[string(k)], string(v))
	})
	return values, nil, nil
}

func (s *Console) renderForm(c *fiber.Ctx, status int, ws *Workspace, m *form.Modal) error {
	p := s.registry.GetPage(m.Page())
	if p == nil {
		_ = ws.Forms.Close()
		return UnknownPageError(m.Page())
	}
	values := m.Values()
	errs := m.Errors()
	previews := m.Previews()

	v := formView{
		baseView: s.base(ws, m.Title(), p.Name),
		Page:     p,
		Title:    m.Title(),
		Mode:     m.Mode(),
		Action:   "/pages/" + url.PathEscape(p.Name) + "/form",
		FormErr:  errs[validate.CheckErrorKey],
	}
	for _, row := range m.Rows() {
		rv := formRowView{}
		for _, f := range row.Fields {
			fv := fieldFor(f, values[f.Key()], s.codec)
			fv.Error = errs[f.Key()]
			fv.Previews = previews[f.Key()]
			if f.Widget == schema.WidgetFile {
				v.HasFiles = true
			}
			rv.Fields = append(rv.Fields, fv)
		}
		v.Rows = append(v.Rows, rv)
	}
	return s.views.Render(c, status, "form", v)
}

func fieldFor(f schema.Field, value any, codec transform.Codec) fieldView {
	fv := fieldView{
		Key:         f.Key(),
		Label:       f.Label,
		Widget:      f.Widget,
		Required:    f.Required,
		Placeholder: f.Placeholder,
		Span:        f.Span(),
		Accept:      f.FileAccept,
		Multiple:    f.FileMultiple,
	}
	if fv.Label == "" {
		fv.Label = f.Name
	}

	switch f.Widget {
	case schema.WidgetCheckbox:
		fv.Checked = cast.ToBool(value)
	case schema.WidgetSelect:
		current, _ := value.(schema.Option)
		for _, o := range f.Options {
			fv.Options = append(fv.Options, optionView{
				Value:    cast.ToString(o.Value),
				Label:    o.Label,
				Selected: value != nil && transform.SameValue(o.Value, current.Value),
			})
		}
	case schema.WidgetMultiSelect, schema.WidgetCheckboxGroup:
		chosen := codec.Serialize(value, f)
		list, _ := chosen.([]any)
		for _, o := range f.Options {
			ov := optionView{Value: cast.ToString(o.Value), Label: o.Label}
			for _, id := range list {
				if transform.SameValue(o.Value, id) {
					ov.Selected = true
					break
				}
			}
			fv.Options = append(fv.Options, ov)
		}
	case schema.WidgetFile:
	default:
		fv.Value = cast.ToString(value)
	}
	return fv
}
