// Package console serves the admin console: server-rendered list and form
// pages driven by the page registry, one workspace per signed-in operator.
package console

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/text/language"

	"rocket-console/internal/activity"
	"rocket-console/internal/auth"
	"rocket-console/internal/busy"
	"rocket-console/internal/listfetch"
	"rocket-console/internal/logger"
	"rocket-console/internal/metrics"
	"rocket-console/internal/options"
	"rocket-console/internal/schema"
	"rocket-console/internal/table"
	"rocket-console/internal/transform"
)

// Settings are the console options taken from configuration.
type Settings struct {
	PagesFile       string
	SessionSecret   string
	SessionTTL      time.Duration
	SecureCookies   bool
	DefaultPageSize int
	Location        *time.Location
	Locale          string
}

// Console holds the process-wide collaborators shared by every workspace.
type Console struct {
	settings   Settings
	registry   *schema.Registry
	workspaces *Manager
	options    *options.Loader
	activity   activity.Recorder
	views      *Views
	codec      transform.Codec
	lang       language.Tag
	busy       *busy.Counter
	log        logger.Logger
}

// New builds a Console.
func New(settings Settings, reg *schema.Registry, ws *Manager, opts *options.Loader, rec activity.Recorder, log logger.Logger) (*Console, error) {
	if log == nil {
		log = logger.Nop()
	}
	if rec == nil {
		rec = activity.Noop{}
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.DefaultPageSize <= 0 {
		settings.DefaultPageSize = listfetch.DefaultSize
	}
	lang, err := language.Parse(settings.Locale)
	if err != nil {
		lang = language.English
	}
	views, err := NewViews()
	if err != nil {
		return nil, err
	}
	return &Console{
		settings:   settings,
		registry:   reg,
		workspaces: ws,
		options:    opts,
		activity:   rec,
		views:      views,
		codec:      transform.NewCodec(settings.Location),
		lang:       lang,
		busy:       busy.Global(),
		log:        log,
	}, nil
}

// App builds the fiber application with every console route.
func (s *Console) App() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler(s.views, s.log),
		DisableStartupMessage: true,
		BodyLimit:             32 << 20,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	s.Register(app)
	return app
}

// Register adds the console routes to app.
func (s *Console) Register(app *fiber.App) {
	app.Get("/health", s.Health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	authHandler := auth.NewHandler(s.workspaces, s.loginView, s.settings.SessionSecret,
		s.settings.SessionTTL, s.settings.SecureCookies, s.log)
	auth.RegisterAuthRoutes(app, authHandler)

	protected := app.Group("", auth.SessionMiddleware(s.settings.SessionSecret), s.workspaceMiddleware())

	protected.Get("/", s.Index)
	protected.Get("/activity", s.Activity)
	protected.Get("/activity/sort/:key", s.SortActivity)

	protected.Get("/_pages", s.ListPages)
	protected.Get("/_pages/:page", s.GetPage)
	protected.Post("/_pages/reload", s.ReloadPages)

	pages := protected.Group("/pages/:page", s.pageMiddleware())
	pages.Get("/", s.List)
	pages.Post("/search", s.Search)
	pages.Get("/sort/:key", s.Sort)
	pages.Post("/select-all", s.SelectAll)
	pages.Get("/export", s.Export)
	pages.Post("/import", s.Import)

	pages.Get("/new", s.NewForm)
	pages.Get("/form", s.ShowForm)
	pages.Post("/form", s.SubmitForm)
	pages.Post("/form/cancel", s.CancelForm)

	pages.Get("/rows/:id/edit", s.EditForm)
	pages.Post("/rows/:id/delete", s.Delete)
	pages.Post("/rows/:id/toggle", s.Toggle)
	pages.Post("/rows/:id/select", s.Select)
	pages.Get("/rows/:id/actions/:n", s.Action)
}

// Health handles GET /health.
func (s *Console) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "ok",
		"pages":      len(s.registry.Names()),
		"workspaces": s.workspaces.Len(),
		"in_flight":  s.busy.Count(),
	})
}

func (s *Console) workspaceMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := auth.GetSession(c)
		if sess == nil {
			return auth.ErrNoSession
		}
		ws, err := s.workspaces.Get(sess.WorkspaceID)
		if err != nil {
			return auth.ErrNoSession
		}
		c.Locals("workspace", ws)
		return c.Next()
	}
}

func (s *Console) pageMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Params("page")
		p := s.registry.GetPage(name)
		if p == nil {
			return UnknownPageError(name)
		}
		c.Locals("page", p)
		return c.Next()
	}
}

func getWorkspace(c *fiber.Ctx) *Workspace {
	ws, _ := c.Locals("workspace").(*Workspace)
	return ws
}

func getPage(c *fiber.Ctx) *schema.Page {
	p, _ := c.Locals("page").(*schema.Page)
	return p
}

// pageState returns the workspace's table and list state for p, rebuilding
// it when the page definition was reloaded.
func (s *Console) pageState(ws *Workspace, p *schema.Page) (*pageState, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ps, ok := ws.pages[p.Name]; ok && ps.page == p {
		return ps, nil
	}

	size := p.PageSize
	if size <= 0 {
		size = s.settings.DefaultPageSize
	}
	list := listfetch.New[schema.Row](ws.Client, p.ListPath(), listfetch.Params{Size: size},
		listfetch.WithBusy(s.busy),
		listfetch.WithNotifier(ws.Toasts),
		listfetch.WithLogger(s.log),
	)

	rest := table.REST{Client: ws.Client, Endpoint: p.Endpoint, ToggleField: p.ToggleField, Target: p.Delete}
	engine, err := table.New(table.Config{
		Page:         p.Name,
		Columns:      p.Columns,
		RowKey:       p.KeyOf,
		Capabilities: p.Capabilities,
		Actions:      p.CustomActions(),
		ToggleField:  p.ToggleField,
		Toggle:       rest.Toggle,
		Delete:       rest.Delete,
		OnSuccess:    func() { s.refresh(list) },
		Notifier:     ws.Toasts,
		Language:     s.lang,
		Location:     s.settings.Location,
		Log:          s.log,
	})
	if err != nil {
		return nil, err
	}

	ps := &pageState{page: p, table: engine, list: list}
	ws.pages[p.Name] = ps
	return ps, nil
}

// refresh re-invokes a page's fetch hook after a mutation. Failures are
// already toasted by the hook.
func (s *Console) refresh(list *listfetch.Hook[schema.Row]) {
	if err := list.Refresh(context.Background()); err != nil {
		s.log.Debugw("list refresh after mutation failed", "error", err)
	}
}
