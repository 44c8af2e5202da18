package listfetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocket-console/internal/busy"
	"rocket-console/internal/notify"
	"rocket-console/internal/transport"
)

type book struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

type scriptedGetter struct {
	mu    sync.Mutex
	paths []string
	resp  func(path string) (string, error)
	// during runs while the request is in flight.
	during func()
}

func (g *scriptedGetter) Get(_ context.Context, path string, out any) (*transport.Envelope, error) {
	g.mu.Lock()
	g.paths = append(g.paths, path)
	g.mu.Unlock()
	if g.during != nil {
		g.during()
	}
	data, err := g.resp(path)
	if err != nil {
		return nil, err
	}
	env := &transport.Envelope{Data: json.RawMessage(data)}
	return env, env.Decode(out)
}

const pageOne = `{"records":[{"id":1,"title":"Dune"},{"id":2,"title":"Emma"}],"total_record":12,"total_page":6}`

func TestHook_SetParamsIssuesExactlyOneRequest(t *testing.T) {
	g := &scriptedGetter{resp: func(string) (string, error) { return pageOne, nil }}
	h := New[book](g, "/books/list", Params{Page: 1, Size: 2})

	require.NoError(t, h.SetParams(context.Background(), Params{Page: 2, Size: 2, Filters: map[string]string{"genre": "scifi"}}))

	require.Len(t, g.paths, 1)
	assert.Equal(t, "/books/list?filter%5Bgenre%5D=scifi&page=2&size=2", g.paths[0])

	s := h.State()
	assert.Equal(t, []book{{1, "Dune"}, {2, "Emma"}}, s.Data)
	assert.Equal(t, 12, s.TotalRecords)
	assert.Equal(t, 6, s.TotalPages)
	assert.Empty(t, s.Error)
}

func TestHook_ParamsAreReplacedNotMerged(t *testing.T) {
	g := &scriptedGetter{resp: func(string) (string, error) { return pageOne, nil }}
	h := New[book](g, "/books/list", Params{})

	require.NoError(t, h.SetParams(context.Background(), Params{Page: 3, Search: "dune", Filters: map[string]string{"a": "1"}}))
	require.NoError(t, h.SetParams(context.Background(), Params{Page: 1}))

	assert.Equal(t, Params{Page: 1, Size: DefaultSize}, h.Params())
	assert.Equal(t, "/books/list?page=1&size=10", g.paths[1])
}

func TestHook_FailureKeepsDataAndToastsOnce(t *testing.T) {
	fail := false
	g := &scriptedGetter{resp: func(string) (string, error) {
		if fail {
			return "", &transport.Error{Status: 500, Message: transport.MsgServer}
		}
		return pageOne, nil
	}}
	var toasts notify.Queue
	h := New[book](g, "/books/list", Params{}, WithNotifier(&toasts))

	require.NoError(t, h.Refresh(context.Background()))
	fail = true
	err := h.Refresh(context.Background())
	require.Error(t, err)

	s := h.State()
	assert.Len(t, s.Data, 2)
	assert.Equal(t, transport.MsgServer, s.Error)
	assert.Equal(t, []notify.Message{{Level: notify.LevelError, Text: transport.MsgServer}}, toasts.Drain())

	fail = false
	require.NoError(t, h.Refresh(context.Background()))
	assert.Empty(t, h.State().Error)
	assert.Empty(t, toasts.Drain())
}

func TestHook_ExpiredSessionAndCancellationAreSilent(t *testing.T) {
	for name, failure := range map[string]error{
		"expired":   fmt.Errorf("%w: refresh denied", transport.ErrSessionExpired),
		"cancelled": context.Canceled,
	} {
		t.Run(name, func(t *testing.T) {
			g := &scriptedGetter{resp: func(string) (string, error) { return "", failure }}
			var toasts notify.Queue
			h := New[book](g, "/books/list", Params{}, WithNotifier(&toasts))

			err := h.Refresh(context.Background())
			assert.ErrorIs(t, err, failure)
			assert.Empty(t, h.State().Error)
			assert.Empty(t, toasts.Drain())
		})
	}
}

func TestHook_HoldsBusyCounterWhileInFlight(t *testing.T) {
	counter := busy.NewCounter(nil)
	var h *Hook[book]
	g := &scriptedGetter{resp: func(string) (string, error) { return pageOne, nil }}
	g.during = func() {
		assert.True(t, counter.Busy())
		// Previous data stays visible while the request runs.
		assert.Len(t, h.State().Data, 2)
	}
	h = New[book](g, "/books/list", Params{}, WithBusy(counter))
	h.state.Data = []book{{1, "Dune"}, {2, "Emma"}}

	require.NoError(t, h.Refresh(context.Background()))
	assert.False(t, counter.Busy())

	g.resp = func(string) (string, error) { return "", errors.New("boom") }
	_ = h.Refresh(context.Background())
	assert.False(t, counter.Busy())
}

func TestParseParams(t *testing.T) {
	p := ParseParams(map[string]string{
		"page": "3", "size": "500", "search": " dune ", "sort": "-title", "filter[genre]": "scifi", "other": "x",
	}, Params{Size: 25})
	assert.Equal(t, Params{Page: 3, Size: MaxSize, Search: "dune", Sort: "-title",
		Filters: map[string]string{"genre": "scifi"}}, p)

	p = ParseParams(map[string]string{"page": "abc"}, Params{Size: 25})
	assert.Equal(t, Params{Page: 1, Size: 25}, p)
}

func TestParams_WithSearchResetsPage(t *testing.T) {
	p := Params{Page: 4, Size: 10}.WithSearch("  emma ")
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, "emma", p.Search)
}
