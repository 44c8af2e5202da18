package options

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocket-console/internal/logger"
	"rocket-console/internal/schema"
	"rocket-console/internal/transport"
)

type fakeGetter struct {
	calls atomic.Int32
	data  string
	err   error
}

func (f *fakeGetter) Get(_ context.Context, _ string, out any) (*transport.Envelope, error) {
	f.calls.Add(1)
	time.Sleep(10 * time.Millisecond)
	if f.err != nil {
		return nil, f.err
	}
	env := &transport.Envelope{Data: json.RawMessage(f.data)}
	return env, env.Decode(out)
}

func newLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader(Config{TTL: time.Minute}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func TestLoader_MapsRecordsAndCaches(t *testing.T) {
	l := newLoader(t)
	g := &fakeGetter{data: `{"records":[{"id":3,"title":"Fiction"},{"id":5,"title":"Science"}],"total_record":2,"total_page":1}`}
	src := schema.OptionSource{Endpoint: "/categories/list", LabelKey: "title"}

	opts, err := l.Load(context.Background(), g, src)
	require.NoError(t, err)
	assert.Equal(t, []schema.Option{{Value: float64(3), Label: "Fiction"}, {Value: float64(5), Label: "Science"}}, opts)

	_, err = l.Load(context.Background(), g, src)
	require.NoError(t, err)
	assert.EqualValues(t, 1, g.calls.Load())
}

func TestLoader_ConcurrentLoadsShareOneRequest(t *testing.T) {
	l := newLoader(t)
	g := &fakeGetter{data: `[{"id":1,"name":"A"}]`}
	src := schema.OptionSource{Endpoint: "/roles"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			opts, err := l.Load(context.Background(), g, src)
			assert.NoError(t, err)
			assert.Len(t, opts, 1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, g.calls.Load())
}

func TestLoader_ResolveKeepsStaticOptionsOnFailure(t *testing.T) {
	l := newLoader(t)
	static := []schema.Option{{Value: 1, Label: "Fallback"}}
	fields := []schema.Field{
		{Name: "role", Widget: schema.WidgetSelect, Options: static, OptionsFrom: &schema.OptionSource{Endpoint: "/roles"}},
		{Name: "title", Widget: schema.WidgetText},
	}

	out := l.Resolve(context.Background(), &fakeGetter{err: errors.New("down")}, fields)
	assert.Equal(t, static, out[0].Options)

	out = l.Resolve(context.Background(), &fakeGetter{data: `[{"id":2,"name":"Editor"}]`}, fields)
	assert.Equal(t, []schema.Option{{Value: float64(2), Label: "Editor"}}, out[0].Options)
	assert.Equal(t, static, fields[0].Options, "input fields are not mutated")
}
