// Package options loads select, multiSelect and checkboxGroup options from
// backend endpoints and caches them.
package options

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/spf13/cast"
	"golang.org/x/sync/singleflight"

	"rocket-console/internal/logger"
	"rocket-console/internal/schema"
	"rocket-console/internal/transport"
)

// Getter is the slice of the transport client the loader needs.
type Getter interface {
	Get(ctx context.Context, path string, out any) (*transport.Envelope, error)
}

// Config sizes the cache.
type Config struct {
	TTL         time.Duration
	MaxCost     int64
	NumCounters int64
}

// Loader resolves OptionSource declarations into options.
type Loader struct {
	cache *ristretto.Cache
	group singleflight.Group
	ttl   time.Duration
	log   logger.Logger
}

// NewLoader builds a loader. A zero TTL disables caching.
func NewLoader(cfg Config, log logger.Logger) (*Loader, error) {
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 20
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = cfg.MaxCost * 10
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("options cache: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{cache: cache, ttl: cfg.TTL, log: log}, nil
}

// Load returns the options for src, from cache when possible. Concurrent
// loads of the same endpoint share one request.
func (l *Loader) Load(ctx context.Context, client Getter, src schema.OptionSource) ([]schema.Option, error) {
	key := cacheKey(src)
	if v, ok := l.cache.Get(key); ok {
		return v.([]schema.Option), nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		opts, err := fetch(ctx, client, src)
		if err != nil {
			return nil, err
		}
		if l.ttl > 0 {
			l.cache.SetWithTTL(key, opts, int64(len(opts))+1, l.ttl)
			l.cache.Wait()
		}
		return opts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]schema.Option), nil
}

// Resolve returns copies of fields with remote options injected. A field
// whose options fail to load keeps its static options; the failure is logged.
func (l *Loader) Resolve(ctx context.Context, client Getter, fields []schema.Field) []schema.Field {
	out := schema.CloneFields(fields)
	for i, f := range out {
		if f.OptionsFrom == nil || !f.Widget.HasOptions() {
			continue
		}
		opts, err := l.Load(ctx, client, *f.OptionsFrom)
		if err != nil {
			l.log.Warnw("options load failed", "field", f.Name, "endpoint", f.OptionsFrom.Endpoint, "error", err)
			continue
		}
		out[i] = f.WithOptions(opts)
	}
	return out
}

// Invalidate drops every cached option list.
func (l *Loader) Invalidate() {
	l.cache.Clear()
}

// Close releases the cache.
func (l *Loader) Close() {
	l.cache.Close()
}

func cacheKey(src schema.OptionSource) string {
	return src.Endpoint + "|" + src.ValueKey + "|" + src.LabelKey
}

func fetch(ctx context.Context, client Getter, src schema.OptionSource) ([]schema.Option, error) {
	var data any
	if _, err := client.Get(ctx, src.Endpoint, &data); err != nil {
		return nil, fmt.Errorf("load options from %s: %w", src.Endpoint, err)
	}

	var records []any
	switch d := data.(type) {
	case []any:
		records = d
	case map[string]any:
		records, _ = d["records"].([]any)
	}

	valueKey, labelKey := src.ValueKey, src.LabelKey
	if valueKey == "" {
		valueKey = "id"
	}
	if labelKey == "" {
		labelKey = "name"
	}

	opts := make([]schema.Option, 0, len(records))
	for _, r := range records {
		rec, ok := r.(map[string]any)
		if !ok {
			continue
		}
		value, ok := rec[valueKey]
		if !ok {
			continue
		}
		opts = append(opts, schema.Option{Value: value, Label: cast.ToString(rec[labelKey])})
	}
	return opts, nil
}
