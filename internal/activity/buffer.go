package activity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cast"

	"rocket-console/internal/logger"
	"rocket-console/internal/metrics"
	"rocket-console/internal/store"
)

var columns = []string{"id", "workspace", "operator", "page", "action", "record_id", "status", "message", "duration_ms", "created_at"}

// Buffer collects entries in memory and periodically flushes them to the
// _console_activity table in a batch insert.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	store   *store.Store
	maxSize int
	log     logger.Logger
	ticker  *time.Ticker
	done    chan struct{}
	flushMu sync.Mutex
}

// NewBuffer creates a buffer that flushes on a timer or when full.
func NewBuffer(s *store.Store, maxSize int, flushIntervalMs int, log logger.Logger) *Buffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 500
	}
	if log == nil {
		log = logger.Nop()
	}
	b := &Buffer{
		store:   s,
		maxSize: maxSize,
		log:     log,
		done:    make(chan struct{}),
	}
	b.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go b.run()
	return b
}

func (b *Buffer) run() {
	for {
		select {
		case <-b.done:
			return
		case <-b.ticker.C:
			b.Flush(context.Background())
		}
	}
}

// Record adds an entry. A full buffer is flushed asynchronously; entries
// beyond twice the buffer size are dropped.
func (b *Buffer) Record(e Entry) {
	b.mu.Lock()
	if len(b.entries) >= 2*b.maxSize {
		b.mu.Unlock()
		metrics.ActivityDropped.Inc()
		return
	}
	b.entries = append(b.entries, e)
	shouldFlush := len(b.entries) >= b.maxSize
	b.mu.Unlock()
	if shouldFlush {
		go b.Flush(context.Background())
	}
}

// Flush writes all buffered entries in a single batch insert.
func (b *Buffer) Flush(ctx context.Context) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.entries) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.entries
	b.entries = nil
	b.mu.Unlock()

	if err := b.insert(ctx, batch); err != nil {
		b.log.Errorw("activity flush failed", "entries", len(batch), "error", err)
	}
}

func (b *Buffer) insert(ctx context.Context, batch []Entry) error {
	tx, err := b.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if stmt := b.store.Dialect.SyncCommitOff(); stmt != "" {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("set sync commit: %w", err)
		}
	}

	pb := b.store.Dialect.NewParamBuilder()
	placeholders := make([]string, 0, len(batch))
	for _, e := range batch {
		ph := []string{
			pb.Add(e.ID), pb.Add(e.Workspace), pb.Add(e.Operator), pb.Add(e.Page), pb.Add(e.Action),
			pb.Add(e.RecordID), pb.Add(e.Status), pb.Add(e.Message), pb.Add(e.DurationMs),
			pb.Add(b.store.Dialect.TimeParam(e.CreatedAt)),
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sqlStr := fmt.Sprintf("INSERT INTO _console_activity (%s) VALUES %s",
		strings.Join(columns, ","), strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns the newest entries first. Pending entries are flushed
// first so the list includes them.
func (b *Buffer) Recent(ctx context.Context, limit int) ([]Entry, error) {
	b.Flush(ctx)
	if limit <= 0 {
		limit = 100
	}
	pb := b.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM _console_activity ORDER BY created_at DESC, id LIMIT %s",
		strings.Join(columns, ","), pb.Add(limit))
	rows, err := store.QueryRows(ctx, b.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		created, _ := r["created_at"].(time.Time)
		out = append(out, Entry{
			ID:         cast.ToString(r["id"]),
			Workspace:  cast.ToString(r["workspace"]),
			Operator:   cast.ToString(r["operator"]),
			Page:       cast.ToString(r["page"]),
			Action:     cast.ToString(r["action"]),
			RecordID:   cast.ToString(r["record_id"]),
			Status:     cast.ToString(r["status"]),
			Message:    cast.ToString(r["message"]),
			DurationMs: cast.ToInt64(r["duration_ms"]),
			CreatedAt:  created,
		})
	}
	return out, nil
}

// Stop halts the background ticker and flushes remaining entries.
func (b *Buffer) Stop() {
	if b.ticker != nil {
		b.ticker.Stop()
	}
	close(b.done)
	b.Flush(context.Background())
}
