package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

// LogWriter stores one log line of a job.
type LogWriter interface {
	InsertLog(ctx context.Context, jobID uuid.UUID, entry LogEntry) error
}

// DBLogHandler is a slog.Handler that writes records of one job to the
// database. A "percent" attribute goes to its own column. Records are also
// passed to Next when set.
type DBLogHandler struct {
	Writer LogWriter
	JobID  uuid.UUID
	Next   slog.Handler

	attrs []slog.Attr
	group string
}

func NewDBLogHandler(writer LogWriter, jobID uuid.UUID, next slog.Handler) *DBLogHandler {
	return &DBLogHandler{Writer: writer, JobID: jobID, Next: next}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
	}

	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	add := func(key string, v slog.Value) {
		if key == "percent" {
			if n, ok := percentValue(v); ok {
				entry.Percent = &n
				return
			}
		}
		attrs[key] = v.Resolve().Any()
	}
	for _, a := range h.attrs {
		add(a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(h.key(a.Key), a.Value)
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}
	entry.Metadata = metaJSON

	// The job keeps running after the request that started it is gone.
	if err := h.Writer.InsertLog(context.Background(), h.JobID, entry); err != nil {
		return err
	}
	if h.Next != nil && h.Next.Enabled(ctx, r.Level) {
		return h.Next.Handle(ctx, r)
	}
	return nil
}

func (h *DBLogHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.key(a.Key)
		clone.attrs = append(clone.attrs, a)
	}
	if h.Next != nil {
		clone.Next = h.Next.WithAttrs(attrs)
	}
	return &clone
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = h.key(name)
	if h.Next != nil {
		clone.Next = h.Next.WithGroup(name)
	}
	return &clone
}

func percentValue(v slog.Value) (int, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return int(v.Int64()), true
	case slog.KindUint64:
		return int(v.Uint64()), true
	case slog.KindFloat64:
		return int(v.Float64()), true
	}
	return 0, false
}
