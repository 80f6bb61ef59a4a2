package log

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

// stackHandler adds a stacktrace attribute to records that carry an error.
type stackHandler struct {
	next slog.Handler
}

// WithStacktrace wraps next so that a record whose first error-valued
// attribute has a stack (a recovered panic, or an error built with
// cockroachdb/errors) is emitted with it under StacktraceAttrKey.
func WithStacktrace(next slog.Handler) slog.Handler {
	return &stackHandler{next: next}
}

func (h *stackHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *stackHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	r.Attrs(func(a slog.Attr) bool {
		err, _ = a.Value.Any().(error)
		return err == nil
	})
	if stack := stacktrace(err); stack != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, stack))
	}
	return h.next.Handle(ctx, r)
}

func (h *stackHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &stackHandler{next: h.next.WithAttrs(attrs)}
}

func (h *stackHandler) WithGroup(g string) slog.Handler {
	return &stackHandler{next: h.next.WithGroup(g)}
}

func stacktrace(err error) string {
	if err == nil {
		return ""
	}
	if stack := scigoErrors.PanicStack(err); stack != "" {
		return stack
	}
	for _, d := range errors.GetAllSafeDetails(err) {
		if len(d.SafeDetails) > 0 && d.SafeDetails[0] != "" {
			return d.SafeDetails[0]
		}
	}
	return ""
}
