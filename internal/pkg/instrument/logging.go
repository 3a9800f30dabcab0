package instrument

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// initLogging installs the process-wide slog default: a JSON handler on
// stdout, plus the OTLP bridge when log export is configured. Records pass
// through redaction first and every record is stamped with the service name
// and the request correlation id.
func initLogging(serviceName string, lp *sdklog.LoggerProvider, maskFields []string) {
	var handler slog.Handler = newStdoutHandler()
	if lp != nil {
		handler = &teeHandler{handlers: []slog.Handler{
			handler,
			otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(lp)),
		}}
	}

	slog.SetDefault(slog.New(&stampHandler{
		Handler: &redactHandler{next: handler, keys: lowerSet(maskFields)},
		service: serviceName,
	}))
}

func newStdoutHandler() slog.Handler {
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		AddSource:   true,
		ReplaceAttr: renameAttr,
	})
}

// renameAttr maps the default slog keys onto the house log schema and trims
// source paths down to their internal/ suffix. Frames outside internal/ are
// dropped.
func renameAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		a.Key = "ts"

	case slog.LevelKey:
		a.Key = "severity"

	case slog.SourceKey:
		src, ok := a.Value.Any().(*slog.Source)
		if !ok {
			break
		}
		if !strings.Contains(src.File, "/internal/") {
			return slog.Attr{}
		}

		rel := filepath.Join("internal", strings.SplitAfter(src.File, "/internal/")[1])

		return slog.Attr{Key: "file", Value: slog.StringValue(fmt.Sprintf("%s:%d", rel, src.Line))}
	}

	return a
}

// stampHandler appends the service name and correlation id to every record.
type stampHandler struct {
	slog.Handler
	service string
}

func (h *stampHandler) Handle(ctx context.Context, r slog.Record) error {
	if cid := GetCorrelationID(ctx); cid != "" && cid != "[invalid_chain_id]" {
		r.AddAttrs(slog.String("_cID", cid))
	}
	r.AddAttrs(slog.String("service", h.service))

	return h.Handler.Handle(ctx, r)
}

// teeHandler fans a record out to every handler that accepts its level.
type teeHandler struct {
	handlers []slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (t *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithAttrs(attrs)
	}

	return &teeHandler{handlers: next}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		next[i] = h.WithGroup(name)
	}

	return &teeHandler{handlers: next}
}

// redactHandler blanks configured keys before the record reaches any sink.
type redactHandler struct {
	next slog.Handler
	keys map[string]struct{}
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, record slog.Record) error {
	if len(h.keys) == 0 {
		return h.next.Handle(ctx, record)
	}

	out := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(h.redactAttr(attr))
		return true
	})

	return h.next.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &redactHandler{next: h.next.WithAttrs(attrs), keys: h.keys}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{next: h.next.WithGroup(name), keys: h.keys}
}

// redactAttr blanks the attribute when its key is masked, and otherwise
// chases maskable content inside it: groups, decoded maps and slices, and
// string or []byte payloads that happen to be JSON.
func (h *redactHandler) redactAttr(attr slog.Attr) slog.Attr {
	if _, found := h.keys[strings.ToLower(attr.Key)]; found {
		return slog.String(attr.Key, "***")
	}

	switch attr.Value.Kind() {
	case slog.KindGroup:
		group := attr.Value.Group()
		masked := make([]slog.Attr, 0, len(group))
		for _, ga := range group {
			masked = append(masked, h.redactAttr(ga))
		}
		attr.Value = slog.GroupValue(masked...)

	case slog.KindString:
		if masked, ok := h.redactJSON(attr.Value.String()); ok {
			attr.Value = slog.StringValue(masked)
		}

	case slog.KindAny:
		attr.Value = h.redactAnyValue(attr.Value)
	}

	return attr
}

func (h *redactHandler) redactAnyValue(v slog.Value) slog.Value {
	switch val := v.Any().(type) {
	case map[string]any:
		return slog.AnyValue(h.redactTree(val))

	case map[string]string:
		converted := make(map[string]any, len(val))
		for k, s := range val {
			converted[k] = s
		}

		return slog.AnyValue(h.redactTree(converted))

	case []any:
		return slog.AnyValue(h.redactTree(val))

	case []byte:
		if masked, ok := h.redactRaw(val); ok {
			return slog.StringValue(masked)
		}
	}

	return v
}

// redactJSON re-renders a JSON object or array with masked keys. Strings that
// do not start with '{' or '[' are left alone.
func (h *redactHandler) redactJSON(payload string) (string, bool) {
	if payload == "" || (payload[0] != '{' && payload[0] != '[') {
		return "", false
	}

	return h.redactRaw([]byte(payload))
}

func (h *redactHandler) redactRaw(payload []byte) (string, bool) {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", false
	}

	if out, err := json.Marshal(h.redactTree(decoded)); err == nil {
		return string(out), true
	}

	return "", false
}

// redactTree walks decoded JSON and blanks masked keys at every depth.
func (h *redactHandler) redactTree(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if _, found := h.keys[strings.ToLower(k)]; found {
				out[k] = "***"
				continue
			}
			out[k] = h.redactTree(inner)
		}

		return out

	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = h.redactTree(inner)
		}

		return out
	}

	return v
}

// lowerSet folds the configured field names into a lowercase lookup set.
func lowerSet(fields []string) map[string]struct{} {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(strings.ToLower(f)); f != "" {
			set[f] = struct{}{}
		}
	}

	return set
}
