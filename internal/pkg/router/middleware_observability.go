package router

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cashkite/cashkite/internal/pkg/config"
	"github.com/cashkite/cashkite/internal/pkg/instrument"
	"github.com/julienschmidt/httprouter"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const maxLoggedBodyBytes = 32 * 1024 // 32KB

// fieldMask is the lowercased set of header and body field names whose values
// must not reach the logs.
type fieldMask map[string]struct{}

// newFieldMask reads instrument.log_mask_fields from config.
func newFieldMask(cfg config.Config) fieldMask {
	mask := make(fieldMask)
	if cfg == nil {
		return mask
	}

	for _, field := range cfg.GetArray("instrument.log_mask_fields") {
		if field = strings.TrimSpace(strings.ToLower(field)); field != "" {
			mask[field] = struct{}{}
		}
	}

	return mask
}

func (m fieldMask) has(key string) bool {
	_, found := m[strings.ToLower(key)]
	return found
}

// headers returns a copy of h with masked values, or h itself when no mask is
// configured.
func (m fieldMask) headers(h http.Header) http.Header {
	if len(m) == 0 {
		return h
	}

	out := h.Clone()
	for key := range out {
		if m.has(key) {
			out.Set(key, "***")
		}
	}

	return out
}

// value walks decoded JSON and blanks masked map keys at every depth.
func (m fieldMask) value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if m.has(k) {
				out[k] = "***"
				continue
			}
			out[k] = m.value(inner)
		}

		return out

	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = m.value(inner)
		}

		return out
	}

	return v
}

// body renders a request body for logging. JSON and form bodies are decoded
// and masked; anything else is logged as text when printable.
func (m fieldMask) body(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		return m.value(decoded)
	}

	if strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded") {
		if values, err := url.ParseQuery(string(raw)); err == nil {
			return m.form(values)
		}
	}

	if !utf8.Valid(raw) {
		return "<binary body omitted>"
	}
	if len(raw) > maxLoggedBodyBytes {
		return string(raw[:maxLoggedBodyBytes]) + "...(truncated)"
	}

	return string(raw)
}

func (m fieldMask) form(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		switch {
		case m.has(k):
			out[k] = "***"
		case len(v) == 1:
			out[k] = v[0]
		default:
			out[k] = v
		}
	}

	return out
}

// responseTap wraps a ResponseWriter to capture the status, size, a bounded
// copy of the body, and the handler error for the access log and span.
type responseTap struct {
	http.ResponseWriter
	status  int
	written int
	snippet bytes.Buffer
	capped  bool
	err     error
}

func (t *responseTap) WriteHeader(code int) {
	t.status = code
	t.ResponseWriter.WriteHeader(code)
}

func (t *responseTap) Write(p []byte) (int, error) {
	if t.status == 0 {
		t.status = http.StatusOK
	}

	t.record(p)

	n, err := t.ResponseWriter.Write(p)
	t.written += n

	return n, err
}

// record copies p into the snippet buffer up to maxLoggedBodyBytes.
func (t *responseTap) record(p []byte) {
	if t.capped || len(p) == 0 {
		return
	}

	room := maxLoggedBodyBytes - t.snippet.Len()
	switch {
	case room <= 0:
		t.capped = true
	case len(p) > room:
		t.snippet.Write(p[:room])
		t.capped = true
	default:
		t.snippet.Write(p)
	}
}

// SetError lets the endpoint wrapper attach the handler error so the span can
// record it.
func (t *responseTap) SetError(err error) {
	t.err = err
}

func (t *responseTap) statusOrOK() int {
	if t.status == 0 {
		return http.StatusOK
	}

	return t.status
}

// loggedBody renders the captured response body for the access log.
func (t *responseTap) loggedBody(mask fieldMask) any {
	raw := t.snippet.Bytes()

	var body any
	var decoded any
	switch {
	case json.Unmarshal(raw, &decoded) == nil:
		body = mask.value(decoded)
	case utf8.Valid(raw):
		body = t.snippet.String()
	case len(raw) > 0:
		body = "<binary body omitted>"
	}

	if t.capped {
		body = map[string]any{"body": body, "truncated": true}
	}

	return body
}

func (t *responseTap) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

//nolint:err113 // it use dynamic error
func (t *responseTap) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := t.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}

	return nil, nil, errors.New("hijack not supported")
}

func (t *responseTap) Push(target string, opts *http.PushOptions) error {
	if p, ok := t.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}

	return http.ErrNotSupported
}

// matchedRoutePath returns the route pattern for the request, falling back to
// the raw URL path before routing has happened.
func matchedRoutePath(r *http.Request) string {
	if pattern := httprouter.ParamsFromContext(r.Context()).MatchedRoutePath(); pattern != "" {
		return pattern
	}

	return r.URL.Path
}

// peekBody reads up to maxLoggedBodyBytes of the request body for logging and
// stitches the consumed bytes back so the handler still sees the full stream.
func peekBody(r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}

	//nolint:errcheck // best effort for logging only
	peeked, _ := io.ReadAll(io.LimitReader(r.Body, maxLoggedBodyBytes+1))
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(peeked), r.Body))

	return peeked[:min(len(peeked), maxLoggedBodyBytes)]
}

// middlewareObservability wraps every request in a server span, emits request
// count and duration metrics, and writes masked request and response access
// logs.
func middlewareObservability(cfg config.Config, ins instrument.Instrumentation) Middleware {
	mask := newFieldMask(cfg)
	tracer := ins.Tracer("http.server")
	meter := ins.Meter("http.server")

	requests, err := meter.Int64Counter("http.server.requests", metric.WithDescription("Number of HTTP requests received"))
	if err != nil {
		slog.Error("failed to create http request counter", "error", err)
	}

	duration, err := meter.Float64Histogram("http.server.duration", metric.WithDescription("HTTP request duration in milliseconds"))
	if err != nil {
		slog.Error("failed to create http duration histogram", "error", err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := matchedRoutePath(r)
			start := time.Now()

			ctx, span := tracer.Start(r.Context(), r.Method+" "+route, trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
			))
			defer span.End()

			reqBody := peekBody(r)
			slog.InfoContext(ctx, "request received",
				"method", r.Method,
				"path", route,
				"uri", r.RequestURI,
				"headers", mask.headers(r.Header),
				"body", mask.body(r.Header.Get("Content-Type"), reqBody),
			)

			tap := &responseTap{ResponseWriter: w}
			next.ServeHTTP(tap, r.WithContext(ctx))

			status := tap.statusOrOK()
			attrs := []attribute.KeyValue{
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
				semconv.HTTPResponseStatusCodeKey.Int(status),
			}

			finishSpan(span, tap, status, attrs)

			if requests != nil {
				requests.Add(ctx, 1, metric.WithAttributes(attrs...))
			}
			if duration != nil {
				duration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs...))
			}

			span.SetAttributes(
				semconv.NetworkProtocolVersionKey.String(r.Proto),
				semconv.ServerAddressKey.String(r.Host),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.Int("http.response_content_length", tap.written),
			)

			slog.InfoContext(ctx, "response sent",
				"method", r.Method,
				"path", route,
				"uri", r.RequestURI,
				"status", status,
				"bytes", tap.written,
				"latency_ms", time.Since(start).Milliseconds(),
				"body", tap.loggedBody(mask),
			)
		})
	}
}

// finishSpan records the handler error and marks 5xx responses as span errors.
func finishSpan(span trace.Span, tap *responseTap, status int, attrs []attribute.KeyValue) {
	if tap.err != nil {
		span.RecordError(tap.err)
	}

	switch {
	case status >= 500 && tap.err != nil:
		span.SetStatus(codes.Error, tap.err.Error())
	case status >= 500:
		span.SetStatus(codes.Error, http.StatusText(status))
	default:
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(attrs...)
}
