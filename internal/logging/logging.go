// Package logging builds the process slog logger and the HTTP access log.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorKey is the attribute key rendered in red by the text handler.
const ErrorKey = "error"

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New returns a logger writing to w. format is "json" or "text".
func New(w io.Writer, level, format string, useColor bool) *slog.Logger {
	lvl := ParseLevel(level)
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(NewTextHandler(w, lvl, useColor))
}

// TextHandler prints one colored line per record followed by indented attributes.
type TextHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	color bool
	attrs []slog.Attr
	group string
}

func NewTextHandler(w io.Writer, level slog.Level, useColor bool) *TextHandler {
	return &TextHandler{mu: &sync.Mutex{}, w: w, level: level, color: useColor}
}

func (h *TextHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	nh.attrs = append(nh.attrs, h.attrs...)
	for _, a := range attrs {
		nh.attrs = append(nh.attrs, h.qualify(a))
	}
	return &nh
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	if nh.group != "" {
		nh.group += "."
	}
	nh.group += name
	return &nh
}

func (h *TextHandler) qualify(a slog.Attr) slog.Attr {
	if h.group == "" {
		return a
	}
	return slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
}

func (h *TextHandler) paint(attr color.Attribute, format string, args ...any) string {
	c := color.New(attr)
	if h.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprintf(format, args...)
}

func (h *TextHandler) Handle(_ context.Context, r slog.Record) error {
	kv := map[string]slog.Value{}
	for _, a := range h.attrs {
		kv[a.Key] = a.Value
	}
	r.Attrs(func(a slog.Attr) bool {
		a = h.qualify(a)
		kv[a.Key] = a.Value
		return true
	})

	var b strings.Builder
	b.WriteString(r.Time.Format(time.RFC3339))
	b.WriteByte(' ')
	levelColor := color.FgBlue
	switch {
	case r.Level >= slog.LevelError:
		levelColor = color.FgRed
	case r.Level >= slog.LevelWarn:
		levelColor = color.FgYellow
	case r.Level < slog.LevelInfo:
		levelColor = color.FgCyan
	}
	b.WriteString(h.paint(levelColor, "%-5s ", r.Level))
	for _, key := range []string{"method", "path", "status"} {
		if v, ok := kv[key]; ok {
			fmt.Fprintf(&b, "%s ", v)
			delete(kv, key)
		}
	}
	b.WriteString(h.paint(color.FgGreen, "%s", r.Message))
	if e, ok := kv[ErrorKey]; ok {
		delete(kv, ErrorKey)
		b.WriteString(h.paint(color.FgRed, " %s", e))
	}
	b.WriteByte('\n')
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "    %s=%s\n", k, kv[k])
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// Middleware logs one record per request at a level derived from the status.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, attrs := withRequestAttrs(r.Context())
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(ctx)),
			}
			logger.LogAttrs(ctx, statusLevel(status), http.StatusText(status), append(fields, attrs.list()...)...)
		})
	}
}

type requestAttrs struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

type requestAttrsKey struct{}

func withRequestAttrs(ctx context.Context) (context.Context, *requestAttrs) {
	a := &requestAttrs{}
	return context.WithValue(ctx, requestAttrsKey{}, a), a
}

// AddRequestAttr attaches an attribute to the access log line of the current
// request. It is a no-op outside Middleware.
func AddRequestAttr(ctx context.Context, key string, value any) {
	a, ok := ctx.Value(requestAttrsKey{}).(*requestAttrs)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attrs = append(a.attrs, slog.Any(key, value))
}

func (a *requestAttrs) list() []slog.Attr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]slog.Attr(nil), a.attrs...)
}

func statusLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
