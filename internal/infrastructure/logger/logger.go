// Package logger builds the slog loggers used by the client and the relay.
//
// Every logger is wrapped in a RedactingHandler so key material handed to a
// log call by mistake never reaches the output.
package logger

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// sensitiveKeys are attribute keys whose values are always masked.
var sensitiveKeys = map[string]bool{
	"key":         true,
	"keys":        true,
	"secret":      true,
	"seed":        true,
	"kh":          true,
	"kf":          true,
	"kb":          true,
	"df":          true,
	"db":          true,
	"x":           true,
	"y":           true,
	"private_key": true,
	"password":    true,
}

// sensitiveKeywords mask any key that contains them.
var sensitiveKeywords = []string{"secret", "private", "password", "seed"}

// sensitivePatterns mask string values regardless of key.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// MaskValue replaces sensitive values.
const MaskValue = "***REDACTED***"

// RedactingHandler wraps an slog.Handler and masks sensitive attributes.
type RedactingHandler struct {
	handler slog.Handler
}

// NewRedactingHandler wraps h; nil means slog.Default().Handler().
func NewRedactingHandler(h slog.Handler) *RedactingHandler {
	if h == nil {
		h = slog.Default().Handler()
	}
	return &RedactingHandler{handler: h}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redact(a))
		return true
	})
	return h.handler.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redact(a)
	}
	return &RedactingHandler{handler: h.handler.WithAttrs(clean)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{handler: h.handler.WithGroup(name)}
}

func redact(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, ga := range group {
			clean[i] = redact(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}

	k := strings.ToLower(a.Key)
	if sensitiveKeys[k] {
		return slog.String(a.Key, MaskValue)
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(k, kw) {
			return slog.String(a.Key, MaskValue)
		}
	}
	if a.Value.Kind() == slog.KindString {
		for _, p := range sensitivePatterns {
			if p.MatchString(a.Value.String()) {
				return slog.String(a.Key, MaskValue)
			}
		}
	}
	return a
}

// New returns a redacting logger writing text (or JSON) to w. verbose
// lowers the level from Warn to Debug.
func New(w io.Writer, verbose, json bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(NewRedactingHandler(h))
}

// Discard is a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
