package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiCyan   = "\x1b[36m"
)

// consoleHandler renders human-readable single-line log records.
type consoleHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	color  bool
	prefix []slog.Attr
}

func newConsoleHandler(out io.Writer, level slog.Level) *consoleHandler {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &consoleHandler{
		mu:    &sync.Mutex{},
		out:   out,
		level: level,
		color: color,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder

	b.WriteString(h.dim(record.Time.Format(time.TimeOnly)))
	b.WriteByte(' ')
	b.WriteString(h.levelLabel(record.Level))
	b.WriteByte(' ')
	b.WriteString(record.Message)

	appendAttr := func(attr slog.Attr) {
		if attr.Key == "" {
			return
		}
		b.WriteByte(' ')
		b.WriteString(h.dim(attr.Key + "="))
		b.WriteString(formatValue(attr.Value))
	}
	for _, attr := range h.prefix {
		appendAttr(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		appendAttr(attr)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.prefix = append(append([]slog.Attr{}, h.prefix...), attrs...)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	// Groups are flattened in console output.
	return h
}

func (h *consoleHandler) levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.paint(ansiRed, "ERROR")
	case level >= slog.LevelWarn:
		return h.paint(ansiYellow, "WARN ")
	case level >= slog.LevelInfo:
		return h.paint(ansiBlue, "INFO ")
	default:
		return h.paint(ansiCyan, "DEBUG")
	}
}

func (h *consoleHandler) paint(color, text string) string {
	if !h.color {
		return text
	}
	return color + text + ansiReset
}

func (h *consoleHandler) dim(text string) string {
	return h.paint(ansiDim, text)
}

func formatValue(value slog.Value) string {
	resolved := value.Resolve()
	switch resolved.Kind() {
	case slog.KindString:
		s := resolved.String()
		if strings.ContainsAny(s, " \t") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindDuration:
		return resolved.Duration().String()
	default:
		return resolved.String()
	}
}
