package logging

import (
	"fmt"
	"strings"

	"github.com/kataras/golog"
)

// GologAdapter implements Logger using kataras/golog. Since golog is a
// message-oriented logger, key/value pairs are rendered as key=value suffixes.
type GologAdapter struct {
	logger *golog.Logger
}

var _ Logger = (*GologAdapter)(nil)

// NewGologAdapter wraps an existing golog.Logger.
func NewGologAdapter(logger *golog.Logger) *GologAdapter {
	return &GologAdapter{logger: logger}
}

// SetLevel adjusts the underlying golog level.
func (g *GologAdapter) SetLevel(level LogLevel) {
	g.logger.SetLevel(strings.ToLower(level.String()))
}

// Debug logs debug messages.
func (g *GologAdapter) Debug(msg string, args ...any) { g.logger.Debug(render(msg, args)) }

// Info logs informational messages.
func (g *GologAdapter) Info(msg string, args ...any) { g.logger.Info(render(msg, args)) }

// Warn logs warning messages.
func (g *GologAdapter) Warn(msg string, args ...any) { g.logger.Warn(render(msg, args)) }

// Error logs error messages.
func (g *GologAdapter) Error(msg string, args ...any) { g.logger.Error(render(msg, args)) }

func render(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for _, kv := range pairs(args) {
		fmt.Fprintf(&b, " %v=%v", kv[0], kv[1])
	}
	return b.String()
}
