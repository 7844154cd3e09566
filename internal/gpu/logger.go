package gpu

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger used by the device, swapchain and
// pipelines. Output is discarded until it is called. Pass nil to silence
// it again.
//
// Levels:
//   - [slog.LevelDebug]: per-object creation and teardown
//   - [slog.LevelInfo]: device selection, swapchain (re)creation
//   - [slog.LevelWarn]: validation layer warnings
//   - [slog.LevelError]: validation layer errors
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

func Logger() *slog.Logger {
	return loggerPtr.Load()
}
