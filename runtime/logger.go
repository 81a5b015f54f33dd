package runtime

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the runtime package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	logger.CompareAndSwap(nil, zap.NewNop())
	return logger.Load()
}

// SetLogger configures the runtime package's logger. Runtimes created
// earlier keep the logger they started with. A nil logger restores the
// no-op default.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
