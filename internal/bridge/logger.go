package bridge

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the bridge package's logger, a no-op logger by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger configures the bridge package's logger. Safe to call at any time.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
