// Package dblog is a thin structured-logging wrapper around zap, used at
// session open/close, arena growth, crash recovery and reclamation
// checkpoints. The engine otherwise stays silent: hot paths (Alloc,
// Translate, bptree mutation) never log.
package dblog

import "go.uber.org/zap"

// Logger is the engine-wide structured logger. Nop by default so tests
// and embedding processes that never call SetLogger pay nothing.
var Logger *zap.Logger = zap.NewNop()

// SetLogger installs l as the engine-wide logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	Logger = l
}

// Grow logs an arena growth event.
func Grow(path string, oldSize, newSize uint64) {
	Logger.Info("arena grown",
		zap.String("file", path),
		zap.Uint64("old_size", oldSize),
		zap.Uint64("new_size", newSize),
	)
}

// Reclaimed logs a reclamation checkpoint.
func Reclaimed(version uint64, pages uint64) {
	Logger.Debug("reclaimed pages",
		zap.Uint64("oldest_live_version", version),
		zap.Uint64("pages", pages),
	)
}

// Recovered logs a crash-recovery decision.
func Recovered(kind string, detail string) {
	Logger.Warn("recovered from crash", zap.String("kind", kind), zap.String("detail", detail))
}

// Committed logs a successful write-transaction commit.
func Committed(version uint64) {
	Logger.Debug("committed", zap.Uint64("version", version))
}
