package modtree

import (
	"log/slog"
	"os"
)

// Logger defines the interface for tree logging.
// It uses structured key-value pairs and is satisfied directly by
// *slog.Logger:
//
//	logger.Info("Tree state changed", "tree", "app", "state", "up")
//
// Tree transitions are logged at info, module transitions at debug and
// captured module errors at error.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// defaultLogger writes text records to stderr. It is also the fallback
// channel for module errors that no observer subscribed to.
func defaultLogger() Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
