package util

import (
	"io"
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StdLogger adapts parent for libraries that only accept a *log.Logger,
// tagging every line with the subsystem
func StdLogger(parent *zap.Logger, subsystem string, level zapcore.Level) *log.Logger {
	logger, err := zap.NewStdLogAt(parent.With(zap.String("subsystem", subsystem)), level)
	if err != nil {
		parent.Error("Invalid log level for std logger", zap.Stringer("level", level), zap.Error(err))
		return log.New(io.Discard, "", 0)
	}
	return logger
}
