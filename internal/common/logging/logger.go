package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// NewDefaultLogger creates a stdout logger honouring LOG_LEVEL
func NewDefaultLogger() Logger {
	logger, err := NewZapLogger(LogConfig{Level: ParseLevel(os.Getenv("LOG_LEVEL"))})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize default zap logger: %v", err))
	}
	return logger
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() Logger {
	l := zap.NewNop()
	return &ZapAdapter{logger: l}
}

// InitGlobalLogger configures the global logger from LOG_LEVEL and LOG_FILE.
// Entries go to stdout unless LOG_FILE is set.
func InitGlobalLogger(level, file string) error {
	cfg := LogConfig{Level: ParseLevel(level), Name: "quotagate"}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", file, err)
		}
		cfg.Output = f
	}

	logger, err := NewZapLogger(cfg)
	if err != nil {
		return err
	}
	SetGlobalLogger(logger)

	logger.Info("Logger initialized",
		String("level", cfg.Level.String()),
		String("log_file", file),
	)
	return nil
}

// MustSync flushes buffered entries of the global logger.
// Call before process exit.
func MustSync() {
	if z, ok := GetGlobalLogger().(*ZapAdapter); ok {
		_ = z.Sync()
	}
}
