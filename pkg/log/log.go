// pkg/log/log.go
package log

import "go.uber.org/zap"

var logger *zap.Logger

// Init builds the process-wide logger. Production mode emits JSON;
// development mode is human-readable for local runs and tests. Calling it
// twice is a no-op.
func Init(prod bool) error {
	if logger != nil {
		return nil
	}
	var err error
	if prod {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	return err
}

// L returns the logger initialized by Init.
func L() *zap.Logger {
	if logger == nil {
		panic("logger not initialized")
	}
	return logger
}
