package log

import (
	"go.uber.org/zap"
)

var l = zap.NewNop()

// Init replaces the process logger. Debug enables a development console logger.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	l = logger
	return nil
}

func Get() *zap.Logger {
	return l
}
