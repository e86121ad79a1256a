// Package logging builds the process-wide zap logger the way
// server.InitServer does in the teacher: development config with
// stdout output in debug mode, production config otherwise.
package logging

import "go.uber.org/zap"

// New builds a SugaredLogger. debug selects the development encoder
// (console, human-readable) over the production one (JSON).
func New(debug bool) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)

	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stdout"}
		logger, err = cfg.Build()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}

	return logger.Sugar(), nil
}

// Noop returns a logger that discards everything, for tests.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
