package logger

import (
	"go.uber.org/zap"
)

// New builds the process logger. Verbose switches to the development
// config so per-message debug lines show up during troubleshooting runs.
func New(verbose bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return l
}

// WithRun tags a logger with the run and job identity so every line of a
// batch run can be correlated.
func WithRun(l *zap.Logger, runID, providerName, job string) *zap.Logger {
	return l.With(
		zap.String("run_id", runID),
		zap.String("provider", providerName),
		zap.String("job", job),
	)
}
