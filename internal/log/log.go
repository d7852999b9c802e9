// Package log provides the process-wide zap logger.
package log

import (
	"fmt"

	"go.uber.org/zap"
)

var sugar *zap.SugaredLogger

// Init initializes the package-level logger.
func Init(debug bool) error {
	var zl *zap.Logger
	var err error
	if debug {
		zl, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		zl, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("init zap logger: %w", err)
	}
	sugar = zl.Sugar()
	return nil
}

// Logger returns the sugared logger. Before Init it discards everything, which
// keeps package tests quiet.
func Logger() *zap.SugaredLogger {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	return sugar
}

func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}

func Debugw(msg string, kv ...any) { Logger().Debugw(msg, kv...) }
func Infow(msg string, kv ...any)  { Logger().Infow(msg, kv...) }
func Warnw(msg string, kv ...any)  { Logger().Warnw(msg, kv...) }
func Errorw(msg string, kv ...any) { Logger().Errorw(msg, kv...) }

func Infof(template string, args ...any) { Logger().Infof(template, args...) }
func Warnf(template string, args ...any) { Logger().Warnf(template, args...) }
