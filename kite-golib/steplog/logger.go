// Package steplog provides the structured logger used for per-step training records.
// Records are JSON with RFC3339 timestamps; errors go to stderr and everything else to stdout.
package steplog

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes to os.Stdout and os.Stderr.
var Logger = New(os.Stdout, os.Stderr)

// New returns a logger that splits output between out and errOut based on level.
func New(out, errOut io.Writer) *zap.Logger {
	isErrorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl < zapcore.ErrorLevel
	})

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.RFC3339TimeEncoder
	encoder := zapcore.NewJSONEncoder(config)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(errOut), isErrorLevel),
		zapcore.NewCore(encoder, zapcore.AddSync(out), isInfoLevel),
	)
	return zap.New(core, zap.AddCaller())
}

// Step logs one optimizer step.
func Step(l *zap.Logger, epoch, step int, loss, lr float64) {
	l.Info("train step",
		zap.Int("epoch", epoch),
		zap.Int("step", step),
		zap.Float64("loss", loss),
		zap.Float64("learning_rate", lr),
	)
}

// Eval logs the result of an evaluation pass.
func Eval(l *zap.Logger, epoch int, loss, accuracy float64) {
	l.Info("eval",
		zap.Int("epoch", epoch),
		zap.Float64("eval_loss", loss),
		zap.Float64("eval_accuracy", accuracy),
	)
}
