// Package logging adapts zap to the two-call logger the harness components
// depend on.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the sink every harness component writes through. Verbose lines
// are only emitted when the harness runs in debug mode.
type Logger interface {
	Log(message string, verbose bool)
	Error(message string, err error)
}

type Zap struct {
	z *zap.Logger
}

// New builds a console logger. debug lowers the level so verbose lines show.
func New(debug bool) (*Zap, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Zap{z: z}, nil
}

// Wrap adapts an existing zap logger, e.g. one backed by zaptest/observer.
func Wrap(z *zap.Logger) *Zap {
	return &Zap{z: z}
}

// Nop discards everything.
func Nop() *Zap {
	return &Zap{z: zap.NewNop()}
}

func (l *Zap) Log(message string, verbose bool) {
	if verbose {
		l.z.Debug(message)
		return
	}
	l.z.Info(message)
}

func (l *Zap) Error(message string, err error) {
	if err == nil {
		l.z.Error(message)
		return
	}
	l.z.Error(message, zap.Error(err))
}

// Named returns a child logger tagged with component name.
func (l *Zap) Named(name string) *Zap {
	return &Zap{z: l.z.Named(name)}
}

// Sync flushes buffered entries. Errors from syncing stdout are ignored.
func (l *Zap) Sync() {
	_ = l.z.Sync()
}
