package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// LoggerFactory hands pion a logging.LeveledLogger per scope, all writing to
// one zerolog logger.
type LoggerFactory struct {
	base zerolog.Logger
}

func NewLoggerFactory(base zerolog.Logger) *LoggerFactory {
	return &LoggerFactory{base: base}
}

func (f *LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{l: f.base.With().Str("module", "webrtc").Str("scope", scope).Logger()}
}

type leveledLogger struct {
	l zerolog.Logger
}

var _ logging.LeveledLogger = (*leveledLogger)(nil)

func (p *leveledLogger) Trace(msg string) { p.l.Trace().Msg(msg) }
func (p *leveledLogger) Tracef(format string, args ...any) {
	p.l.Trace().Msg(fmt.Sprintf(format, args...))
}
func (p *leveledLogger) Debug(msg string) { p.l.Debug().Msg(msg) }
func (p *leveledLogger) Debugf(format string, args ...any) {
	p.l.Debug().Msg(fmt.Sprintf(format, args...))
}
func (p *leveledLogger) Info(msg string) { p.l.Info().Msg(msg) }
func (p *leveledLogger) Infof(format string, args ...any) {
	p.l.Info().Msg(fmt.Sprintf(format, args...))
}
func (p *leveledLogger) Warn(msg string) { p.l.Warn().Msg(msg) }
func (p *leveledLogger) Warnf(format string, args ...any) {
	p.l.Warn().Msg(fmt.Sprintf(format, args...))
}
func (p *leveledLogger) Error(msg string) { p.l.Error().Msg(msg) }
func (p *leveledLogger) Errorf(format string, args ...any) {
	p.l.Error().Msg(fmt.Sprintf(format, args...))
}
