package temporal

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// TemporalAdapter routes SDK log lines into zerolog.
type TemporalAdapter struct {
	logger zerolog.Logger
}

func NewTemporalAdapter(logger zerolog.Logger) log.Logger {
	return &TemporalAdapter{
		logger: logger.With().Str("component", "temporal-sdk").Logger(),
	}
}

func applyKeyvals(ctx zerolog.Context, keyvals []interface{}) zerolog.Context {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}
	for i := 0; i < len(keyvals); i += 2 {
		ctx = ctx.Interface(keyName(keyvals[i]), keyvals[i+1])
	}
	return ctx
}

func keyName(k interface{}) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}

func (a *TemporalAdapter) event(e *zerolog.Event, keyvals []interface{}) *zerolog.Event {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}
	for i := 0; i < len(keyvals); i += 2 {
		e = e.Interface(keyName(keyvals[i]), keyvals[i+1])
	}
	return e
}

func (a *TemporalAdapter) Debug(msg string, keyvals ...interface{}) {
	a.event(a.logger.Debug(), keyvals).Msg(msg)
}

func (a *TemporalAdapter) Info(msg string, keyvals ...interface{}) {
	a.event(a.logger.Info(), keyvals).Msg(msg)
}

func (a *TemporalAdapter) Warn(msg string, keyvals ...interface{}) {
	a.event(a.logger.Warn(), keyvals).Msg(msg)
}

func (a *TemporalAdapter) Error(msg string, keyvals ...interface{}) {
	a.event(a.logger.Error(), keyvals).Msg(msg)
}

// With returns a logger that carries keyvals on every line, so workflow and
// activity loggers keep their workflow and run ids.
func (a *TemporalAdapter) With(keyvals ...interface{}) log.Logger {
	return &TemporalAdapter{logger: applyKeyvals(a.logger.With(), keyvals).Logger()}
}
