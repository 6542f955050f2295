// Package status carries informational events from the serving core to an
// external observer (UI, log aggregation). Publishing never blocks request
// handling.
package status

import "github.com/rs/zerolog"

type Kind string

const (
	KindEngineActivated Kind = "engine_activated"
	KindEngineEvicted   Kind = "engine_evicted"
	KindModelReady      Kind = "model_ready"
	KindModelFailed     Kind = "model_failed"
)

type Event struct {
	Kind   Kind
	Engine string
	Model  string
	Detail string
}

type Sink interface {
	Publish(Event)
}

type logSink struct {
	log zerolog.Logger
}

// NewLogSink returns a sink that writes events as structured log lines.
func NewLogSink(l zerolog.Logger) Sink {
	return logSink{log: l}
}

func (s logSink) Publish(e Event) {
	s.log.Info().
		Str("kind", string(e.Kind)).
		Str("engine", e.Engine).
		Str("model", e.Model).
		Str("detail", e.Detail).
		Msg("status")
}

type discardSink struct{}

func (discardSink) Publish(Event) {}

func Discard() Sink { return discardSink{} }
