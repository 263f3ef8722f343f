// Package host carries the ambient services every engine runs with: the
// substrate clock, the event journal and a logger.
package host

import (
	"github.com/rs/zerolog"

	"github.com/rustyeddy/commons/pkg/chain"
	"github.com/rustyeddy/commons/pkg/journal"
)

type Env struct {
	Clock   chain.Clock
	Journal journal.Journal
	Log     zerolog.Logger
}

type Option func(*Env)

func WithClock(c chain.Clock) Option {
	return func(e *Env) { e.Clock = c }
}

func WithJournal(j journal.Journal) Option {
	return func(e *Env) { e.Journal = j }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Env) { e.Log = l }
}

// New applies opts over the defaults (system clock, no journal, no logging)
// and tags the logger with the component name.
func New(component string, opts ...Option) Env {
	e := Env{
		Clock: chain.SystemClock{},
		Log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	if e.Clock == nil {
		e.Clock = chain.SystemClock{}
	}
	e.Log = e.Log.With().Str("component", component).Logger()
	return e
}

// Emit records ev stamped with the environment's clock.
func (e Env) Emit(ev journal.Event) journal.Event {
	if ev.Time.IsZero() {
		ev.Time = e.Clock.Now()
	}
	return journal.Emit(e.Journal, e.Log, ev)
}
