package journal

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/commons/pkg/id"
)

// Emit stamps ev and records it. The operation that produced ev has already
// committed, so a failed write is logged rather than returned.
func Emit(j Journal, log zerolog.Logger, ev Event) Event {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	ev.Time = ev.Time.UTC()
	if ev.ID == "" {
		ev.ID = id.NewAt(ev.Time)
	}
	if j == nil {
		return ev
	}
	if err := j.Record(ev); err != nil {
		log.Warn().Err(err).Str("kind", string(ev.Kind)).Str("event", ev.ID).Msg("journal write failed")
	}
	return ev
}
