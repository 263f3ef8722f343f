package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rustyeddy/commons/pkg/chain"
)

var ErrEventNotFound = errors.New("event not found")

const selectEvents = `
		SELECT id, time, kind, source, actor, subject, ref, amount, detail
		FROM events`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (Event, error) {
	var (
		ev                           Event
		kind, source, actor, subject string
		amount                       string
	)
	if err := s.Scan(&ev.ID, &ev.Time, &kind, &source, &actor, &subject, &ev.Ref, &amount, &ev.Detail); err != nil {
		return Event{}, err
	}
	n, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return Event{}, fmt.Errorf("event %s: bad amount %q: %w", ev.ID, amount, err)
	}
	ev.Kind = Kind(kind)
	ev.Source = chain.Address(source)
	ev.Actor = chain.Address(actor)
	ev.Subject = chain.Address(subject)
	ev.Amount = chain.Wei(n)
	return ev, nil
}

// GetEvent returns a single event by ID.
func (j *SQLite) GetEvent(eventID string) (Event, error) {
	ev, err := scanEvent(j.db.QueryRow(selectEvents+` WHERE id = ?`, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, fmt.Errorf("%w: %q", ErrEventNotFound, eventID)
		}
		return Event{}, err
	}
	return ev, nil
}

// ListByKind returns every event of one kind in emission order.
func (j *SQLite) ListByKind(k Kind) ([]Event, error) {
	return j.list(selectEvents+` WHERE kind = ? ORDER BY id ASC`, string(k))
}

// ListBetween returns events whose time is within [start, end).
func (j *SQLite) ListBetween(start, end time.Time) ([]Event, error) {
	return j.list(selectEvents+` WHERE time >= ? AND time < ? ORDER BY id ASC`, start.UTC(), end.UTC())
}

// ListAll returns the whole journal in emission order.
func (j *SQLite) ListAll() ([]Event, error) {
	return j.list(selectEvents + ` ORDER BY id ASC`)
}

func (j *SQLite) list(query string, args ...any) ([]Event, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
