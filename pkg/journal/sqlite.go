package journal

import (
	"database/sql"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// Amounts are stored as decimal text: sqlite integers are signed 64-bit and
// a wei amount can use the full uint64 range.
func (j *SQLite) Record(ev Event) error {
	_, err := j.db.Exec(`
		INSERT INTO events
		(id, time, kind, source, actor, subject, ref, amount, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Time, string(ev.Kind), string(ev.Source), string(ev.Actor),
		string(ev.Subject), ev.Ref, strconv.FormatUint(uint64(ev.Amount), 10), ev.Detail,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
