// pkg/journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	source TEXT NOT NULL,
	actor TEXT NOT NULL,
	subject TEXT NOT NULL,
	ref TEXT NOT NULL,
	amount TEXT NOT NULL,
	detail TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
`
