package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/commons/pkg/chain"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func sampleEvent(kind Kind, at time.Time, ref string) Event {
	return Event{
		ID:      "",
		Time:    at,
		Kind:    kind,
		Source:  "auction:1",
		Actor:   "alice",
		Subject: "bob",
		Ref:     ref,
		Amount:  chain.MustEther("0.2"),
		Detail:  "test",
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = 'events'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "events", name)
}

func TestSQLiteRecordAndGet(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := Emit(j, nopLogger(), sampleEvent(BidReceived, at, "1"))

	got, err := j.GetEvent(ev.ID)
	require.NoError(t, err)

	assert.Equal(t, ev.ID, got.ID)
	assert.True(t, got.Time.Equal(at))
	assert.Equal(t, BidReceived, got.Kind)
	assert.Equal(t, chain.Address("auction:1"), got.Source)
	assert.Equal(t, chain.Address("alice"), got.Actor)
	assert.Equal(t, chain.Address("bob"), got.Subject)
	assert.Equal(t, "1", got.Ref)
	assert.Equal(t, chain.MustEther("0.2"), got.Amount)
	assert.Equal(t, "test", got.Detail)
}

func TestSQLiteStoresFullUint64Amounts(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	ev := sampleEvent(WithdrawalCompleted, time.Now(), "")
	ev.Amount = chain.Wei(^uint64(0))
	ev = Emit(j, nopLogger(), ev)

	got, err := j.GetEvent(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Amount, got.Amount)
}

func TestSQLiteGetMissing(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	_, err := j.GetEvent("nope")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestSQLiteListQueries(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	Emit(j, nopLogger(), sampleEvent(BidReceived, day.Add(1*time.Hour), "1"))
	Emit(j, nopLogger(), sampleEvent(BidReceived, day.Add(2*time.Hour), "1"))
	Emit(j, nopLogger(), sampleEvent(AuctionEnded, day.Add(3*time.Hour), "1"))
	Emit(j, nopLogger(), sampleEvent(Voted, day.Add(26*time.Hour), "0"))

	bids, err := j.ListByKind(BidReceived)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.True(t, bids[0].Time.Before(bids[1].Time))

	first, err := j.ListBetween(day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, first, 3)

	all, err := j.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, Voted, all[3].Kind)
}
