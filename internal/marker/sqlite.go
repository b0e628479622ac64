package marker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"standings-sync/internal/assert"
	"standings-sync/internal/chrono"
	"time"

	_ "modernc.org/sqlite"
)

const Schema = `
create table if not exists markers (
	feed text primary key,
	identity text not null,
	updated_at integer not null
);
`

// OpenDB opens (and creates if needed) the sqlite database holding the
// markers of every feed.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a run is sequential, a single connection also keeps :memory: databases intact
	db.SetMaxOpenConns(1)
	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply marker schema: %w", err)
	}
	return db, nil
}

// Entry is the marker of one feed.
type Entry struct {
	Feed      string
	Identity  string
	UpdatedAt time.Time
}

// SQLiteStore keeps one row per feed, the row is replaced on every write.
type SQLiteStore struct {
	db   *sql.DB
	feed string
	time chrono.TimeAPI
}

func NewSQLiteStore(db *sql.DB, feed string, time chrono.TimeAPI) SQLiteStore {
	assert.NotNil(db, "db")
	assert.NotEmptyStr(feed, "feed")
	assert.NotNil(time, "time")
	return SQLiteStore{db: db, feed: feed, time: time}
}

func (s SQLiteStore) Read(ctx context.Context) (string, error) {
	var identity string
	err := s.db.QueryRowContext(
		ctx,
		"select identity from markers where feed = ?",
		s.feed,
	).Scan(&identity)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return identity, err
}

func (s SQLiteStore) Write(ctx context.Context, identity string) error {
	_, err := s.db.ExecContext(
		ctx,
		`insert into markers (feed, identity, updated_at) values (?, ?, ?)
		on conflict (feed) do update set identity = excluded.identity, updated_at = excluded.updated_at`,
		s.feed, identity, s.time.Now().Unix(),
	)
	return err
}

// List returns the marker of every feed that has published at least once.
func List(ctx context.Context, db *sql.DB) ([]Entry, error) {
	rows, err := db.QueryContext(ctx, "select feed, identity, updated_at from markers order by feed")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		var updatedAt int64
		err := rows.Scan(&entry.Feed, &entry.Identity, &updatedAt)
		if err != nil {
			return nil, err
		}
		entry.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, entry)
	}
	return out, rows.Err()
}
