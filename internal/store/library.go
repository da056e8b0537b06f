// Package store persists the listener's library: saved releases and
// play history, kept in a local SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chorus/internal/core"
)

// Release kinds as stored in the library.
const (
	KindTrack    = "track"
	KindPlaylist = "playlist"
)

// ErrNotSaved is returned when removing a release that is not in the
// library.
var ErrNotSaved = errors.New("release not saved")

const schema = `
CREATE TABLE IF NOT EXISTS saved_releases (
	kind       TEXT      NOT NULL,
	author     TEXT      NOT NULL,
	identifier TEXT      NOT NULL,
	title      TEXT      NOT NULL,
	saved_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (kind, author, identifier)
);

CREATE TABLE IF NOT EXISTS play_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	author     TEXT      NOT NULL,
	identifier TEXT      NOT NULL,
	title      TEXT      NOT NULL,
	artist     TEXT      NOT NULL,
	played_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_play_history_track
	ON play_history (author, identifier);
`

// SavedRelease is one library entry.
type SavedRelease struct {
	Kind       string
	Author     string
	Identifier string
	Title      string
	SavedAt    time.Time
}

// PlayEntry is one play history row.
type PlayEntry struct {
	Author     string
	Identifier string
	Title      string
	Artist     string
	PlayedAt   time.Time
}

// Library is the SQLite-backed listener library. The path ":memory:"
// opens a throwaway in-memory database.
type Library struct {
	db *sql.DB
}

// Open opens the library database at path and ensures the schema.
func Open(path string) (*Library, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping library: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create library schema: %w", err)
	}

	return &Library{db: db}, nil
}

// Close releases the database handle.
func (l *Library) Close() error {
	return l.db.Close()
}

// SaveRelease adds a release to the library. Saving an already-saved
// release refreshes its timestamp.
func (l *Library) SaveRelease(release core.Release, now time.Time) error {
	entry, err := savedEntry(release)
	if err != nil {
		return err
	}
	return l.Save(entry, now)
}

// Save adds a library entry directly.
func (l *Library) Save(entry SavedRelease, now time.Time) error {
	if entry.Kind != KindTrack && entry.Kind != KindPlaylist {
		return fmt.Errorf("unknown release kind %q", entry.Kind)
	}
	if entry.Author == "" || entry.Identifier == "" {
		return fmt.Errorf("library entry needs author and identifier")
	}

	query := `
		INSERT INTO saved_releases (kind, author, identifier, title, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (kind, author, identifier) DO UPDATE SET saved_at = excluded.saved_at
	`
	if _, err := l.db.Exec(query, entry.Kind, entry.Author, entry.Identifier, entry.Title, now); err != nil {
		return fmt.Errorf("save release: %w", err)
	}
	return nil
}

// RemoveRelease deletes a saved release from the library.
func (l *Library) RemoveRelease(kind, author, identifier string) error {
	result, err := l.db.Exec(
		`DELETE FROM saved_releases WHERE kind = ? AND author = ? AND identifier = ?`,
		kind, author, identifier,
	)
	if err != nil {
		return fmt.Errorf("remove release: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove release: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s/%s", ErrNotSaved, kind, author, identifier)
	}
	return nil
}

// IsSaved reports whether the release is in the library.
func (l *Library) IsSaved(kind, author, identifier string) (bool, error) {
	var exists bool
	err := l.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM saved_releases WHERE kind = ? AND author = ? AND identifier = ?)`,
		kind, author, identifier,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check saved release: %w", err)
	}
	return exists, nil
}

// SavedReleases lists the library, most recently saved first.
func (l *Library) SavedReleases() ([]SavedRelease, error) {
	rows, err := l.db.Query(`
		SELECT kind, author, identifier, title, saved_at
		FROM saved_releases
		ORDER BY saved_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list saved releases: %w", err)
	}
	defer rows.Close()

	var saved []SavedRelease
	for rows.Next() {
		var entry SavedRelease
		if err := rows.Scan(&entry.Kind, &entry.Author, &entry.Identifier, &entry.Title, &entry.SavedAt); err != nil {
			return nil, fmt.Errorf("scan saved release: %w", err)
		}
		saved = append(saved, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list saved releases: %w", err)
	}
	return saved, nil
}

// RecordPlay appends a track to the play history.
func (l *Library) RecordPlay(track core.Track, playedAt time.Time) error {
	_, err := l.db.Exec(
		`INSERT INTO play_history (author, identifier, title, artist, played_at) VALUES (?, ?, ?, ?, ?)`,
		track.Author, track.Identifier, track.Title, track.Artist, playedAt,
	)
	if err != nil {
		return fmt.Errorf("record play: %w", err)
	}
	return nil
}

// RecentPlays lists the newest history entries, most recent first.
func (l *Library) RecentPlays(limit int) ([]PlayEntry, error) {
	rows, err := l.db.Query(`
		SELECT author, identifier, title, artist, played_at
		FROM play_history
		ORDER BY played_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list play history: %w", err)
	}
	defer rows.Close()

	var plays []PlayEntry
	for rows.Next() {
		var entry PlayEntry
		if err := rows.Scan(&entry.Author, &entry.Identifier, &entry.Title, &entry.Artist, &entry.PlayedAt); err != nil {
			return nil, fmt.Errorf("scan play entry: %w", err)
		}
		plays = append(plays, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list play history: %w", err)
	}
	return plays, nil
}

// PlayCount returns how often a track has been played.
func (l *Library) PlayCount(author, identifier string) (int, error) {
	var count int
	err := l.db.QueryRow(
		`SELECT COUNT(*) FROM play_history WHERE author = ? AND identifier = ?`,
		author, identifier,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count plays: %w", err)
	}
	return count, nil
}

func savedEntry(release core.Release) (SavedRelease, error) {
	switch release.Kind {
	case core.ReleaseTrack:
		if release.Track == nil {
			return SavedRelease{}, fmt.Errorf("track release carries no track")
		}
		return SavedRelease{
			Kind:       KindTrack,
			Author:     release.Track.Author,
			Identifier: release.Track.Identifier,
			Title:      release.Track.Title,
		}, nil

	case core.ReleasePlaylist:
		if release.Playlist == nil {
			return SavedRelease{}, fmt.Errorf("playlist release carries no playlist")
		}
		return SavedRelease{
			Kind:       KindPlaylist,
			Author:     release.Playlist.Author,
			Identifier: release.Playlist.Identifier,
			Title:      release.Playlist.Title,
		}, nil
	}

	return SavedRelease{}, fmt.Errorf("unknown release kind %d", release.Kind)
}
