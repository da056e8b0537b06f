// Package snapshot implements the read-through preference between
// pre-generated snapshot files and live catalog queries: snapshots are
// served while acceptably fresh, revalidated in the background when
// stale, and bypassed entirely once expired.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Well-known snapshot file names under the snapshot directory.
const (
	// ReleasesFile holds the release listing snapshot
	ReleasesFile = "releases.json"
	// LatestFile holds the single latest-release snapshot
	LatestFile = "latest.json"
)

// Data source markers recorded in snapshot documents.
const (
	// SourceLive marks a document produced from live relay data
	SourceLive = "live"
	// SourceFallback marks a document produced from a previous snapshot
	SourceFallback = "fallback"
)

// Freshness classifies a snapshot's age.
type Freshness int

const (
	// Fresh snapshots are served as-is
	Fresh Freshness = iota
	// Stale snapshots are served while a background refresh runs
	Stale
	// Expired snapshots are not served at all
	Expired
)

// String returns the lowercase name of the freshness state.
func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Document is the JSON document stored at a well-known snapshot path.
// Exactly one of Releases or Latest is populated, by file.
type Document struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	Source      string        `json:"source"`
	Releases    []ReleaseView `json:"releases,omitempty"`
	Latest      *ReleaseView  `json:"latest,omitempty"`
}

// Classify returns the freshness of the document at the given moment.
// Boundary inclusivity: age equal to freshFor is already Stale, age
// equal to expireAfter is already Expired.
func (d *Document) Classify(now time.Time, freshFor, expireAfter time.Duration) Freshness {
	age := now.Sub(d.GeneratedAt)
	switch {
	case age >= expireAfter:
		return Expired
	case age >= freshFor:
		return Stale
	default:
		return Fresh
	}
}

// FileStore reads and writes snapshot documents in one directory.
// Documents are build artifacts: the read path never writes back.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Read loads the named snapshot document.
func (s *FileStore) Read(name string) (*Document, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	return &doc, nil
}

// Write stores the named snapshot document atomically.
func (s *FileStore) Write(name string, doc *Document) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
