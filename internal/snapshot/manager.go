package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"chorus/internal/core"
)

// refreshTimeout bounds one background revalidation fetch.
const refreshTimeout = 30 * time.Second

// Fetcher produces a live document from the network.
type Fetcher func(ctx context.Context) (*Document, error)

// Result is what the manager hands to callers: the chosen document and
// where it came from.
type Result struct {
	Document  *Document
	Freshness Freshness
	FromLive  bool
}

// Manager decides between the static snapshot and live data.
//
// Fresh and stale snapshots are served immediately; a stale snapshot
// additionally kicks off one background live fetch whose result is
// promoted for subsequent calls (last-write-wins — the live result is
// always newer than the snapshot it backs up). Expired or unreadable
// snapshots fall through to a blocking live fetch. The snapshot file
// itself is never written by this path.
type Manager struct {
	store   *FileStore
	name    string
	fetch   Fetcher
	config  *core.CacheConfig
	logger  *zap.Logger

	mutex      sync.Mutex
	promoted   *Document
	refreshing bool

	now func() time.Time
}

// NewManager creates a manager for one snapshot file.
func NewManager(
	store *FileStore,
	name string,
	fetch Fetcher,
	config *core.CacheConfig,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		store:  store,
		name:   name,
		fetch:  fetch,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the preferred document for the current moment.
func (m *Manager) Get(ctx context.Context) (Result, error) {
	now := m.now()

	if promoted := m.freshPromoted(now); promoted != nil {
		freshness := promoted.Classify(now, m.config.FreshFor, m.config.ExpireAfter)
		if freshness == Stale {
			m.refreshInBackground()
		}
		return Result{Document: promoted, Freshness: freshness, FromLive: true}, nil
	}

	doc, err := m.store.Read(m.name)
	if err != nil {
		m.logger.Debug("Snapshot unavailable, serving live",
			zap.String("snapshot", m.name),
			zap.Error(err))
		return m.serveLive(ctx)
	}

	freshness := doc.Classify(now, m.config.FreshFor, m.config.ExpireAfter)
	switch freshness {
	case Fresh:
		return Result{Document: doc, Freshness: Fresh}, nil

	case Stale:
		m.refreshInBackground()
		return Result{Document: doc, Freshness: Stale}, nil

	default: // Expired: the snapshot is not served even though present.
		return m.serveLive(ctx)
	}
}

func (m *Manager) serveLive(ctx context.Context) (Result, error) {
	doc, err := m.fetch(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("live fetch: %w", err)
	}

	m.promote(doc)
	return Result{Document: doc, Freshness: Fresh, FromLive: true}, nil
}

// refreshInBackground starts at most one concurrent revalidation fetch.
// The caller is never blocked on its completion.
func (m *Manager) refreshInBackground() {
	m.mutex.Lock()
	if m.refreshing {
		m.mutex.Unlock()
		return
	}
	m.refreshing = true
	m.mutex.Unlock()

	go func() {
		defer func() {
			m.mutex.Lock()
			m.refreshing = false
			m.mutex.Unlock()
		}()

		// Detached from the request context: the refresh outlives the
		// call that triggered it.
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		doc, err := m.fetch(ctx)
		if err != nil {
			m.logger.Warn("Background snapshot refresh failed",
				zap.String("snapshot", m.name),
				zap.Error(err))
			return
		}

		m.promote(doc)
		m.logger.Info("Snapshot refreshed from live data",
			zap.String("snapshot", m.name))
	}()
}

func (m *Manager) promote(doc *Document) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Last-write-wins, but never move user-visible state backward.
	if m.promoted == nil || !doc.GeneratedAt.Before(m.promoted.GeneratedAt) {
		m.promoted = doc
	}
}

func (m *Manager) freshPromoted(now time.Time) *Document {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.promoted == nil {
		return nil
	}
	if m.promoted.Classify(now, m.config.FreshFor, m.config.ExpireAfter) == Expired {
		m.promoted = nil
		return nil
	}
	return m.promoted
}
