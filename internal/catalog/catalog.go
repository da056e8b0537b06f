// Package catalog assembles the domain catalog — tracks, playlists,
// and releases — from relay records: fetch, validate, deduplicate,
// convert, resolve.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"chorus/internal/core"
	"chorus/internal/resolver"
	"chorus/pkg/record"
	"chorus/pkg/search"
)

// defaultQueryLimit is used when the caller does not bound a listing.
const defaultQueryLimit = 100

// ErrTrackNotFound is returned when no valid track document exists for
// an (author, identifier) pair.
var ErrTrackNotFound = errors.New("track not found")

// Service is the read side of the catalog.
type Service struct {
	relay      core.RelayClient
	resolver   *resolver.Resolver
	logger     *zap.Logger
	seen       *SeenStore
	trackCache *lru.Cache[string, core.Track]
	matcher    *search.Matcher
}

// NewService creates a catalog service.
func NewService(
	relay core.RelayClient,
	res *resolver.Resolver,
	config *core.CacheConfig,
	logger *zap.Logger,
) *Service {
	trackCache, _ := lru.New[string, core.Track](config.TrackCacheSize)

	return &Service{
		relay:      relay,
		resolver:   res,
		logger:     logger,
		seen:       NewSeenStore(config.SeenCapacity, config.SeenFalsePositiveRate),
		trackCache: trackCache,
		matcher:    search.NewMatcher(),
	}
}

// Tracks lists the latest revision of every valid track record,
// optionally restricted to the given authors, newest first. Invalid
// records are dropped silently: partial data beats a blocked view.
func (s *Service) Tracks(ctx context.Context, authors []string, limit int) ([]core.Track, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	records, err := s.relay.Query(ctx, []core.Filter{{
		Kinds:   []int{core.KindTrack},
		Authors: authors,
		Limit:   limit,
	}})
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}

	records = record.Dedupe(records, record.ByAuthorIdentifier)

	var tracks []core.Track
	invalid := 0
	fresh := 0

	for _, rec := range records {
		if !record.Validate(rec, core.KindTrack) {
			invalid++
			continue
		}

		if !s.seen.Has(rec.ID) {
			s.seen.Add(rec.ID)
			fresh++
		}

		track := record.ToTrack(rec)
		s.trackCache.Add(trackKey(track.Author, track.Identifier), track)
		tracks = append(tracks, track)
	}

	sortByCreatedAtDesc(tracks)

	s.logger.Debug("Fetched tracks",
		zap.Int("valid", len(tracks)),
		zap.Int("invalid", invalid),
		zap.Int("fresh", fresh))

	return tracks, nil
}

// Track fetches one track document, serving repeats from the LRU cache.
func (s *Service) Track(ctx context.Context, author, identifier string) (*core.Track, error) {
	if track, ok := s.trackCache.Get(trackKey(author, identifier)); ok {
		return &track, nil
	}

	records, err := s.relay.Query(ctx, []core.Filter{{
		Kinds:       []int{core.KindTrack},
		Authors:     []string{author},
		Identifiers: []string{identifier},
		Limit:       defaultQueryLimit,
	}})
	if err != nil {
		return nil, fmt.Errorf("query track: %w", err)
	}

	records = record.Dedupe(records, record.ByIdentifier)

	for _, rec := range records {
		if rec.Author != author || !record.Validate(rec, core.KindTrack) {
			continue
		}
		track := record.ToTrack(rec)
		s.seen.Add(rec.ID)
		s.trackCache.Add(trackKey(author, identifier), track)
		return &track, nil
	}

	return nil, ErrTrackNotFound
}

// Playlists lists the latest revision of every valid playlist record,
// newest first.
func (s *Service) Playlists(ctx context.Context, authors []string, limit int) ([]core.Playlist, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	records, err := s.relay.Query(ctx, []core.Filter{{
		Kinds:   []int{core.KindPlaylist},
		Authors: authors,
		Limit:   limit,
	}})
	if err != nil {
		return nil, fmt.Errorf("query playlists: %w", err)
	}

	records = record.Dedupe(records, record.ByAuthorIdentifier)

	var playlists []core.Playlist
	invalid := 0

	for _, rec := range records {
		if !record.Validate(rec, core.KindPlaylist) {
			invalid++
			continue
		}
		s.seen.Add(rec.ID)
		playlists = append(playlists, record.ToPlaylist(rec))
	}

	sort.SliceStable(playlists, func(i, j int) bool {
		return playlists[i].CreatedAt.After(playlists[j].CreatedAt)
	})

	s.logger.Debug("Fetched playlists",
		zap.Int("valid", len(playlists)),
		zap.Int("invalid", invalid))

	return playlists, nil
}

// Releases unifies tracks and resolved playlists into the flat display
// view, newest first, truncated to limit when positive.
func (s *Service) Releases(ctx context.Context, authors []string, limit int) ([]core.Release, error) {
	tracks, err := s.Tracks(ctx, authors, limit)
	if err != nil {
		return nil, err
	}

	playlists, err := s.Playlists(ctx, authors, limit)
	if err != nil {
		return nil, err
	}

	releases := make([]core.Release, 0, len(tracks)+len(playlists))
	for i := range tracks {
		releases = append(releases, core.Release{
			Kind:  core.ReleaseTrack,
			Track: &tracks[i],
		})
	}
	for i := range playlists {
		releases = append(releases, s.resolvePlaylistRelease(ctx, &playlists[i]))
	}

	sort.SliceStable(releases, func(i, j int) bool {
		return releaseCreatedAt(releases[i]).After(releaseCreatedAt(releases[j]))
	})

	if limit > 0 && len(releases) > limit {
		releases = releases[:limit]
	}

	return releases, nil
}

// SearchTracks lists tracks matching the free-form query, best match
// first. Ties keep the newest-first order of the underlying listing.
func (s *Service) SearchTracks(ctx context.Context, query string, limit int) ([]core.Track, error) {
	tracks, err := s.Tracks(ctx, nil, 0)
	if err != nil {
		return nil, err
	}

	type scored struct {
		track core.Track
		score float64
	}

	var matches []scored
	for _, track := range tracks {
		if score := s.matcher.Score(track, query); score >= search.MinScore {
			matches = append(matches, scored{track: track, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	results := make([]core.Track, 0, len(matches))
	for _, m := range matches {
		results = append(results, m.track)
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	s.logger.Debug("Searched tracks",
		zap.String("query", query),
		zap.Int("matches", len(results)))

	return results, nil
}

// Profiles fetches the display profiles of the given authors, keyed by
// author key. Authors without a readable profile are simply absent.
func (s *Service) Profiles(ctx context.Context, authors []string) (map[string]core.Profile, error) {
	if len(authors) == 0 {
		return map[string]core.Profile{}, nil
	}

	records, err := s.relay.Query(ctx, []core.Filter{{
		Kinds:   []int{core.KindProfile},
		Authors: authors,
		Limit:   len(authors) * 2,
	}})
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}

	profiles := make(map[string]core.Profile)
	for _, rec := range records {
		profile, ok := record.ToProfile(rec)
		if !ok {
			continue
		}
		if existing, seen := profiles[profile.Author]; seen && !profile.UpdatedAt.After(existing.UpdatedAt) {
			continue
		}
		s.seen.Add(rec.ID)
		profiles[profile.Author] = profile
	}

	s.logger.Debug("Fetched profiles",
		zap.Int("requested", len(authors)),
		zap.Int("found", len(profiles)))

	return profiles, nil
}

// LatestRelease returns the newest release on the network.
func (s *Service) LatestRelease(ctx context.Context) (*core.Release, error) {
	releases, err := s.Releases(ctx, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, errors.New("no releases found")
	}
	return &releases[0], nil
}

// SeenCount reports the number of distinct record IDs processed, for
// the seen-records gauge.
func (s *Service) SeenCount() int {
	return s.seen.Size()
}

func (s *Service) resolvePlaylistRelease(ctx context.Context, playlist *core.Playlist) core.Release {
	resolved := s.resolver.Resolve(ctx, playlist.Refs)

	failed := 0
	for _, res := range resolved {
		if res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Debug("Playlist resolved with gaps",
			zap.String("playlist", playlist.Identifier),
			zap.Int("references", len(playlist.Refs)),
			zap.Int("failed", failed))
	}

	return core.Release{
		Kind:     core.ReleasePlaylist,
		Playlist: playlist,
		Tracks:   resolved,
	}
}

func trackKey(author, identifier string) string {
	return author + ":" + identifier
}

func sortByCreatedAtDesc(tracks []core.Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		return tracks[i].CreatedAt.After(tracks[j].CreatedAt)
	})
}

func releaseCreatedAt(release core.Release) time.Time {
	switch release.Kind {
	case core.ReleaseTrack:
		if release.Track != nil {
			return release.Track.CreatedAt
		}
	case core.ReleasePlaylist:
		if release.Playlist != nil {
			return release.Playlist.CreatedAt
		}
	}
	return time.Time{}
}
