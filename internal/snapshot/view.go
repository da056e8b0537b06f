package snapshot

import (
	"time"

	"chorus/internal/core"
)

// Release kind discriminants in the snapshot JSON.
const (
	viewKindTrack    = "track"
	viewKindPlaylist = "playlist"
)

// TrackView is the serialized display shape of a track.
type TrackView struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	AudioURL   string `json:"audioUrl"`
	Album      string `json:"album,omitempty"`
	Duration   int    `json:"duration,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Explicit   bool   `json:"explicit,omitempty"`
	Author     string `json:"author"`
}

// ResolvedView is the serialized shape of one playlist entry: either a
// track or an error string, never both.
type ResolvedView struct {
	Ref   string     `json:"ref"`
	Track *TrackView `json:"track,omitempty"`
	Error string     `json:"error,omitempty"`
}

// ReleaseView is the serialized display shape of a release. Kind
// discriminates which payload field is set.
type ReleaseView struct {
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Author    string         `json:"author"`
	CreatedAt time.Time      `json:"createdAt"`
	Track     *TrackView     `json:"track,omitempty"`
	Playlist  *PlaylistView  `json:"playlist,omitempty"`
	Tracks    []ResolvedView `json:"tracks,omitempty"`
}

// PlaylistView is the serialized display shape of a playlist.
type PlaylistView struct {
	Identifier  string   `json:"identifier"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

// NewTrackView flattens a track for serialization.
func NewTrackView(track *core.Track) *TrackView {
	if track == nil {
		return nil
	}
	return &TrackView{
		Identifier: track.Identifier,
		Title:      track.Title,
		Artist:     track.Artist,
		AudioURL:   track.AudioURL,
		Album:      track.Album,
		Duration:   track.Duration,
		ImageURL:   track.ImageURL,
		Explicit:   track.Explicit,
		Author:     track.Author,
	}
}

// NewReleaseView flattens a release for serialization. Resolution
// errors become strings so a placeholder can be rendered per entry.
func NewReleaseView(release core.Release) ReleaseView {
	switch release.Kind {
	case core.ReleaseTrack:
		view := ReleaseView{Kind: viewKindTrack, Track: NewTrackView(release.Track)}
		if release.Track != nil {
			view.Title = release.Track.Title
			view.Author = release.Track.Author
			view.CreatedAt = release.Track.CreatedAt
		}
		return view

	case core.ReleasePlaylist:
		view := ReleaseView{Kind: viewKindPlaylist}
		if release.Playlist != nil {
			view.Title = release.Playlist.Title
			view.Author = release.Playlist.Author
			view.CreatedAt = release.Playlist.CreatedAt
			view.Playlist = &PlaylistView{
				Identifier:  release.Playlist.Identifier,
				Title:       release.Playlist.Title,
				Description: release.Playlist.Description,
				ImageURL:    release.Playlist.ImageURL,
				Categories:  release.Playlist.Categories,
			}
		}
		for _, resolved := range release.Tracks {
			entry := ResolvedView{Ref: resolved.Ref.String()}
			if resolved.Err != nil {
				entry.Error = resolved.Err.Error()
			} else {
				entry.Track = NewTrackView(resolved.Track)
			}
			view.Tracks = append(view.Tracks, entry)
		}
		return view
	}

	return ReleaseView{}
}

// NewReleaseViews flattens a release list, preserving order.
func NewReleaseViews(releases []core.Release) []ReleaseView {
	views := make([]ReleaseView, len(releases))
	for i, release := range releases {
		views[i] = NewReleaseView(release)
	}
	return views
}
