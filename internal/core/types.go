package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record kinds published and consumed on the relay network.
const (
	// KindProfile represents a profile metadata record
	KindProfile = 0
	// KindTrack represents a published audio track record
	KindTrack = 31337
	// KindPlaylist represents an ordered playlist record
	KindPlaylist = 34139
)

// Well-known tag keys.
const (
	// TagIdentifier is the addressable-record identifier tag
	TagIdentifier = "d"
	// TagTitle is the display title tag
	TagTitle = "title"
	// TagArtist is the artist display name tag
	TagArtist = "artist"
	// TagAudioURL is the audio source URL tag
	TagAudioURL = "url"
	// TagAlbum is the album name tag
	TagAlbum = "album"
	// TagTrackNumber is the track position within an album
	TagTrackNumber = "track"
	// TagReleaseDate is the release date tag (YYYY-MM-DD)
	TagReleaseDate = "released"
	// TagDuration is the track duration in whole seconds
	TagDuration = "duration"
	// TagFormat is the audio container/codec tag
	TagFormat = "format"
	// TagBitrate is the audio bitrate tag
	TagBitrate = "bitrate"
	// TagSampleRate is the audio sample rate tag
	TagSampleRate = "samplerate"
	// TagImage is the artwork URL tag
	TagImage = "image"
	// TagVideo is the music video URL tag
	TagVideo = "video"
	// TagLanguage is the ISO language code tag
	TagLanguage = "lang"
	// TagExplicit is the explicit-content flag tag ("true" or anything else)
	TagExplicit = "explicit"
	// TagGenre is the multi-valued genre tag
	TagGenre = "genre"
	// TagSplit is the multi-valued payment split tag (address, share)
	TagSplit = "split"
	// TagReference is the multi-valued ordered track reference tag
	TagReference = "a"
	// TagDescription is the playlist description tag
	TagDescription = "description"
	// TagCategory is the multi-valued playlist category tag
	TagCategory = "category"
	// TagVisibility is the playlist visibility tag
	TagVisibility = "visibility"
	// TagEdit marks the record ID superseded by this record
	TagEdit = "edit"
)

// hexKeyLength is the length of a hex-encoded author public key.
const hexKeyLength = 64

// refParts is the number of colon-separated parts in a track reference.
const refParts = 3

// ErrMalformedRef is returned when a track reference tag cannot be parsed.
var ErrMalformedRef = errors.New("malformed track reference")

// Tag is a single record tag: a key and its ordered values.
// Keys are not unique within a record.
type Tag struct {
	Key    string
	Values []string
}

// RawRecord is an immutable signed record as delivered by a relay.
// It is created externally on fetch and never mutated; newer revisions
// sharing the same (author, kind, identifier) supersede it.
type RawRecord struct {
	ID        string
	Author    string
	CreatedAt time.Time
	Kind      int
	Tags      []Tag
	Content   string
	Sig       string
}

// TagValue returns the first value of the first tag with the given key.
func (r RawRecord) TagValue(key string) (string, bool) {
	for _, tag := range r.Tags {
		if tag.Key == key && len(tag.Values) > 0 {
			return tag.Values[0], true
		}
	}
	return "", false
}

// TagValues returns the first value of every tag with the given key,
// in record order. Used for multi-valued tags like genre and reference.
func (r RawRecord) TagValues(key string) []string {
	var values []string
	for _, tag := range r.Tags {
		if tag.Key == key && len(tag.Values) > 0 {
			values = append(values, tag.Values[0])
		}
	}
	return values
}

// Identifier returns the addressable identifier of the record, if any.
func (r RawRecord) Identifier() string {
	id, _ := r.TagValue(TagIdentifier)
	return id
}

// Filter describes one criterion of a relay query. Multiple filters
// form a disjunction.
type Filter struct {
	Kinds       []int
	Authors     []string
	Identifiers []string
	Limit       int
}

// RelayClient is the external protocol surface this application builds
// on. Delivery is at-least-once: callers must tolerate duplicates.
type RelayClient interface {
	Query(ctx context.Context, filters []Filter) ([]RawRecord, error)
	Publish(ctx context.Context, record RawRecord) error
}

// Signer produces record signatures for publishing.
type Signer interface {
	PublicKey() string
	Sign(payload []byte) (string, error)
}

// PaymentSplit assigns a share of tips to a payment address.
type PaymentSplit struct {
	Address string
	Share   int
}

// Track is the domain view of a validated track record.
// AudioURL is empty only for placeholder tracks standing in for a
// reference that could not be resolved.
type Track struct {
	Identifier  string
	Title       string
	Artist      string
	AudioURL    string
	Album       string
	TrackNumber int
	ReleaseDate string
	Duration    int // seconds, 0 when unknown
	Format      string
	Bitrate     string
	SampleRate  string
	ImageURL    string
	VideoURL    string
	Language    string
	Explicit    bool
	Genres      []string
	Splits      []PaymentSplit
	Description string
	Lyrics      string
	Credits     string

	// Provenance
	Author    string
	RecordID  string
	CreatedAt time.Time

	// Engagement counters, zero when unknown
	TipCount int
	TipTotal int64
}

// Profile is the display metadata an author publishes about themselves.
type Profile struct {
	Author    string
	Name      string
	About     string
	Picture   string
	UpdatedAt time.Time
}

// TrackRef names one track document: the (kind, author, identifier)
// triple of an addressable record.
type TrackRef struct {
	Kind       int
	Author     string
	Identifier string
}

// String renders the reference in its wire form "kind:author:identifier".
func (r TrackRef) String() string {
	return fmt.Sprintf("%d:%s:%s", r.Kind, r.Author, r.Identifier)
}

// ParseTrackRef parses a wire-form reference. The author part must be a
// 64-character hex public key.
func ParseTrackRef(s string) (TrackRef, error) {
	parts := strings.SplitN(s, ":", refParts)
	if len(parts) != refParts {
		return TrackRef{}, fmt.Errorf("%w: %q", ErrMalformedRef, s)
	}

	kind, err := strconv.Atoi(parts[0])
	if err != nil || kind < 0 {
		return TrackRef{}, fmt.Errorf("%w: bad kind in %q", ErrMalformedRef, s)
	}

	if !IsHexKey(parts[1]) {
		return TrackRef{}, fmt.Errorf("%w: bad author in %q", ErrMalformedRef, s)
	}

	if parts[2] == "" {
		return TrackRef{}, fmt.Errorf("%w: empty identifier in %q", ErrMalformedRef, s)
	}

	return TrackRef{Kind: kind, Author: parts[1], Identifier: parts[2]}, nil
}

// IsHexKey reports whether s is a 64-character lowercase hex string.
func IsHexKey(s string) bool {
	if len(s) != hexKeyLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Playlist is the domain view of a validated playlist record.
// Reference order is semantically meaningful and is preserved through
// resolution.
type Playlist struct {
	Identifier  string
	Title       string
	Refs        []TrackRef
	Description string
	ImageURL    string
	Categories  []string
	Visibility  string

	// Provenance
	Author    string
	RecordID  string
	CreatedAt time.Time
}

// ResolvedRef pairs a track reference with either the resolved track or
// an error marker, never both.
type ResolvedRef struct {
	Ref   TrackRef
	Track *Track
	Err   error
}

// ReleaseKind discriminates the Release union.
type ReleaseKind int

const (
	// ReleaseTrack is a release consisting of a single track
	ReleaseTrack ReleaseKind = iota
	// ReleasePlaylist is a release consisting of a playlist with resolved tracks
	ReleasePlaylist
)

// Release is the unified display view over a single track or a playlist
// with resolved tracks. It is computed, never persisted. Exactly one of
// Track or Playlist is set, according to Kind.
type Release struct {
	Kind     ReleaseKind
	Track    *Track
	Playlist *Playlist
	Tracks   []ResolvedRef // playlist releases only, same order as Playlist.Refs
}

// Title returns the display title of the release.
func (r Release) Title() string {
	switch r.Kind {
	case ReleaseTrack:
		if r.Track != nil {
			return r.Track.Title
		}
	case ReleasePlaylist:
		if r.Playlist != nil {
			return r.Playlist.Title
		}
	}
	return ""
}

// PlayableTracks returns the tracks of the release that carry an audio
// URL, in release order. Unresolved playlist entries are skipped.
func (r Release) PlayableTracks() []Track {
	switch r.Kind {
	case ReleaseTrack:
		if r.Track != nil && r.Track.AudioURL != "" {
			return []Track{*r.Track}
		}
		return nil
	case ReleasePlaylist:
		var tracks []Track
		for _, res := range r.Tracks {
			if res.Track != nil && res.Track.AudioURL != "" {
				tracks = append(tracks, *res.Track)
			}
		}
		return tracks
	}
	return nil
}
