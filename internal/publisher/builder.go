package publisher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"chorus/internal/core"
)

// TrackDraft is the author-supplied input for a new track record.
type TrackDraft struct {
	Identifier  string
	Title       string
	Artist      string
	AudioURL    string
	Album       string
	TrackNumber int
	ReleaseDate string
	Duration    int
	Format      string
	Bitrate     string
	SampleRate  string
	ImageURL    string
	VideoURL    string
	Language    string
	Explicit    bool
	Genres      []string
	Splits      []core.PaymentSplit
	Content     string

	// Supersedes lists record IDs this revision replaces.
	Supersedes []string
}

// PlaylistDraft is the author-supplied input for a new playlist record.
type PlaylistDraft struct {
	Identifier  string
	Title       string
	Refs        []core.TrackRef
	Description string
	ImageURL    string
	Categories  []string
	Visibility  string

	Supersedes []string
}

// BuildTrackRecord assembles and signs a track record.
func BuildTrackRecord(draft TrackDraft, signer core.Signer, now time.Time) (core.RawRecord, error) {
	if draft.Identifier == "" {
		return core.RawRecord{}, fmt.Errorf("track draft: identifier is required")
	}
	if draft.Title == "" {
		return core.RawRecord{}, fmt.Errorf("track draft: title is required")
	}
	if draft.Artist == "" {
		return core.RawRecord{}, fmt.Errorf("track draft: artist is required")
	}
	if draft.AudioURL == "" {
		return core.RawRecord{}, fmt.Errorf("track draft: audio URL is required")
	}

	tags := []core.Tag{
		tag(core.TagIdentifier, draft.Identifier),
		tag(core.TagTitle, draft.Title),
		tag(core.TagArtist, draft.Artist),
		tag(core.TagAudioURL, draft.AudioURL),
	}
	tags = appendOptional(tags, core.TagAlbum, draft.Album)
	if draft.TrackNumber > 0 {
		tags = append(tags, tag(core.TagTrackNumber, strconv.Itoa(draft.TrackNumber)))
	}
	tags = appendOptional(tags, core.TagReleaseDate, draft.ReleaseDate)
	if draft.Duration > 0 {
		tags = append(tags, tag(core.TagDuration, strconv.Itoa(draft.Duration)))
	}
	tags = appendOptional(tags, core.TagFormat, draft.Format)
	tags = appendOptional(tags, core.TagBitrate, draft.Bitrate)
	tags = appendOptional(tags, core.TagSampleRate, draft.SampleRate)
	tags = appendOptional(tags, core.TagImage, draft.ImageURL)
	tags = appendOptional(tags, core.TagVideo, draft.VideoURL)
	tags = appendOptional(tags, core.TagLanguage, draft.Language)
	if draft.Explicit {
		tags = append(tags, tag(core.TagExplicit, "true"))
	}
	for _, genre := range draft.Genres {
		tags = append(tags, tag(core.TagGenre, genre))
	}
	for _, split := range draft.Splits {
		tags = append(tags, tag(core.TagSplit, split.Address, strconv.Itoa(split.Share)))
	}
	for _, superseded := range draft.Supersedes {
		tags = append(tags, tag(core.TagEdit, superseded))
	}

	return seal(core.RawRecord{
		Author:    signer.PublicKey(),
		CreatedAt: now,
		Kind:      core.KindTrack,
		Tags:      tags,
		Content:   draft.Content,
	}, signer)
}

// BuildPlaylistRecord assembles and signs a playlist record.
func BuildPlaylistRecord(draft PlaylistDraft, signer core.Signer, now time.Time) (core.RawRecord, error) {
	if draft.Identifier == "" {
		return core.RawRecord{}, fmt.Errorf("playlist draft: identifier is required")
	}
	if draft.Title == "" {
		return core.RawRecord{}, fmt.Errorf("playlist draft: title is required")
	}
	if len(draft.Refs) == 0 {
		return core.RawRecord{}, fmt.Errorf("playlist draft: at least one track reference is required")
	}

	tags := []core.Tag{
		tag(core.TagIdentifier, draft.Identifier),
		tag(core.TagTitle, draft.Title),
	}
	for _, ref := range draft.Refs {
		tags = append(tags, tag(core.TagReference, ref.String()))
	}
	tags = appendOptional(tags, core.TagDescription, draft.Description)
	tags = appendOptional(tags, core.TagImage, draft.ImageURL)
	for _, category := range draft.Categories {
		tags = append(tags, tag(core.TagCategory, category))
	}
	tags = appendOptional(tags, core.TagVisibility, draft.Visibility)
	for _, superseded := range draft.Supersedes {
		tags = append(tags, tag(core.TagEdit, superseded))
	}

	return seal(core.RawRecord{
		Author:    signer.PublicKey(),
		CreatedAt: now,
		Kind:      core.KindPlaylist,
		Tags:      tags,
		Content:   draft.Description,
	}, signer)
}

// seal computes the record ID over the canonical serialization and
// signs it. The ID is the hex SHA-256 of the JSON array
// [0, author, created_at, kind, tags, content], which every relay and
// client recomputes identically.
func seal(record core.RawRecord, signer core.Signer) (core.RawRecord, error) {
	wireTags := make([][]string, len(record.Tags))
	for i, t := range record.Tags {
		wireTags[i] = append([]string{t.Key}, t.Values...)
	}

	canonical, err := json.Marshal([]interface{}{
		0,
		record.Author,
		record.CreatedAt.Unix(),
		record.Kind,
		wireTags,
		record.Content,
	})
	if err != nil {
		return core.RawRecord{}, fmt.Errorf("serialize record: %w", err)
	}

	digest := sha256.Sum256(canonical)
	record.ID = hex.EncodeToString(digest[:])

	sig, err := signer.Sign(digest[:])
	if err != nil {
		return core.RawRecord{}, fmt.Errorf("sign record: %w", err)
	}
	record.Sig = sig

	return record, nil
}

func tag(key string, values ...string) core.Tag {
	return core.Tag{Key: key, Values: values}
}

func appendOptional(tags []core.Tag, key, value string) []core.Tag {
	if value == "" {
		return tags
	}
	return append(tags, tag(key, value))
}
