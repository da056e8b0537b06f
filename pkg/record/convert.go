package record

import (
	"strconv"
	"strings"

	"chorus/internal/core"
)

// ToTrack converts a validated track record into its domain view.
// Behavior is undefined for records that did not pass Validate: callers
// must validate first. The first matching tag wins for single-valued
// keys; genre and split tags collect all occurrences.
func ToTrack(rec core.RawRecord) core.Track {
	sections := ParseContent(rec.Content)

	track := core.Track{
		Identifier:  rec.Identifier(),
		Genres:      rec.TagValues(core.TagGenre),
		Splits:      parseSplits(rec),
		Description: sections.Description,
		Lyrics:      sections.Lyrics,
		Credits:     sections.Credits,
		Author:      rec.Author,
		RecordID:    rec.ID,
		CreatedAt:   rec.CreatedAt,
	}

	track.Title, _ = rec.TagValue(core.TagTitle)
	track.Artist, _ = rec.TagValue(core.TagArtist)
	track.AudioURL, _ = rec.TagValue(core.TagAudioURL)
	track.Album, _ = rec.TagValue(core.TagAlbum)
	track.ReleaseDate, _ = rec.TagValue(core.TagReleaseDate)
	track.Format, _ = rec.TagValue(core.TagFormat)
	track.Bitrate, _ = rec.TagValue(core.TagBitrate)
	track.SampleRate, _ = rec.TagValue(core.TagSampleRate)
	track.ImageURL, _ = rec.TagValue(core.TagImage)
	track.VideoURL, _ = rec.TagValue(core.TagVideo)
	track.Language, _ = rec.TagValue(core.TagLanguage)

	if value, ok := rec.TagValue(core.TagDuration); ok {
		track.Duration, _ = strconv.Atoi(value)
	}
	if value, ok := rec.TagValue(core.TagTrackNumber); ok {
		track.TrackNumber, _ = strconv.Atoi(value)
	}

	// Boolean tags are true only for the literal string "true".
	if value, ok := rec.TagValue(core.TagExplicit); ok {
		track.Explicit = value == "true"
	}

	return track
}

// ToPlaylist converts a validated playlist record into its domain view.
// Reference order follows tag order. Behavior is undefined for records
// that did not pass Validate.
func ToPlaylist(rec core.RawRecord) core.Playlist {
	playlist := core.Playlist{
		Identifier: rec.Identifier(),
		Categories: rec.TagValues(core.TagCategory),
		Author:     rec.Author,
		RecordID:   rec.ID,
		CreatedAt:  rec.CreatedAt,
	}

	playlist.Title, _ = rec.TagValue(core.TagTitle)
	playlist.ImageURL, _ = rec.TagValue(core.TagImage)
	playlist.Visibility, _ = rec.TagValue(core.TagVisibility)

	for _, raw := range rec.TagValues(core.TagReference) {
		ref, err := core.ParseTrackRef(raw)
		if err != nil {
			continue // unreachable for validated records
		}
		playlist.Refs = append(playlist.Refs, ref)
	}

	playlist.Description, _ = rec.TagValue(core.TagDescription)
	if playlist.Description == "" {
		playlist.Description = strings.TrimSpace(rec.Content)
	}

	return playlist
}

func parseSplits(rec core.RawRecord) []core.PaymentSplit {
	var splits []core.PaymentSplit
	for _, tag := range rec.Tags {
		if tag.Key != core.TagSplit || len(tag.Values) == 0 {
			continue
		}
		split := core.PaymentSplit{Address: tag.Values[0]}
		if len(tag.Values) > 1 {
			split.Share, _ = strconv.Atoi(tag.Values[1])
		}
		splits = append(splits, split)
	}
	return splits
}
