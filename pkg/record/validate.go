// Package record implements validation, domain conversion, and revision
// deduplication for relay records.
package record

import (
	"net/url"
	"strconv"

	"chorus/internal/core"
)

// Validate reports whether a raw record is a well-formed instance of the
// expected kind. It is a pure function: no side effects, no error
// detail — malformed records simply do not count.
func Validate(rec core.RawRecord, expectedKind int) bool {
	if rec.Kind != expectedKind {
		return false
	}

	if rec.Identifier() == "" {
		return false
	}

	if title, ok := rec.TagValue(core.TagTitle); !ok || title == "" {
		return false
	}

	switch expectedKind {
	case core.KindTrack:
		return validateTrack(rec)
	case core.KindPlaylist:
		return validatePlaylist(rec)
	default:
		return true
	}
}

func validateTrack(rec core.RawRecord) bool {
	if artist, ok := rec.TagValue(core.TagArtist); !ok || artist == "" {
		return false
	}

	audioURL, ok := rec.TagValue(core.TagAudioURL)
	if !ok || audioURL == "" {
		return false
	}
	if !isAbsoluteURL(audioURL) {
		return false
	}

	// Numeric tags must parse as non-negative integers when present.
	for _, key := range []string{core.TagDuration, core.TagTrackNumber} {
		if value, present := rec.TagValue(key); present {
			if !isNonNegativeInt(value) {
				return false
			}
		}
	}

	return true
}

func validatePlaylist(rec core.RawRecord) bool {
	refs := rec.TagValues(core.TagReference)
	if len(refs) == 0 {
		return false
	}

	// One malformed reference invalidates the whole record.
	for _, ref := range refs {
		if _, err := core.ParseTrackRef(ref); err != nil {
			return false
		}
	}

	return true
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func isNonNegativeInt(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 0
}
