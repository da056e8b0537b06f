package record

import (
	"fmt"
	"strings"
	"time"

	"chorus/internal/core"
)

var (
	testAuthor      = strings.Repeat("ab", 32)
	testOtherAuthor = strings.Repeat("cd", 32)
)

// trackRecord builds a minimal valid track record for tests.
func trackRecord(id, identifier string, createdAt int64, extraTags ...core.Tag) core.RawRecord {
	tags := []core.Tag{
		{Key: core.TagIdentifier, Values: []string{identifier}},
		{Key: core.TagTitle, Values: []string{"Title " + identifier}},
		{Key: core.TagArtist, Values: []string{"Artist"}},
		{Key: core.TagAudioURL, Values: []string{"https://cdn.example/" + identifier + ".mp3"}},
	}
	tags = append(tags, extraTags...)

	return core.RawRecord{
		ID:        id,
		Author:    testAuthor,
		CreatedAt: time.Unix(createdAt, 0),
		Kind:      core.KindTrack,
		Tags:      tags,
	}
}

// playlistRecord builds a minimal valid playlist record for tests.
func playlistRecord(id, identifier string, createdAt int64, refs ...string) core.RawRecord {
	tags := []core.Tag{
		{Key: core.TagIdentifier, Values: []string{identifier}},
		{Key: core.TagTitle, Values: []string{"Playlist " + identifier}},
	}
	for _, ref := range refs {
		tags = append(tags, core.Tag{Key: core.TagReference, Values: []string{ref}})
	}

	return core.RawRecord{
		ID:        id,
		Author:    testAuthor,
		CreatedAt: time.Unix(createdAt, 0),
		Kind:      core.KindPlaylist,
		Tags:      tags,
	}
}

func trackRef(author, identifier string) string {
	return fmt.Sprintf("%d:%s:%s", core.KindTrack, author, identifier)
}
