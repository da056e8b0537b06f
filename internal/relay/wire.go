package relay

import (
	"time"

	"chorus/internal/core"
)

// wireEvent is the JSON shape of a record on the relay protocol.
type wireEvent struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// wireFilter is the JSON shape of one query filter.
type wireFilter struct {
	Kinds       []int    `json:"kinds,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Identifiers []string `json:"#d,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

func toWireEvent(rec core.RawRecord) wireEvent {
	tags := make([][]string, 0, len(rec.Tags))
	for _, tag := range rec.Tags {
		entry := make([]string, 0, len(tag.Values)+1)
		entry = append(entry, tag.Key)
		entry = append(entry, tag.Values...)
		tags = append(tags, entry)
	}

	return wireEvent{
		ID:        rec.ID,
		PubKey:    rec.Author,
		CreatedAt: rec.CreatedAt.Unix(),
		Kind:      rec.Kind,
		Tags:      tags,
		Content:   rec.Content,
		Sig:       rec.Sig,
	}
}

func fromWireEvent(ev wireEvent) core.RawRecord {
	tags := make([]core.Tag, 0, len(ev.Tags))
	for _, entry := range ev.Tags {
		if len(entry) == 0 {
			continue
		}
		tags = append(tags, core.Tag{Key: entry[0], Values: entry[1:]})
	}

	return core.RawRecord{
		ID:        ev.ID,
		Author:    ev.PubKey,
		CreatedAt: time.Unix(ev.CreatedAt, 0),
		Kind:      ev.Kind,
		Tags:      tags,
		Content:   ev.Content,
		Sig:       ev.Sig,
	}
}

func toWireFilter(f core.Filter) wireFilter {
	return wireFilter{
		Kinds:       f.Kinds,
		Authors:     f.Authors,
		Identifiers: f.Identifiers,
		Limit:       f.Limit,
	}
}
