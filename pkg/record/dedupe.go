package record

import (
	"chorus/internal/core"
)

// KeyFunc derives the deduplication key for a record.
type KeyFunc func(core.RawRecord) string

// ByIdentifier keys records by their addressable identifier. Suitable
// for record sets from a single author, where identifiers are unique.
func ByIdentifier(rec core.RawRecord) string {
	return rec.Identifier()
}

// ByAuthorIdentifier keys records by author and identifier, for record
// sets spanning multiple authors.
func ByAuthorIdentifier(rec core.RawRecord) string {
	id := rec.Identifier()
	if id == "" {
		return ""
	}
	return rec.Author + ":" + id
}

// Dedupe selects exactly one survivor per key from a set of record
// revisions.
//
// Pass 1 collects the record IDs named by edit tags into a suppression
// set: an edit is an explicit content replacement, so an edited record
// must never resurface even when it carries a newer timestamp than
// other revisions. Pass 2 drops suppressed records outright, then keeps
// per key the record with the strictly greatest creation timestamp;
// ties go to the first record seen.
//
// Records with an empty key are dropped. Edits whose target is not in
// the input are inert; cross-batch supersession is a known limitation.
// Output order follows first appearance of each key in the input, so
// the result is deterministic and Dedupe is idempotent.
func Dedupe(records []core.RawRecord, key KeyFunc) []core.RawRecord {
	suppressed := make(map[string]struct{})
	for _, rec := range records {
		for _, target := range rec.TagValues(core.TagEdit) {
			if target != "" {
				suppressed[target] = struct{}{}
			}
		}
	}

	latest := make(map[string]core.RawRecord)
	var order []string

	for _, rec := range records {
		if _, drop := suppressed[rec.ID]; drop {
			continue
		}

		k := key(rec)
		if k == "" {
			continue
		}

		current, exists := latest[k]
		if !exists {
			latest[k] = rec
			order = append(order, k)
			continue
		}

		// Strictly greater only: equal timestamps keep the incumbent.
		if rec.CreatedAt.After(current.CreatedAt) {
			latest[k] = rec
		}
	}

	result := make([]core.RawRecord, 0, len(order))
	for _, k := range order {
		result = append(result, latest[k])
	}
	return result
}
