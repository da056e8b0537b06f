// Package resolver resolves playlist track references against the
// relay network, one batched query per referenced author.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chorus/internal/core"
	"chorus/pkg/record"
)

const (
	// overFetchFactor requests this many results per identifier so that
	// multiple revisions of the same document do not crowd out others.
	overFetchFactor = 3
	// minQueryLimit is the floor for the per-author query limit.
	minQueryLimit = 20
)

// ErrNotFound marks a reference whose track document was not returned
// by its author's query.
var ErrNotFound = errors.New("referenced track not found")

// Resolver batch-fetches the track documents named by playlist
// references.
type Resolver struct {
	relay  core.RelayClient
	logger *zap.Logger
}

// New creates a resolver on top of the given relay client.
func New(relay core.RelayClient, logger *zap.Logger) *Resolver {
	return &Resolver{
		relay:  relay,
		logger: logger,
	}
}

type authorGroup struct {
	author      string
	identifiers []string
	tracks      map[string]core.Track
	err         error
}

// Resolve fetches every referenced track and returns one entry per
// input reference, in input order, regardless of fetch completion
// order. A failed author query marks all of that author's references
// failed; a missing document marks its reference ErrNotFound. No
// reference is ever dropped or duplicated.
func (r *Resolver) Resolve(ctx context.Context, refs []core.TrackRef) []core.ResolvedRef {
	groups := groupByAuthor(refs)

	// Per-author queries are independent; a failure in one group must
	// not cancel the others, so errors stay inside each group.
	var g errgroup.Group
	for _, group := range groups {
		g.Go(func() error {
			r.fetchGroup(ctx, group)
			return nil
		})
	}
	_ = g.Wait()

	byAuthor := make(map[string]*authorGroup, len(groups))
	for _, group := range groups {
		byAuthor[group.author] = group
	}

	// Final re-projection over the input restores caller order.
	results := make([]core.ResolvedRef, len(refs))
	for i, ref := range refs {
		group := byAuthor[ref.Author]

		if group.err != nil {
			results[i] = core.ResolvedRef{
				Ref: ref,
				Err: fmt.Errorf("failed to fetch: %w", group.err),
			}
			continue
		}

		track, ok := group.tracks[ref.Identifier]
		if !ok {
			results[i] = core.ResolvedRef{Ref: ref, Err: ErrNotFound}
			continue
		}

		results[i] = core.ResolvedRef{Ref: ref, Track: &track}
	}

	return results
}

func groupByAuthor(refs []core.TrackRef) []*authorGroup {
	index := make(map[string]*authorGroup)
	var groups []*authorGroup

	for _, ref := range refs {
		group, exists := index[ref.Author]
		if !exists {
			group = &authorGroup{
				author: ref.Author,
				tracks: make(map[string]core.Track),
			}
			index[ref.Author] = group
			groups = append(groups, group)
		}

		if !contains(group.identifiers, ref.Identifier) {
			group.identifiers = append(group.identifiers, ref.Identifier)
		}
	}

	return groups
}

func (r *Resolver) fetchGroup(ctx context.Context, group *authorGroup) {
	limit := len(group.identifiers) * overFetchFactor
	if limit < minQueryLimit {
		limit = minQueryLimit
	}

	records, err := r.relay.Query(ctx, []core.Filter{{
		Kinds:       []int{core.KindTrack},
		Authors:     []string{group.author},
		Identifiers: group.identifiers,
		Limit:       limit,
	}})
	if err != nil {
		r.logger.Warn("Author query failed",
			zap.String("author", group.author),
			zap.Int("references", len(group.identifiers)),
			zap.Error(err))
		group.err = err
		return
	}

	// Collapse multi-revision noise before matching.
	records = record.Dedupe(records, record.ByIdentifier)

	for _, rec := range records {
		if rec.Author != group.author {
			continue
		}
		if !record.Validate(rec, core.KindTrack) {
			continue
		}
		track := record.ToTrack(rec)
		group.tracks[track.Identifier] = track
	}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
