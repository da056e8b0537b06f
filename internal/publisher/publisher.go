package publisher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chorus/internal/core"
	"chorus/pkg/record"
)

// Publisher signs and announces records on the relay network.
type Publisher struct {
	relay  core.RelayClient
	signer core.Signer
	logger *zap.Logger
	now    func() time.Time
}

// New creates a publisher signing as the given identity.
func New(relay core.RelayClient, signer core.Signer, logger *zap.Logger) *Publisher {
	return &Publisher{
		relay:  relay,
		signer: signer,
		logger: logger,
		now:    time.Now,
	}
}

// PublishTrack builds, validates, and announces a track record. The
// signed record is returned so callers can show or store the ID.
func (p *Publisher) PublishTrack(ctx context.Context, draft TrackDraft) (core.RawRecord, error) {
	rec, err := BuildTrackRecord(draft, p.signer, p.now())
	if err != nil {
		return core.RawRecord{}, err
	}

	// Records that would be dropped by every consumer are rejected
	// before they reach a relay.
	if !record.Validate(rec, core.KindTrack) {
		return core.RawRecord{}, fmt.Errorf("track %q does not form a valid record", draft.Identifier)
	}

	if err := p.relay.Publish(ctx, rec); err != nil {
		return core.RawRecord{}, fmt.Errorf("publish track %q: %w", draft.Identifier, err)
	}

	p.logger.Info("Published track",
		zap.String("identifier", draft.Identifier),
		zap.String("recordID", rec.ID),
		zap.Int("supersedes", len(draft.Supersedes)))
	return rec, nil
}

// PublishPlaylist builds, validates, and announces a playlist record.
func (p *Publisher) PublishPlaylist(ctx context.Context, draft PlaylistDraft) (core.RawRecord, error) {
	rec, err := BuildPlaylistRecord(draft, p.signer, p.now())
	if err != nil {
		return core.RawRecord{}, err
	}

	if !record.Validate(rec, core.KindPlaylist) {
		return core.RawRecord{}, fmt.Errorf("playlist %q does not form a valid record", draft.Identifier)
	}

	if err := p.relay.Publish(ctx, rec); err != nil {
		return core.RawRecord{}, fmt.Errorf("publish playlist %q: %w", draft.Identifier, err)
	}

	p.logger.Info("Published playlist",
		zap.String("identifier", draft.Identifier),
		zap.String("recordID", rec.ID),
		zap.Int("tracks", len(draft.Refs)))
	return rec, nil
}
