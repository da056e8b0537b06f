package publisher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"chorus/internal/core"
	"chorus/pkg/record"
)

type fakeRelay struct {
	published  []core.RawRecord
	publishErr error
}

func (r *fakeRelay) Query(context.Context, []core.Filter) ([]core.RawRecord, error) {
	return nil, nil
}

func (r *fakeRelay) Publish(_ context.Context, rec core.RawRecord) error {
	if r.publishErr != nil {
		return r.publishErr
	}
	r.published = append(r.published, rec)
	return nil
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func testSigner(t *testing.T) *FileSigner {
	t.Helper()

	signer, err := GenerateKey(filepath.Join(t.TempDir(), "chorus.key"))
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return signer
}

func trackDraft() TrackDraft {
	return TrackDraft{
		Identifier: "first-light",
		Title:      "First Light",
		Artist:     "Aurora Drift",
		AudioURL:   "https://cdn.example.com/first-light.mp3",
		Album:      "Daybreak",
		Duration:   241,
		Genres:     []string{"ambient", "electronic"},
	}
}

func TestGenerateAndLoadSigner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chorus.key")

	generated, err := GenerateKey(path)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if !core.IsHexKey(generated.PublicKey()) {
		t.Errorf("PublicKey() = %q, want a 64-char hex key", generated.PublicKey())
	}

	loaded, err := LoadSigner(path)
	if err != nil {
		t.Fatalf("LoadSigner() error = %v", err)
	}
	if loaded.PublicKey() != generated.PublicKey() {
		t.Errorf("loaded key %q differs from generated %q",
			loaded.PublicKey(), generated.PublicKey())
	}
}

func TestGenerateKey_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chorus.key")

	if _, err := GenerateKey(path); err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if _, err := GenerateKey(path); err == nil {
		t.Error("GenerateKey() must not overwrite an existing key")
	}
}

func TestLoadSigner_BadKeyFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not hex", content: "zz"},
		{name: "wrong length", content: strings.Repeat("ab", 16)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "chorus.key")
			if err := writeFile(path, tt.content); err != nil {
				t.Fatal(err)
			}

			if _, err := LoadSigner(path); err == nil {
				t.Error("LoadSigner() should reject a malformed key file")
			}
		})
	}
}

func TestBuildTrackRecord_RoundTripsThroughConversion(t *testing.T) {
	signer := testSigner(t)
	now := time.Unix(1700000000, 0)

	rec, err := BuildTrackRecord(trackDraft(), signer, now)
	if err != nil {
		t.Fatalf("BuildTrackRecord() error = %v", err)
	}

	if !record.Validate(rec, core.KindTrack) {
		t.Fatal("built record must pass validation")
	}
	if rec.Author != signer.PublicKey() {
		t.Errorf("Author = %q, want the signer's public key", rec.Author)
	}
	if rec.ID == "" || rec.Sig == "" {
		t.Error("built record must carry an ID and a signature")
	}

	track := record.ToTrack(rec)
	if track.Title != "First Light" || track.Artist != "Aurora Drift" {
		t.Errorf("converted track = %+v, want the draft fields back", track)
	}
	if track.Duration != 241 || len(track.Genres) != 2 {
		t.Errorf("Duration = %d Genres = %v, want 241 and both genres", track.Duration, track.Genres)
	}
}

func TestBuildTrackRecord_DeterministicID(t *testing.T) {
	signer := testSigner(t)
	now := time.Unix(1700000000, 0)

	first, err := BuildTrackRecord(trackDraft(), signer, now)
	if err != nil {
		t.Fatalf("BuildTrackRecord() error = %v", err)
	}
	second, err := BuildTrackRecord(trackDraft(), signer, now)
	if err != nil {
		t.Fatalf("BuildTrackRecord() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("same draft produced different IDs: %q vs %q", first.ID, second.ID)
	}

	later, err := BuildTrackRecord(trackDraft(), signer, now.Add(time.Second))
	if err != nil {
		t.Fatalf("BuildTrackRecord() error = %v", err)
	}
	if later.ID == first.ID {
		t.Error("a different timestamp must produce a different ID")
	}
}

func TestBuildTrackRecord_ExplicitTagOnlyWhenSet(t *testing.T) {
	signer := testSigner(t)
	now := time.Unix(1700000000, 0)

	draft := trackDraft()
	rec, _ := BuildTrackRecord(draft, signer, now)
	if _, ok := rec.TagValue(core.TagExplicit); ok {
		t.Error("clean track must not carry an explicit tag")
	}

	draft.Explicit = true
	rec, _ = BuildTrackRecord(draft, signer, now)
	if value, _ := rec.TagValue(core.TagExplicit); value != "true" {
		t.Errorf("explicit tag = %q, want \"true\"", value)
	}
}

func TestBuildTrackRecord_RequiredFields(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*TrackDraft)
	}{
		{name: "missing identifier", mutate: func(d *TrackDraft) { d.Identifier = "" }},
		{name: "missing title", mutate: func(d *TrackDraft) { d.Title = "" }},
		{name: "missing artist", mutate: func(d *TrackDraft) { d.Artist = "" }},
		{name: "missing audio url", mutate: func(d *TrackDraft) { d.AudioURL = "" }},
	}

	signer := testSigner(t)
	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			draft := trackDraft()
			tt.mutate(&draft)

			if _, err := BuildTrackRecord(draft, signer, time.Now()); err == nil {
				t.Error("BuildTrackRecord() should reject the incomplete draft")
			}
		})
	}
}

func TestPublishTrack_RevisionSupersedesOriginal(t *testing.T) {
	signer := testSigner(t)
	relay := &fakeRelay{}
	pub := New(relay, signer, zap.NewNop())
	pub.now = func() time.Time { return time.Unix(1700000000, 0) }

	original, err := pub.PublishTrack(context.Background(), trackDraft())
	if err != nil {
		t.Fatalf("PublishTrack() error = %v", err)
	}

	revised := trackDraft()
	revised.Title = "First Light (Remaster)"
	revised.Supersedes = []string{original.ID}
	pub.now = func() time.Time { return time.Unix(1700003600, 0) }

	revision, err := pub.PublishTrack(context.Background(), revised)
	if err != nil {
		t.Fatalf("PublishTrack() revision error = %v", err)
	}

	kept := record.Dedupe(relay.published, record.ByAuthorIdentifier)
	if len(kept) != 1 || kept[0].ID != revision.ID {
		t.Errorf("deduplicating both revisions kept %v, want only the revision", kept)
	}
}

func TestPublishTrack_RelayFailure(t *testing.T) {
	relay := &fakeRelay{publishErr: errors.New("rejected: rate limited")}
	pub := New(relay, testSigner(t), zap.NewNop())

	if _, err := pub.PublishTrack(context.Background(), trackDraft()); err == nil {
		t.Error("PublishTrack() should surface the relay failure")
	}
}

func TestBuildPlaylistRecord_RoundTripsThroughConversion(t *testing.T) {
	signer := testSigner(t)
	author := strings.Repeat("ab", 32)

	draft := PlaylistDraft{
		Identifier: "morning-mix",
		Title:      "Morning Mix",
		Refs: []core.TrackRef{
			{Kind: core.KindTrack, Author: author, Identifier: "one"},
			{Kind: core.KindTrack, Author: author, Identifier: "two"},
		},
		Description: "Slow starts.",
		Categories:  []string{"mood", "morning"},
	}

	rec, err := BuildPlaylistRecord(draft, signer, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("BuildPlaylistRecord() error = %v", err)
	}
	if !record.Validate(rec, core.KindPlaylist) {
		t.Fatal("built record must pass validation")
	}

	playlist := record.ToPlaylist(rec)
	if len(playlist.Refs) != 2 || playlist.Refs[0].Identifier != "one" || playlist.Refs[1].Identifier != "two" {
		t.Errorf("Refs = %v, want the draft references in order", playlist.Refs)
	}
	if playlist.Description != "Slow starts." {
		t.Errorf("Description = %q, want the draft description", playlist.Description)
	}
}

func TestBuildPlaylistRecord_RequiresRefs(t *testing.T) {
	draft := PlaylistDraft{Identifier: "empty", Title: "Empty"}

	if _, err := BuildPlaylistRecord(draft, testSigner(t), time.Now()); err == nil {
		t.Error("BuildPlaylistRecord() should reject a playlist without references")
	}
}
