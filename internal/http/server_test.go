package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"chorus/internal/catalog"
	"chorus/internal/core"
	"chorus/internal/snapshot"
	"chorus/internal/store"
)

type fakeSnapshots struct {
	result snapshot.Result
	err    error
}

func (f *fakeSnapshots) Get(context.Context) (snapshot.Result, error) {
	return f.result, f.err
}

type fakeTracks struct {
	tracks   map[string]*core.Track
	profiles map[string]core.Profile
}

func (f *fakeTracks) Track(_ context.Context, author, identifier string) (*core.Track, error) {
	if track, ok := f.tracks[author+":"+identifier]; ok {
		return track, nil
	}
	return nil, catalog.ErrTrackNotFound
}

func (f *fakeTracks) SearchTracks(_ context.Context, query string, _ int) ([]core.Track, error) {
	var matches []core.Track
	for _, track := range f.tracks {
		if strings.Contains(strings.ToLower(track.Title), strings.ToLower(query)) {
			matches = append(matches, *track)
		}
	}
	return matches, nil
}

func (f *fakeTracks) Profiles(_ context.Context, authors []string) (map[string]core.Profile, error) {
	found := make(map[string]core.Profile)
	for _, author := range authors {
		if profile, ok := f.profiles[author]; ok {
			found[author] = profile
		}
	}
	return found, nil
}

type fakeLibrary struct {
	saved []store.SavedRelease
	plays []store.PlayEntry
}

func (f *fakeLibrary) Save(entry store.SavedRelease, _ time.Time) error {
	f.saved = append(f.saved, entry)
	return nil
}

func (f *fakeLibrary) RemoveRelease(kind, author, identifier string) error {
	for i, entry := range f.saved {
		if entry.Kind == kind && entry.Author == author && entry.Identifier == identifier {
			f.saved = append(f.saved[:i], f.saved[i+1:]...)
			return nil
		}
	}
	return store.ErrNotSaved
}

func (f *fakeLibrary) SavedReleases() ([]store.SavedRelease, error) {
	return f.saved, nil
}

func (f *fakeLibrary) RecordPlay(track core.Track, playedAt time.Time) error {
	f.plays = append(f.plays, store.PlayEntry{
		Author:     track.Author,
		Identifier: track.Identifier,
		Title:      track.Title,
		Artist:     track.Artist,
		PlayedAt:   playedAt,
	})
	return nil
}

func (f *fakeLibrary) RecentPlays(limit int) ([]store.PlayEntry, error) {
	if limit > len(f.plays) {
		limit = len(f.plays)
	}
	return f.plays[:limit], nil
}

func testServer(releases, latest SnapshotSource, tracks TrackSource) *Server {
	config := &core.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return NewServer(config, releases, latest, tracks, &fakeLibrary{}, zap.NewNop())
}

func releasesResult(freshness snapshot.Freshness, fromLive bool) snapshot.Result {
	return snapshot.Result{
		Document: &snapshot.Document{
			GeneratedAt: time.Now(),
			Source:      snapshot.SourceLive,
			Releases:    []snapshot.ReleaseView{{Kind: "track", Title: "First Light"}},
		},
		Freshness: freshness,
		FromLive:  fromLive,
	}
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, &fakeTracks{})

	rec := get(t, server.Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("/healthz body = %q", rec.Body.String())
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, &fakeTracks{})
	server.SetSeenRecords(42)

	rec := get(t, server.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chorus_seen_records 42") {
		t.Error("/metrics should expose the seen-records gauge")
	}
}

func TestServer_Releases(t *testing.T) {
	releases := &fakeSnapshots{result: releasesResult(snapshot.Stale, false)}
	server := testServer(releases, &fakeSnapshots{}, &fakeTracks{})

	rec := get(t, server.Handler(), "/api/releases")
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/releases status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Chorus-Freshness"); got != "stale" {
		t.Errorf("freshness header = %q, want \"stale\"", got)
	}
	if got := rec.Header().Get("X-Chorus-Origin"); got != "snapshot" {
		t.Errorf("origin header = %q, want \"snapshot\"", got)
	}

	var doc snapshot.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(doc.Releases) != 1 || doc.Releases[0].Title != "First Light" {
		t.Errorf("Releases = %v, want the snapshot document", doc.Releases)
	}
}

func TestServer_ReleasesUpstreamFailure(t *testing.T) {
	releases := &fakeSnapshots{err: errors.New("all relays failed")}
	server := testServer(releases, &fakeSnapshots{}, &fakeTracks{})

	rec := get(t, server.Handler(), "/api/releases")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("/api/releases status = %d, want 502", rec.Code)
	}
}

func TestServer_LatestServedFromLive(t *testing.T) {
	latest := &fakeSnapshots{result: releasesResult(snapshot.Fresh, true)}
	server := testServer(&fakeSnapshots{}, latest, &fakeTracks{})

	rec := get(t, server.Handler(), "/api/releases/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/releases/latest status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Chorus-Origin"); got != "live" {
		t.Errorf("origin header = %q, want \"live\"", got)
	}
}

func TestServer_Track(t *testing.T) {
	author := strings.Repeat("ab", 32)
	tracks := &fakeTracks{tracks: map[string]*core.Track{
		author + ":first-light": {
			Identifier: "first-light",
			Title:      "First Light",
			Artist:     "Aurora Drift",
			AudioURL:   "https://cdn.example.com/first-light.mp3",
			Author:     author,
		},
	}}
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, tracks)

	rec := get(t, server.Handler(), "/api/tracks/"+author+"/first-light")
	if rec.Code != http.StatusOK {
		t.Fatalf("track status = %d, want 200", rec.Code)
	}

	var view snapshot.TrackView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if view.Title != "First Light" || view.Artist != "Aurora Drift" {
		t.Errorf("view = %+v, want the stored track", view)
	}
}

func TestServer_TrackNotFound(t *testing.T) {
	author := strings.Repeat("ab", 32)
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, &fakeTracks{})

	rec := get(t, server.Handler(), "/api/tracks/"+author+"/ghost")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing track status = %d, want 404", rec.Code)
	}
}

func TestServer_Search(t *testing.T) {
	author := strings.Repeat("ab", 32)
	tracks := &fakeTracks{tracks: map[string]*core.Track{
		author + ":first-light": {
			Identifier: "first-light",
			Title:      "First Light",
			Artist:     "Aurora Drift",
			Author:     author,
		},
	}}
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, tracks)

	rec := get(t, server.Handler(), "/api/search?q=light")
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d, want 200", rec.Code)
	}

	var response struct {
		Query  string               `json:"query"`
		Tracks []snapshot.TrackView `json:"tracks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(response.Tracks) != 1 || response.Tracks[0].Title != "First Light" {
		t.Errorf("tracks = %v, want the matching track", response.Tracks)
	}
}

func TestServer_SearchMissingQuery(t *testing.T) {
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, &fakeTracks{})

	rec := get(t, server.Handler(), "/api/search")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("search without q status = %d, want 400", rec.Code)
	}
}

func TestServer_TrackBadAuthor(t *testing.T) {
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, &fakeTracks{})

	rec := get(t, server.Handler(), "/api/tracks/not-a-key/first-light")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad author status = %d, want 400", rec.Code)
	}
}

func TestServer_Profile(t *testing.T) {
	author := strings.Repeat("ab", 32)
	tracks := &fakeTracks{profiles: map[string]core.Profile{
		author: {Author: author, Name: "Aurora Drift", About: "ambient producer"},
	}}
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, tracks)

	rec := get(t, server.Handler(), "/api/profiles/"+author)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status = %d, want 200", rec.Code)
	}

	var profile core.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if profile.Name != "Aurora Drift" {
		t.Errorf("profile.Name = %q, want Aurora Drift", profile.Name)
	}
}

func TestServer_ProfileNotFound(t *testing.T) {
	author := strings.Repeat("ab", 32)
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, &fakeTracks{})

	rec := get(t, server.Handler(), "/api/profiles/"+author)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing profile status = %d, want 404", rec.Code)
	}
}

func TestServer_LibrarySaveListRemove(t *testing.T) {
	author := strings.Repeat("ab", 32)
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, &fakeTracks{})
	handler := server.Handler()

	body := strings.NewReader(`{"Kind":"track","Author":"` + author + `","Identifier":"first-light","Title":"First Light"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/library", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d, want 201", rec.Code)
	}

	rec = get(t, handler, "/api/library")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var saved []store.SavedRelease
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(saved) != 1 || saved[0].Identifier != "first-light" {
		t.Errorf("saved = %v, want the stored entry", saved)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/api/library/track/"+author+"/first-light", http.NoBody))
	if rec.Code != http.StatusNoContent {
		t.Errorf("remove status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete,
		"/api/library/track/"+author+"/first-light", http.NoBody))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", rec.Code)
	}
}

func TestServer_LibrarySaveBadAuthor(t *testing.T) {
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, &fakeTracks{})

	body := strings.NewReader(`{"Kind":"track","Author":"nope","Identifier":"x"}`)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/library", body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("save with bad author status = %d, want 400", rec.Code)
	}
}

func TestServer_HistoryRecordAndList(t *testing.T) {
	author := strings.Repeat("ab", 32)
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, &fakeTracks{})
	handler := server.Handler()

	body := strings.NewReader(`{"Author":"` + author + `","Identifier":"first-light","Title":"First Light","Artist":"Aurora Drift"}`)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/history", body))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("record play status = %d, want 204", rec.Code)
	}

	rec = get(t, handler, "/api/history?limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", rec.Code)
	}
	var plays []store.PlayEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &plays); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(plays) != 1 || plays[0].Identifier != "first-light" {
		t.Errorf("plays = %v, want the recorded play", plays)
	}
}

func TestServer_HistoryBadLimit(t *testing.T) {
	server := testServer(&fakeSnapshots{}, &fakeSnapshots{}, &fakeTracks{})

	rec := get(t, server.Handler(), "/api/history?limit=zero")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}
