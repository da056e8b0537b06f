package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chorus/internal/core"
)

var upgrader = websocket.Upgrader{}

// fakeRelay runs a single-connection relay that answers one query with
// the given records, or one publish with the given acceptance.
func fakeRelay(t *testing.T, records []wireEvent, accept bool) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var frame []json.RawMessage
			if err := json.Unmarshal(message, &frame); err != nil || len(frame) == 0 {
				return
			}

			var frameType string
			_ = json.Unmarshal(frame[0], &frameType)

			switch frameType {
			case frameRequest:
				var subID string
				_ = json.Unmarshal(frame[1], &subID)
				for _, ev := range records {
					_ = conn.WriteJSON([]interface{}{frameEvent, subID, ev})
				}
				_ = conn.WriteJSON([]interface{}{frameEndOfStored, subID})
			case frameEvent:
				var ev wireEvent
				_ = json.Unmarshal(frame[1], &ev)
				_ = conn.WriteJSON([]interface{}{frameOK, ev.ID, accept, ""})
			case frameClose:
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(urls ...string) *core.RelayConfig {
	return &core.RelayConfig{
		URLs:           urls,
		QueryTimeout:   2 * time.Second,
		PublishTimeout: 2 * time.Second,
		RatePerSecond:  100,
		RateBurst:      100,
	}
}

func testEvent(id string) wireEvent {
	return wireEvent{
		ID:        id,
		PubKey:    strings.Repeat("ab", 32),
		CreatedAt: 1700000000,
		Kind:      core.KindTrack,
		Tags: [][]string{
			{"d", "song-" + id},
			{"title", "Song " + id},
		},
		Content: "about the song",
	}
}

func TestClient_Query(t *testing.T) {
	server := fakeRelay(t, []wireEvent{testEvent("a1"), testEvent("a2")}, true)
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), zap.NewNop())

	records, err := client.Query(context.Background(), []core.Filter{{Kinds: []int{core.KindTrack}}})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Query() returned %d records, want 2", len(records))
	}
	if records[0].ID != "a1" || records[0].Identifier() != "song-a1" {
		t.Errorf("first record = %s/%s, want a1/song-a1", records[0].ID, records[0].Identifier())
	}
	if records[0].Kind != core.KindTrack {
		t.Errorf("record kind = %d, want %d", records[0].Kind, core.KindTrack)
	}
}

func TestClient_QueryMergesDuplicates(t *testing.T) {
	serverA := fakeRelay(t, []wireEvent{testEvent("a1"), testEvent("shared")}, true)
	defer serverA.Close()
	serverB := fakeRelay(t, []wireEvent{testEvent("shared"), testEvent("b1")}, true)
	defer serverB.Close()

	client := NewClient(testConfig(wsURL(serverA), wsURL(serverB)), zap.NewNop())

	records, err := client.Query(context.Background(), []core.Filter{{Kinds: []int{core.KindTrack}}})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(records) != 3 {
		t.Errorf("Query() returned %d records, want 3 after ID merge", len(records))
	}
}

func TestClient_QueryToleratesPartialFailure(t *testing.T) {
	server := fakeRelay(t, []wireEvent{testEvent("a1")}, true)
	defer server.Close()

	client := NewClient(testConfig(wsURL(server), "ws://127.0.0.1:1"), zap.NewNop())

	records, err := client.Query(context.Background(), []core.Filter{{Kinds: []int{core.KindTrack}}})
	if err != nil {
		t.Fatalf("Query() error = %v, want success from the healthy relay", err)
	}
	if len(records) != 1 {
		t.Errorf("Query() returned %d records, want 1", len(records))
	}
}

func TestClient_QueryFailsWhenAllRelaysFail(t *testing.T) {
	client := NewClient(testConfig("ws://127.0.0.1:1"), zap.NewNop())

	_, err := client.Query(context.Background(), []core.Filter{{Kinds: []int{core.KindTrack}}})
	if !errors.Is(err, ErrAllRelaysFailed) {
		t.Errorf("Query() error = %v, want ErrAllRelaysFailed", err)
	}
}

func TestClient_Publish(t *testing.T) {
	server := fakeRelay(t, nil, true)
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), zap.NewNop())

	err := client.Publish(context.Background(), fromWireEvent(testEvent("p1")))
	if err != nil {
		t.Errorf("Publish() error = %v", err)
	}
}

func TestClient_PublishRejected(t *testing.T) {
	server := fakeRelay(t, nil, false)
	defer server.Close()

	client := NewClient(testConfig(wsURL(server)), zap.NewNop())

	err := client.Publish(context.Background(), fromWireEvent(testEvent("p1")))
	if !errors.Is(err, ErrPublishRejected) {
		t.Errorf("Publish() error = %v, want ErrPublishRejected", err)
	}
}

func TestClient_NoRelays(t *testing.T) {
	client := NewClient(testConfig(), zap.NewNop())

	if _, err := client.Query(context.Background(), nil); !errors.Is(err, ErrNoRelays) {
		t.Errorf("Query() error = %v, want ErrNoRelays", err)
	}
	if err := client.Publish(context.Background(), core.RawRecord{}); !errors.Is(err, ErrNoRelays) {
		t.Errorf("Publish() error = %v, want ErrNoRelays", err)
	}
}
