package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/voice-client/internal/transcript"
	"github.com/eleven-am/voice-client/internal/voicesession"
	"github.com/gorilla/websocket"
)

func dialFeed(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFeed(t *testing.T, ws *websocket.Conn) FeedMessage {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg FeedMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read feed: %v", err)
	}
	return msg
}

func waitSubscribers(t *testing.T, feed *Feed, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for feed.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, got %d", n, feed.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeed_InitialSnapshot(t *testing.T) {
	env := newTestEnv(t, "key", nil)
	ws := dialFeed(t, env)

	first := readFeed(t, ws)
	if first.Type != MessageTypeState || first.State != voicesession.StateDisconnected {
		t.Errorf("expected initial state message, got %+v", first)
	}
	second := readFeed(t, ws)
	if second.Type != MessageTypeTranscript {
		t.Errorf("expected initial transcript message, got %+v", second)
	}
}

func TestFeed_PushesChanges(t *testing.T) {
	env := newTestEnv(t, "key", nil)
	ws := dialFeed(t, env)
	readFeed(t, ws)
	readFeed(t, ws)
	waitSubscribers(t, env.feed, 1)

	env.ctrl.Transcript().OnPartial(transcript.SenderModel, "Hi")
	msg := readFeed(t, ws)
	if msg.Type != MessageTypeTranscript || len(msg.Entries) != 1 || msg.Entries[0].Text != "Hi" {
		t.Errorf("unexpected transcript push %+v", msg)
	}

	env.do("POST", "/api/v1/connect")
	msg = readFeed(t, ws)
	if msg.Type != MessageTypeState || msg.State != voicesession.StateConnecting {
		t.Errorf("expected connecting push, got %+v", msg)
	}
}

func TestFeed_Commands(t *testing.T) {
	env := newTestEnv(t, "", nil)
	ws := dialFeed(t, env)
	readFeed(t, ws)
	readFeed(t, ws)

	data, _ := json.Marshal(Command{Type: CommandConnect})
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write command: %v", err)
	}

	var sawError, sawState bool
	for i := 0; i < 2; i++ {
		msg := readFeed(t, ws)
		switch msg.Type {
		case MessageTypeState:
			sawState = msg.State == voicesession.StateError
		case MessageTypeError:
			sawError = msg.Error == "connection failed"
		}
	}
	if !sawState || !sawError {
		t.Errorf("expected error state and error reply, state=%v error=%v", sawState, sawError)
	}
}

func TestFeed_UnsubscribesOnClose(t *testing.T) {
	env := newTestEnv(t, "key", nil)
	ws := dialFeed(t, env)
	readFeed(t, ws)
	waitSubscribers(t, env.feed, 1)

	ws.Close()
	waitSubscribers(t, env.feed, 0)
}
