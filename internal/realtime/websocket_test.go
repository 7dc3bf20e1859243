package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/shared"
	"github.com/eleven-am/voice-client/internal/transport"
	"github.com/gorilla/websocket"
)

type fakeLiveServer struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	key     string
	setup   map[string]any
	inputs  []string
	conn    *websocket.Conn
	ready   chan struct{}
	written chan struct{}
}

func newFakeLiveServer(t *testing.T) *fakeLiveServer {
	f := &fakeLiveServer{
		t:       t,
		ready:   make(chan struct{}),
		written: make(chan struct{}, 16),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLiveServer) endpoint() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeLiveServer) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var setup map[string]any
	if err := ws.ReadJSON(&setup); err != nil {
		return
	}

	f.mu.Lock()
	f.key = r.URL.Query().Get("key")
	f.setup = setup
	f.conn = ws
	f.mu.Unlock()
	close(f.ready)

	for {
		var msg clientRealtimeInput
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		f.mu.Lock()
		f.inputs = append(f.inputs, msg.RealtimeInput.Audio.MIMEType)
		f.mu.Unlock()
		f.written <- struct{}{}
	}
}

func (f *fakeLiveServer) send(t *testing.T, msg string) {
	t.Helper()
	<-f.ready
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (f *fakeLiveServer) closeWith(t *testing.T, code int, text string) {
	t.Helper()
	<-f.ready
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, text)
	_ = f.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = f.conn.Close()
}

func nextEvent(t *testing.T, ch transport.Channel) transport.ServerEvent {
	t.Helper()
	select {
	case evt, ok := <-ch.Events():
		if !ok {
			t.Fatal("events closed unexpectedly")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func dialFake(t *testing.T, f *fakeLiveServer) transport.Channel {
	t.Helper()
	d := NewWSDialer(Config{Endpoint: f.endpoint()}, nil)
	ch, err := d.Dial(context.Background(), transport.SessionConfig{
		APIKey:             "secret",
		Model:              "gemini-live",
		InputTranscription: true,
	})
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	return ch
}

func TestWSDialer_SetupAndEvents(t *testing.T) {
	f := newFakeLiveServer(t)
	ch := dialFake(t, f)
	defer ch.Close()

	f.send(t, `{"setupComplete":{}}`)
	if _, ok := nextEvent(t, ch).(transport.SessionOpened); !ok {
		t.Fatal("expected SessionOpened")
	}

	f.mu.Lock()
	key := f.key
	setup := f.setup["setup"].(map[string]any)
	f.mu.Unlock()
	if key != "secret" {
		t.Errorf("expected api key in query, got %q", key)
	}
	if setup["model"] != "models/gemini-live" {
		t.Errorf("unexpected model %v", setup["model"])
	}

	f.send(t, `{"serverContent":{"inputTranscription":{"text":"hi"}}}`)
	evt, ok := nextEvent(t, ch).(transport.PartialInputTranscript)
	if !ok || evt.Text != "hi" {
		t.Errorf("expected input transcript 'hi', got %#v", evt)
	}
}

func TestWSDialer_Send(t *testing.T) {
	f := newFakeLiveServer(t)
	ch := dialFake(t, f)
	defer ch.Close()

	chunk := audio.EncodeChunk(make([]float32, 8), audio.CaptureSampleRate)
	if err := ch.Send(context.Background(), chunk); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	select {
	case <-f.written:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received audio")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) != 1 || f.inputs[0] != "audio/pcm;rate=16000" {
		t.Errorf("unexpected inputs %v", f.inputs)
	}
}

func TestWSDialer_RemoteCloseEmitsClosed(t *testing.T) {
	f := newFakeLiveServer(t)
	ch := dialFake(t, f)
	defer ch.Close()

	f.closeWith(t, websocket.CloseNormalClosure, "bye")
	evt, ok := nextEvent(t, ch).(transport.SessionClosed)
	if !ok || evt.Reason != "bye" {
		t.Fatalf("expected SessionClosed 'bye', got %#v", evt)
	}

	select {
	case _, open := <-ch.Events():
		if open {
			t.Error("expected events to be closed after terminal event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events never closed")
	}
}

func TestWSDialer_RemoteErrorEmitsError(t *testing.T) {
	f := newFakeLiveServer(t)
	ch := dialFake(t, f)
	defer ch.Close()

	f.closeWith(t, websocket.CloseInternalServerErr, "boom")
	if _, ok := nextEvent(t, ch).(transport.SessionError); !ok {
		t.Fatal("expected SessionError")
	}
}

func TestWSDialer_LocalCloseIsSilent(t *testing.T) {
	f := newFakeLiveServer(t)
	ch := dialFake(t, f)
	<-f.ready

	if err := ch.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
	ch.Close()

	for evt := range ch.Events() {
		t.Errorf("unexpected event after local close: %T", evt)
	}

	if err := ch.Send(context.Background(), audio.EncodedChunk{}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestWSDialer_MissingCredential(t *testing.T) {
	d := NewWSDialer(Config{}, nil)
	_, err := d.Dial(context.Background(), transport.SessionConfig{})
	if !errors.Is(err, shared.ErrMissingCredential) {
		t.Errorf("expected ErrMissingCredential, got %v", err)
	}
}

func TestWSDialer_DialFailure(t *testing.T) {
	d := NewWSDialer(Config{Endpoint: "ws://127.0.0.1:1/nothing"}, nil)
	_, err := d.Dial(context.Background(), transport.SessionConfig{APIKey: "k"})
	if !errors.Is(err, shared.ErrChannel) {
		t.Errorf("expected ErrChannel, got %v", err)
	}
}

func TestStream_SendBufferFull(t *testing.T) {
	s := newStream(BufferSizes{Outbound: 1, Events: 1}, nil, nil)
	if err := s.Send(context.Background(), audio.EncodedChunk{}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := s.Send(context.Background(), audio.EncodedChunk{}); !errors.Is(err, ErrSendBuffer) {
		t.Errorf("expected ErrSendBuffer, got %v", err)
	}
}

func TestTerminalEvent(t *testing.T) {
	if _, ok := terminalEvent(&websocket.CloseError{Code: websocket.CloseGoingAway}).(transport.SessionClosed); !ok {
		t.Error("going away should be an orderly close")
	}
	if _, ok := terminalEvent(&websocket.CloseError{Code: websocket.CloseAbnormalClosure}).(transport.SessionError); !ok {
		t.Error("abnormal closure should be an error")
	}
	if _, ok := terminalEvent(json.Unmarshal([]byte("{"), &struct{}{})).(transport.SessionError); !ok {
		t.Error("arbitrary failures should be errors")
	}
}
