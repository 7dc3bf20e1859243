package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/device"
	"github.com/eleven-am/voice-client/internal/shared"
	"github.com/eleven-am/voice-client/internal/transcript"
	"github.com/eleven-am/voice-client/internal/transport"
	"github.com/eleven-am/voice-client/internal/visualizer"
	"github.com/eleven-am/voice-client/internal/voicesession"
	"github.com/labstack/echo/v4"
)

type stubChannel struct {
	events chan transport.ServerEvent
	once   sync.Once
}

func (s *stubChannel) Send(context.Context, audio.EncodedChunk) error { return nil }
func (s *stubChannel) Events() <-chan transport.ServerEvent         { return s.events }
func (s *stubChannel) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

type testEnv struct {
	e       *echo.Echo
	ctrl    *voicesession.Controller
	handler *Handler
	feed    *Feed
	devices *device.Virtual
	channel *stubChannel
}

func newTestEnv(t *testing.T, apiKey string, dialErr error) *testEnv {
	t.Helper()
	env := &testEnv{devices: device.NewVirtual(false)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dialer := transport.DialerFunc(func(context.Context, transport.SessionConfig) (transport.Channel, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		env.channel = &stubChannel{events: make(chan transport.ServerEvent, 8)}
		return env.channel, nil
	})

	env.ctrl = voicesession.New(voicesession.Config{
		Session: transport.SessionConfig{APIKey: apiKey},
	}, voicesession.Deps{
		Devices:    env.devices,
		Dialer:     dialer,
		Transcript: transcript.NewAggregator(),
		Log:        logger,
	})
	t.Cleanup(env.ctrl.Shutdown)

	env.feed = NewFeed(logger)
	env.handler = NewHandler(env.ctrl, env.feed, Analysers{
		Input:  visualizer.NewAnalyser(visualizer.Config{}),
		Output: visualizer.NewAnalyser(visualizer.Config{}),
	}, logger)

	env.e = echo.New()
	env.handler.RegisterRoutes(env.e.Group("/api/v1"))
	return env
}

func (env *testEnv) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHandler_GetState(t *testing.T) {
	env := newTestEnv(t, "key", nil)

	rec := env.do(http.MethodGet, "/api/v1/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	status := decode[voicesession.Status](t, rec)
	if status.State != voicesession.StateDisconnected {
		t.Errorf("expected disconnected, got %s", status.State)
	}
}

func TestHandler_ConnectAndDisconnect(t *testing.T) {
	env := newTestEnv(t, "key", nil)

	rec := env.do(http.MethodPost, "/api/v1/connect")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if status := decode[voicesession.Status](t, rec); status.State != voicesession.StateConnecting {
		t.Errorf("expected connecting, got %s", status.State)
	}

	rec = env.do(http.MethodPost, "/api/v1/disconnect")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if status := decode[voicesession.Status](t, rec); status.State != voicesession.StateDisconnected {
		t.Errorf("expected disconnected, got %s", status.State)
	}
	if !env.devices.Inputs()[0].Closed() {
		t.Error("disconnect should release the microphone")
	}
}

func TestHandler_ConnectErrors(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		dialErr error
		status  int
		code    string
	}{
		{"missing key", "", nil, http.StatusPreconditionFailed, "missing_credential"},
		{"dial failure", "key", errors.New("refused"), http.StatusBadGateway, "connection_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.apiKey, tt.dialErr)
			rec := env.do(http.MethodPost, "/api/v1/connect")
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			apiErr := decode[shared.APIError](t, rec)
			if apiErr.Code != tt.code || apiErr.Message != "connection failed" {
				t.Errorf("unexpected error body %+v", apiErr)
			}
		})
	}
}

func TestHandler_Transcript(t *testing.T) {
	env := newTestEnv(t, "key", nil)

	rec := env.do(http.MethodGet, "/api/v1/transcript")
	if body := decode[TranscriptResponse](t, rec); body.Entries == nil || len(body.Entries) != 0 {
		t.Errorf("expected empty entries array, got %s", rec.Body.String())
	}

	agg := env.ctrl.Transcript()
	agg.OnPartial(transcript.SenderModel, "Hello")
	agg.OnTurnComplete()

	rec = env.do(http.MethodGet, "/api/v1/transcript")
	body := decode[TranscriptResponse](t, rec)
	if len(body.Entries) != 1 || body.Entries[0].Text != "Hello" {
		t.Fatalf("unexpected transcript %+v", body.Entries)
	}

	rec = env.do(http.MethodDelete, "/api/v1/transcript")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if len(agg.Entries()) != 0 {
		t.Error("transcript should be cleared")
	}
}

func TestHandler_Visualizer(t *testing.T) {
	env := newTestEnv(t, "key", nil)

	rec := env.do(http.MethodGet, "/api/v1/visualizer/input")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	snap := decode[struct {
		Bins   string  `json:"bins"`
		Volume float64 `json:"volume"`
	}](t, rec)
	if snap.Bins == "" {
		t.Error("expected encoded bins")
	}

	rec = env.do(http.MethodGet, "/api/v1/visualizer/video")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown stream, got %d", rec.Code)
	}
	apiErr := decode[shared.APIError](t, rec)
	if apiErr.Code != "unknown_stream" {
		t.Errorf("expected code unknown_stream, got %q", apiErr.Code)
	}
}
