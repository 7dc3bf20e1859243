package transport

import (
	"context"
	"errors"
	"testing"
)

func TestEventName(t *testing.T) {
	tests := []struct {
		evt  ServerEvent
		want string
	}{
		{PartialInputTranscript{Text: "hi"}, "input_transcript"},
		{PartialOutputTranscript{Text: "hello"}, "output_transcript"},
		{AudioChunk{Data: []byte{0, 0}}, "audio_chunk"},
		{TurnComplete{}, "turn_complete"},
		{Interrupted{}, "interrupted"},
		{SessionOpened{}, "session_opened"},
		{SessionClosed{Reason: "bye"}, "session_closed"},
		{SessionError{Cause: errors.New("boom")}, "session_error"},
		{nil, "unknown"},
	}

	for _, tt := range tests {
		if got := EventName(tt.evt); got != tt.want {
			t.Errorf("EventName(%T) = %q, want %q", tt.evt, got, tt.want)
		}
	}
}

func TestSessionError_Unwrap(t *testing.T) {
	cause := errors.New("socket reset")
	err := SessionError{Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("SessionError should unwrap to its cause")
	}
	if err.Error() != "session error: socket reset" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if (SessionError{}).Error() != "session error" {
		t.Error("nil cause should still produce a message")
	}
}

func TestDialerFunc(t *testing.T) {
	var got SessionConfig
	d := DialerFunc(func(_ context.Context, cfg SessionConfig) (Channel, error) {
		got = cfg
		return nil, errors.New("refused")
	})

	_, err := d.Dial(context.Background(), SessionConfig{Model: "m", Voice: "Kore"})
	if err == nil {
		t.Fatal("expected dial error")
	}
	if got.Model != "m" || got.Voice != "Kore" {
		t.Errorf("config not passed through: %+v", got)
	}
}
