package gateway

import (
	"time"

	"github.com/eleven-am/voice-client/internal/transcript"
	"github.com/eleven-am/voice-client/internal/voicesession"
)

type MessageType string

const (
	MessageTypeState      MessageType = "state"
	MessageTypeTranscript MessageType = "transcript"
	MessageTypeError      MessageType = "error"

	CommandConnect         MessageType = "connect"
	CommandDisconnect      MessageType = "disconnect"
	CommandClearTranscript MessageType = "clear_transcript"
)

// FeedMessage is pushed to every subscriber of the event feed.
type FeedMessage struct {
	Type      MessageType        `json:"type"`
	State     voicesession.State `json:"state,omitempty"`
	Entries   []transcript.Entry `json:"entries,omitempty"`
	Error     string             `json:"error,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Command is what a feed subscriber may send back.
type Command struct {
	Type MessageType `json:"type"`
}

type TranscriptResponse struct {
	Entries []transcript.Entry `json:"entries"`
}
