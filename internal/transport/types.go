package transport

type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// SessionConfig values are opaque to the pipeline and handed to the remote
// service as-is.
type SessionConfig struct {
	APIKey              string
	Model               string
	SystemInstruction   string
	ResponseModality    Modality
	InputTranscription  bool
	OutputTranscription bool
	Voice               string
	InputMIMEType       string
}

// ServerEvent is one inbound message from the remote service. The set of
// variants is closed; switch on the concrete type.
type ServerEvent interface {
	serverEvent()
}

type PartialInputTranscript struct {
	Text string
}

type PartialOutputTranscript struct {
	Text string
}

// AudioChunk carries PCM already decoded from its base64 wire form.
type AudioChunk struct {
	Data     []byte
	MIMEType string
}

type TurnComplete struct{}

type Interrupted struct{}

type SessionOpened struct{}

type SessionClosed struct {
	Reason string
}

type SessionError struct {
	Cause error
}

func (PartialInputTranscript) serverEvent()  {}
func (PartialOutputTranscript) serverEvent() {}
func (AudioChunk) serverEvent()              {}
func (TurnComplete) serverEvent()            {}
func (Interrupted) serverEvent()             {}
func (SessionOpened) serverEvent()           {}
func (SessionClosed) serverEvent()           {}
func (SessionError) serverEvent()            {}

func (e SessionError) Error() string {
	if e.Cause == nil {
		return "session error"
	}
	return "session error: " + e.Cause.Error()
}

func (e SessionError) Unwrap() error {
	return e.Cause
}

// EventName is the stable label used in logs and metrics.
func EventName(evt ServerEvent) string {
	switch evt.(type) {
	case PartialInputTranscript:
		return "input_transcript"
	case PartialOutputTranscript:
		return "output_transcript"
	case AudioChunk:
		return "audio_chunk"
	case TurnComplete:
		return "turn_complete"
	case Interrupted:
		return "interrupted"
	case SessionOpened:
		return "session_opened"
	case SessionClosed:
		return "session_closed"
	case SessionError:
		return "session_error"
	default:
		return "unknown"
	}
}
