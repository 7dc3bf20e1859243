package realtime

import "github.com/eleven-am/voice-client/internal/transport"

// contentFrame is the transport-neutral view of one server content message.
type contentFrame struct {
	opened       bool
	outputText   string
	inputText    string
	turnComplete bool
	audio        []transport.AudioChunk
	interrupted  bool
}

// events expands a frame in the order the service's fields are handled:
// output transcription, input transcription, turn completion, audio, then
// interruption.
func (f contentFrame) events() []transport.ServerEvent {
	var evts []transport.ServerEvent
	if f.opened {
		evts = append(evts, transport.SessionOpened{})
	}
	if f.outputText != "" {
		evts = append(evts, transport.PartialOutputTranscript{Text: f.outputText})
	}
	if f.inputText != "" {
		evts = append(evts, transport.PartialInputTranscript{Text: f.inputText})
	}
	if f.turnComplete {
		evts = append(evts, transport.TurnComplete{})
	}
	for _, chunk := range f.audio {
		evts = append(evts, chunk)
	}
	if f.interrupted {
		evts = append(evts, transport.Interrupted{})
	}
	return evts
}

func modelName(model string) string {
	if model == "" {
		model = DefaultModel
	}
	if len(model) > 7 && model[:7] == "models/" {
		return model
	}
	return "models/" + model
}
