package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/transport"
)

type clientSetup struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model                    string            `json:"model"`
	GenerationConfig         *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *wireContent      `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoice `json:"prebuiltVoiceConfig"`
}

type prebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text       string    `json:"text,omitempty"`
	InlineData *wireBlob `json:"inlineData,omitempty"`
}

type wireBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type clientRealtimeInput struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	Audio wireBlob `json:"audio"`
}

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	GoAway        *goAway          `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn           *wireContent       `json:"modelTurn,omitempty"`
	TurnComplete        bool               `json:"turnComplete,omitempty"`
	Interrupted         bool               `json:"interrupted,omitempty"`
	InputTranscription  *wireTranscription `json:"inputTranscription,omitempty"`
	OutputTranscription *wireTranscription `json:"outputTranscription,omitempty"`
}

type wireTranscription struct {
	Text string `json:"text"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

func buildSetup(cfg transport.SessionConfig) clientSetup {
	modality := cfg.ResponseModality
	if modality == "" {
		modality = transport.ModalityAudio
	}

	gen := &generationConfig{ResponseModalities: []string{string(modality)}}
	if modality == transport.ModalityAudio {
		voice := cfg.Voice
		if voice == "" {
			voice = DefaultVoice
		}
		gen.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoice{VoiceName: voice}},
		}
	}

	setup := setupPayload{
		Model:            modelName(cfg.Model),
		GenerationConfig: gen,
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &wireContent{Parts: []wirePart{{Text: cfg.SystemInstruction}}}
	}
	if cfg.InputTranscription {
		setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		setup.OutputAudioTranscription = &struct{}{}
	}
	return clientSetup{Setup: setup}
}

func buildRealtimeInput(chunk audio.EncodedChunk) clientRealtimeInput {
	return clientRealtimeInput{
		RealtimeInput: realtimeInput{
			Audio: wireBlob{MIMEType: chunk.MIMEType, Data: chunk.Base64()},
		},
	}
}

// decodeServerMessage parses one inbound frame. Audio parts whose payload is
// not valid base64 are skipped so one bad part never ends the session.
func decodeServerMessage(data []byte, log *slog.Logger) ([]transport.ServerEvent, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode server message: %w", err)
	}

	if msg.GoAway != nil {
		log.Warn("server requested disconnect", "time_left", msg.GoAway.TimeLeft)
	}

	frame := contentFrame{opened: msg.SetupComplete != nil}
	if sc := msg.ServerContent; sc != nil {
		if sc.OutputTranscription != nil {
			frame.outputText = sc.OutputTranscription.Text
		}
		if sc.InputTranscription != nil {
			frame.inputText = sc.InputTranscription.Text
		}
		frame.turnComplete = sc.TurnComplete
		frame.interrupted = sc.Interrupted
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil || !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					continue
				}
				pcm, err := audio.DecodeBase64(part.InlineData.Data)
				if err != nil {
					log.Warn("dropping undecodable audio part", "error", err)
					continue
				}
				frame.audio = append(frame.audio, transport.AudioChunk{
					Data:     pcm,
					MIMEType: part.InlineData.MIMEType,
				})
			}
		}
	}
	return frame.events(), nil
}
