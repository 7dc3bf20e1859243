package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/shared"
	"github.com/eleven-am/voice-client/internal/transport"
	"google.golang.org/genai"
)

// GenAIDialer opens sessions through the Live API of the genai SDK.
type GenAIDialer struct {
	cfg Config
	log *slog.Logger
}

func NewGenAIDialer(cfg Config, log *slog.Logger) *GenAIDialer {
	if log == nil {
		log = slog.Default()
	}
	return &GenAIDialer{
		cfg: cfg.withDefaults(),
		log: log.With("component", "realtime_genai"),
	}
}

func (d *GenAIDialer) Dial(ctx context.Context, cfg transport.SessionConfig) (transport.Channel, error) {
	if cfg.APIKey == "" {
		return nil, shared.ErrMissingCredential
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", shared.ErrChannel, err)
	}

	model := strings.TrimPrefix(modelName(cfg.Model), "models/")
	session, err := client.Live.Connect(ctx, model, liveConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", shared.ErrChannel, err)
	}

	c := &genaiChannel{session: session, log: d.log}
	c.stream = newStream(d.cfg.BufferSizes, session.Close, d.log)
	c.stream.start(c.read, c.write)

	d.log.Info("session channel opened", "model", model)
	return c, nil
}

func liveConnectConfig(cfg transport.SessionConfig) *genai.LiveConnectConfig {
	modality := genai.ModalityAudio
	if cfg.ResponseModality == transport.ModalityText {
		modality = genai.ModalityText
	}

	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{modality},
	}
	if modality == genai.ModalityAudio {
		voice := cfg.Voice
		if voice == "" {
			voice = DefaultVoice
		}
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if cfg.InputTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

type genaiChannel struct {
	*stream
	session *genai.Session
	log     *slog.Logger
}

func (c *genaiChannel) read() ([]transport.ServerEvent, error) {
	for {
		msg, err := c.session.Receive()
		if err != nil {
			return nil, err
		}
		if evts := liveMessageEvents(msg, c.log); len(evts) > 0 {
			return evts, nil
		}
	}
}

func (c *genaiChannel) write(chunk audio.EncodedChunk) error {
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: chunk.MIMEType, Data: chunk.Data},
	})
}

func liveMessageEvents(msg *genai.LiveServerMessage, log *slog.Logger) []transport.ServerEvent {
	if msg == nil {
		return nil
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
				if part == nil || part.InlineData == nil || !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					continue
				}
				frame.audio = append(frame.audio, transport.AudioChunk{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
				})
			}
		}
	}
	return frame.events()
}
