package realtime

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/transport"
)

func TestBuildSetup(t *testing.T) {
	setup := buildSetup(transport.SessionConfig{
		Model:               "gemini-live",
		SystemInstruction:   "be brief",
		InputTranscription:  true,
		OutputTranscription: true,
	})

	data, err := json.Marshal(setup)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded map[string]map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	s := decoded["setup"]
	if s["model"] != "models/gemini-live" {
		t.Errorf("expected prefixed model, got %v", s["model"])
	}
	if _, ok := s["inputAudioTranscription"]; !ok {
		t.Error("expected inputAudioTranscription to be present")
	}
	if _, ok := s["outputAudioTranscription"]; !ok {
		t.Error("expected outputAudioTranscription to be present")
	}

	gen := setup.Setup.GenerationConfig
	if len(gen.ResponseModalities) != 1 || gen.ResponseModalities[0] != "AUDIO" {
		t.Errorf("expected AUDIO modality, got %v", gen.ResponseModalities)
	}
	if gen.SpeechConfig == nil || gen.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != DefaultVoice {
		t.Error("expected default voice")
	}
	if setup.Setup.SystemInstruction.Parts[0].Text != "be brief" {
		t.Error("expected system instruction text")
	}
}

func TestBuildSetup_TextModalityHasNoVoice(t *testing.T) {
	setup := buildSetup(transport.SessionConfig{ResponseModality: transport.ModalityText})
	if setup.Setup.GenerationConfig.SpeechConfig != nil {
		t.Error("text responses should not carry a speech config")
	}
	if setup.Setup.InputAudioTranscription != nil || setup.Setup.SystemInstruction != nil {
		t.Error("unset options should be omitted")
	}
	if setup.Setup.Model != "models/"+DefaultModel {
		t.Errorf("expected default model, got %s", setup.Setup.Model)
	}
}

func TestBuildRealtimeInput(t *testing.T) {
	chunk := audio.EncodeChunk([]float32{0.5, -0.5}, audio.CaptureSampleRate)
	data, err := json.Marshal(buildRealtimeInput(chunk))
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	want := `{"realtimeInput":{"audio":{"mimeType":"audio/pcm;rate=16000","data":"` + chunk.Base64() + `"}}}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestDecodeServerMessage_Order(t *testing.T) {
	pcm := []byte{1, 0, 2, 0}
	msg := `{"serverContent":{
		"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` + base64.StdEncoding.EncodeToString(pcm) + `"}}]},
		"turnComplete":true,
		"interrupted":true,
		"inputTranscription":{"text":"hi"},
		"outputTranscription":{"text":"hello"}}}`

	evts, err := decodeServerMessage([]byte(msg), slog.Default())
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}

	names := make([]string, len(evts))
	for i, e := range evts {
		names[i] = transport.EventName(e)
	}
	want := []string{"output_transcript", "input_transcript", "turn_complete", "audio_chunk", "interrupted"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], names[i])
		}
	}

	chunk := evts[3].(transport.AudioChunk)
	if string(chunk.Data) != string(pcm) || chunk.MIMEType != "audio/pcm;rate=24000" {
		t.Errorf("unexpected audio chunk %+v", chunk)
	}
}

func TestDecodeServerMessage_SetupComplete(t *testing.T) {
	evts, err := decodeServerMessage([]byte(`{"setupComplete":{}}`), slog.Default())
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
	if _, ok := evts[0].(transport.SessionOpened); !ok {
		t.Errorf("expected SessionOpened, got %T", evts[0])
	}
}

func TestDecodeServerMessage_SkipsBadAudio(t *testing.T) {
	msg := `{"serverContent":{"modelTurn":{"parts":[
		{"inlineData":{"mimeType":"audio/pcm","data":"!!!"}},
		{"text":"thinking"},
		{"inlineData":{"mimeType":"audio/pcm","data":"AAA="}}]}}}`

	evts, err := decodeServerMessage([]byte(msg), slog.Default())
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected only the valid audio part, got %d events", len(evts))
	}
}

func TestDecodeServerMessage_InvalidJSON(t *testing.T) {
	if _, err := decodeServerMessage([]byte("{"), slog.Default()); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestModelName(t *testing.T) {
	tests := map[string]string{
		"":              "models/" + DefaultModel,
		"foo":           "models/foo",
		"models/foo":    "models/foo",
		"tunedModels/x": "models/tunedModels/x",
	}
	for in, want := range tests {
		if got := modelName(in); got != want {
			t.Errorf("modelName(%q) = %q, want %q", in, got, want)
		}
	}
}
