package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/eleven-am/voice-client/internal/realtime"
	"github.com/eleven-am/voice-client/internal/transport"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	TransportGenAI     = "genai"
	TransportWebSocket = "websocket"

	BackendPortAudio = "portaudio"
	BackendVirtual   = "virtual"
)

const defaultConfigFile = "config/persona.yaml"

const defaultSystemInstruction = "You are a helpful voice assistant. Keep answers conversational and brief, " +
	"two or three sentences at most, and never use markdown in speech."

type Config struct {
	ServerAddr string
	LogLevel   string
	LogFormat  string

	Transport string
	Endpoint  string
	Session   transport.SessionConfig

	AudioBackend          string
	CaptureFrameSize      int
	CaptureQueueFrames    int
	OutputFramesPerBuffer int

	AutoConnect bool
}

// sessionOverlay is the YAML file shape; unset fields keep the env values.
type sessionOverlay struct {
	Session struct {
		Model               string             `yaml:"model"`
		SystemInstruction   string             `yaml:"system_instruction"`
		ResponseModality    transport.Modality `yaml:"response_modality"`
		InputTranscription  *bool              `yaml:"input_transcription"`
		OutputTranscription *bool              `yaml:"output_transcription"`
		Voice               string             `yaml:"voice"`
	} `yaml:"session"`
}

// LoadConfig reads .env, then the environment, then the YAML file named by
// CONFIG_FILE. The default file is skipped when it does not exist.
func LoadConfig() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", "127.0.0.1:8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "text"),

		Transport: getEnv("LIVE_TRANSPORT", TransportGenAI),
		Endpoint:  getEnv("LIVE_ENDPOINT", realtime.DefaultEndpoint),
		Session: transport.SessionConfig{
			APIKey:              getEnv("GEMINI_API_KEY", os.Getenv("API_KEY")),
			Model:               getEnv("LIVE_MODEL", realtime.DefaultModel),
			SystemInstruction:   getEnv("SYSTEM_INSTRUCTION", defaultSystemInstruction),
			ResponseModality:    transport.Modality(strings.ToUpper(getEnv("RESPONSE_MODALITY", string(transport.ModalityAudio)))),
			InputTranscription:  getEnvBool("INPUT_TRANSCRIPTION", true),
			OutputTranscription: getEnvBool("OUTPUT_TRANSCRIPTION", true),
			Voice:               getEnv("LIVE_VOICE", realtime.DefaultVoice),
		},

		AudioBackend:          getEnv("AUDIO_BACKEND", BackendPortAudio),
		CaptureFrameSize:      getEnvInt("CAPTURE_FRAME_SIZE", 4096),
		CaptureQueueFrames:    getEnvInt("CAPTURE_QUEUE_FRAMES", 4),
		OutputFramesPerBuffer: getEnvInt("OUTPUT_FRAMES_PER_BUFFER", 512),

		AutoConnect: getEnvBool("AUTO_CONNECT", false),
	}

	path := getEnv("CONFIG_FILE", defaultConfigFile)
	if err := cfg.applyFile(path); err != nil {
		if path != defaultConfigFile || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var overlay sessionOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	s := overlay.Session
	if s.Model != "" {
		c.Session.Model = s.Model
	}
	if s.SystemInstruction != "" {
		c.Session.SystemInstruction = strings.TrimSpace(s.SystemInstruction)
	}
	if s.ResponseModality != "" {
		c.Session.ResponseModality = transport.Modality(strings.ToUpper(string(s.ResponseModality)))
	}
	if s.Voice != "" {
		c.Session.Voice = s.Voice
	}
	if s.InputTranscription != nil {
		c.Session.InputTranscription = *s.InputTranscription
	}
	if s.OutputTranscription != nil {
		c.Session.OutputTranscription = *s.OutputTranscription
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Transport {
	case TransportGenAI, TransportWebSocket:
	default:
		return fmt.Errorf("unknown LIVE_TRANSPORT %q", c.Transport)
	}
	switch c.AudioBackend {
	case BackendPortAudio, BackendVirtual:
	default:
		return fmt.Errorf("unknown AUDIO_BACKEND %q", c.AudioBackend)
	}
	switch c.Session.ResponseModality {
	case transport.ModalityAudio, transport.ModalityText:
	default:
		return fmt.Errorf("unknown RESPONSE_MODALITY %q", c.Session.ResponseModality)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
