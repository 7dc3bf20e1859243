package realtime

import "time"

const (
	DefaultModel    = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultVoice    = "Kore"
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
)

type Config struct {
	Endpoint         string
	HandshakeTimeout time.Duration
	BufferSizes      BufferSizes
}

type BufferSizes struct {
	Outbound int
	Events   int
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.BufferSizes.Outbound <= 0 {
		c.BufferSizes.Outbound = 32
	}
	if c.BufferSizes.Events <= 0 {
		c.BufferSizes.Events = 64
	}
	return c
}
