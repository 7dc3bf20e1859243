package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/shared"
	"github.com/eleven-am/voice-client/internal/transport"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 8 * 1024 * 1024
)

// WSDialer speaks the BidiGenerateContent JSON protocol over a plain
// websocket.
type WSDialer struct {
	cfg Config
	log *slog.Logger
}

func NewWSDialer(cfg Config, log *slog.Logger) *WSDialer {
	if log == nil {
		log = slog.Default()
	}
	return &WSDialer{
		cfg: cfg.withDefaults(),
		log: log.With("component", "realtime_ws"),
	}
}

func (d *WSDialer) Dial(ctx context.Context, cfg transport.SessionConfig) (transport.Channel, error) {
	if cfg.APIKey == "" {
		return nil, shared.ErrMissingCredential
	}

	endpoint, err := url.Parse(d.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: parse endpoint: %v", shared.ErrChannel, err)
	}
	q := endpoint.Query()
	q.Set("key", cfg.APIKey)
	endpoint.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
		ReadBufferSize:   32 * 1024,
		WriteBufferSize:  16 * 1024,
	}
	ws, _, err := dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", shared.ErrChannel, err)
	}

	setup, err := json.Marshal(buildSetup(cfg))
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("%w: encode setup: %v", shared.ErrChannel, err)
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, setup); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("%w: send setup: %v", shared.ErrChannel, err)
	}

	ws.SetReadLimit(maxMessageSize)
	c := &wsChannel{ws: ws, log: d.log}
	c.stream = newStream(d.cfg.BufferSizes, c.closeSocket, d.log)
	c.stream.start(c.read, c.write)

	d.log.Info("session channel opened", "model", modelName(cfg.Model))
	return c, nil
}

type wsChannel struct {
	*stream
	ws  *websocket.Conn
	log *slog.Logger
}

func (c *wsChannel) read() ([]transport.ServerEvent, error) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		evts, err := decodeServerMessage(data, c.log)
		if err != nil {
			c.log.Warn("ignoring unreadable server message", "error", err)
			continue
		}
		if len(evts) > 0 {
			return evts, nil
		}
	}
}

func (c *wsChannel) write(chunk audio.EncodedChunk) error {
	data, err := json.Marshal(buildRealtimeInput(chunk))
	if err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsChannel) closeSocket() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}
