package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type CommandFunc func(ctx context.Context, cmd Command) error

// Feed fans state and transcript updates out to websocket subscribers. A
// slow subscriber loses messages instead of stalling the publisher.
type Feed struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[string]*feedClient
}

func NewFeed(log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	return &Feed{
		log:     log.With("component", "event_feed"),
		clients: make(map[string]*feedClient),
	}
}

func (f *Feed) Publish(msg *FeedMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, c := range f.clients {
		c.enqueue(msg)
	}
}

func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

func (f *Feed) register(c *feedClient) {
	f.mu.Lock()
	f.clients[c.id] = c
	f.mu.Unlock()
}

func (f *Feed) unregister(c *feedClient) {
	f.mu.Lock()
	delete(f.clients, c.id)
	f.mu.Unlock()
}

// Serve upgrades the request and pumps until the subscriber goes away. The
// initial messages are queued before any broadcast can reach the client.
func (f *Feed) Serve(w http.ResponseWriter, r *http.Request, initial []*FeedMessage, onCommand CommandFunc) error {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Error("websocket upgrade failed", "error", err)
		return err
	}

	c := newFeedClient(ws, f.log)
	for _, msg := range initial {
		c.enqueue(msg)
	}
	f.register(c)
	f.log.Info("feed subscriber connected", "client_id", c.id)

	ctx := r.Context()
	go c.writePump(ctx)
	c.readPump(ctx, onCommand)

	f.unregister(c)
	f.log.Info("feed subscriber disconnected", "client_id", c.id)
	return nil
}

type feedClient struct {
	id     string
	ws     *websocket.Conn
	logger *slog.Logger
	send   chan *FeedMessage

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func newFeedClient(ws *websocket.Conn, logger *slog.Logger) *feedClient {
	id := uuid.NewString()
	return &feedClient{
		id:     id,
		ws:     ws,
		logger: logger.With("client_id", id),
		send:   make(chan *FeedMessage, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *feedClient) enqueue(msg *FeedMessage) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer full, dropping message", "type", msg.Type)
	}
}

func (c *feedClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	close(c.send)
	c.mu.Unlock()

	return c.ws.Close()
}

func (c *feedClient) readPump(ctx context.Context, onCommand CommandFunc) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.logger.Warn("failed to unmarshal command", "error", err)
			continue
		}
		if onCommand == nil {
			continue
		}
		if err := onCommand(ctx, cmd); err != nil {
			c.enqueue(&FeedMessage{Type: MessageTypeError, Error: err.Error(), Timestamp: time.Now()})
		}
	}
}

func (c *feedClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error("failed to marshal message", "error", err)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
