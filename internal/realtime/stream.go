package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/transport"
	"github.com/gorilla/websocket"
)

var (
	ErrClosed     = errors.New("channel closed")
	ErrSendBuffer = errors.New("send buffer full")
)

type readFunc func() ([]transport.ServerEvent, error)

type writeFunc func(chunk audio.EncodedChunk) error

// stream owns the goroutines shared by every Channel implementation: one
// reader translating remote messages into events and one writer draining the
// bounded outbound queue. Events is closed after both have exited.
type stream struct {
	log *slog.Logger

	events   chan transport.ServerEvent
	outbound chan audio.EncodedChunk
	done     chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once
	closeFn   func() error
	closeErr  error
	wg        sync.WaitGroup
}

func newStream(sizes BufferSizes, closeFn func() error, log *slog.Logger) *stream {
	return &stream{
		log:      log,
		events:   make(chan transport.ServerEvent, sizes.Events),
		outbound: make(chan audio.EncodedChunk, sizes.Outbound),
		done:     make(chan struct{}),
		closeFn:  closeFn,
	}
}

func (s *stream) start(read readFunc, write writeFunc) {
	s.wg.Add(2)
	go s.readLoop(read)
	go s.writeLoop(write)
	go func() {
		s.wg.Wait()
		close(s.events)
	}()
}

func (s *stream) Send(ctx context.Context, chunk audio.EncodedChunk) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.outbound <- chunk:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrSendBuffer
	}
}

func (s *stream) Events() <-chan transport.ServerEvent {
	return s.events
}

// Close is idempotent. Once it has been called no further events are
// delivered, including the close notification of the underlying socket.
func (s *stream) Close() error {
	s.closing.Store(true)
	s.shutdown()
	return s.closeErr
}

func (s *stream) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.closeFn != nil {
			s.closeErr = s.closeFn()
		}
	})
}

func (s *stream) emit(evt transport.ServerEvent) bool {
	if s.closing.Load() {
		return false
	}
	select {
	case s.events <- evt:
		return true
	case <-s.done:
		return false
	}
}

func (s *stream) readLoop(read readFunc) {
	defer s.wg.Done()

	for {
		evts, err := read()
		if err != nil {
			if !s.closing.Load() {
				s.emit(terminalEvent(err))
			}
			s.shutdown()
			return
		}
		for _, evt := range evts {
			if !s.emit(evt) {
				return
			}
		}
	}
}

func (s *stream) writeLoop(write writeFunc) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case chunk := <-s.outbound:
			if err := write(chunk); err != nil {
				if !s.closing.Load() {
					s.log.Error("realtime write failed", "error", err)
					s.emit(transport.SessionError{Cause: err})
				}
				s.shutdown()
				return
			}
		}
	}
}

// terminalEvent classifies a read error as an orderly close or a failure.
func terminalEvent(err error) transport.ServerEvent {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			reason := ce.Text
			if reason == "" {
				reason = "closed"
			}
			return transport.SessionClosed{Reason: reason}
		}
		return transport.SessionError{Cause: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return transport.SessionClosed{Reason: "closed"}
	}
	return transport.SessionError{Cause: err}
}
