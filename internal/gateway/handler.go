package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/voice-client/internal/shared"
	"github.com/eleven-am/voice-client/internal/transcript"
	"github.com/eleven-am/voice-client/internal/visualizer"
	"github.com/eleven-am/voice-client/internal/voicesession"
	"github.com/labstack/echo/v4"
)

var errConnectFailed = errors.New("connection failed")

type Analysers struct {
	Input  *visualizer.Analyser
	Output *visualizer.Analyser
}

type Handler struct {
	session   *voicesession.Controller
	feed      *Feed
	analysers Analysers
	logger    *slog.Logger
}

// NewHandler wires the controller's state and transcript changes into the
// feed.
func NewHandler(session *voicesession.Controller, feed *Feed, analysers Analysers, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		session:   session,
		feed:      feed,
		analysers: analysers,
		logger:    logger.With("component", "gateway"),
	}

	session.OnStateChange(func(state voicesession.State) {
		msg := &FeedMessage{Type: MessageTypeState, State: state}
		if state == voicesession.StateError {
			msg.Error = "connection failed"
		}
		feed.Publish(msg)
	})
	session.Transcript().OnChange(func(entries []transcript.Entry) {
		feed.Publish(&FeedMessage{Type: MessageTypeTranscript, Entries: entries})
	})
	return h
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/state", h.GetState)
	g.POST("/connect", h.Connect)
	g.POST("/disconnect", h.Disconnect)
	g.GET("/transcript", h.GetTranscript)
	g.DELETE("/transcript", h.ClearTranscript)
	g.GET("/visualizer/:stream", h.GetVisualizer)
	g.GET("/events", h.Events)
}

// GetState godoc
// @Summary      Connection state
// @Tags         session
// @Produce      json
// @Success      200  {object}  voicesession.Status
// @Router       /state [get]
func (h *Handler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.Status())
}

// Connect godoc
// @Summary      Start a voice session
// @Description  Acquires microphone and speaker and opens the live channel
// @Tags         session
// @Produce      json
// @Success      202  {object}  voicesession.Status
// @Failure      412  {object}  shared.APIError  "No API key configured"
// @Failure      503  {object}  shared.APIError  "Audio device unavailable"
// @Failure      502  {object}  shared.APIError
// @Router       /connect [post]
func (h *Handler) Connect(c echo.Context) error {
	if err := h.session.Connect(c.Request().Context()); err != nil {
		h.logger.Error("connect failed", "error", err)
		return shared.ConnectError(err)
	}
	return c.JSON(http.StatusAccepted, h.session.Status())
}

// Disconnect godoc
// @Summary      End the voice session
// @Tags         session
// @Produce      json
// @Success      200  {object}  voicesession.Status
// @Router       /disconnect [post]
func (h *Handler) Disconnect(c echo.Context) error {
	h.session.Disconnect()
	return c.JSON(http.StatusOK, h.session.Status())
}

// GetTranscript godoc
// @Summary      Conversation transcript
// @Tags         transcript
// @Produce      json
// @Success      200  {object}  TranscriptResponse
// @Router       /transcript [get]
func (h *Handler) GetTranscript(c echo.Context) error {
	entries := h.session.Transcript().Entries()
	if entries == nil {
		entries = []transcript.Entry{}
	}
	return c.JSON(http.StatusOK, TranscriptResponse{Entries: entries})
}

// ClearTranscript godoc
// @Summary      Clear the transcript
// @Tags         transcript
// @Success      204
// @Router       /transcript [delete]
func (h *Handler) ClearTranscript(c echo.Context) error {
	h.session.ClearTranscript()
	return c.NoContent(http.StatusNoContent)
}

// GetVisualizer godoc
// @Summary      Frequency bins and volume
// @Tags         visualizer
// @Produce      json
// @Param        stream  path  string  true  "input or output"
// @Success      200  {object}  visualizer.Snapshot
// @Failure      404  {object}  shared.APIError
// @Router       /visualizer/{stream} [get]
func (h *Handler) GetVisualizer(c echo.Context) error {
	var analyser *visualizer.Analyser
	switch c.Param("stream") {
	case "input":
		analyser = h.analysers.Input
	case "output":
		analyser = h.analysers.Output
	}
	if analyser == nil {
		return shared.NotFound("unknown_stream", "no analyser for stream "+c.Param("stream"))
	}
	return c.JSON(http.StatusOK, analyser.Snapshot())
}

// Events godoc
// @Summary      Live event feed
// @Description  Upgrades to a websocket carrying state and transcript messages
// @Tags         session
// @Success      101  {object}  FeedMessage
// @Router       /events [get]
func (h *Handler) Events(c echo.Context) error {
	initial := []*FeedMessage{
		{Type: MessageTypeState, State: h.session.State(), Timestamp: time.Now()},
		{Type: MessageTypeTranscript, Entries: h.session.Transcript().Entries(), Timestamp: time.Now()},
	}
	return h.feed.Serve(c.Response(), c.Request(), initial, h.handleCommand)
}

func (h *Handler) handleCommand(_ context.Context, cmd Command) error {
	switch cmd.Type {
	case CommandConnect:
		// the subscriber's request context ends with the socket; the session
		// must outlive it
		if err := h.session.Connect(context.Background()); err != nil {
			h.logger.Error("connect command failed", "error", err)
			return errConnectFailed
		}
	case CommandDisconnect:
		h.session.Disconnect()
	case CommandClearTranscript:
		h.session.ClearTranscript()
	default:
		h.logger.Debug("ignoring unknown command", "type", cmd.Type)
	}
	return nil
}
