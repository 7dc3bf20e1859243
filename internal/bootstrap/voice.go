package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-client/internal/audio"
	"github.com/eleven-am/voice-client/internal/capture"
	"github.com/eleven-am/voice-client/internal/device"
	"github.com/eleven-am/voice-client/internal/gateway"
	"github.com/eleven-am/voice-client/internal/metrics"
	"github.com/eleven-am/voice-client/internal/realtime"
	"github.com/eleven-am/voice-client/internal/transcript"
	"github.com/eleven-am/voice-client/internal/transport"
	"github.com/eleven-am/voice-client/internal/visualizer"
	"github.com/eleven-am/voice-client/internal/voicesession"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"
)

func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}

func ProvideDeviceBackend(cfg *Config, logger *slog.Logger) device.Backend {
	if cfg.AudioBackend == BackendVirtual {
		logger.Warn("using virtual audio devices; no sound will be captured or played")
		return device.NewVirtual(true)
	}
	return device.NewPortAudio(logger)
}

func ProvideDialer(cfg *Config, logger *slog.Logger) transport.Dialer {
	rtCfg := realtime.Config{Endpoint: cfg.Endpoint}
	if cfg.Transport == TransportWebSocket {
		return realtime.NewWSDialer(rtCfg, logger)
	}
	return realtime.NewGenAIDialer(rtCfg, logger)
}

func ProvideAnalysers() gateway.Analysers {
	return gateway.Analysers{
		Input:  visualizer.NewAnalyser(visualizer.Config{}),
		Output: visualizer.NewAnalyser(visualizer.Config{}),
	}
}

type ControllerParams struct {
	fx.In

	Config    *Config
	Devices   device.Backend
	Dialer    transport.Dialer
	Metrics   *metrics.Metrics
	Analysers gateway.Analysers
	Logger    *slog.Logger
}

func ProvideController(p ControllerParams) *voicesession.Controller {
	return voicesession.New(voicesession.Config{
		Session: p.Config.Session,
		Capture: capture.Config{
			FrameSize:  p.Config.CaptureFrameSize,
			SampleRate: audio.CaptureSampleRate,
			QueueSize:  p.Config.CaptureQueueFrames,
		},
		PlaybackSampleRate:    audio.PlaybackSampleRate,
		OutputFramesPerBuffer: p.Config.OutputFramesPerBuffer,
	}, voicesession.Deps{
		Devices:        p.Devices,
		Dialer:         p.Dialer,
		Transcript:     transcript.NewAggregator(),
		Metrics:        p.Metrics,
		InputAnalyser:  p.Analysers.Input,
		OutputAnalyser: p.Analysers.Output,
		Log:            p.Logger,
	})
}

func ProvideFeed(logger *slog.Logger) *gateway.Feed {
	return gateway.NewFeed(logger)
}

func ProvideGatewayHandler(ctrl *voicesession.Controller, feed *gateway.Feed, analysers gateway.Analysers, logger *slog.Logger) *gateway.Handler {
	return gateway.NewHandler(ctrl, feed, analysers, logger)
}

func RegisterVoiceRoutes(e *echo.Echo, h *gateway.Handler, m *metrics.Metrics) {
	h.RegisterRoutes(e.Group("/api/v1"))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.GET("/swagger/*", echoSwagger.EchoWrapHandlerV3())
}

// ManageSession releases audio devices on shutdown and optionally connects
// as soon as the server is up.
func ManageSession(lc fx.Lifecycle, cfg *Config, ctrl *voicesession.Controller, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.AutoConnect {
				return nil
			}
			go func() {
				if err := ctrl.Connect(context.Background()); err != nil {
					logger.Error("auto connect failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctrl.Shutdown()
			return nil
		},
	})
}

var VoiceModule = fx.Options(
	fx.Provide(
		ProvideMetrics,
		ProvideDeviceBackend,
		ProvideDialer,
		ProvideAnalysers,
		ProvideController,
		ProvideFeed,
		ProvideGatewayHandler,
	),
	fx.Invoke(RegisterVoiceRoutes, ManageSession),
)
