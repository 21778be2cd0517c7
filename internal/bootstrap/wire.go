package bootstrap

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"voicecall/internal/audio"
	"voicecall/internal/backend"
	"voicecall/internal/channel"
	"voicecall/internal/config"
	"voicecall/internal/eligibility"
	"voicecall/internal/metrics"
	"voicecall/internal/permission"
	"voicecall/internal/ports"
	"voicecall/internal/pronounce"
	"voicecall/internal/providers/deepgram"
	"voicecall/internal/speech"
	"voicecall/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config      config.Config
	Controller  *usecase.Controller
	Permissions *permission.Negotiator
	Platform    *permission.CapturePlatform
	Gate        *eligibility.Gate
	Backend     *backend.Client
	Output      *speech.Output
	Player      *audio.Player
	Channel     *channel.Client
	Metrics     *metrics.CallMetrics
}

// Build wires all dependencies for cfg. eventSink receives every UI event.
func Build(cfg config.Config, eventSink ports.EventSink) (Services, error) {
	api, err := backend.New(backend.Config{
		BaseURL:       cfg.Backend.BaseURL,
		SessionCookie: cfg.Backend.SessionCookie,
		CookieName:    cfg.Backend.CookieName,
		ProxyAddr:     cfg.Backend.ProxyAddr,
		Timeout:       cfg.Backend.Timeout,
		TTSProvider:   cfg.Speech.Provider,
	})
	if err != nil {
		return Services{}, err
	}

	lexicon, err := pronounce.Load(cfg.Speech.LexiconPath, cfg.Speech.LexiconLimit)
	if err != nil {
		return Services{}, err
	}

	chat, err := newChannel(cfg, api)
	if err != nil {
		return Services{}, err
	}

	audioCfg := ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	}

	callMetrics := metrics.New()
	capture := audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand)
	player := audio.NewPlayer()
	gate := eligibility.NewGate(api)

	platform := permission.NewCapturePlatform(capture, audioCfg, cfg.Audio.DeviceDir)
	negotiator := permission.NewNegotiator(platform, player, eventSink, permission.Options{
		Grace:     cfg.Session.PermissionGrace,
		UserAgent: cfg.Client.UserAgent,
	})

	input := speech.NewInput(
		capture,
		deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
		}),
		speech.InputConfig{
			Audio: audioCfg,
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
				EndpointingMS:  cfg.Deepgram.EndpointingMS,
				UtteranceEndMS: cfg.Deepgram.UtteranceEndMS,
			},
			ChunkSize:        cfg.Audio.ChunkSize,
			UtteranceTimeout: cfg.Session.UtteranceTimeout,
		},
	)

	output := speech.NewOutput(speech.OutputDeps{
		Assets:      api,
		Synthesizer: api,
		Player:      player,
		Platform:    audio.NewESpeakSpeaker(cfg.Speech.SynthCommand, cfg.Speech.SynthLanguage),
		Voice:       cfg.Speech.Voice,
		Pronouncer:  lexicon,
		Recorder:    callMetrics,
	})

	controller := usecase.NewController(usecase.Deps{
		Gate:        gate,
		Permissions: negotiator,
		Input:       input,
		Replies:     api,
		Output:      output,
		Events:      eventSink,
		Metrics:     callMetrics,
	}, usecase.Config{
		SettleDelay:           cfg.Session.SettleDelay,
		RestartPause:          cfg.Session.RestartPause,
		RecognitionRetryDelay: cfg.Session.RecognitionRetryDelay,
		ReplyCooldown:         cfg.Session.ReplyCooldown,
		MaxRecognitionRetries: cfg.Session.MaxRecognitionRetries,
		MaxReplyFailures:      cfg.Session.MaxReplyFailures,
	})

	return Services{
		Config:      cfg,
		Controller:  controller,
		Permissions: negotiator,
		Platform:    platform,
		Gate:        gate,
		Backend:     api,
		Output:      output,
		Player:      player,
		Channel:     chat,
		Metrics:     callMetrics,
	}, nil
}

// newChannel points the chat channel at the backend, sharing its session
// cookie and proxy.
func newChannel(cfg config.Config, api *backend.Client) (*channel.Client, error) {
	target, err := channel.ChannelURL(api.BaseURL(), cfg.Backend.ChannelPath)
	if err != nil {
		return nil, fmt.Errorf("chat channel: %w", err)
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	if cfg.Backend.ProxyAddr != "" {
		dial, err := backend.NewSocksDialer(cfg.Backend.ProxyAddr)
		if err != nil {
			return nil, err
		}
		dialer.Proxy = nil
		dialer.NetDialContext = dial
	}

	return channel.New(channel.Config{
		URL:    target,
		Header: api.Header(),
		Dialer: dialer,
	}), nil
}
