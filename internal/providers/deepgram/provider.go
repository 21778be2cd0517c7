package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voicecall/internal/ports"
)

const defaultBaseURL = "https://api.deepgram.com/v1"

var (
	// ErrUnauthorized means the API key was rejected during the handshake.
	ErrUnauthorized = errors.New("deepgram rejected the API key")
	// ErrMissingAPIKey means no key was configured.
	ErrMissingAPIKey = errors.New("DEEPGRAM_API_KEY is not configured")
)

// Config controls Deepgram websocket settings.
// KeepAlive is how long the socket may go without audio before a keepalive frame is sent.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	KeepAlive   time.Duration
	Dialer      *websocket.Dialer
}

// Provider implements ports.TranscriptionProvider for Deepgram live streaming.
type Provider struct {
	cfg Config
}

func NewProvider(cfg Config) *Provider {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 5 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	return &Provider{cfg: cfg}
}

// StartStreaming opens one live transcription socket. It is closed when ctx is done.
func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if p.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	target, err := listenURL(p.cfg, cfg)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := p.cfg.Dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("connect to deepgram: %w", ErrUnauthorized)
		}
		return nil, fmt.Errorf("connect to deepgram: %w", err)
	}

	return openStream(ctx, conn, p.cfg.KeepAlive), nil
}

// listenURL maps the REST base onto the streaming endpoint with the
// recognition options set as query parameters.
func listenURL(providerCfg Config, streamCfg ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	parsed, err := url.Parse(strings.TrimRight(base, "/") + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}
	switch parsed.Scheme {
	case "https", "wss":
		parsed.Scheme = "wss"
	case "http", "ws":
		parsed.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid Deepgram API base URL scheme %q", parsed.Scheme)
	}

	encoding := streamCfg.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	rate := streamCfg.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	channels := streamCfg.Channels
	if channels <= 0 {
		channels = 1
	}

	query := parsed.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", encoding)
	query.Set("sample_rate", strconv.Itoa(rate))
	query.Set("channels", strconv.Itoa(channels))
	query.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	query.Set("punctuate", "true")
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	if streamCfg.EndpointingMS > 0 {
		query.Set("endpointing", strconv.Itoa(streamCfg.EndpointingMS))
	}
	// Deepgram only honours utterance_end_ms with interim results.
	if streamCfg.UtteranceEndMS > 0 && streamCfg.InterimResults {
		query.Set("utterance_end_ms", strconv.Itoa(streamCfg.UtteranceEndMS))
		query.Set("vad_events", "true")
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
