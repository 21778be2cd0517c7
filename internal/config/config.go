package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config stores runtime configuration for the voice call client.
type Config struct {
	Backend  BackendConfig  `envPrefix:"VOICECALL_BACKEND_"`
	Deepgram DeepgramConfig `envPrefix:"DEEPGRAM_"`
	Audio    AudioConfig    `envPrefix:"VOICECALL_AUDIO_"`
	Speech   SpeechConfig   `envPrefix:"VOICECALL_SPEECH_"`
	Session  SessionConfig  `envPrefix:"VOICECALL_SESSION_"`
	Client   ClientConfig   `envPrefix:"VOICECALL_CLIENT_"`
	Log      LogConfig      `envPrefix:"VOICECALL_LOG_"`
	Metrics  MetricsConfig  `envPrefix:"VOICECALL_METRICS_"`
}

type BackendConfig struct {
	BaseURL       string        `env:"URL" envDefault:"http://localhost:5000"`
	SessionCookie string        `env:"SESSION_COOKIE"`
	CookieName    string        `env:"COOKIE_NAME" envDefault:"session"`
	ProxyAddr     string        `env:"SOCKS_PROXY"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"30s"`
	ChannelPath   string        `env:"CHANNEL_PATH" envDefault:"/ws/chat"`
}

type DeepgramConfig struct {
	APIKey         string `env:"API_KEY"`
	APIBaseURL     string `env:"API_BASE" envDefault:"https://api.deepgram.com/v1"`
	Model          string `env:"MODEL" envDefault:"nova-2"`
	Language       string `env:"LANGUAGE" envDefault:"en-US"`
	SmartFormat    bool   `env:"SMART_FORMAT" envDefault:"true"`
	EndpointingMS  int    `env:"ENDPOINTING_MS" envDefault:"300"`
	UtteranceEndMS int    `env:"UTTERANCE_END_MS" envDefault:"1000"`
}

type AudioConfig struct {
	RecorderCommand string `env:"FFMPEG_COMMAND" envDefault:"ffmpeg"`
	InputFormat     string `env:"INPUT_FORMAT" envDefault:"pulse"`
	InputDevice     string `env:"INPUT_DEVICE" envDefault:"default"`
	SampleRate      int    `env:"SAMPLE_RATE" envDefault:"16000"`
	Channels        int    `env:"CHANNELS" envDefault:"1"`
	ChunkSize       int    `env:"CHUNK_SIZE" envDefault:"4096"`
	DeviceDir       string `env:"DEVICE_DIR" envDefault:"/dev/snd"`
}

type SpeechConfig struct {
	Voice         string `env:"VOICE" envDefault:"en_US-amy-medium"`
	Provider      string `env:"PROVIDER" envDefault:"piper"`
	SynthCommand  string `env:"SYNTH_COMMAND" envDefault:"espeak-ng"`
	SynthLanguage string `env:"SYNTH_LANGUAGE" envDefault:"en"`
	LexiconPath   string `env:"LEXICON_FILE"`
	LexiconLimit  int    `env:"LEXICON_ITERATION_LIMIT" envDefault:"30"`
}

type SessionConfig struct {
	SettleDelay           time.Duration `env:"SETTLE_DELAY" envDefault:"1s"`
	RestartPause          time.Duration `env:"RESTART_PAUSE" envDefault:"1s"`
	RecognitionRetryDelay time.Duration `env:"RECOGNITION_RETRY_DELAY" envDefault:"2s"`
	ReplyCooldown         time.Duration `env:"REPLY_COOLDOWN" envDefault:"3s"`
	MaxRecognitionRetries int           `env:"MAX_RECOGNITION_RETRIES" envDefault:"5"`
	MaxReplyFailures      int           `env:"MAX_REPLY_FAILURES" envDefault:"3"`
	PermissionGrace       time.Duration `env:"PERMISSION_GRACE" envDefault:"1s"`
	UtteranceTimeout      time.Duration `env:"UTTERANCE_TIMEOUT" envDefault:"30s"`
}

type ClientConfig struct {
	UserAgent string `env:"USER_AGENT"`
}

type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

type MetricsConfig struct {
	Addr string `env:"ADDR"`
}

// Load resolves configuration from environment variables and defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	normalize(&cfg)
	return cfg, nil
}

// LoadFile loads an optional dotenv file before resolving the environment.
// Variables already present in the environment take precedence over the file.
func LoadFile(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %q: %w", path, err)
		}
	}
	return Load()
}

func normalize(cfg *Config) {
	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://localhost:5000"
	}
	if cfg.Backend.CookieName == "" {
		cfg.Backend.CookieName = "session"
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = 30 * time.Second
	}
	if !strings.HasPrefix(cfg.Backend.ChannelPath, "/") {
		cfg.Backend.ChannelPath = "/" + cfg.Backend.ChannelPath
	}
	cfg.Deepgram.APIKey = strings.TrimSpace(cfg.Deepgram.APIKey)

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSize < 256 {
		cfg.Audio.ChunkSize = 4096
	}
	if cfg.Audio.InputDevice == "" {
		cfg.Audio.InputDevice = "default"
	}

	if cfg.Speech.LexiconLimit <= 0 {
		cfg.Speech.LexiconLimit = 30
	}

	if cfg.Session.MaxRecognitionRetries <= 0 {
		cfg.Session.MaxRecognitionRetries = 5
	}
	if cfg.Session.MaxReplyFailures <= 0 {
		cfg.Session.MaxReplyFailures = 3
	}
	nonNegative(&cfg.Session.SettleDelay)
	nonNegative(&cfg.Session.RestartPause)
	nonNegative(&cfg.Session.RecognitionRetryDelay)
	nonNegative(&cfg.Session.ReplyCooldown)
	nonNegative(&cfg.Session.PermissionGrace)
	if cfg.Session.UtteranceTimeout <= 0 {
		cfg.Session.UtteranceTimeout = 30 * time.Second
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func nonNegative(d *time.Duration) {
	if *d < 0 {
		*d = 0
	}
}
