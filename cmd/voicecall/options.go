package main

import (
	"github.com/spf13/pflag"

	"voicecall/internal/bootstrap"
	"voicecall/internal/config"
	"voicecall/internal/logging"
)

type options struct {
	envFile     string
	logLevel    string
	metricsAddr string
}

func (o *options) bind(flags *pflag.FlagSet) {
	flags.StringVar(&o.envFile, "env", ".env", "dotenv file loaded before the environment")
	flags.StringVar(&o.logLevel, "log", "", "log level (debug, info, warn, error)")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

func (o *options) config() (config.Config, error) {
	cfg, err := config.LoadFile(o.envFile)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Addr = o.metricsAddr
	}
	logging.Setup(cfg.Log.Level)
	return cfg, nil
}

func (o *options) services(sink *consoleSink) (bootstrap.Services, error) {
	cfg, err := o.config()
	if err != nil {
		return bootstrap.Services{}, err
	}
	return bootstrap.Build(cfg, sink)
}
