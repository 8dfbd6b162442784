package main

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/crucible/admin"
	"github.com/hupe1980/crucible/agent/clinical"
	"github.com/hupe1980/crucible/audit"
	"github.com/hupe1980/crucible/broadcast"
	"github.com/hupe1980/crucible/config"
	"github.com/hupe1980/crucible/engine"
	"github.com/hupe1980/crucible/logging"
	"github.com/hupe1980/crucible/metrics"
	"github.com/hupe1980/crucible/model"
	anthropicmodel "github.com/hupe1980/crucible/model/anthropic"
	"github.com/hupe1980/crucible/model/gemini"
	openaimodel "github.com/hupe1980/crucible/model/openai"
	"github.com/hupe1980/crucible/session"
)

// mockResponse answers every agent prompt when the mock provider is
// selected. It approves the safety check so a run reaches the end.
const mockResponse = `{"validation_result": "approved", "summary": "Mock analysis.", "confidence": 0.9}`

// app holds the wired engine and everything that must be closed with it.
type app struct {
	Engine   *engine.Engine
	Gatherer prometheus.Gatherer
	Logger   logging.Logger

	closers []func() error
}

// Close stops the engine, then releases clients in reverse order.
func (a *app) Close() {
	a.Engine.Close()

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
}

func build(ctx context.Context, cfg config.Config, out broadcast.Broadcaster) (*app, error) {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{Logger: logger}

	llm, err := newModel(cfg.Model, logger)
	if err != nil {
		return nil, err
	}

	team, err := clinical.Team(llm, func(o *clinical.Options) { o.Logger = logger })
	if err != nil {
		return nil, fmt.Errorf("build team: %w", err)
	}

	clients := map[string]*redis.Client{}
	redisClient := func(addr string) (*redis.Client, error) {
		if c, ok := clients[addr]; ok {
			return c, nil
		}

		c := redis.NewClient(&redis.Options{Addr: addr})
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("connect redis %s: %w", addr, err)
		}

		clients[addr] = c
		a.closers = append(a.closers, c.Close)

		return c, nil
	}

	var sinks []audit.Sink
	if cfg.Audit.Dir != "" {
		fs, err := audit.NewFileSink(cfg.Audit.Dir)
		if err != nil {
			a.close()
			return nil, err
		}
		sinks = append(sinks, fs)
	}
	if cfg.Audit.RedisAddr != "" {
		c, err := redisClient(cfg.Audit.RedisAddr)
		if err != nil {
			a.close()
			return nil, err
		}
		sinks = append(sinks, audit.NewRedisSink(c, func(o *audit.RedisSinkOptions) {
			o.StreamPrefix = cfg.Audit.StreamPrefix
		}))
	}

	var archive session.Archiver
	if cfg.Archive.RedisAddr != "" {
		c, err := redisClient(cfg.Archive.RedisAddr)
		if err != nil {
			a.close()
			return nil, err
		}
		archive = session.NewRedisArchive(c, func(o *session.RedisArchiveOptions) {
			o.TTL = cfg.Archive.TTL
			o.Logger = logger
		})
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		if m, err = metrics.New(reg); err != nil {
			a.close()
			return nil, err
		}
		a.Gatherer = reg
	}

	callbacks := engine.NewCallbackManager()
	for _, cb := range engine.LoggingCallbacks(logging.With(logger, "component", "lifecycle")) {
		callbacks.RegisterCallback(cb)
	}

	a.Engine = engine.New(team, func(o *engine.Options) {
		o.Config = engine.Config{
			MaxConcurrentExecutions: cfg.Engine.MaxConcurrentExecutions,
			ConsultOnPause:          cfg.Engine.ConsultOnPause,
		}
		o.Topics = clinical.Topics()
		o.Admin = func(ao *admin.Options) {
			ao.Window = cfg.Admin.Window
			ao.MaxEvents = cfg.Admin.MaxEvents
			ao.RequiredKeys = cfg.Admin.RequiredKeys
			ao.TerminalTopic = cfg.Admin.TerminalTopic
		}
		o.Archive = archive
		o.Broadcaster = broadcast.Multi(out, broadcast.Log(logger))
		o.Audit = audit.New(audit.Tee(sinks...), func(ao *audit.Options) { ao.Logger = logger })
		o.Metrics = m
		o.Callbacks = callbacks
		o.Logger = logger
	})

	return a, nil
}

// close releases clients when wiring fails before the engine exists.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func newLogger(cfg config.LogConfig) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    os.Stderr,
		Component: "crucible",
	}), nil
}

func newModel(cfg config.ModelConfig, logger logging.Logger) (model.Model, error) {
	var m model.Model

	switch cfg.Provider {
	case config.ProviderGemini:
		g, err := gemini.NewModel(func(o *gemini.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
		})
		if err != nil {
			return nil, err
		}
		m = g
	case config.ProviderAnthropic:
		m = anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Name != "" {
				o.Model = anthropic.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
		})
	case config.ProviderOpenAI:
		m = openaimodel.NewModel(func(o *openaimodel.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		})
	case config.ProviderMock:
		m = model.NewMock().SetDefault(mockResponse)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}

	if cfg.Timeout > 0 {
		m = model.WithTimeout(m, cfg.Timeout)
	}
	if cfg.MaxCalls > 0 {
		m = model.Limited(m, model.NewLimiter(cfg.MaxCalls))
	}

	return model.WithLogging(m, cfg.Provider, logger), nil
}
