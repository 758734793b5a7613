// Package agentgraph provides a high-level façade over the workflow engine
// and its services (model gateway, tool registry, conversation store,
// metrics & logging). Most applications interact with this package by:
//  1. Loading a config.Config (or using config.DefaultConfig)
//  2. Creating an AgentGraph via New(), optionally overriding the model,
//     gateway, store or tools
//  3. Starting runs asynchronously (StartRun) or synchronously (Run,
//     RunCollect)
//
// With llm.provider "none" the supervisor and research specialist are
// driven by deterministic keyword routing, which is useful for local
// development and tests.
package agentgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/config"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/engine"
	"github.com/hupe1980/agentgraph/gateway"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/metrics"
	"github.com/hupe1980/agentgraph/model"
	anthropicmodel "github.com/hupe1980/agentgraph/model/anthropic"
	openaimodel "github.com/hupe1980/agentgraph/model/openai"
	"github.com/hupe1980/agentgraph/session"
	redisstore "github.com/hupe1980/agentgraph/session/redis"
	"github.com/hupe1980/agentgraph/stream"
	"github.com/hupe1980/agentgraph/tool"
	"github.com/hupe1980/agentgraph/tool/builtin"
)

// Options overrides the services New derives from the configuration.
type Options struct {
	// Model replaces the provider selected by llm.provider.
	Model model.Model
	// Gateway replaces the model gateway entirely (retry and rate limiting
	// are not applied).
	Gateway gateway.Gateway
	// Store replaces the store selected by store.driver.
	Store core.ConversationStore
	// Tools replaces the builtin tool registry.
	Tools *tool.Registry
	// Registerer receives the engine metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// Observers are notified of every engine event.
	Observers []engine.Observer
	// TracerProvider supplies the engine tracer. Nil disables tracing.
	TracerProvider trace.TracerProvider
	// Logger defaults to a slog logger built from log.level and log.format.
	Logger logging.Logger
}

// AgentGraph is the high-level façade aggregating the engine and its services.
type AgentGraph struct {
	cfg    *config.Config
	engine *engine.Engine
	store  core.ConversationStore
	tools  *tool.Registry
	logger logging.Logger
	close  func() error
}

// New wires an AgentGraph from cfg. A nil cfg uses config.DefaultConfig.
func New(cfg *config.Config, optFns ...func(o *Options)) (*AgentGraph, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(&logging.LoggerConfig{
			Level:     logging.ParseLevel(cfg.Log.Level),
			Format:    cfg.Log.Format,
			Component: cfg.AppName,
		})
	}

	tools := opts.Tools
	if tools == nil {
		tools = tool.NewRegistry(func(o *tool.RegistryOptions) { o.Logger = opts.Logger })
		if err := builtin.Register(tools, builtin.Options{
			WorkspaceDir:   cfg.Tools.WorkspaceDir,
			SearchEndpoint: cfg.Tools.SearchEndpoint,
			TavilyAPIKey:   cfg.Tools.TavilyAPIKey,
		}); err != nil {
			return nil, fmt.Errorf("register builtin tools: %w", err)
		}
	}

	gw := opts.Gateway
	if gw == nil {
		var err error
		if gw, err = newGateway(cfg, opts.Model, tools, opts.Logger); err != nil {
			return nil, err
		}
	}

	store, closeStore := opts.Store, func() error { return nil }
	if store == nil {
		var err error
		if store, closeStore, err = newStore(cfg); err != nil {
			return nil, err
		}
	}

	observers := append([]engine.Observer{engine.NewLoggingObserver(opts.Logger)}, opts.Observers...)
	if opts.Registerer != nil {
		m, err := metrics.New(opts.Registerer, "agentgraph")
		if err != nil {
			_ = closeStore()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		observers = append(observers, m)
	}

	eng := engine.New(store, tools, agent.NewSupervisor(gw), func(o *engine.Options) {
		o.Specialists = []agent.Node{agent.NewResearch(gw)}
		o.MaxSteps = cfg.Engine.MaxSteps
		o.ToolConcurrency = cfg.Engine.ToolConcurrency
		o.ToolTimeout = cfg.Engine.ToolTimeout
		o.RunTimeout = cfg.Engine.RunTimeout
		o.MaxConcurrentRuns = cfg.Engine.MaxConcurrentRuns
		o.Observers = observers
		o.Logger = opts.Logger
		if opts.TracerProvider != nil {
			o.Tracer = opts.TracerProvider.Tracer(engine.TracerName)
		}
	})

	return &AgentGraph{
		cfg:    cfg,
		engine: eng,
		store:  store,
		tools:  tools,
		logger: opts.Logger,
		close:  closeStore,
	}, nil
}

// newGateway builds the decision gateway for cfg.LLM. An explicit model
// takes precedence over the configured provider.
func newGateway(cfg *config.Config, m model.Model, tools *tool.Registry, logger logging.Logger) (gateway.Gateway, error) {
	if m == nil {
		switch cfg.LLM.Provider {
		case "openai":
			m = openaimodel.NewModel(func(o *openaimodel.Options) {
				if cfg.LLM.Model != "" {
					o.Model = cfg.LLM.Model
				}
				o.APIKey = cfg.LLM.APIKey
				o.BaseURL = cfg.LLM.BaseURL
			})
		case "anthropic":
			m = anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
				if cfg.LLM.Model != "" {
					o.Model = anthropic.Model(cfg.LLM.Model)
				}
				o.APIKey = cfg.LLM.APIKey
				o.BaseURL = cfg.LLM.BaseURL
			})
		case "none":
			return &gateway.Router{
				Default: gateway.NewKeywordRouter(agent.ResearchName),
				Nodes: map[string]gateway.Gateway{
					agent.ResearchName: &gateway.SearchPlanner{Tool: builtin.WebSearchName},
				},
			}, nil
		default:
			return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
		}
	}

	var gw gateway.Gateway = gateway.NewModelGateway(m, tools, func(o *gateway.ModelGatewayOptions) {
		o.Timeout = cfg.Engine.DecisionTimeout
		o.Logger = logger
	})
	gw = gateway.WithRetry(gw, func(o *gateway.RetryOptions) {
		o.MaxAttempts = cfg.Engine.DecisionAttempts
		o.Backoff = cfg.Engine.RetryBackoff
		o.Logger = logger
	})
	return gateway.WithRateLimit(gw, cfg.LLM.RatePerSecond, 1), nil
}

func newStore(cfg *config.Config) (core.ConversationStore, func() error, error) {
	switch cfg.Store.Driver {
	case "memory":
		return session.NewInMemoryStore(), func() error { return nil }, nil
	case "redis":
		s := redisstore.New(cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB, func(o *redisstore.Options) {
			o.TTL = cfg.Store.TTL
			if cfg.Store.LockTTL > 0 {
				o.LockTTL = cfg.Store.LockTTL
			}
		})
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// Config returns the effective configuration.
func (g *AgentGraph) Config() *config.Config { return g.cfg }

// Engine exposes the underlying workflow engine.
func (g *AgentGraph) Engine() *engine.Engine { return g.engine }

// Tools exposes the tool registry.
func (g *AgentGraph) Tools() *tool.Registry { return g.tools }

// Store exposes the conversation store.
func (g *AgentGraph) Store() core.ConversationStore { return g.store }

// Logger returns the logger shared by all components.
func (g *AgentGraph) Logger() logging.Logger { return g.logger }

// StartRun starts an asynchronous run. See engine.Engine.StartRun.
func (g *AgentGraph) StartRun(ctx context.Context, conversationID, message string, streaming bool) (*stream.RunHandle, error) {
	return g.engine.StartRun(ctx, conversationID, message, streaming)
}

// Run executes a run to completion.
func (g *AgentGraph) Run(ctx context.Context, conversationID, message string) (core.RunResult, error) {
	return g.engine.Run(ctx, conversationID, message)
}

// RunCollect is a synchronous helper that drains the run's event stream and
// returns the collected events alongside the result.
func (g *AgentGraph) RunCollect(ctx context.Context, conversationID, message string) (core.RunResult, []core.Event, error) {
	h, err := g.engine.StartRun(ctx, conversationID, message, true)
	if err != nil {
		return core.RunResult{}, nil, err
	}

	var events []core.Event
	for ev := range h.Events(ctx) {
		events = append(events, ev)
	}

	res, err := h.Wait(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		h.Cancel()
	}
	return res, events, err
}

// Close releases the store connection.
func (g *AgentGraph) Close() error {
	return g.close()
}
