package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/harunnryd/sage/pkg/agent"
	"github.com/harunnryd/sage/pkg/llm"
	"github.com/harunnryd/sage/pkg/logging"
	"github.com/harunnryd/sage/pkg/metrics"
	"github.com/harunnryd/sage/pkg/observers"
	"github.com/harunnryd/sage/pkg/redact"
	"github.com/harunnryd/sage/pkg/resilience"
	"github.com/harunnryd/sage/pkg/runner"
	"github.com/harunnryd/sage/pkg/tools"
	"github.com/harunnryd/sage/pkg/transports"
)

// Engine wires config, provider, tools, observers, and transport into a
// running assistant. It is also the transports.Handler the transport calls
// back into.
type Engine struct {
	cfg          Config
	registry     *tools.Registry
	orchestrator *agent.Orchestrator
	transport    transports.Transport
	providers    *ProviderRegistry
	runner       runner.Runner
	asyncObs     *metrics.AsyncObserver
	timelineObs  *observers.TimelineObserver
	usageObs     *observers.UsageObserver
	ctx          context.Context
	cancel       context.CancelFunc
}

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	Transport transports.Transport
	Tools     *tools.Registry
	// Extra observers appended after the built-in set.
	Observers []metrics.Observer
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	log := logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	slog.SetDefault(log)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	slog.Info("sage_init",
		"environment", cfg.Environment,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"transport", cfg.Transports.Provider,
	)

	latencyObs := observers.NewLatencyObserver(log)
	var logObs metrics.Observer = observers.NewLoggerObserver(log)
	if rate := cfg.Observability.SampleRate; rate > 0 && rate < 1 {
		logObs = metrics.NewSamplingObserver(logObs, rate)
	}
	var timelineObs *observers.TimelineObserver
	var usageObs *observers.UsageObserver
	var metricsFile *os.File
	obsList := []metrics.Observer{latencyObs, logObs}
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		if cfg.Observability.RetentionDays > 0 {
			_, _ = observers.PurgeArtifacts(dir, time.Duration(cfg.Observability.RetentionDays)*24*time.Hour)
		}
		timelineObs = observers.NewTimelineObserver(dir)
		usageObs = observers.NewUsageObserver(dir)
		obsList = append(obsList, timelineObs, usageObs)
	}
	if path := strings.TrimSpace(cfg.Observability.MetricsFile); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open metrics file: %w", err)
		}
		metricsFile = f
		obsList = append(obsList, metrics.NewJSONLObserver(f))
	}
	obsList = append(obsList, opts.Observers...)
	asyncObs := metrics.NewAsyncObserver(observers.NewMultiObserver(obsList...), 2048)

	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviders()
	}

	adapter, err := providers.BuildLLM(cfg.Vendors.LLM.Provider, cfg)
	if err != nil {
		return nil, err
	}
	breaker := resilience.NewCircuitBreaker(cfg.Breaker.Threshold, time.Duration(cfg.Breaker.CooldownMS)*time.Millisecond)
	guarded := llm.NewCircuitBreakerAdapter(adapter, breaker)
	guarded.SetObserver(asyncObs)

	registry := opts.Tools
	if registry == nil {
		registry, err = buildToolRegistry(cfg)
		if err != nil {
			return nil, err
		}
	}

	dispatcher := agent.NewDispatcher(registry, agent.DispatchOptions{
		Concurrency:  cfg.Tools.Concurrency,
		Timeout:      time.Duration(cfg.Tools.TimeoutMS) * time.Millisecond,
		Retries:      cfg.Tools.Retries,
		RetryBackoff: time.Duration(cfg.Tools.RetryBackoffMS) * time.Millisecond,
	})
	orchestrator := agent.NewOrchestrator(guarded, registry, dispatcher, agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		Params: llm.Params{
			Model:           cfg.Agent.Model,
			Temperature:     cfg.Agent.Temperature,
			MaxOutputTokens: cfg.Agent.MaxOutputTokens,
		},
		Retry: llm.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
			Jitter:      cfg.Retry.Jitter,
		},
		Plan:         cfg.Agent.Plan,
		SystemPrompt: cfg.Agent.SystemPrompt,
		MaxHistory:   cfg.Context.MaxHistory,
	})
	orchestrator.SetLogger(logging.NewComponentLogger(log, "agent"))
	orchestrator.SetObserver(asyncObs)

	transport := opts.Transport
	if transport == nil {
		transport, err = providers.BuildTransport(cfg.Transports.Provider, cfg)
		if err != nil {
			return nil, err
		}
	}

	e := &Engine{
		cfg:          cfg,
		registry:     registry,
		orchestrator: orchestrator,
		transport:    transport,
		providers:    providers,
		asyncObs:     asyncObs,
		timelineObs:  timelineObs,
		usageObs:     usageObs,
	}
	transport.SetHandler(e)

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{"message", "Sage Engine Ready", "tools", registry.Len()}
			if rr, ok := transport.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			slog.Info("engine_ready", fields...)
		},
		OnStop: func() {
			asyncObs.Close()
			if timelineObs != nil {
				_ = timelineObs.Close()
			}
			if usageObs != nil {
				_ = usageObs.Close()
			}
			if metricsFile != nil {
				_ = metricsFile.Close()
			}
			slog.Info("shutdown", "goroutines", runtime.NumGoroutine())
		},
	}
	drainer := drainerFunc(func() error {
		return transport.Stop()
	})
	e.runner = runner.NewLifecycleRunner(drainer, hooks, 30*time.Second)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

func buildToolRegistry(cfg Config) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	calc := tools.NewCalculator()
	if err := registry.Register(calc.Spec(), calc.Handle); err != nil {
		return nil, err
	}
	date := tools.NewCurrentDate()
	if err := registry.Register(date.Spec(), date.Handle); err != nil {
		return nil, err
	}
	if cfg.Tools.WebSearch.Enabled {
		if strings.TrimSpace(cfg.Tools.WebSearch.APIKey) == "" {
			return nil, fmt.Errorf("tools.web_search.api_key is required when web search is enabled")
		}
		search := tools.NewWebSearch(cfg.Tools.WebSearch.APIKey)
		if cfg.Tools.WebSearch.Depth != "" {
			search.Depth = cfg.Tools.WebSearch.Depth
		}
		if cfg.Tools.WebSearch.MaxResults > 0 {
			search.MaxResults = cfg.Tools.WebSearch.MaxResults
		}
		if err := registry.Register(search.Spec(), search.Handle); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

type drainerFunc func() error

func (f drainerFunc) Drain() error { return f() }

func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.transport.Start(ctx); err != nil {
		return err
	}
	go func() {
		_ = e.runner.Run(ctx)
	}()
	return nil
}

func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	return e.runner.Stop()
}

// Invoke implements transports.Handler.
func (e *Engine) Invoke(ctx context.Context, req transports.Request) (*agent.Result, error) {
	return e.orchestrator.Run(ctx, req.History, req.Input)
}

// Stream implements transports.Handler.
func (e *Engine) Stream(ctx context.Context, req transports.Request) <-chan agent.StreamEvent {
	return e.orchestrator.RunStream(ctx, req.History, req.Input)
}

// Health implements transports.Handler.
func (e *Engine) Health() error {
	if e.orchestrator == nil {
		return fmt.Errorf("orchestrator not configured")
	}
	if e.registry == nil || e.registry.Len() == 0 {
		return fmt.Errorf("no tools registered")
	}
	return nil
}

func (e *Engine) Orchestrator() *agent.Orchestrator { return e.orchestrator }

func (e *Engine) Transport() transports.Transport { return e.transport }

func (e *Engine) Tools() *tools.Registry { return e.registry }

func (e *Engine) Config() Config { return e.cfg }

var _ transports.Handler = (*Engine)(nil)
