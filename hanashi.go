// Package hanashi is the public API for embedding the Hanashi voice-command
// router.
//
// Host applications import this package to construct and extend the router
// without forking it:
//
//	app, err := hanashi.New(
//	    hanashi.WithVersion(version),
//	    hanashi.WithLogger(logger),
//	    hanashi.WithEntitySource(mySource),
//	    hanashi.WithTurnHook(myHook),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: hanashi (root) imports
// internal/*, but internal/* never imports hanashi (root). Public types
// (Entity, Turn, RoutingDecision) are standalone structs with no internal
// imports; conversion helpers live here because this is the only file that
// sees both sides of the boundary.
package hanashi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hanashi-ai/hanashi/internal/agents"
	"github.com/hanashi-ai/hanashi/internal/catalog"
	"github.com/hanashi-ai/hanashi/internal/config"
	"github.com/hanashi-ai/hanashi/internal/dispatch"
	"github.com/hanashi-ai/hanashi/internal/hass"
	"github.com/hanashi-ai/hanashi/internal/history"
	"github.com/hanashi-ai/hanashi/internal/intent"
	"github.com/hanashi-ai/hanashi/internal/mcp"
	"github.com/hanashi-ai/hanashi/internal/model"
	"github.com/hanashi-ai/hanashi/internal/ratelimit"
	"github.com/hanashi-ai/hanashi/internal/route"
	"github.com/hanashi-ai/hanashi/internal/server"
	"github.com/hanashi-ai/hanashi/internal/telemetry"
)

// App is the Hanashi router lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfgStore     *config.Store
	catalog      *catalog.Catalog
	routerHolder *route.Holder
	srv          *server.Server
	hist         *history.Store // nil when history is disabled
	limiter      ratelimit.Limiter
	svcCaller    dispatch.Caller
	primary      agents.Agent
	fallback     agents.Agent
	hooks        []route.Hook
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the Hanashi router. It loads configuration, wires all
// subsystems, and returns a ready-to-run App. It does NOT start any
// goroutines or accept HTTP connections; call Run() for that.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("hanashi starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Entity source and service caller: external overrides take priority over
	// the Home Assistant REST client configured from the environment.
	hassClient := hass.New(cfg.HassURL, cfg.HassToken)
	var source catalog.Source = hassClient
	if o.source != nil {
		source = &entitySourceAdapter{s: o.source}
	}
	var caller dispatch.Caller = hassClient
	if o.caller != nil {
		caller = &serviceCallerAdapter{c: o.caller}
	}

	cat := catalog.New(source, cfg.CatalogTTL, cfg.ParseAllowedDomains(), logger)

	// Turn history (optional).
	var hist *history.Store
	if cfg.HistoryPath != "" {
		hist, err = history.Open(cfg.HistoryPath, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("history: %w", err)
		}
		logger.Info("turn history enabled", "path", cfg.HistoryPath)
	} else {
		logger.Info("turn history disabled")
	}

	// Conversation agents: options override the config-selected kinds.
	primary := resolveAgent(o.primary, cfg.PrimaryAgent, cfg.PrimaryAgentURL, cfg.PrimaryAgentToken, cfg, logger)
	fallback := resolveAgent(o.fallback, cfg.FallbackAgent, cfg.FallbackAgentURL, cfg.FallbackAgentToken, cfg, logger)

	// Decision hooks: history first, then registered turn hooks.
	var hooks []route.Hook
	if hist != nil {
		hooks = append(hooks, hist)
	}
	for _, h := range o.turnHooks {
		hooks = append(hooks, &turnHookAdapter{hook: h, logger: logger})
	}

	router, err := buildRouter(cfg, cat, caller, primary, fallback, hooks, logger)
	if err != nil {
		if hist != nil {
			_ = hist.Close()
		}
		_ = otelShutdown(context.Background())
		return nil, err
	}
	holder := route.NewHolder(router)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	mcpSrv := mcp.New(holder, cat, hist, logger)

	srv := server.New(server.ServerConfig{
		Router:              holder,
		Catalog:             cat,
		Logger:              logger,
		History:             hist,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		APIKeyHash:          cfg.APIKeyHash,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	return &App{
		cfgStore:     config.NewStore(cfg),
		catalog:      cat,
		routerHolder: holder,
		srv:          srv,
		hist:         hist,
		limiter:      limiter,
		svcCaller:    caller,
		primary:      primary,
		fallback:     fallback,
		hooks:        hooks,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// buildRouter assembles the routing chain from one config generation.
func buildRouter(cfg config.Config, cat *catalog.Catalog, caller dispatch.Caller,
	primary, fallback agents.Agent, hooks []route.Hook, logger *slog.Logger) (*route.Router, error) {

	rawPairs, err := cfg.ParseConfusionPairs()
	if err != nil {
		return nil, err
	}
	var pairs []intent.ConfusionPair
	for _, p := range rawPairs {
		pairs = append(pairs, intent.ConfusionPair{From: p[0], To: p[1]})
	}

	return route.New(route.Config{
		Catalog:    cat,
		Extractor:  intent.New(pairs),
		Dispatcher: dispatch.New(caller, cfg.ConfidenceThreshold, cfg.TieMargin, logger),
		Primary:    primary,
		Fallback:   fallback,
		Debug:      model.ParseDebugLevel(cfg.DebugLevel),
		Logger:     logger,
		Hooks:      hooks,
	}), nil
}

// resolveAgent picks the agent for one chain slot: an option override wins,
// otherwise the configured kind is constructed.
func resolveAgent(override Agent, kind, url, token string, cfg config.Config, logger *slog.Logger) agents.Agent {
	if override != nil {
		return &agentAdapter{a: override}
	}
	switch kind {
	case "http":
		if url == "" {
			logger.Warn("http agent has no URL configured, using noop", "kind", kind)
			return agents.Noop{}
		}
		return agents.NewHTTPAgent("http:"+url, url, token)
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			logger.Warn("gemini agent has no GEMINI_API_KEY, using noop")
			return agents.Noop{}
		}
		agent, err := agents.NewGeminiAgent(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("gemini agent init failed, using noop", "error", err)
			return agents.Noop{}
		}
		return agent
	default:
		return agents.Noop{}
	}
}

// ProcessTurn routes one utterance and returns the finalized decision.
// Zero Turn.ID and Turn.ConversationID fields are assigned fresh UUIDs.
func (a *App) ProcessTurn(ctx context.Context, turn Turn) (RoutingDecision, error) {
	if err := model.ValidateTurnText(turn.Text); err != nil {
		return RoutingDecision{}, err
	}
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.ConversationID == uuid.Nil {
		turn.ConversationID = uuid.New()
	}

	decision, err := a.routerHolder.Current().Route(ctx, model.Turn{
		ID:             turn.ID,
		ConversationID: turn.ConversationID,
		Text:           turn.Text,
		Language:       turn.Language,
		ReceivedAt:     time.Now().UTC(),
	})
	return toPublicDecision(decision), err
}

// RefreshCatalog rebuilds the entity catalog from the entity source.
func (a *App) RefreshCatalog(ctx context.Context) error {
	_, err := a.catalog.Refresh(ctx)
	return err
}

// ReloadConfig re-reads the environment and swaps in a new routing chain:
// confusion pairs, confidence threshold, tie margin, and debug level take
// effect for subsequent turns. Agents, catalog TTL, and server settings keep
// their startup values.
func (a *App) ReloadConfig() error {
	cfg, err := a.cfgStore.Reload()
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	router, err := buildRouter(cfg, a.catalog, a.svcCaller, a.primary, a.fallback, a.hooks, a.logger)
	if err != nil {
		return fmt.Errorf("rebuild router: %w", err)
	}
	a.routerHolder.Swap(router)
	a.logger.Info("config reloaded",
		"threshold", cfg.ConfidenceThreshold,
		"tie_margin", cfg.TieMargin,
		"debug", cfg.DebugLevel,
	)
	return nil
}

// Run starts the catalog refresh loop and the HTTP server, then blocks until
// ctx is cancelled or a fatal server error occurs. On return, Shutdown has
// been called; callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	// Warm the catalog before accepting traffic. Non-fatal: the first turn
	// retries via Ensure.
	warmCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if _, err := a.catalog.Refresh(warmCtx); err != nil {
		a.logger.Warn("initial catalog refresh failed", "error", err)
	}
	cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.catalog.RunRefreshLoop(gctx)
		return nil
	})

	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown performs a graceful shutdown: stop accepting HTTP requests and
// drain in-flight turns, then close the history store, the rate limiter, and
// the OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("hanashi shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, a.cfgStore.Current().ShutdownHTTPTimeout)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	if a.hist != nil {
		if err := a.hist.Close(); err != nil {
			a.logger.Error("history close error", "error", err)
		}
	}
	_ = a.limiter.Close()
	_ = a.otelShutdown(context.Background())

	a.logger.Info("hanashi stopped")
	return nil
}

// ── Adapters (defined here because this file imports both sides) ───────────────

// entitySourceAdapter wraps a public EntitySource to satisfy catalog.Source.
type entitySourceAdapter struct {
	s EntitySource
}

func (a *entitySourceAdapter) ListEntities(ctx context.Context) ([]model.Entity, error) {
	entities, err := a.s.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Entity, len(entities))
	for i, e := range entities {
		out[i] = model.Entity{
			ID:      e.ID,
			Domain:  e.Domain,
			Name:    e.Name,
			Aliases: e.Aliases,
			Area:    e.Area,
		}
	}
	return out, nil
}

// serviceCallerAdapter wraps a public ServiceCaller to satisfy dispatch.Caller.
type serviceCallerAdapter struct {
	c ServiceCaller
}

func (a *serviceCallerAdapter) CallService(ctx context.Context, call model.ServiceCall) error {
	return a.c.CallService(ctx, ServiceCall{
		Domain:   call.Domain,
		Service:  call.Service,
		EntityID: call.EntityID,
		Data:     call.Data,
	})
}

// agentAdapter wraps a public Agent to satisfy agents.Agent. The junk filter
// applies to external agents the same as to built-in ones.
type agentAdapter struct {
	a Agent
}

func (ad *agentAdapter) Name() string { return ad.a.Name() }

func (ad *agentAdapter) Process(ctx context.Context, turn model.Turn) (string, error) {
	answer, err := ad.a.Process(ctx, Turn{
		ID:             turn.ID,
		ConversationID: turn.ConversationID,
		Text:           turn.Text,
		Language:       turn.Language,
	})
	if err != nil {
		return "", err
	}
	if err := agents.CheckUsable(answer); err != nil {
		return "", err
	}
	return answer, nil
}

// turnHookAdapter wraps a public TurnHook to satisfy route.Hook.
type turnHookAdapter struct {
	hook   TurnHook
	logger *slog.Logger
}

func (a *turnHookAdapter) OnDecision(ctx context.Context, decision model.RoutingDecision) {
	if err := a.hook.OnTurnRouted(ctx, toPublicDecision(decision)); err != nil {
		a.logger.Warn("turn hook failed", "turn_id", decision.TurnID, "error", err)
	}
}

// ── Type converters ────────────────────────────────────────────────────────────

// toPublicDecision converts an internal model.RoutingDecision to the public
// hanashi.RoutingDecision. Lives here because this is the only file that
// imports both sides of the boundary.
func toPublicDecision(d model.RoutingDecision) RoutingDecision {
	out := RoutingDecision{
		TurnID:         d.TurnID,
		ConversationID: d.ConversationID,
		Text:           d.Text,
		Stage:          Stage(d.Stage),
		Outcome:        Outcome(d.Outcome),
		Response:       d.Response,
		Score:          d.Score,
		Duration:       d.Duration,
		DecidedAt:      d.DecidedAt,
	}
	if d.Executed != nil {
		out.Executed = &ServiceCall{
			Domain:   d.Executed.Domain,
			Service:  d.Executed.Service,
			EntityID: d.Executed.EntityID,
			Data:     d.Executed.Data,
		}
	}
	for _, at := range d.Attempts {
		out.Attempts = append(out.Attempts, Attempt{
			Stage:   Stage(at.Stage),
			Outcome: Outcome(at.Outcome),
			Detail:  at.Detail,
		})
	}
	return out
}
