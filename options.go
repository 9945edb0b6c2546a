package hanashi

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port      int
	logger    *slog.Logger
	version   string
	source    EntitySource
	caller    ServiceCaller
	primary   Agent
	fallback  Agent
	turnHooks []TurnHook
}

// WithPort overrides the TCP port from config (HANASHI_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEntitySource replaces the Home Assistant REST entity source.
func WithEntitySource(s EntitySource) Option {
	return func(o *resolvedOptions) { o.source = s }
}

// WithServiceCaller replaces the Home Assistant REST service caller.
func WithServiceCaller(c ServiceCaller) Option {
	return func(o *resolvedOptions) { o.caller = c }
}

// WithPrimaryAgent replaces the config-selected primary conversation agent.
func WithPrimaryAgent(a Agent) Option {
	return func(o *resolvedOptions) { o.primary = a }
}

// WithFallbackAgent replaces the config-selected fallback conversation agent.
func WithFallbackAgent(a Agent) Option {
	return func(o *resolvedOptions) { o.fallback = a }
}

// WithTurnHook registers a hook to receive every finalized routing decision.
// Multiple hooks may be registered; all registered hooks receive every decision.
func WithTurnHook(h TurnHook) Option {
	return func(o *resolvedOptions) { o.turnHooks = append(o.turnHooks, h) }
}
