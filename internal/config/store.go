package config

import "sync/atomic"

// Store publishes the active configuration. Reload swaps the whole Config
// atomically: readers that already took a snapshot keep it for the work they
// started, and new work sees the new configuration.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a Store holding cfg.
func NewStore(cfg Config) *Store {
	s := &Store{}
	s.current.Store(&cfg)
	return s
}

// Current returns the active configuration.
func (s *Store) Current() Config {
	return *s.current.Load()
}

// Reload re-reads the environment and swaps the configuration if valid.
func (s *Store) Reload() (Config, error) {
	cfg, err := Load()
	if err != nil {
		return Config{}, err
	}
	s.current.Store(&cfg)
	return cfg, nil
}
