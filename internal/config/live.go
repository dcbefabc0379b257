package config

import "sync"

// Live guards the config shared by the API and the campaign runner.
// Readers take a Snapshot; writers go through Update.
type Live struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewLive(cfg *Config) *Live {
	return &Live{cfg: cfg}
}

// Snapshot returns a private copy of the current config.
func (l *Live) Snapshot() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg.Clone()
}

// Update runs fn with exclusive access to the live config.
func (l *Live) Update(fn func(*Config) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.cfg)
}
