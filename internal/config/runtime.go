package config

import "sync"

// RuntimeStore holds the live, mutable strategy and exchange configuration
// the HTTP API's /config routes read and patch, independent of the YAML
// files LoadStrategyConfig/LoadExchangesConfig seed it from at startup.
// Changes here are process-local; restarting the service reverts to the
// YAML files on disk.
type RuntimeStore struct {
	mu        sync.RWMutex
	strategy  StrategyConfig
	exchanges ExchangesConfig
}

// NewRuntimeStore seeds a RuntimeStore from the configuration loaded at
// startup.
func NewRuntimeStore(strategy StrategyConfig, exchanges ExchangesConfig) *RuntimeStore {
	return &RuntimeStore{strategy: strategy, exchanges: exchanges}
}

func (s *RuntimeStore) Strategy() StrategyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strategy
}

func (s *RuntimeStore) SetStrategy(cfg StrategyConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategy = cfg
}

func (s *RuntimeStore) Exchanges() ExchangesConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exchanges
}

// PatchExchange updates the named venue's mutable fields (Enabled,
// RateLimitWidth) in place, returning false if slug is not configured.
func (s *RuntimeStore) PatchExchange(slug string, enabled *bool, rateLimitWidth *int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.exchanges.Exchanges {
		if s.exchanges.Exchanges[i].Slug != slug {
			continue
		}
		if enabled != nil {
			s.exchanges.Exchanges[i].Enabled = *enabled
		}
		if rateLimitWidth != nil {
			s.exchanges.Exchanges[i].RateLimitWidth = *rateLimitWidth
		}
		return true
	}
	return false
}

// FactoryReset restores the strategy config to its documented defaults.
func (s *RuntimeStore) FactoryReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategy = DefaultStrategyConfig()
}
