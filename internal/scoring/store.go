package scoring

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Backend persists raw per-tenant configuration documents. Get returns
// nil data and no error when the tenant has no stored config.
type Backend interface {
	GetScoringConfig(ctx context.Context, tenantID string) ([]byte, error)
	PutScoringConfig(ctx context.Context, tenantID string, data []byte) error
}

type cachedConfig struct {
	cfg      Config
	storedAt time.Time
}

// ConfigStore resolves the scoring configuration for a tenant. Tenants
// without a stored document get the defaults.
type ConfigStore struct {
	backend  Backend
	defaults Config
	cache    *lru.Cache[string, cachedConfig]
	ttl      time.Duration
	now      func() time.Time
}

// NewConfigStore creates a ConfigStore. cacheSize <= 0 disables caching.
func NewConfigStore(backend Backend, defaults Config, cacheSize int, ttl time.Duration) (*ConfigStore, error) {
	if err := ValidateConfig(defaults); err != nil {
		return nil, eris.Wrap(err, "scoring: default config")
	}
	s := &ConfigStore{backend: backend, defaults: defaults.Clone(), ttl: ttl, now: time.Now}
	if cacheSize > 0 {
		c, err := lru.New[string, cachedConfig](cacheSize)
		if err != nil {
			return nil, eris.Wrap(err, "scoring: create config cache")
		}
		s.cache = c
	}
	return s, nil
}

// Defaults returns a copy of the fallback configuration.
func (s *ConfigStore) Defaults() Config {
	return s.defaults.Clone()
}

// Get returns a copy of the tenant's configuration.
func (s *ConfigStore) Get(ctx context.Context, tenantID string) (Config, error) {
	if cfg, ok := s.cached(tenantID); ok {
		return cfg.Clone(), nil
	}

	data, err := s.backend.GetScoringConfig(ctx, tenantID)
	if err != nil {
		return Config{}, eris.Wrapf(err, "scoring: load config for tenant %s", tenantID)
	}

	cfg := s.defaults.Clone()
	if len(data) > 0 {
		var stored Update
		if err := json.Unmarshal(data, &stored); err != nil {
			return Config{}, eris.Wrapf(err, "scoring: decode config for tenant %s", tenantID)
		}
		cfg = Apply(cfg, stored)
		if err := ValidateConfig(cfg); err != nil {
			// A stored document that no longer validates falls back to defaults.
			zap.L().Warn("scoring: stored config invalid, using defaults",
				zap.String("tenant_id", tenantID), zap.Error(err))
			cfg = s.defaults.Clone()
		}
	}

	s.remember(tenantID, cfg)
	return cfg.Clone(), nil
}

// Put validates u merged over the tenant's current configuration and
// persists the result. Invalid updates are rejected and nothing is written.
func (s *ConfigStore) Put(ctx context.Context, tenantID string, u Update) (Config, error) {
	current, err := s.Get(ctx, tenantID)
	if err != nil {
		return Config{}, err
	}

	next := Apply(current, u)
	if err := ValidateConfig(next); err != nil {
		return Config{}, err
	}

	data, err := json.Marshal(Update{Weights: next.Weights, Rules: next.Rules, Thresholds: &next.Thresholds})
	if err != nil {
		return Config{}, eris.Wrap(err, "scoring: encode config")
	}
	if err := s.backend.PutScoringConfig(ctx, tenantID, data); err != nil {
		return Config{}, eris.Wrapf(err, "scoring: save config for tenant %s", tenantID)
	}

	s.remember(tenantID, next)
	zap.L().Info("scoring: config updated", zap.String("tenant_id", tenantID))
	return next.Clone(), nil
}

func (s *ConfigStore) cached(tenantID string) (Config, bool) {
	if s.cache == nil {
		return Config{}, false
	}
	e, ok := s.cache.Get(cacheKey(tenantID))
	if !ok {
		return Config{}, false
	}
	if s.ttl > 0 && s.now().Sub(e.storedAt) > s.ttl {
		s.cache.Remove(cacheKey(tenantID))
		return Config{}, false
	}
	return e.cfg, true
}

func (s *ConfigStore) remember(tenantID string, cfg Config) {
	if s.cache == nil {
		return
	}
	s.cache.Add(cacheKey(tenantID), cachedConfig{cfg: cfg.Clone(), storedAt: s.now()})
}

func cacheKey(tenantID string) string {
	return strings.TrimSpace(tenantID)
}
