package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/roach88/storebus/internal/catalog"
	"github.com/roach88/storebus/internal/config"
	"github.com/roach88/storebus/internal/engine"
	"github.com/roach88/storebus/internal/ir"
	"github.com/roach88/storebus/internal/scenario"
	"github.com/roach88/storebus/internal/store"
)

// Service wires the scenario processor and the rebuild engine to a store
// and a marketplace catalog.
type Service struct {
	store     *store.Store
	catalog   *catalog.Catalog
	processor *scenario.Processor
	lock      *engine.LockManager
	resolver  *engine.Resolver
	executor  *engine.Executor

	ids       engine.IDGenerator
	clock     engine.Clock
	artifacts engine.Artifacts
	storeURL  *url.URL
	demoMode  bool
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithIDs sets the generator for scenario and rebuild ids.
func WithIDs(g engine.IDGenerator) Option {
	return func(s *Service) {
		s.ids = g
	}
}

// WithClock sets the time source shared by every component.
func WithClock(c engine.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithArtifacts sets the collaborator that deploys module code.
func WithArtifacts(a engine.Artifacts) Option {
	return func(s *Service) {
		s.artifacts = a
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// New builds a service from configuration. cfg is assumed validated.
func New(st *store.Store, cat *catalog.Catalog, cfg config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		store:    st,
		catalog:  cat,
		ids:      engine.UUIDv7Generator{},
		clock:    engine.SystemClock{},
		demoMode: cfg.DemoMode,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.artifacts == nil {
		s.artifacts = engine.LogArtifacts{Logger: s.logger}
	}
	if cfg.StoreURL != "" {
		u, err := url.Parse(cfg.StoreURL)
		if err != nil {
			return nil, fmt.Errorf("store url: %w", err)
		}
		s.storeURL = u
	}

	env := scenario.Env{Installed: st.Installed(), Marketplace: cat.Marketplace}
	s.processor = scenario.NewProcessor(env,
		scenario.WithDependentsPolicy(cfg.DependentsPolicy()),
		scenario.WithProcessorMaxPasses(cfg.Builder.MaxPasses),
		scenario.WithClock(s.clock.Now),
		scenario.WithLogger(s.logger),
	)
	s.lock = engine.NewLockManager(st,
		engine.WithLockKey(cfg.Lock.Key),
		engine.WithLockTTL(cfg.Lock.TTL),
		engine.WithLockClock(s.clock),
		engine.WithLockLogger(s.logger),
	)
	s.resolver = engine.NewResolver(st, s.lock,
		engine.WithRebuildIDs(s.ids),
		engine.WithResolverClock(s.clock),
		engine.WithResolverLogger(s.logger),
	)
	s.executor = engine.NewExecutor(st, cat.Marketplace, s.lock,
		engine.WithMaxStepAttempts(cfg.Executor.MaxStepAttempts),
		engine.WithStepTimeout(cfg.Executor.StepTimeout),
		engine.WithBatchSize(cfg.Executor.BatchSize),
		engine.WithArtifacts(s.artifacts),
		engine.WithExecutorClock(s.clock),
		engine.WithExecutorLogger(s.logger),
	)
	return s, nil
}

// Processor exposes the change unit processor.
func (s *Service) Processor() *scenario.Processor { return s.processor }

// Lock exposes the rebuild lock manager.
func (s *Service) Lock() *engine.LockManager { return s.lock }

func (s *Service) checkMutable(op string) error {
	if s.demoMode {
		return fmt.Errorf("%s: %w", op, ErrDemoMode)
	}
	return nil
}

// newScenario returns an unsaved scenario with a fresh id and a return URL
// that passed the same-origin check.
func (s *Service) newScenario(typ ir.ScenarioType, returnURL string) *ir.Scenario {
	sc := ir.NewScenario(s.ids.Generate(), typ, s.clock.Now())
	sc.ReturnURL = s.selfURL(returnURL)
	return sc
}

// selfURL returns raw when it points back at the store, and "" otherwise.
// Relative paths count as the store's own; absolute URLs must match the
// configured store URL's scheme and host.
func (s *Service) selfURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !u.IsAbs() && u.Host == "" {
		if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
			return raw
		}
		return ""
	}
	if s.storeURL == nil {
		return ""
	}
	if !strings.EqualFold(u.Scheme, s.storeURL.Scheme) || !strings.EqualFold(u.Host, s.storeURL.Host) {
		s.logger.Warn("dropping foreign return url", "url", raw, "store", s.storeURL.String())
		return ""
	}
	return raw
}

// process runs units through the processor and saves the result.
func (s *Service) process(ctx context.Context, sc *ir.Scenario, units []ir.ChangeUnit) (*ir.Scenario, error) {
	out, err := s.processor.Process(ctx, sc, units)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveScenario(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}
