package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/storebus/internal/ir"
)

// Processor applies change units to scenarios.
type Processor struct {
	env       Env
	rules     []Rule
	maxPasses int
	now       func() time.Time
	logger    *slog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRules replaces the default rule set.
func WithRules(rules ...Rule) ProcessorOption {
	return func(p *Processor) {
		p.rules = rules
	}
}

// WithDependentsPolicy rebuilds the default rule set with the given policy.
func WithDependentsPolicy(policy DependentsPolicy) ProcessorOption {
	return func(p *Processor) {
		p.rules = DefaultRules(policy)
	}
}

// WithProcessorMaxPasses sets the builder's fixpoint bound.
func WithProcessorMaxPasses(n int) ProcessorOption {
	return func(p *Processor) {
		p.maxPasses = n
	}
}

// WithClock sets the time source used for UpdatedAt.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = l
	}
}

// NewProcessor creates a processor over the given module sources.
func NewProcessor(env Env, opts ...ProcessorOption) *Processor {
	p := &Processor{
		env:       env,
		rules:     DefaultRules(PolicyCascade),
		maxPasses: DefaultMaxPasses,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Env returns the module sources the processor resolves against.
func (p *Processor) Env() Env { return p.env }

// ForEnv returns a processor with the same rules and options that resolves
// against env instead.
func (p *Processor) ForEnv(env Env) *Processor {
	c := *p
	c.env = env
	return &c
}

// Process returns a copy of existing with units applied. existing may be
// nil, in which case a fresh common scenario without an id is used.
//
// The transition map is recomputed from the scenario's full change unit
// history followed by units, so requests made in earlier calls are kept and
// everything derived from them is derived again. The input scenario is
// never modified, and nothing is persisted.
func (p *Processor) Process(ctx context.Context, existing *ir.Scenario, units []ir.ChangeUnit) (*ir.Scenario, error) {
	for i, u := range units {
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("change unit %d: %w", i, err)
		}
	}

	out := existing.Clone()
	if out == nil {
		out = ir.NewScenario("", ir.ScenarioCommon, p.now())
	}
	all := append(append([]ir.ChangeUnit{}, out.ChangeUnits...), units...)

	transitions, passes, err := p.build(ctx, all)
	if err != nil {
		return nil, err
	}

	out.ChangeUnits = all
	out.Transitions = transitions
	out.UpdatedAt = p.now()

	p.logger.Info("scenario processed",
		"scenario", out.ID,
		"change_units", len(units),
		"transitions", len(transitions),
		"passes", passes)
	return out, nil
}

// Verify recomputes the scenario from its change units and reports
// ErrScenarioDrift if the stored transitions differ, for example because
// installed modules changed since the scenario was built.
func (p *Processor) Verify(ctx context.Context, s *ir.Scenario) error {
	transitions, _, err := p.build(ctx, s.ChangeUnits)
	if err != nil {
		return fmt.Errorf("rebuild scenario %s: %w", s.ID, err)
	}
	want, err := ir.TransitionsFingerprint(s.Transitions)
	if err != nil {
		return err
	}
	got, err := ir.TransitionsFingerprint(transitions)
	if err != nil {
		return err
	}
	if want != got {
		return fmt.Errorf("%w: scenario %s stored %s, recomputed %s", ErrScenarioDrift, s.ID, short(want), short(got))
	}
	return nil
}

func (p *Processor) build(ctx context.Context, units []ir.ChangeUnit) (map[ir.ModuleID]ir.Transition, int, error) {
	b := NewBuilder(p.env, p.rules, WithMaxPasses(p.maxPasses), WithBuilderLogger(p.logger))
	for _, u := range units {
		t, ok, err := p.env.convert(ctx, u)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			b.Drop(u.ID)
			continue
		}
		b.Seed(t)
	}
	transitions, err := b.Build(ctx)
	if err != nil {
		return nil, b.Passes(), err
	}
	return transitions, b.Passes(), nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
