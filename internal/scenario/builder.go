package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/storebus/internal/ir"
)

// DefaultMaxPasses bounds the fixpoint loop. Realistic scenarios settle
// in a handful of passes; the bound only catches rules that oscillate.
const DefaultMaxPasses = 64

// Builder accumulates transitions until every rule is satisfied.
//
// A Builder is single use and not safe for concurrent use.
type Builder struct {
	env       Env
	rules     []Rule
	maxPasses int
	logger    *slog.Logger

	order       []ir.ModuleID
	transitions map[ir.ModuleID]ir.Transition
	settled     map[ir.ModuleID]bool
	vetoed      map[ir.ModuleID]*RuleError
	passes      int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMaxPasses sets the fixpoint bound. Non-positive values are ignored.
func WithMaxPasses(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxPasses = n
		}
	}
}

// WithBuilderLogger sets the logger used for pass tracing.
func WithBuilderLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a builder evaluating rules in the given order.
func NewBuilder(env Env, rules []Rule, opts ...BuilderOption) *Builder {
	b := &Builder{
		env:         env,
		rules:       rules,
		maxPasses:   DefaultMaxPasses,
		logger:      slog.Default(),
		transitions: make(map[ir.ModuleID]ir.Transition),
		settled:     make(map[ir.ModuleID]bool),
		vetoed:      make(map[ir.ModuleID]*RuleError),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Env returns the module sources rules should consult.
func (b *Builder) Env() Env { return b.env }

// Passes returns how many passes the last Build took.
func (b *Builder) Passes() int { return b.passes }

// Transition returns the current transition for id.
func (b *Builder) Transition(id ir.ModuleID) (ir.Transition, bool) {
	t, ok := b.transitions[id]
	return t, ok
}

// Transitions returns a copy of the current transition map.
func (b *Builder) Transitions() map[ir.ModuleID]ir.Transition {
	out := make(map[ir.ModuleID]ir.Transition, len(b.transitions))
	for id, t := range b.transitions {
		out[id] = t.Clone()
	}
	return out
}

// Seed records a requested transition, replacing whatever was there.
// Later seeds for the same module win.
func (b *Builder) Seed(t ir.Transition) {
	t.Info.Origin = ir.OriginRequest
	delete(b.vetoed, t.ModuleID)
	b.set(t)
}

// Drop forgets any transition for id. Used when a later change unit turns
// out to be a no-op against installed state.
func (b *Builder) Drop(id ir.ModuleID) {
	delete(b.transitions, id)
	delete(b.settled, id)
	delete(b.vetoed, id)
	b.order = slices.DeleteFunc(b.order, func(o ir.ModuleID) bool { return o == id })
}

// Veto removes the transition for id and remembers why, so that a later
// proposal for the same module fails with err instead of silently
// reintroducing it. Rule transitions that only id required go with it.
func (b *Builder) Veto(id ir.ModuleID, err *RuleError) {
	b.Drop(id)
	b.vetoed[id] = err
	b.logger.Debug("transition vetoed", "module", id, "code", err.Code, "reason", err.Message)
	b.dropOrphans(id)
}

// dropOrphans removes gone from every RequiredBy list and drops the rule
// transitions left required by nobody, repeating for each dropped one.
func (b *Builder) dropOrphans(gone ir.ModuleID) {
	queue := []ir.ModuleID{gone}
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		for _, id := range slices.Clone(b.order) {
			t, ok := b.transitions[id]
			if !ok || t.Requested() || !slices.Contains(t.Info.RequiredBy, g) {
				continue
			}
			t.Info.RequiredBy = slices.DeleteFunc(slices.Clone(t.Info.RequiredBy), func(r ir.ModuleID) bool { return r == g })
			if len(t.Info.RequiredBy) > 0 {
				b.transitions[id] = t
				continue
			}
			b.Drop(id)
			b.logger.Debug("orphaned transition dropped", "module", id, "after", g)
			queue = append(queue, id)
		}
	}
}

// Propose offers a rule-derived transition. The merge policy decides
// whether it replaces, extends or conflicts with the current one.
func (b *Builder) Propose(t ir.Transition) error {
	if verr, ok := b.vetoed[t.ModuleID]; ok {
		return ruleErrorf(verr.Code, t.ModuleID, "%s is required by %v but was dropped: %s", t.ModuleID, t.Info.RequiredBy, verr.Message)
	}
	cur, ok := b.transitions[t.ModuleID]
	if !ok {
		b.set(t)
		return nil
	}
	merged, changed, err := merge(cur, t)
	if err != nil {
		return err
	}
	if changed {
		b.set(merged)
	} else {
		// RequiredBy only; rules never read it, so no need to revisit.
		b.transitions[t.ModuleID] = merged
	}
	return nil
}

func (b *Builder) set(t ir.Transition) {
	if _, ok := b.transitions[t.ModuleID]; !ok {
		b.order = append(b.order, t.ModuleID)
	}
	b.transitions[t.ModuleID] = t.Clone()
	b.settled[t.ModuleID] = false
}

func (b *Builder) unsettled() []ir.ModuleID {
	var pending []ir.ModuleID
	for _, id := range b.order {
		if !b.settled[id] {
			pending = append(pending, id)
		}
	}
	return pending
}

// Build runs the rules to a fixpoint and validates the result.
func (b *Builder) Build(ctx context.Context) (map[ir.ModuleID]ir.Transition, error) {
	b.passes = 0
	for {
		pending := b.unsettled()
		if len(pending) == 0 {
			break
		}
		if b.passes >= b.maxPasses {
			return nil, &FixpointError{Passes: b.passes, Pending: pending}
		}
		b.passes++
		b.logger.Debug("builder pass", "pass", b.passes, "pending", len(pending))

		for _, id := range pending {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := b.settle(ctx, id); err != nil {
				return nil, err
			}
		}
	}

	if err := b.validateClosure(ctx); err != nil {
		return nil, err
	}
	return b.Transitions(), nil
}

// settle marks id settled, then runs transforms and filters. Anything that
// replaces the transition meanwhile flips it back to unsettled.
func (b *Builder) settle(ctx context.Context, id ir.ModuleID) error {
	t, ok := b.transitions[id]
	if !ok {
		return nil
	}
	b.settled[id] = true

	for _, r := range b.rules {
		if err := r.ApplyTransform(ctx, t, b); err != nil {
			return fmt.Errorf("rule %s on %s: %w", r.Name(), id, err)
		}
	}
	for _, r := range b.rules {
		cur, ok := b.transitions[id]
		if !ok {
			return nil
		}
		if err := r.ApplyFilter(ctx, cur, b); err != nil {
			return fmt.Errorf("rule %s on %s: %w", r.Name(), id, err)
		}
	}
	return nil
}
