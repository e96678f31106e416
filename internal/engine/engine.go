// Package engine wires the value store, dependency graph, expression
// evaluator, and alert state machine into one propagation pipeline:
// ingest -> recompute affected monitors in dependency order -> evaluate
// alert rules -> dispatch notifications through the configured sinks.
package engine

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"pulseboard/internal/expr"
	"pulseboard/internal/graph"
	"pulseboard/internal/history"
	"pulseboard/internal/logger"
	"pulseboard/internal/models"
	"pulseboard/internal/notifier"
	"pulseboard/internal/store"
)

type monitorState struct {
	def      models.Monitor
	compiled expr.Node
}

// ruleState is the per-rule runtime state: the Idle/Active flag and the
// cooldown anchor. Created with the rule, discarded with it.
type ruleState struct {
	def      models.AlertRule
	compiled expr.Node

	active         bool
	lastNotifiedAt time.Time
	hasNotified    bool

	// dangling marks a rule whose condition references a deleted monitor.
	// The rule stays registered (it evaluates to not-triggered) so the
	// user can repair it; the flag is surfaced by RuleStatuses.
	dangling bool
}

// RuleStatus is the externally visible state of one rule.
type RuleStatus struct {
	Rule           models.AlertRule `json:"rule"`
	Active         bool             `json:"active"`
	Dangling       bool             `json:"dangling"`
	LastNotifiedAt time.Time        `json:"last_notified_at"`
}

// Registry errors
var (
	ErrMonitorNotFound = errors.New("monitor not found")
	ErrRuleNotFound    = errors.New("rule not found")
)

// Engine owns all monitor and rule registrations and runs propagation
// passes. Passes are serialized: each ingest, tick, or recompute runs the
// full recompute-then-evaluate cycle under one lock, so no monitor ever
// observes a half-updated snapshot.
type Engine struct {
	mu       sync.Mutex
	store    *store.Store
	graph    *graph.Graph
	monitors map[string]*monitorState
	rules    map[string]*ruleState

	sinks   []notifier.Sink
	repo    *history.Repository
	now     func() time.Time
	log     zerolog.Logger

	tickQueued atomic.Bool
	dispatchWG sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithSinks sets the notification sinks.
func WithSinks(sinks ...notifier.Sink) Option {
	return func(e *Engine) { e.sinks = sinks }
}

// WithHistory sets the alert history repository.
func WithHistory(repo *history.Repository) Option {
	return func(e *Engine) { e.repo = repo }
}

// WithClock overrides the clock, used by tests to drive cooldowns. The
// returned time.Time values should come from time.Now so cooldown
// arithmetic rides Go's monotonic reading.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over the given value store.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		graph:    graph.New(),
		monitors: make(map[string]*monitorState),
		rules:    make(map[string]*ruleState),
		now:      time.Now,
		log:      logger.WithComponent("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close waits for in-flight notification dispatches to finish.
func (e *Engine) Close() {
	e.dispatchWG.Wait()
}

// RegisterMonitor validates and registers a computed monitor. Both the
// formula parse and the cycle check must succeed before the monitor becomes
// visible to any other component; on error nothing is mutated.
func (e *Engine) RegisterMonitor(m models.Monitor) error {
	if err := m.Validate(); err != nil {
		return err
	}
	compiled, err := expr.CompileFormula(m.Formula)
	if err != nil {
		return err
	}

	deps := refIDs(compiled)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.graph.Register(m.ID, deps); err != nil {
		return err
	}

	e.store.Register(m.ID, models.KindComputed)
	e.monitors[m.ID] = &monitorState{def: m, compiled: compiled}
	e.clearDanglingFor(m.ID)

	// Seed the value if the dependencies are already known, so the monitor
	// does not stay empty until the next ingest.
	if m.Enabled {
		e.recomputeOne(m.ID, e.store.Snapshot())
	}

	e.log.Info().
		Str("monitor_id", m.ID).
		Str("formula", m.Formula).
		Strs("deps", deps).
		Msg("monitor registered")
	return nil
}

// UpdateMonitor replaces a monitor definition after full re-validation.
func (e *Engine) UpdateMonitor(m models.Monitor) error {
	if err := m.Validate(); err != nil {
		return err
	}
	compiled, err := expr.CompileFormula(m.Formula)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.monitors[m.ID]; !ok {
		return ErrMonitorNotFound
	}
	if err := e.graph.Register(m.ID, refIDs(compiled)); err != nil {
		return err
	}

	e.monitors[m.ID] = &monitorState{def: m, compiled: compiled}
	if m.Enabled {
		e.recomputeOne(m.ID, e.store.Snapshot())
	}
	return nil
}

// SetMonitorEnabled toggles recomputation for a monitor. A disabled monitor
// keeps its last value; dependents read it as-is.
func (e *Engine) SetMonitorEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ms, ok := e.monitors[id]
	if !ok {
		return ErrMonitorNotFound
	}
	ms.def.Enabled = enabled
	return nil
}

// RemoveMonitor deletes a monitor, its graph node, and its value. Rules
// whose condition references it are flagged dangling, not deleted.
func (e *Engine) RemoveMonitor(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.monitors[id]; !ok {
		return ErrMonitorNotFound
	}
	delete(e.monitors, id)
	e.graph.Unregister(id)
	e.store.Delete(id)

	for ruleID, rs := range e.rules {
		for _, ref := range expr.References(rs.compiled) {
			if ref.ID == id {
				rs.dangling = true
				e.log.Warn().
					Str("rule_id", ruleID).
					Str("monitor_id", id).
					Msg("rule references deleted monitor")
				break
			}
		}
	}
	return nil
}

// Monitors returns the registered monitor definitions sorted by id.
func (e *Engine) Monitors() []models.Monitor {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Monitor, 0, len(e.monitors))
	for _, ms := range e.monitors {
		out = append(out, ms.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RegisterRule validates and registers an alert rule. The condition must
// compile to a boolean; references are resolved lazily at evaluation time.
func (e *Engine) RegisterRule(r models.AlertRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	compiled, err := expr.CompileCondition(r.Condition)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules[r.ID] = &ruleState{def: r, compiled: compiled}
	e.log.Info().
		Str("rule_id", r.ID).
		Str("condition", r.Condition).
		Str("level", string(r.Level)).
		Msg("rule registered")
	return nil
}

// RemoveRule deletes a rule together with its runtime state.
func (e *Engine) RemoveRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(e.rules, id)
	return nil
}

// RuleStatuses returns the visible state of every rule sorted by id.
func (e *Engine) RuleStatuses() []RuleStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]RuleStatus, 0, len(e.rules))
	for _, rs := range e.rules {
		out = append(out, RuleStatus{
			Rule:           rs.def,
			Active:         rs.active,
			Dangling:       rs.dangling,
			LastNotifiedAt: rs.lastNotifiedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rule.ID < out[j].Rule.ID })
	return out
}

// clearDanglingFor re-checks dangling flags after id came (back) to life.
func (e *Engine) clearDanglingFor(id string) {
	for _, rs := range e.rules {
		if !rs.dangling {
			continue
		}
		still := false
		for _, ref := range expr.References(rs.compiled) {
			if _, ok := e.monitors[ref.ID]; !ok && ref.Tag == expr.RefMonitor {
				still = true
				break
			}
		}
		rs.dangling = still
	}
}

func refIDs(n expr.Node) []string {
	refs := expr.References(n)
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}
