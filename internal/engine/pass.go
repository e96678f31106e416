package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"pulseboard/internal/expr"
	"pulseboard/internal/metrics"
	"pulseboard/internal/models"
	"pulseboard/internal/store"
)

// Ingest records a new raw reading and runs one propagation pass. It returns
// the alert events for rules that newly transitioned to Active during the
// pass (re-fires of already-active rules are dispatched but not returned).
func (e *Engine) Ingest(sourceID string, value float64, ts time.Time) []models.AlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.Set(sourceID, value, ts)
	return e.pass("ingest", e.graph.Affected(sourceID))
}

// RecomputeAll forces a full recompute-then-evaluate pass over every
// monitor, in dependency order. Used by the administrative recompute action.
func (e *Engine) RecomputeAll() []models.AlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pass("recompute", e.graph.Ordered())
}

// Tick runs the periodic full pass, equivalent to a change on every raw
// source, so monitors do not go permanently stale when a webhook goes
// silent. Ticks arriving while a pass is running coalesce: at most one is
// queued, further ones are dropped to bound latency under load.
func (e *Engine) Tick() {
	if !e.tickQueued.CompareAndSwap(false, true) {
		metrics.PassesCoalesced.Inc()
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickQueued.Store(false)
	e.pass("tick", e.graph.Ordered())
}

// pass is one serialized recompute-then-evaluate cycle. Callers hold e.mu.
// order lists the monitors to recompute, already topologically sorted.
func (e *Engine) pass(trigger string, order []string) []models.AlertEvent {
	start := time.Now()
	metrics.PassesTotal.WithLabelValues(trigger).Inc()

	snap := e.store.Snapshot()

	for _, id := range order {
		ms, ok := e.monitors[id]
		if !ok || !ms.def.Enabled {
			continue
		}
		e.recomputeOneLocked(id, ms, snap)
	}

	events := e.evaluateRules(snap)

	metrics.PassDuration.Observe(time.Since(start).Seconds())
	return events
}

// recomputeOne recomputes a single monitor against a fresh snapshot, used
// at registration time to seed the initial value. Callers hold e.mu.
func (e *Engine) recomputeOne(id string, snap store.Snapshot) {
	if ms, ok := e.monitors[id]; ok {
		e.recomputeOneLocked(id, ms, snap)
	}
}

// recomputeOneLocked evaluates one monitor formula. On success the snapshot
// and the store are both updated so downstream monitors in the same pass
// read the fresh value. On evaluation error the previous value stays in
// place (stale, not cleared) and the failure is logged and counted.
func (e *Engine) recomputeOneLocked(id string, ms *monitorState, snap store.Snapshot) {
	value, err := expr.EvalNumber(ms.compiled, snap)
	if err != nil {
		metrics.RecomputeTotal.WithLabelValues("error").Inc()
		metrics.EvalErrorsTotal.WithLabelValues(evalErrorKind(err)).Inc()
		e.store.MarkStale(id, e.now())
		e.log.Warn().
			Str("monitor_id", id).
			Err(err).
			Msg("monitor recompute failed, keeping previous value")
		return
	}

	metrics.RecomputeTotal.WithLabelValues("ok").Inc()
	snap.Put(id, value)
	e.store.Set(id, value, e.now())
}

// evaluateRules checks every enabled rule against the post-recompute
// snapshot and advances the per-rule state machine. Callers hold e.mu.
func (e *Engine) evaluateRules(snap store.Snapshot) []models.AlertEvent {
	ids := make([]string, 0, len(e.rules))
	for id := range e.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var newlyActive []models.AlertEvent
	active := 0

	for _, id := range ids {
		rs := e.rules[id]
		if !rs.def.Enabled {
			continue
		}

		triggered := e.checkRule(rs, snap)
		if ev, fired := e.advanceRule(rs, triggered, snap); fired {
			newlyActive = append(newlyActive, ev)
		}
		if rs.active {
			active++
		}
	}

	metrics.ActiveAlerts.Set(float64(active))
	return newlyActive
}

// checkRule evaluates the condition. An evaluation error (typically an
// unresolved reference after a monitor deletion) degrades to not-triggered
// for this pass; it never stops the engine.
func (e *Engine) checkRule(rs *ruleState, snap store.Snapshot) bool {
	triggered, err := expr.EvalBool(rs.compiled, snap)
	if err != nil {
		metrics.EvalErrorsTotal.WithLabelValues(evalErrorKind(err)).Inc()
		e.log.Debug().
			Str("rule_id", rs.def.ID).
			Err(err).
			Msg("condition evaluation failed, treating as not triggered")
		return false
	}
	return triggered
}

// advanceRule applies one state machine step:
//
//	Idle   --true------------------------> Active, emit
//	Active --true, elapsed >= cooldown---> Active, emit again
//	Active --true, elapsed <  cooldown---> Active, suppressed
//	Active --false-----------------------> Idle, no emit, cooldown forgotten
//	Idle   --false-----------------------> Idle
//
// The second return is true only for the Idle->Active transition.
func (e *Engine) advanceRule(rs *ruleState, triggered bool, snap store.Snapshot) (models.AlertEvent, bool) {
	now := e.now()

	if !triggered {
		if rs.active {
			rs.active = false
			metrics.AlertTransitionsTotal.WithLabelValues("resolved").Inc()
			e.recordResolved(rs, now, snap)
		}
		return models.AlertEvent{}, false
	}

	if !rs.active {
		rs.active = true
		rs.lastNotifiedAt = now
		rs.hasNotified = true
		metrics.AlertTransitionsTotal.WithLabelValues("fired").Inc()
		ev := e.fireEvent(rs, now, snap)
		return ev, true
	}

	// Sustained true: re-emit once per cooldown window.
	if rs.hasNotified && now.Sub(rs.lastNotifiedAt) < rs.def.Cooldown() {
		metrics.AlertTransitionsTotal.WithLabelValues("suppressed").Inc()
		return models.AlertEvent{}, false
	}
	rs.lastNotifiedAt = now
	rs.hasNotified = true
	metrics.AlertTransitionsTotal.WithLabelValues("refired").Inc()
	e.fireEvent(rs, now, snap)
	return models.AlertEvent{}, false
}

// fireEvent builds the alert event, records it, and dispatches it to every
// sink asynchronously. Dispatch failures are the sink's problem; they never
// block or roll back alert state.
func (e *Engine) fireEvent(rs *ruleState, now time.Time, snap store.Snapshot) models.AlertEvent {
	value := representativeValue(rs.compiled, snap)
	ev := models.AlertEvent{
		ID:      uuid.New().String(),
		RuleID:  rs.def.ID,
		Level:   rs.def.Level,
		State:   "firing",
		Message: fmt.Sprintf("[%s] %s triggered: %s", rs.def.Level, rs.def.ID, rs.def.Condition),
		Value:   value,
		FiredAt: now,
	}

	e.log.Warn().
		Str("rule_id", ev.RuleID).
		Str("level", string(ev.Level)).
		Float64("value", ev.Value).
		Msg("alert fired")

	e.recordEvent(ev)
	e.dispatch(ev)
	return ev
}

// recordResolved appends the Active->Idle transition to the history. Per the
// state machine no notification is sent; the state simply resets so the
// next true transition emits immediately.
func (e *Engine) recordResolved(rs *ruleState, now time.Time, snap store.Snapshot) {
	e.log.Info().
		Str("rule_id", rs.def.ID).
		Msg("alert resolved")

	e.recordEvent(models.AlertEvent{
		ID:      uuid.New().String(),
		RuleID:  rs.def.ID,
		Level:   rs.def.Level,
		State:   "resolved",
		Message: fmt.Sprintf("[%s] %s back below threshold", rs.def.Level, rs.def.ID),
		Value:   representativeValue(rs.compiled, snap),
		FiredAt: now,
	})
}

func (e *Engine) recordEvent(ev models.AlertEvent) {
	if e.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.repo.InsertEvent(ctx, ev); err != nil {
		e.log.Error().Err(err).Str("event_id", ev.ID).Msg("history insert failed")
	}
}

// dispatch fans the event out to all sinks, fire-and-forget relative to the
// propagation pass.
func (e *Engine) dispatch(ev models.AlertEvent) {
	for _, sink := range e.sinks {
		sink := sink
		e.dispatchWG.Add(1)
		go func() {
			defer e.dispatchWG.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			err := sink.Send(ctx, ev)
			status := "sent"
			errMsg := ""
			if err != nil {
				status = "failed"
				errMsg = err.Error()
				e.log.Error().
					Err(err).
					Str("sink", sink.Name()).
					Str("rule_id", ev.RuleID).
					Msg("notification delivery failed")
			}
			metrics.NotificationsTotal.WithLabelValues(sink.Name(), status).Inc()

			if e.repo != nil {
				var sentAt *time.Time
				if err == nil {
					t := e.now()
					sentAt = &t
				}
				if herr := e.repo.InsertNotification(ctx, ev.ID, sink.Name(), status, 1, errMsg, sentAt); herr != nil {
					e.log.Error().Err(herr).Msg("notification history insert failed")
				}
			}
		}()
	}
}

// representativeValue picks the first resolvable reference of a condition as
// the value shown in notifications. Conditions combine several comparisons,
// so there is no single triggering number; the first reference is the most
// recognizable stand-in.
func representativeValue(n expr.Node, snap store.Snapshot) float64 {
	for _, ref := range expr.References(n) {
		if v, ok := snap.Get(ref.ID); ok {
			return v
		}
	}
	return 0
}

func evalErrorKind(err error) string {
	var uerr *expr.UnresolvedRefError
	switch {
	case errors.As(err, &uerr):
		return "unresolved_reference"
	case errors.Is(err, expr.ErrDivisionByZero):
		return "division_by_zero"
	default:
		return "other"
	}
}
