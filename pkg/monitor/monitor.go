// Package monitor implements the plan-status aggregator daemon: each tick
// it mirrors every agent's self-reported heartbeat into the shared
// system_runtime/ tree, then reconstructs plan_status.json for every
// in-scope plan from whatever partial, out-of-order evidence the router
// and every agent's heartbeat have left on disk — the delivery log,
// archived acks, the archived command history, and each agent's own
// task_state_<task_id>.json files.
//
// The monitor never writes to an agent's or a plan's own state; it is
// strictly a reducer over what already exists, safe to run concurrently
// with the router and every heartbeat and safe to kill and restart at any
// point.
//
// Grounded on the original substrate's monitor/app.py build_plan_status().
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/jiazeyu1987/AgentTalk/pkg/agentpaths"
	"github.com/jiazeyu1987/AgentTalk/pkg/alertlog"
	"github.com/jiazeyu1987/AgentTalk/pkg/clock"
	"github.com/jiazeyu1987/AgentTalk/pkg/ids"
	"github.com/jiazeyu1987/AgentTalk/pkg/planscan"
	"github.com/jiazeyu1987/AgentTalk/pkg/schema"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// Config controls monitor tick behavior.
type Config struct {
	PollIntervalSeconds float64
}

// Monitor ticks over every known plan, deriving plan_status.json.
type Monitor struct {
	Roots   agentpaths.Roots
	Config  Config
	Clock   clock.Clock
	IDs     ids.Generator
	Schemas *schema.Registry

	alerts *alertlog.Writer
}

// New builds a Monitor. A nil clock uses the real wall clock.
func New(roots agentpaths.Roots, cfg Config, schemas *schema.Registry, clk clock.Clock, idGen ids.Generator) *Monitor {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Monitor{
		Roots:   roots,
		Config:  cfg,
		Clock:   clk,
		IDs:     idGen,
		Schemas: schemas,
		alerts:  alertlog.New(roots.SystemRuntimeDir, idGen, clk),
	}
}

func (m *Monitor) now() time.Time { return m.Clock.Now() }
func (m *Monitor) nowZ() string   { return clock.IsoZ(m.now()) }

// Alerts exposes the monitor's alert/dead-letter writer so a caller can
// attach a durable artifactmirror.Store (see cmd/monitor).
func (m *Monitor) Alerts() *alertlog.Writer { return m.alerts }

// Tick runs one full pass over every discovered plan. A single plan's
// failure (an unreadable DAG, a malformed delivery log) is alerted and
// skips only that plan.
func (m *Monitor) Tick(ctx context.Context) error {
	plans, err := planscan.DiscoverPlans(m.Roots)
	if err != nil {
		return fmt.Errorf("monitor: discovering plans: %w", err)
	}
	for _, planID := range plans {
		if err := m.tickPlan(ctx, planID); err != nil {
			_ = m.alerts.Alert(planID, errs.CodePlanStatusAggregationFailed, err.Error(), nil)
		}
	}
	return nil
}

// RunForever ticks on Config.PollIntervalSeconds until ctx is cancelled.
func (m *Monitor) RunForever(ctx context.Context) error {
	interval := time.Duration(m.Config.PollIntervalSeconds * float64(time.Second))
	if interval <= 0 {
		interval = 2 * time.Second
	}
	for {
		if err := m.Tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
