// Package heartbeat implements the per-agent heartbeat daemon: each tick
// it claims ready envelopes from an agent's inbox, ingests artifacts into
// the agent's workspace, executes commands against a pluggable
// handler.CommandHandler, and resumes any envelope left in .pending/ from
// a prior crash. Every state transition (ack, task state, input index) is
// written via the atomic tempfile-then-rename primitive so a crash at any
// point leaves either the old or the new state, never a torn write.
//
// Grounded on the original substrate's heartbeat/app.py tick_plan()
// algorithm.
package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jiazeyu1987/AgentTalk/pkg/agentpaths"
	"github.com/jiazeyu1987/AgentTalk/pkg/alertlog"
	"github.com/jiazeyu1987/AgentTalk/pkg/clock"
	"github.com/jiazeyu1987/AgentTalk/pkg/config"
	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/handler"
	"github.com/jiazeyu1987/AgentTalk/pkg/ids"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/schema"
)

// Heartbeat runs the tick loop for exactly one agent.
type Heartbeat struct {
	AgentID string
	Roots   agentpaths.Roots
	Config  config.HeartbeatConfig
	Handler handler.CommandHandler
	Schemas *schema.Registry
	Clock   clock.Clock
	IDs     ids.Generator

	alerts *alertlog.Writer
	paths  agentpaths.AgentPaths
}

// New builds a Heartbeat for agentID. A nil clock uses the real wall
// clock; a nil handler defaults to handler.DefaultCommandHandler.
func New(agentID string, roots agentpaths.Roots, cfg config.HeartbeatConfig, h handler.CommandHandler, schemas *schema.Registry, clk clock.Clock, idGen ids.Generator) *Heartbeat {
	if clk == nil {
		clk = clock.Real{}
	}
	if h == nil {
		h = handler.DefaultCommandHandler{}
	}
	return &Heartbeat{
		AgentID: agentID,
		Roots:   roots,
		Config:  cfg,
		Handler: h,
		Schemas: schemas,
		Clock:   clk,
		IDs:     idGen,
		alerts:  alertlog.New(roots.SystemRuntimeDir, idGen, clk),
		paths:   roots.Agent(agentID),
	}
}

func (h *Heartbeat) now() string { return clock.IsoZ(h.Clock.Now()) }

// Alerts exposes the heartbeat's alert/dead-letter writer so a caller can
// attach a durable artifactmirror.Store (see cmd/heartbeat).
func (h *Heartbeat) Alerts() *alertlog.Writer { return h.alerts }

// DiscoverPlans lists the plan_ids this agent should tick over, honoring
// the configured scan mode: allowlist_only takes the configured list
// verbatim, auto unions the plan directories present under this agent's
// inbox and outbox.
func (h *Heartbeat) DiscoverPlans() ([]string, error) {
	if h.Config.Plans.ScanMode == config.ScanAllowlistOnly {
		return h.Config.Plans.Allowlist, nil
	}
	seen := make(map[string]bool)
	for _, root := range []string{filepath.Join(h.paths.Root(), "inbox"), filepath.Join(h.paths.Root(), "outbox")} {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				seen[e.Name()] = true
			}
		}
	}
	plans := make([]string, 0, len(seen))
	for p := range seen {
		plans = append(plans, p)
	}
	sort.Strings(plans)
	return plans, nil
}

// Tick runs one pass over every in-scope plan, processing new ready
// envelopes up to MaxNewMessagesPerTick and resuming .pending/ entries up
// to MaxResumeMessagesPerTick. Per-envelope failures never abort the
// plan's tick.
func (h *Heartbeat) Tick(ctx context.Context) error {
	plans, err := h.DiscoverPlans()
	if err != nil {
		return err
	}
	for _, planID := range plans {
		if err := h.tickPlan(ctx, planID); err != nil {
			_ = h.alerts.Alert(planID, "UNHANDLED_EXCEPTION", err.Error(), nil)
		}
	}
	return h.writeStatusHeartbeat(plans)
}

func (h *Heartbeat) tickPlan(ctx context.Context, planID string) error {
	for _, dir := range []string{h.paths.Pending(planID), h.paths.Processed(planID), h.paths.Deadletter(planID)} {
		if err := fsatomic.EnsureDir(dir); err != nil {
			return err
		}
	}

	ready, err := fsatomic.ListReadyFiles(h.paths.InboxPlan(planID), ".msg.json")
	if err != nil {
		return err
	}

	processed := 0
	for _, name := range ready {
		if processed >= h.Config.MaxNewMessagesPerTick {
			break
		}
		if err := h.processOneEnvelope(ctx, planID, name); err != nil {
			_ = h.alerts.Alert(planID, "UNHANDLED_EXCEPTION", err.Error(), map[string]any{"file": name})
		}
		processed++
	}

	return h.resumePending(ctx, planID)
}

func (h *Heartbeat) writeStatusHeartbeat(planIDs []string) error {
	doc := map[string]any{
		"schema_version":    message.SchemaVersion,
		"agent_id":          h.AgentID,
		"last_heartbeat":    h.now(),
		"health":            "OK",
		"status":            "RUNNING",
		"current_plan_ids":  planIDs,
	}
	return fsatomic.WriteJSON(h.paths.StatusHeartbeat(), doc)
}
