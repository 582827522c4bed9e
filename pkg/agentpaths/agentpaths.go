// Package agentpaths centralizes every filesystem path convention the
// substrate relies on: per-agent inbox/outbox/workspace layout, and the
// shared system_runtime/ control-plane archive tree keyed by plan.
package agentpaths

import "path/filepath"

// Roots is the top-level filesystem layout: where agents live and where
// the shared control-plane archive lives.
type Roots struct {
	AgentsRoot       string
	SystemRuntimeDir string
}

// Agent returns the path helper for one agent under these roots.
func (r Roots) Agent(agentID string) AgentPaths {
	return AgentPaths{root: filepath.Join(r.AgentsRoot, agentID)}
}

// Plan returns the control-plane path helper for one plan.
func (r Roots) Plan(planID string) PlanPaths {
	return PlanPaths{root: filepath.Join(r.SystemRuntimeDir, "plans", planID), runtime: r.SystemRuntimeDir, planID: planID}
}

// AgentPaths resolves the directories a single agent process reads and
// writes: inbox (incoming envelopes), outbox (outgoing envelopes, acks,
// task states, human artifacts), and workspace (materialized inputs).
type AgentPaths struct {
	root string
}

func (a AgentPaths) Root() string { return a.root }

func (a AgentPaths) InboxPlan(planID string) string  { return filepath.Join(a.root, "inbox", planID) }
func (a AgentPaths) OutboxPlan(planID string) string { return filepath.Join(a.root, "outbox", planID) }
func (a AgentPaths) WorkspacePlan(planID string) string {
	return filepath.Join(a.root, "workspace", planID)
}
func (a AgentPaths) WorkspaceInputs(planID string) string {
	return filepath.Join(a.WorkspacePlan(planID), "inputs")
}
func (a AgentPaths) WorkspaceInputsTask(planID, taskID string) string {
	return filepath.Join(a.WorkspaceInputs(planID), taskID)
}
func (a AgentPaths) Pending(planID string) string    { return filepath.Join(a.InboxPlan(planID), ".pending") }
func (a AgentPaths) Processed(planID string) string  { return filepath.Join(a.InboxPlan(planID), ".processed") }
func (a AgentPaths) Deadletter(planID string) string { return filepath.Join(a.InboxPlan(planID), ".deadletter") }
func (a AgentPaths) ProcessedPayload(planID string) string {
	return filepath.Join(a.Processed(planID), "_payload")
}
func (a AgentPaths) DeadletterPayloadConflict(planID string) string {
	return filepath.Join(a.Deadletter(planID), "_payload_conflict")
}
func (a AgentPaths) StatusHeartbeat() string { return filepath.Join(a.root, "status_heartbeat.json") }
func (a AgentPaths) HeartbeatConfig() string { return filepath.Join(a.root, "heartbeat_config.json") }
func (a AgentPaths) InputIndex(planID string) string {
	return filepath.Join(a.WorkspaceInputs(planID), "input_index.json")
}
func (a AgentPaths) AckPath(planID, messageID string) string {
	return filepath.Join(a.OutboxPlan(planID), "ack_"+messageID+".json")
}
func (a AgentPaths) TaskStatePath(planID, taskID string) string {
	return filepath.Join(a.OutboxPlan(planID), "task_state_"+taskID+".json")
}
func (a AgentPaths) TaskWorkdir(planID, taskID string) string {
	return filepath.Join(a.WorkspacePlan(planID), "workdir", taskID)
}

// PlanPaths resolves the shared control-plane archive directories for one
// plan under system_runtime/.
type PlanPaths struct {
	root    string
	runtime string
	planID  string
}

func (p PlanPaths) Root() string                 { return p.root }
func (p PlanPaths) TaskDag() string               { return filepath.Join(p.root, "task_dag.json") }
func (p PlanPaths) ActiveDagRef() string          { return filepath.Join(p.root, "active_dag_ref.json") }
func (p PlanPaths) PlanManifest() string          { return filepath.Join(p.root, "plan_manifest.json") }
func (p PlanPaths) Commands() string              { return filepath.Join(p.root, "commands") }
func (p PlanPaths) Acks() string                  { return filepath.Join(p.root, "acks") }
func (p PlanPaths) HumanRequests() string         { return filepath.Join(p.root, "human_requests") }
func (p PlanPaths) HumanResponses() string        { return filepath.Join(p.root, "human_responses") }
func (p PlanPaths) HumanResponsesProcessed() string {
	return filepath.Join(p.HumanResponses(), ".processed")
}
func (p PlanPaths) Decisions() string             { return filepath.Join(p.root, "decisions") }
func (p PlanPaths) Releases() string              { return filepath.Join(p.root, "releases") }
func (p PlanPaths) ReleaseManifestPointer() string { return filepath.Join(p.root, "release_manifest.json") }
func (p PlanPaths) AgentStatus() string           { return filepath.Join(p.runtime, "agent_status") }
func (p PlanPaths) PlanStatus() string            { return filepath.Join(p.root, "plan_status.json") }
func (p PlanPaths) Alerts() string                { return filepath.Join(p.runtime, "alerts", p.planID) }
func (p PlanPaths) Deadletter() string            { return filepath.Join(p.runtime, "deadletter", p.planID) }
