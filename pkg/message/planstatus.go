package message

// TaskStatusSource records which evidence tier the monitor used to derive
// a TaskStatusEntry's State, so a reader of plan_status.json can tell a
// directly-reported task_state from one reconstructed from an ack or
// merely inferred from the DAG.
type TaskStatusSource string

const (
	SourceTaskState TaskStatusSource = "task_state"
	SourceAck       TaskStatusSource = "ack"
	SourceDerived   TaskStatusSource = "derived"
)

// TaskStatusEntry is the monitor's canonical view of one DAG node.
type TaskStatusEntry struct {
	TaskID          string           `json:"task_id"`
	AssignedAgentID string           `json:"assigned_agent_id,omitempty"`
	State           TaskState        `json:"state"`
	Source          TaskStatusSource `json:"source"`
	UpdatedAt       string           `json:"updated_at,omitempty"`
	MessageID       string           `json:"message_id,omitempty"`
	CommandID       string           `json:"command_id,omitempty"`
	CommandSeq      int64            `json:"command_seq,omitempty"`
	Blocking        *Blocking        `json:"blocking,omitempty"`
	Result          map[string]any   `json:"result,omitempty"`
}

// BlockedSummary tallies, across every task in a plan, how many are
// blocked for each reason the monitor distinguishes.
type BlockedSummary struct {
	Input  int `json:"input"`
	Review int `json:"review"`
	Human  int `json:"human"`
}

// PlanStatus is the plan_status.json document the monitor writes once per
// tick: a reducer's-eye view of every DAG node's state, reconstructed from
// whatever partial, possibly out-of-order evidence is on disk right now.
type PlanStatus struct {
	SchemaVersion  string            `json:"schema_version"`
	PlanID         string            `json:"plan_id"`
	GeneratedAt    string            `json:"generated_at"`
	TaskDagSHA256  string            `json:"task_dag_sha256"`
	Tasks          []TaskStatusEntry `json:"tasks"`
	BlockedSummary BlockedSummary    `json:"blocked_summary"`
}

// AgentStatusSnapshot is the annotated copy of an agent's
// status_heartbeat.json the monitor mirrors into
// system_runtime/agent_status/<agent_id>.json every tick.
type AgentStatusSnapshot struct {
	SchemaVersion string         `json:"schema_version"`
	AgentID       string         `json:"agent_id"`
	CollectedAt   string         `json:"collected_at"`
	Heartbeat     map[string]any `json:"heartbeat"`
}
