package message

// AckStatus is the lifecycle status an agent reports for a consumed
// command envelope.
type AckStatus string

const (
	AckConsumed  AckStatus = "CONSUMED"
	AckSucceeded AckStatus = "SUCCEEDED"
	AckFailed    AckStatus = "FAILED"
)

// Ack is written by the heartbeat to an agent's outbox as it processes a
// command, and archived by the router into the plan's ack history.
type Ack struct {
	SchemaVersion    string         `json:"schema_version"`
	PlanID           string         `json:"plan_id"`
	MessageID        string         `json:"message_id"`
	TaskID           string         `json:"task_id"`
	CommandID        string         `json:"command_id"`
	CommandSeq       int64          `json:"command_seq"`
	ConsumerAgentID  string         `json:"consumer_agent_id"`
	Status           AckStatus      `json:"status"`
	ConsumedAt       string         `json:"consumed_at,omitempty"`
	FinishedAt       string         `json:"finished_at,omitempty"`
	Result           map[string]any `json:"result,omitempty"`
}

// TaskState is the per-task status record an agent maintains in its own
// outbox, and which the monitor prefers over ack-derived state whenever
// present.
type TaskState string

const (
	TaskPending               TaskState = "PENDING"
	TaskReady                 TaskState = "READY"
	TaskRunning               TaskState = "RUNNING"
	TaskBlockedWaitingInput   TaskState = "BLOCKED_WAITING_INPUT"
	TaskBlockedWaitingHuman   TaskState = "BLOCKED_WAITING_HUMAN"
	TaskBlockedWaitingReview  TaskState = "BLOCKED_WAITING_REVIEW"
	TaskCompleted             TaskState = "COMPLETED"
	TaskFailed                TaskState = "FAILED"
)

// Blocking describes why a task is currently blocked, carried on the
// TaskStateRecord so the monitor can surface the reason without
// re-deriving it.
type Blocking struct {
	Reason         string  `json:"reason"`
	StartedAt      string  `json:"started_at,omitempty"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
	Multiplier     float64 `json:"multiplier,omitempty"`
	ConsumedAt     string  `json:"consumed_at,omitempty"`
	RequestID      string  `json:"request_id,omitempty"`
}

// TaskStateRecord is the full task_state_<task_id>.json document.
type TaskStateRecord struct {
	SchemaVersion string         `json:"schema_version"`
	PlanID        string         `json:"plan_id"`
	TaskID        string         `json:"task_id"`
	AgentID       string         `json:"agent_id"`
	State         TaskState      `json:"state"`
	UpdatedAt     string         `json:"updated_at"`
	MessageID     string         `json:"message_id,omitempty"`
	CommandID     string         `json:"command_id,omitempty"`
	CommandSeq    int64          `json:"command_seq,omitempty"`
	Blocking      *Blocking      `json:"blocking,omitempty"`
	Progress      map[string]any `json:"progress,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
}

// InputIndexFileEntry records one file stored against a delivered input.
type InputIndexFileEntry struct {
	Path     string `json:"path"`
	SHA256   string `json:"sha256"`
	StoredAt string `json:"stored_at"`
}

// InputIndexEntry groups the files delivered by a single message.
type InputIndexEntry struct {
	MessageID  string                `json:"message_id"`
	TaskID     string                `json:"task_id,omitempty"`
	OutputName string                `json:"output_name,omitempty"`
	ReceivedAt string                `json:"received_at,omitempty"`
	Files      []InputIndexFileEntry `json:"files"`
}

// InputIndex is the full input_index.json document an agent maintains
// under workspace/<plan>/inputs/, recording every artifact delivered into
// its workspace.
type InputIndex struct {
	SchemaVersion string            `json:"schema_version,omitempty"`
	PlanID        string            `json:"plan_id,omitempty"`
	AgentID       string            `json:"agent_id,omitempty"`
	UpdatedAt     string            `json:"updated_at,omitempty"`
	Entries       []InputIndexEntry `json:"entries"`
}
