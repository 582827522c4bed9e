// Package message defines the wire shapes exchanged through agent
// inboxes and outboxes: envelopes (the transport unit), commands (the
// payload of a "command"-typed envelope), acks, and task states. These
// are plain JSON-tagged structs decoded with encoding/json, which ignores
// fields this module does not know about; envelope producers are
// independent agent processes that may add such fields.
//
// Naming note: this is distinct from the autonomy-boundary "envelope"
// concept used elsewhere in the agent-governance ecosystem this module's
// idioms are drawn from — here an Envelope is strictly the message
// transport unit.
package message

const SchemaVersion = "1.0"

// EnvelopeType enumerates the two kinds of envelope the router and
// heartbeat understand. Any other value is dead-lettered: by the router as
// UNSUPPORTED_MESSAGE_TYPE, by the heartbeat as ENVELOPE_INVALID.
type EnvelopeType string

const (
	TypeCommand  EnvelopeType = "command"
	TypeArtifact EnvelopeType = "artifact"
)

// PayloadFile describes one file attached to an envelope's payload,
// relative to the envelope's own declared root.
type PayloadFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

// Envelope is the transport unit written to an agent's outbox and, once
// routed, copied into zero or more agent inboxes.
type Envelope struct {
	SchemaVersion    string         `json:"schema_version"`
	MessageID        string         `json:"message_id"`
	PlanID           string         `json:"plan_id"`
	ProducerAgentID  string         `json:"producer_agent_id"`
	Type             EnvelopeType   `json:"type"`
	CreatedAt        string         `json:"created_at"`
	TaskID           string         `json:"task_id,omitempty"`
	OutputName       string         `json:"output_name,omitempty"`
	CommandID        string         `json:"command_id,omitempty"`
	Subtype          string         `json:"subtype,omitempty"`
	Correlation      map[string]any `json:"correlation,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	Payload          Payload        `json:"payload"`
}

// Payload carries either a command document (for type=="command") or a
// list of files (for type=="artifact"). Both fields are optional so a
// single struct can decode either shape.
type Payload struct {
	Command *Command      `json:"command,omitempty"`
	Files   []PayloadFile `json:"files,omitempty"`
}

// Command is the body of a command-typed envelope's payload.
type Command struct {
	PlanID         string           `json:"plan_id"`
	TaskID         string           `json:"task_id"`
	CommandID      string           `json:"command_id"`
	CommandSeq     int64            `json:"command_seq"`
	DagRef         *DagRef          `json:"dag_ref,omitempty"`
	Prompt         string           `json:"prompt,omitempty"`
	Produces       []ProducesEntry  `json:"produces,omitempty"`
	WaitForInputs  bool             `json:"wait_for_inputs,omitempty"`
	TimeoutSeconds float64          `json:"timeout_seconds,omitempty"`
	RequiredInputs []string         `json:"required_inputs,omitempty"`
	ResolvedInputs []ResolvedInput  `json:"resolved_inputs,omitempty"`
	ScoreRequired  bool             `json:"score_required,omitempty"`
}

// DagRef pins the command to the DAG content hash that produced it, so the
// router can detect stale commands issued against a superseded DAG.
type DagRef struct {
	SHA256 string `json:"sha256"`
}

// ProducesEntry names one artifact output a command is expected to write,
// with the files the output should consist of.
type ProducesEntry struct {
	OutputName string         `json:"output_name"`
	Files      []ProducesFile `json:"files,omitempty"`
}

// ProducesFile declares one file path an output is expected to produce.
type ProducesFile struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type,omitempty"`
}

// ResolvedInput is the richer alternative to RequiredInputs: a named input
// satisfied if any of its candidate Paths exists.
type ResolvedInput struct {
	InputName   string   `json:"input_name"`
	Paths       []string `json:"paths"`
	Required    bool     `json:"required"`
	Description string   `json:"description,omitempty"`
	Sensitivity string   `json:"sensitivity,omitempty"`
}
