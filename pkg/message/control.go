package message

// Alert is written to system_runtime/alerts/<plan>/<alert_id>.json whenever
// a daemon notices something worth surfacing to an operator without
// halting the tick that found it.
type Alert struct {
	SchemaVersion string `json:"schema_version"`
	AlertID       string `json:"alert_id"`
	PlanID        string `json:"plan_id"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	CreatedAt     string `json:"created_at"`
	Context       map[string]any `json:"context,omitempty"`
}

// DeadLetter is written to system_runtime/deadletter/<plan>/<dlq_id>.json
// for any envelope or archive write that cannot be processed.
type DeadLetter struct {
	SchemaVersion   string         `json:"schema_version"`
	DeadLetterID    string         `json:"dlq_id"`
	PlanID          string         `json:"plan_id"`
	Code            string         `json:"code"`
	Message         string         `json:"message"`
	CreatedAt       string         `json:"created_at"`
	SourcePath      string         `json:"source_path,omitempty"`
	OriginalPayload map[string]any `json:"original_payload,omitempty"`
}

// HumanRequest is archived under human_requests/ whenever an agent asks
// for human intervention, and delivered into agent_human_gateway's inbox.
type HumanRequest struct {
	SchemaVersion     string `json:"schema_version"`
	RequestID         string `json:"request_id"`
	PlanID            string `json:"plan_id"`
	TaskID            string `json:"task_id,omitempty"`
	CommandID         string `json:"command_id,omitempty"`
	RequestingAgentID string `json:"requesting_agent_id"`
	Reason            string `json:"reason,omitempty"`
	CreatedAt         string `json:"created_at"`
}

// HumanProvidedFile names one operator-supplied file inside a
// HumanResponse: the file itself sits in the gateway agent's outbox for
// this plan, and deliver_to_agent_id says whose inbox it is injected into.
type HumanProvidedFile struct {
	Name             string `json:"name"`
	DeliverToAgentID string `json:"deliver_to_agent_id"`
	Description      string `json:"description,omitempty"`
}

// HumanResponse is written into the human gateway agent's outbox once an
// operator has ruled on a HumanRequest. Only decision "PROVIDE" with a
// non-empty provided_files list causes injection; any other decision just
// marks the request processed.
type HumanResponse struct {
	SchemaVersion string              `json:"schema_version"`
	RequestID     string              `json:"request_id"`
	PlanID        string              `json:"plan_id"`
	Decision      string              `json:"decision"`
	RespondedAt   string              `json:"responded_at,omitempty"`
	ProvidedFiles []HumanProvidedFile `json:"provided_files,omitempty"`
	Notes         string              `json:"notes,omitempty"`
}

// DecisionSubject names what a DecisionRecord is about.
type DecisionSubject struct {
	Kind        string `json:"kind"`
	RefSHA256   string `json:"ref_sha256,omitempty"`
	RefRevision string `json:"ref_revision,omitempty"`
	TaskID      string `json:"task_id,omitempty"`
	OutputName  string `json:"output_name,omitempty"`
}

// DecisionRecord is a signed-by-name control-plane artifact capturing a
// gate decision (release, human approval, etc.).
type DecisionRecord struct {
	SchemaVersion       string          `json:"schema_version"`
	DecisionID          string          `json:"decision_id"`
	PlanID              string          `json:"plan_id"`
	DecisionType        string          `json:"decision_type"`
	Decision            string          `json:"decision"`
	DecidedByAgentID    string          `json:"decided_by_agent_id"`
	CreatedAt           string          `json:"created_at"`
	Subject             DecisionSubject `json:"subject"`
	MissingParticipants []string        `json:"missing_participants,omitempty"`
	EvidenceFiles       []string        `json:"evidence_files,omitempty"`
	Notes               string          `json:"notes,omitempty"`
	Signature           string          `json:"signature,omitempty"`
}

// EvidenceRef names one evidence file bundled into a release decision.
type EvidenceRef struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
}

// ReleaseManifest is the control-plane artifact recording a release gate
// evaluation's outcome and the evidence it was based on.
type ReleaseManifest struct {
	SchemaVersion         string        `json:"schema_version"`
	ReleaseID             string        `json:"release_id"`
	PlanID                string        `json:"plan_id"`
	CreatedAt             string        `json:"created_at"`
	ReleaseManagerAgentID string        `json:"release_manager_agent_id"`
	Artifacts             any           `json:"artifacts"`
	EvidenceRequired      []string      `json:"evidence_required"`
	EvidenceRefs          []EvidenceRef `json:"evidence_refs"`
	Decision              string        `json:"decision"`
	Notes                 string        `json:"notes,omitempty"`
	Signature             string        `json:"signature,omitempty"`
}

// PlanManifest is the static plan configuration document read once per
// release coordinator run (policies.release_gates_required in particular).
type PlanManifest struct {
	SchemaVersion string         `json:"schema_version"`
	PlanID        string         `json:"plan_id"`
	Policies      PlanPolicies   `json:"policies"`
}

// PlanPolicies groups plan-level policy configuration.
type PlanPolicies struct {
	ReleaseGatesRequired []string `json:"release_gates_required,omitempty"`
	ReleaseGateCEL       string   `json:"release_gate_cel,omitempty"`
}
