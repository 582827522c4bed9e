package message

import (
	"fmt"
	"path"
	"strings"

	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

const DagSchemaVersion = "1.1"

// InputSelector describes how a DAG node's input requirement is matched
// against delivered artifacts.
type InputSelector struct {
	By         string `json:"by"` // by_output_name | by_file_name | by_glob
	OutputName string `json:"output_name,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	Glob       string `json:"glob,omitempty"`
}

// DeliverToTarget names one (output_name) -> (agent_id) routing rule.
type DeliverToTarget struct {
	OutputName string   `json:"output_name"`
	AgentIDs   []string `json:"agent_ids"`
}

// Node is one task in the DAG.
type Node struct {
	TaskID        string            `json:"task_id"`
	AssignedAgent string            `json:"assigned_agent_id"`
	DependsOn     []string          `json:"depends_on,omitempty"`
	Inputs        []InputSelector   `json:"inputs,omitempty"`
	RequiredInputs []string         `json:"required_inputs,omitempty"`
	DeliverTo     []DeliverToTarget `json:"deliver_to,omitempty"`
}

// Dag is the parsed task_dag.json document plus lookup indexes built at
// parse time.
type Dag struct {
	SchemaVersion string `json:"schema_version"`
	PlanID        string `json:"plan_id"`
	Nodes         []Node `json:"nodes"`

	nodeByTaskID map[string]*Node
}

// ActiveDagRef is the parsed active_dag_ref.json document: a pointer
// asserting which DAG content hash is currently authoritative for a plan.
type ActiveDagRef struct {
	PlanID        string `json:"plan_id"`
	TaskDagSHA256 string `json:"task_dag_sha256"`
}

// ParseDag validates schema_version and required top-level fields, then
// builds the task_id lookup index.
func ParseDag(d Dag) (*Dag, error) {
	if d.SchemaVersion != DagSchemaVersion {
		return nil, errs.New(errs.CodeDagInvalid, "unsupported dag schema_version %q", d.SchemaVersion)
	}
	if d.PlanID == "" {
		return nil, errs.New(errs.CodeDagInvalid, "missing plan_id")
	}
	idx := make(map[string]*Node, len(d.Nodes))
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.TaskID == "" {
			return nil, errs.New(errs.CodeDagInvalid, "node %d missing task_id", i)
		}
		idx[n.TaskID] = n
	}
	d.nodeByTaskID = idx
	return &d, nil
}

// NodeByTaskID looks up a node, returning DAG_TASK_NOT_FOUND if absent.
func (d *Dag) NodeByTaskID(taskID string) (*Node, error) {
	n, ok := d.nodeByTaskID[taskID]
	if !ok {
		return nil, errs.New(errs.CodeDagTaskNotFound, "task_id %q not found in dag", taskID)
	}
	return n, nil
}

// AssignedAgentForTask resolves the agent responsible for executing taskID.
func (d *Dag) AssignedAgentForTask(taskID string) (string, error) {
	n, err := d.NodeByTaskID(taskID)
	if err != nil {
		return "", err
	}
	if n.AssignedAgent == "" {
		return "", errs.New(errs.CodeDagTaskNoAssignee, "task_id %q has no assigned_agent_id", taskID)
	}
	return n.AssignedAgent, nil
}

// DeliverToForOutput resolves which agents should receive an artifact
// produced by taskID/outputName.
func (d *Dag) DeliverToForOutput(taskID, outputName string) ([]string, error) {
	n, err := d.NodeByTaskID(taskID)
	if err != nil {
		return nil, err
	}
	for _, t := range n.DeliverTo {
		if t.OutputName == outputName {
			return t.AgentIDs, nil
		}
	}
	return nil, errs.New(errs.CodeDagOutputNotFound, "task_id %q has no deliver_to for output %q", taskID, outputName)
}

// InputsSatisfied reports whether every declared input selector (or, for
// nodes using the simpler shape, every required_inputs filename) matches
// at least one of the provided delivered (task_id,output_name) pairs and
// file names.
func (n *Node) InputsSatisfied(deliveredOutputs map[[2]string]bool, deliveredFiles map[string]bool) bool {
	if len(n.Inputs) > 0 {
		for _, sel := range n.Inputs {
			if !selectorSatisfied(sel, deliveredOutputs, deliveredFiles) {
				return false
			}
		}
		return true
	}
	if len(n.RequiredInputs) > 0 {
		for _, f := range n.RequiredInputs {
			if !deliveredFiles[f] {
				return false
			}
		}
		return true
	}
	return true
}

func selectorSatisfied(sel InputSelector, deliveredOutputs map[[2]string]bool, deliveredFiles map[string]bool) bool {
	switch sel.By {
	case "by_output_name":
		for key := range deliveredOutputs {
			if key[1] == sel.OutputName {
				return true
			}
		}
		return false
	case "by_file_name":
		return deliveredFiles[sel.FileName]
	case "by_glob":
		for f := range deliveredFiles {
			if ok, _ := path.Match(sel.Glob, f); ok {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// ParseActiveDagRef decodes and validates the minimal active_dag_ref shape.
func ParseActiveDagRef(r ActiveDagRef) (*ActiveDagRef, error) {
	if r.PlanID == "" || r.TaskDagSHA256 == "" {
		return nil, errs.New(errs.CodeDagInvalid, "active_dag_ref missing plan_id or task_dag_sha256")
	}
	return &r, nil
}

// MissingResolvedOrRequiredInputs computes, for a command, which of its
// declared inputs are not yet satisfied, asking the caller's exists
// predicate about each candidate path. Supports both the resolved_inputs and required_inputs shapes, per the
// substrate's dual-shape convention.
func MissingResolvedOrRequiredInputs(cmd *Command, exists func(candidatePath string) bool) []string {
	var missing []string
	if len(cmd.ResolvedInputs) > 0 {
		for _, ri := range cmd.ResolvedInputs {
			if !ri.Required {
				continue
			}
			satisfied := false
			for _, p := range ri.Paths {
				if exists(p) {
					satisfied = true
					break
				}
			}
			if !satisfied {
				missing = append(missing, ri.InputName)
			}
		}
		return missing
	}
	for _, f := range cmd.RequiredInputs {
		if !exists(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// FormatMissing renders a missing-inputs list for inclusion in an alert
// message, matching the substrate's habit of embedding the offending list
// directly in free text rather than a separate structured field.
func FormatMissing(missing []string) string {
	return fmt.Sprintf("[%s]", strings.Join(missing, ", "))
}
