package monitor

import (
	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// loadCurrentDag applies the same active_dag_ref.json/task_dag.json
// hash-pinning verification the router uses before it will route a single
// envelope: a plan whose DAG reference does not match the DAG content on
// disk is a hard error for this tick, not a partial result.
func (m *Monitor) loadCurrentDag(planID string) (*message.Dag, error) {
	plan := m.Roots.Plan(planID)

	var rawDag message.Dag
	if err := fsatomic.ReadJSON(plan.TaskDag(), &rawDag); err != nil {
		return nil, errs.New(errs.CodeDagInvalid, "reading task_dag.json: %v", err)
	}
	dagSHA, err := fsatomic.FileSHA256(plan.TaskDag())
	if err != nil {
		return nil, errs.New(errs.CodeDagInvalid, "hashing task_dag.json: %v", err)
	}

	var ref message.ActiveDagRef
	if err := fsatomic.ReadJSON(plan.ActiveDagRef(), &ref); err != nil {
		return nil, errs.New(errs.CodeDagInvalid, "reading active_dag_ref.json: %v", err)
	}
	parsedRef, err := message.ParseActiveDagRef(ref)
	if err != nil {
		return nil, err
	}
	if parsedRef.TaskDagSHA256 != dagSHA {
		return nil, errs.New(errs.CodeActiveDagRefMismatch, "active_dag_ref sha %q != task_dag.json sha %q", parsedRef.TaskDagSHA256, dagSHA)
	}

	return message.ParseDag(rawDag)
}
