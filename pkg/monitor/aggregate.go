package monitor

import (
	"context"
	"path/filepath"

	"github.com/jiazeyu1987/AgentTalk/pkg/deliverylog"
	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

const ackTimeoutMultiplier = 2.0

func (m *Monitor) tickPlan(ctx context.Context, planID string) error {
	plan := m.Roots.Plan(planID)
	for _, dir := range []string{plan.AgentStatus(), plan.Commands(), plan.Acks(), plan.Decisions()} {
		if err := fsatomic.EnsureDir(dir); err != nil {
			return err
		}
	}

	if err := m.collectAgentStatuses(planID); err != nil {
		_ = m.alerts.Alert(planID, errs.CodeUnhandledException, "agent status collection: "+err.Error(), nil)
	}

	dag, err := m.loadCurrentDag(planID)
	if err != nil {
		if code, ok := errs.CodeOf(err); ok {
			_ = m.alerts.Alert(planID, code, err.Error(), nil)
		}
		return nil // no DAG, nothing to aggregate this tick
	}

	log := deliverylog.Open(plan.Root())
	entries, err := log.ReadEntries()
	if err != nil {
		return err
	}
	deliveredOutputs, deliveredFiles := deliverylog.DeliveredOutputs(entries)

	archivedCmds, err := m.loadArchivedCommands(planID)
	if err != nil {
		return err
	}
	msgToTask := m.buildMessageTaskMap(planID, entries, archivedCmds)

	acks, err := m.loadArchivedAcks(planID)
	if err != nil {
		return err
	}
	decisions, err := m.loadArchivedDecisions(planID)
	if err != nil {
		return err
	}

	completedTasks := make(map[string]bool)
	var tasks []message.TaskStatusEntry
	summary := message.BlockedSummary{}

	for _, node := range dag.Nodes {
		entry := m.deriveNodeStatus(planID, node, acks, msgToTask, archivedCmds, decisions, deliveredOutputs, deliveredFiles, completedTasks)
		tasks = append(tasks, entry)
		if entry.State == message.TaskCompleted {
			completedTasks[entry.TaskID] = true
		}
		switch entry.State {
		case message.TaskBlockedWaitingInput:
			summary.Input++
		case message.TaskBlockedWaitingReview:
			summary.Review++
		case message.TaskBlockedWaitingHuman:
			summary.Human++
		}
	}

	status := message.PlanStatus{
		SchemaVersion:  message.SchemaVersion,
		PlanID:         planID,
		GeneratedAt:    m.nowZ(),
		TaskDagSHA256:  dagSHAOrEmpty(plan),
		Tasks:          tasks,
		BlockedSummary: summary,
	}
	return fsatomic.WriteJSON(plan.PlanStatus(), status)
}

func dagSHAOrEmpty(plan interface{ TaskDag() string }) string {
	sha, err := fsatomic.FileSHA256(plan.TaskDag())
	if err != nil {
		return ""
	}
	return sha
}

// deriveNodeStatus implements the three-tier priority described in the
// monitor design: an agent's own task_state file always wins when
// present and parseable; failing that, the best archived ack for the
// task; failing that, a status inferred purely from the DAG shape (is it
// ready, still pending on dependencies, or blocked on a wait_for_inputs
// command whose inputs never arrived).
func (m *Monitor) deriveNodeStatus(
	planID string,
	node message.Node,
	acks []message.Ack,
	msgToTask map[string]string,
	archivedCmds []archivedCommand,
	decisions []message.DecisionRecord,
	deliveredOutputs map[[2]string]bool,
	deliveredFiles map[string]bool,
	completedTasks map[string]bool,
) message.TaskStatusEntry {
	if node.AssignedAgent != "" {
		path := m.Roots.Agent(node.AssignedAgent).TaskStatePath(planID, node.TaskID)
		var ts message.TaskStateRecord
		if err := fsatomic.ReadJSON(path, &ts); err == nil && ts.State != "" {
			return message.TaskStatusEntry{
				TaskID: node.TaskID, AssignedAgentID: node.AssignedAgent,
				State: ts.State, Source: message.SourceTaskState, UpdatedAt: ts.UpdatedAt,
				MessageID: ts.MessageID, CommandID: ts.CommandID, CommandSeq: ts.CommandSeq,
				Blocking: ts.Blocking, Result: ts.Result,
			}
		}
	}

	if ack, ok := bestAckForTask(acks, msgToTask, node.TaskID); ok {
		entry := message.TaskStatusEntry{
			TaskID: node.TaskID, AssignedAgentID: node.AssignedAgent,
			Source: message.SourceAck, UpdatedAt: ack.FinishedAt,
			MessageID: ack.MessageID, CommandID: ack.CommandID, CommandSeq: ack.CommandSeq,
		}
		switch ack.Status {
		case message.AckSucceeded:
			entry.State = message.TaskCompleted
			if cmd := commandByID(archivedCmds, ack.CommandID); cmd != nil && cmd.ScoreRequired && !hasDecisionForTask(decisions, node.TaskID) {
				entry.State = message.TaskBlockedWaitingReview
				entry.Blocking = &message.Blocking{Reason: "AWAITING_REVIEW"}
			}
		case message.AckFailed:
			entry.State = message.TaskFailed
		default:
			entry.State = message.TaskRunning
			if blocking := m.ackConsumedTimeoutBlocking(planID, ack, archivedCmds); blocking != nil {
				entry.Blocking = blocking
			}
		}
		return entry
	}

	return m.deriveFromDag(node, archivedCmds, deliveredOutputs, deliveredFiles, completedTasks)
}

// ackConsumedTimeoutBlocking flags a RUNNING task whose ack has been
// CONSUMED for more than 2x its command's declared timeout, the
// monitor-side companion to the heartbeat's own wait_for_inputs timeout.
func (m *Monitor) ackConsumedTimeoutBlocking(planID string, ack message.Ack, archivedCmds []archivedCommand) *message.Blocking {
	if ack.ConsumedAt == "" {
		return nil
	}
	consumedAt, err := parseISOZ(ack.ConsumedAt)
	if err != nil {
		return nil
	}
	var timeoutSeconds float64
	for _, a := range archivedCmds {
		if a.Command.CommandID == ack.CommandID {
			timeoutSeconds = a.Command.TimeoutSeconds
			break
		}
	}
	if timeoutSeconds <= 0 {
		return nil
	}
	elapsed := m.now().Sub(consumedAt).Seconds()
	if elapsed < ackTimeoutMultiplier*timeoutSeconds {
		return nil
	}
	_ = m.alerts.Alert(planID, errs.CodeCommandAckTimeout, "ack consumed without terminal status beyond 2x command timeout", map[string]any{
		"task_id": ack.TaskID, "command_id": ack.CommandID, "consumed_at": ack.ConsumedAt,
	})
	return &message.Blocking{
		Reason:         "TIMEOUT",
		TimeoutSeconds: timeoutSeconds,
		Multiplier:     ackTimeoutMultiplier,
		ConsumedAt:     ack.ConsumedAt,
	}
}

// deriveFromDag is the last-resort tier: no task_state, no ack evidence
// at all. It reasons purely from DAG shape plus whatever the command
// archive and delivery log already show.
func (m *Monitor) deriveFromDag(
	node message.Node,
	archivedCmds []archivedCommand,
	deliveredOutputs map[[2]string]bool,
	deliveredFiles map[string]bool,
	completedTasks map[string]bool,
) message.TaskStatusEntry {
	entry := message.TaskStatusEntry{TaskID: node.TaskID, AssignedAgentID: node.AssignedAgent, Source: message.SourceDerived}

	if cmd := latestCommandForTask(archivedCmds, node.TaskID); cmd != nil && cmd.WaitForInputs {
		missing := message.MissingResolvedOrRequiredInputs(cmd, func(p string) bool { return deliveredFiles[filepath.Base(p)] })
		if len(missing) > 0 {
			entry.State = message.TaskBlockedWaitingInput
			entry.Blocking = &message.Blocking{Reason: "MISSING_INPUTS"}
			return entry
		}
	}

	depsSatisfied := true
	for _, dep := range node.DependsOn {
		if !completedTasks[dep] {
			depsSatisfied = false
			break
		}
	}
	if depsSatisfied && node.InputsSatisfied(deliveredOutputs, deliveredFiles) {
		entry.State = message.TaskReady
	} else {
		entry.State = message.TaskPending
	}
	return entry
}
