package monitor

import (
	"path/filepath"

	"github.com/jiazeyu1987/AgentTalk/pkg/deliverylog"
	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// archivedCommand pairs a parsed command envelope with the archive
// filename it was read from, for alert context.
type archivedCommand struct {
	Envelope *message.Envelope
	Command  *message.Command
	FileName string
}

// loadArchivedCommands reads every command envelope archived under the
// plan's commands/ directory.
func (m *Monitor) loadArchivedCommands(planID string) ([]archivedCommand, error) {
	dir := m.Roots.Plan(planID).Commands()
	files, err := fsatomic.ListReadyFiles(dir, ".msg.json")
	if err != nil {
		return nil, err
	}
	out := make([]archivedCommand, 0, len(files))
	for _, f := range files {
		var env message.Envelope
		if err := fsatomic.ReadJSON(filepath.Join(dir, f), &env); err != nil {
			continue
		}
		if env.Payload.Command == nil {
			continue
		}
		out = append(out, archivedCommand{Envelope: &env, Command: env.Payload.Command, FileName: f})
	}
	return out, nil
}

// latestCommandForTask returns the archived command with the highest
// command_seq for taskID, used by the derived-state tier to check
// wait_for_inputs and required inputs against the most recent
// command issued to a task that has no task_state or ack evidence yet.
func latestCommandForTask(archived []archivedCommand, taskID string) *message.Command {
	var best *message.Command
	for _, a := range archived {
		if a.Command.TaskID != taskID {
			continue
		}
		if best == nil || a.Command.CommandSeq > best.CommandSeq {
			best = a.Command
		}
	}
	return best
}

// commandByID finds the archived command with the given command_id.
func commandByID(archived []archivedCommand, commandID string) *message.Command {
	if commandID == "" {
		return nil
	}
	for _, a := range archived {
		if a.Command.CommandID == commandID {
			return a.Command
		}
	}
	return nil
}

// buildMessageTaskMap resolves, for every message_id this plan has any
// evidence for, which task_id it belongs to. DELIVERED delivery-log
// entries are authoritative and populate the map directly (most delivery
// entries for commands already carry task_id). Any message_id missing
// from that pass is filled from the command archive, but only when the
// archived envelope and its embedded command agree with each other on
// both task_id and command_id; a disagreement there means the archive
// itself is internally inconsistent and must never silently contribute to
// status reconstruction.
func (m *Monitor) buildMessageTaskMap(planID string, entries []deliverylog.Entry, archived []archivedCommand) map[string]string {
	out := make(map[string]string)
	for _, e := range entries {
		if e.Status != deliverylog.StatusDelivered || e.TaskID == "" {
			continue
		}
		out[e.MessageID] = e.TaskID
	}
	for _, a := range archived {
		if _, ok := out[a.Envelope.MessageID]; ok {
			continue
		}
		if a.Envelope.TaskID != "" && a.Envelope.TaskID != a.Command.TaskID {
			_ = m.alerts.Alert(planID, errs.CodeCommandArchiveInconsistent,
				"archived command envelope task_id disagrees with embedded command task_id", map[string]any{
					"message_id": a.Envelope.MessageID, "envelope_task_id": a.Envelope.TaskID, "command_task_id": a.Command.TaskID,
				})
			continue
		}
		if a.Envelope.CommandID != "" && a.Envelope.CommandID != a.Command.CommandID {
			_ = m.alerts.Alert(planID, errs.CodeCommandArchiveInconsistent,
				"archived command envelope command_id disagrees with embedded command command_id", map[string]any{
					"message_id": a.Envelope.MessageID, "envelope_command_id": a.Envelope.CommandID, "command_command_id": a.Command.CommandID,
				})
			continue
		}
		out[a.Envelope.MessageID] = a.Command.TaskID
	}
	return out
}

// loadArchivedAcks reads every ack archived under the plan's acks/
// directory.
func (m *Monitor) loadArchivedAcks(planID string) ([]message.Ack, error) {
	dir := m.Roots.Plan(planID).Acks()
	files, err := fsatomic.ListReadyFiles(dir, ".json")
	if err != nil {
		return nil, err
	}
	out := make([]message.Ack, 0, len(files))
	for _, f := range files {
		var a message.Ack
		if err := fsatomic.ReadJSON(filepath.Join(dir, f), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// loadArchivedDecisions reads every decision record archived under the
// plan's decisions/ directory.
func (m *Monitor) loadArchivedDecisions(planID string) ([]message.DecisionRecord, error) {
	dir := m.Roots.Plan(planID).Decisions()
	files, err := fsatomic.ListReadyFiles(dir, ".json")
	if err != nil {
		return nil, err
	}
	out := make([]message.DecisionRecord, 0, len(files))
	for _, f := range files {
		var d message.DecisionRecord
		if err := fsatomic.ReadJSON(filepath.Join(dir, f), &d); err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// hasDecisionForTask reports whether any archived decision record has
// already ruled on taskID, regardless of outcome.
func hasDecisionForTask(decisions []message.DecisionRecord, taskID string) bool {
	for _, d := range decisions {
		if d.Subject.TaskID == taskID {
			return true
		}
	}
	return false
}

// bestAckForTask picks, among acks whose message_id maps to taskID, the
// one that should drive priority-2 status derivation: the highest
// command_seq, preferring a terminal status over CONSUMED at the same
// seq (a terminal result always supersedes an in-flight one reported for
// the same command).
func bestAckForTask(acks []message.Ack, msgToTask map[string]string, taskID string) (message.Ack, bool) {
	var best message.Ack
	found := false
	rank := func(a message.Ack) int {
		if a.Status == message.AckSucceeded || a.Status == message.AckFailed {
			return 1
		}
		return 0
	}
	for _, a := range acks {
		mappedTask := a.TaskID
		if mappedTask == "" {
			mappedTask = msgToTask[a.MessageID]
		}
		if mappedTask != taskID {
			continue
		}
		if !found {
			best, found = a, true
			continue
		}
		if a.CommandSeq > best.CommandSeq || (a.CommandSeq == best.CommandSeq && rank(a) > rank(best)) {
			best = a
		}
	}
	return best, found
}
