package heartbeat

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/handler"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// missingInputsForCommand resolves a command's declared inputs against the
// agent's input_index.json lookup, falling back to direct workspace and
// per-task workdir paths the same way the original substrate does, so a
// downstream task can reference an input by bare filename regardless of
// which task produced it.
func (h *Heartbeat) missingInputsForCommand(planID string, cmd *message.Command) []string {
	lookup := buildInputLookup(h.paths.InputIndex(planID))
	workspaceInputs := h.paths.WorkspaceInputs(planID)
	taskWorkdir := h.paths.TaskWorkdir(planID, cmd.TaskID)

	exists := func(p string) bool {
		if stored, ok := lookup[p]; ok && fsatomic.Exists(stored) {
			return true
		}
		rel, err := fsatomic.SafeRelPath(p)
		if err != nil {
			return false
		}
		if fsatomic.Exists(filepath.Join(workspaceInputs, rel)) {
			return true
		}
		return fsatomic.Exists(filepath.Join(taskWorkdir, rel))
	}
	return message.MissingResolvedOrRequiredInputs(cmd, exists)
}

// executeCommand drives one command envelope through the wait-for-inputs
// gate (with the sticky BLOCKED_WAITING_HUMAN state the monitor and router
// must never re-evaluate past) and, once its inputs are satisfied, the
// pluggable handler. Every outcome — blocked, succeeded, failed — is
// recorded via an ack plus a task_state document; executeCommand itself
// never returns an error, since every failure mode here has its own
// terminal state to write instead of aborting the tick.
func (h *Heartbeat) executeCommand(ctx context.Context, planID string, env *message.Envelope) {
	cmd := env.Payload.Command
	if cmd == nil {
		_ = h.alerts.Alert(planID, errs.CodeEnvelopeInvalid, "command envelope missing payload.command", nil)
		return
	}

	missing := h.missingInputsForCommand(planID, cmd)
	if len(missing) > 0 && cmd.WaitForInputs {
		existing, hadState := readTaskState(h.paths.TaskStatePath(planID, cmd.TaskID))
		if hadState && existing.State == message.TaskBlockedWaitingHuman {
			// sticky while the inputs stay missing: the wait-for-inputs
			// timeout is never re-evaluated once escalated to a human.
			// Once the human-gateway round trip delivers the inputs,
			// missing is empty and execution proceeds below.
			return
		}
		h.blockOnMissingInputs(planID, env, cmd, existing, hadState, missing)
		return
	}

	h.runHandler(ctx, planID, env, cmd)
}

func (h *Heartbeat) blockOnMissingInputs(planID string, env *message.Envelope, cmd *message.Command, existing message.TaskStateRecord, hadState bool, missing []string) {
	now := h.now()

	startedAt := ""
	if hadState && existing.Blocking != nil {
		startedAt = existing.Blocking.StartedAt
	}
	if startedAt == "" {
		startedAt = env.CreatedAt
		if startedAt == "" {
			startedAt = now
		}
		taskStatePathExisted := fsatomic.Exists(h.paths.TaskStatePath(planID, cmd.TaskID))
		if taskStatePathExisted && !hadState {
			_ = h.alerts.Alert(planID, errs.CodeTaskStateCorruptFallback, "task_state is missing or corrupted; falling back to envelope.created_at for started_at", map[string]any{
				"task_id": cmd.TaskID, "command_id": cmd.CommandID, "message_id": env.MessageID,
			})
		}
	}

	_ = writeTaskState(h.paths.TaskStatePath(planID, cmd.TaskID), message.TaskStateRecord{
		SchemaVersion: message.SchemaVersion,
		PlanID:        planID,
		TaskID:        cmd.TaskID,
		AgentID:       h.AgentID,
		State:         message.TaskBlockedWaitingInput,
		UpdatedAt:     now,
		MessageID:     env.MessageID,
		CommandID:     cmd.CommandID,
		CommandSeq:    cmd.CommandSeq,
		Blocking: &message.Blocking{
			Reason:    "MISSING_INPUTS",
			StartedAt: startedAt,
		},
	})

	waited := 0.0
	if startedDT, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		waited = h.Clock.Now().Sub(startedDT).Seconds()
	}

	if waited < cmd.TimeoutSeconds {
		return
	}

	requestID := h.IDs.NewHumanRequestID()
	_ = fsatomic.WriteJSON(filepath.Join(h.paths.OutboxPlan(planID), "human_intervention_request_"+requestID+".json"), message.HumanRequest{
		SchemaVersion:     message.SchemaVersion,
		RequestID:         requestID,
		PlanID:            planID,
		TaskID:            cmd.TaskID,
		CommandID:         cmd.CommandID,
		RequestingAgentID: h.AgentID,
		Reason:            "WAIT_FOR_INPUTS_TIMEOUT",
		CreatedAt:         now,
	})

	_ = writeTaskState(h.paths.TaskStatePath(planID, cmd.TaskID), message.TaskStateRecord{
		SchemaVersion: message.SchemaVersion,
		PlanID:        planID,
		TaskID:        cmd.TaskID,
		AgentID:       h.AgentID,
		State:         message.TaskBlockedWaitingHuman,
		UpdatedAt:     now,
		MessageID:     env.MessageID,
		CommandID:     cmd.CommandID,
		CommandSeq:    cmd.CommandSeq,
		Blocking: &message.Blocking{
			Reason:    "WAIT_FOR_INPUTS_TIMEOUT",
			RequestID: requestID,
		},
	})

	_ = h.alerts.Alert(planID, errs.CodeWaitForInputsTimeout, "wait_for_inputs timeout", map[string]any{
		"task_id": cmd.TaskID, "command_id": cmd.CommandID, "message_id": env.MessageID, "missing": missing,
	})
}

func (h *Heartbeat) runHandler(ctx context.Context, planID string, env *message.Envelope, cmd *message.Command) {
	now := h.now()
	_ = writeAck(h.paths.AckPath(planID, env.MessageID), message.Ack{
		SchemaVersion:   message.SchemaVersion,
		PlanID:          planID,
		MessageID:       env.MessageID,
		TaskID:          cmd.TaskID,
		CommandID:       cmd.CommandID,
		CommandSeq:      cmd.CommandSeq,
		ConsumerAgentID: h.AgentID,
		Status:          message.AckConsumed,
		ConsumedAt:      now,
	})
	_ = writeTaskState(h.paths.TaskStatePath(planID, cmd.TaskID), message.TaskStateRecord{
		SchemaVersion: message.SchemaVersion,
		PlanID:        planID,
		TaskID:        cmd.TaskID,
		AgentID:       h.AgentID,
		State:         message.TaskRunning,
		UpdatedAt:     now,
		MessageID:     env.MessageID,
		CommandID:     cmd.CommandID,
		CommandSeq:    cmd.CommandSeq,
	})

	produces := make([]handler.ProducesSpec, 0, len(cmd.Produces))
	for _, p := range cmd.Produces {
		spec := handler.ProducesSpec{OutputName: p.OutputName}
		for _, f := range p.Files {
			spec.Files = append(spec.Files, handler.ProducesFileSpec{Path: f.Path, ContentType: f.ContentType})
		}
		produces = append(produces, spec)
	}
	result, artifacts, err := h.Handler.HandleCommand(ctx, handler.Command{
		PlanID:    planID,
		TaskID:    cmd.TaskID,
		CommandID: cmd.CommandID,
		Prompt:    cmd.Prompt,
		Produces:  produces,
	})
	finished := h.now()

	if err != nil {
		result = handler.Result{OK: false, Details: map[string]any{"error": err.Error()}}
	}

	if result.OK {
		var writtenOutputs []string
		for _, a := range artifacts {
			if writeErr := h.writeArtifactToOutbox(planID, cmd.TaskID, cmd.CommandID, a); writeErr == nil {
				writtenOutputs = append(writtenOutputs, a.OutputName)
			}
		}
		details := stripRawBytes(result.Details)
		if details == nil {
			details = map[string]any{}
		}
		if writtenOutputs != nil {
			details["artifacts"] = writtenOutputs
		}
		_ = writeAck(h.paths.AckPath(planID, env.MessageID), message.Ack{
			SchemaVersion: message.SchemaVersion, PlanID: planID, MessageID: env.MessageID,
			TaskID: cmd.TaskID, CommandID: cmd.CommandID, CommandSeq: cmd.CommandSeq,
			ConsumerAgentID: h.AgentID, Status: message.AckSucceeded,
			ConsumedAt: now, FinishedAt: finished,
			Result: map[string]any{"ok": true, "details": details},
		})
		_ = writeTaskState(h.paths.TaskStatePath(planID, cmd.TaskID), message.TaskStateRecord{
			SchemaVersion: message.SchemaVersion, PlanID: planID, TaskID: cmd.TaskID, AgentID: h.AgentID,
			State: message.TaskCompleted, UpdatedAt: finished,
			MessageID: env.MessageID, CommandID: cmd.CommandID, CommandSeq: cmd.CommandSeq,
			Result: map[string]any{"ok": true, "details": details},
		})
		return
	}

	failedDetails := stripRawBytes(result.Details)
	_ = writeAck(h.paths.AckPath(planID, env.MessageID), message.Ack{
		SchemaVersion: message.SchemaVersion, PlanID: planID, MessageID: env.MessageID,
		TaskID: cmd.TaskID, CommandID: cmd.CommandID, CommandSeq: cmd.CommandSeq,
		ConsumerAgentID: h.AgentID, Status: message.AckFailed,
		ConsumedAt: now, FinishedAt: finished,
		Result: map[string]any{"ok": false, "details": failedDetails},
	})
	_ = writeTaskState(h.paths.TaskStatePath(planID, cmd.TaskID), message.TaskStateRecord{
		SchemaVersion: message.SchemaVersion, PlanID: planID, TaskID: cmd.TaskID, AgentID: h.AgentID,
		State: message.TaskFailed, UpdatedAt: finished,
		MessageID: env.MessageID, CommandID: cmd.CommandID, CommandSeq: cmd.CommandSeq,
		Result: map[string]any{"ok": false, "details": failedDetails},
	})
}

// stripRawBytes replaces any []byte values nested in handler detail maps
// with a size placeholder, so an acknowledgment receipt never embeds
// artifact content.
func stripRawBytes(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out, _ := stripRawBytesValue(details).(map[string]any)
	return out
}

func stripRawBytesValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return fmt.Sprintf("<%d bytes stripped>", len(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = stripRawBytesValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stripRawBytesValue(val)
		}
		return out
	default:
		return t
	}
}

// writeArtifactToOutbox writes one produced artifact's files followed by
// its envelope to the agent's own outbox, for the router to pick up and
// deliver, per the "payload before envelope" visibility rule.
func (h *Heartbeat) writeArtifactToOutbox(planID, taskID, commandID string, a handler.ProducedArtifact) error {
	outboxPlan := h.paths.OutboxPlan(planID)
	messageID := h.IDs.NewMessageID()

	payloadFiles := make([]message.PayloadFile, 0, len(a.Files))
	for _, f := range a.Files {
		rel, err := fsatomic.SafeRelPath(f.RelPath)
		if err != nil {
			return err
		}
		dst := filepath.Join(outboxPlan, rel)
		if err := fsatomic.WriteBytes(dst, f.Data); err != nil {
			return err
		}
		payloadFiles = append(payloadFiles, message.PayloadFile{
			Path:   rel,
			SHA256: fsatomic.BytesSHA256(f.Data),
			Size:   int64(len(f.Data)),
		})
	}

	env := message.Envelope{
		SchemaVersion:   message.SchemaVersion,
		MessageID:       messageID,
		PlanID:          planID,
		ProducerAgentID: h.AgentID,
		Type:            message.TypeArtifact,
		CreatedAt:       h.now(),
		TaskID:          taskID,
		OutputName:      a.OutputName,
		CommandID:       commandID,
		Correlation:     map[string]any{"parent_command_id": commandID},
		Payload:         message.Payload{Files: payloadFiles},
	}
	envelopeName := "artifact_" + taskID + "_" + a.OutputName + "_" + messageID + ".msg.json"
	return fsatomic.WriteJSON(filepath.Join(outboxPlan, envelopeName), env)
}
