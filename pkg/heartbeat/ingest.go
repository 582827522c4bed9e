package heartbeat

import (
	"path/filepath"

	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// ingestArtifact materializes an artifact envelope's payload files into the
// owning agent's workspace at inputs/<task_id>/<output_name>/..., updates
// the input index, writes a SUCCEEDED ack, and finalizes the raw inbox
// payload files into .processed/_payload/<message_id>/.
func (h *Heartbeat) ingestArtifact(planID string, env *message.Envelope) error {
	inboxPlan := h.paths.InboxPlan(planID)
	workspaceInputs := h.paths.WorkspaceInputs(planID)

	if env.TaskID == "" || env.OutputName == "" {
		return errs.New(errs.CodeEnvelopeInvalid, "artifact must include task_id/output_name")
	}

	var stored []message.InputIndexFileEntry
	now := h.now()
	for _, f := range env.Payload.Files {
		rel, err := fsatomic.SafeRelPath(f.Path)
		if err != nil {
			return errs.New(errs.CodeUnsafePath, "payload path %q: %v", f.Path, err)
		}
		src := filepath.Join(inboxPlan, rel)
		if !fsatomic.Exists(src) {
			return errs.New(errs.CodeMissingPayload, "missing payload file: %s", rel)
		}
		dst := filepath.Join(workspaceInputs, env.TaskID, env.OutputName, rel)
		if fsatomic.Exists(dst) {
			dstSHA, _ := fsatomic.FileSHA256(dst)
			if dstSHA != f.SHA256 {
				_ = h.alerts.Alert(planID, errs.CodeInputConflict, "input conflict: same path different sha256", map[string]any{
					"task_id": env.TaskID, "output_name": env.OutputName, "message_id": env.MessageID, "path": rel,
				})
				return errs.New(errs.CodeInputConflict, "input conflict on %s", rel)
			}
		} else if err := fsatomic.Copy(src, dst); err != nil {
			return err
		}
		stored = append(stored, message.InputIndexFileEntry{Path: rel, SHA256: f.SHA256, StoredAt: dst})
	}

	if err := appendInputIndexEntry(h.paths.InputIndex(planID), planID, h.AgentID, now, message.InputIndexEntry{
		MessageID:  env.MessageID,
		TaskID:     env.TaskID,
		OutputName: env.OutputName,
		ReceivedAt: now,
		Files:      stored,
	}); err != nil {
		return err
	}

	fileNames := make([]string, 0, len(stored))
	for _, s := range stored {
		fileNames = append(fileNames, s.Path)
	}
	if err := writeAck(h.paths.AckPath(planID, env.MessageID), message.Ack{
		SchemaVersion:   message.SchemaVersion,
		PlanID:          planID,
		MessageID:       env.MessageID,
		TaskID:          env.TaskID,
		ConsumerAgentID: h.AgentID,
		Status:          message.AckSucceeded,
		ConsumedAt:      now,
		FinishedAt:      now,
		Result:          map[string]any{"ok": true, "details": map[string]any{"ingested_files": fileNames}},
	}); err != nil {
		return err
	}

	return h.finalizePayloads(planID, env)
}

// finalizePayloads moves an envelope's raw payload files out of the inbox
// plan root into .processed/_payload/<message_id>/, so the inbox directory
// scan never sees them again. A path already finalized with a different
// sha256 than both the expected and source hash is routed to
// .deadletter/_payload_conflict/ instead, matching the substrate's
// conflict-over-overwrite rule.
func (h *Heartbeat) finalizePayloads(planID string, env *message.Envelope) error {
	inboxPlan := h.paths.InboxPlan(planID)
	processedPayloadDir := h.paths.ProcessedPayload(planID)

	for _, f := range env.Payload.Files {
		rel, err := fsatomic.SafeRelPath(f.Path)
		if err != nil {
			return errs.New(errs.CodeUnsafePath, "payload path %q: %v", f.Path, err)
		}
		src := filepath.Join(inboxPlan, rel)
		if !fsatomic.Exists(src) {
			continue
		}
		dst := filepath.Join(processedPayloadDir, env.MessageID, rel)
		if fsatomic.Exists(dst) {
			if f.SHA256 != "" {
				dstSHA, _ := fsatomic.FileSHA256(dst)
				if dstSHA == f.SHA256 {
					continue
				}
				if srcSHA, _ := fsatomic.FileSHA256(src); dstSHA == srcSHA {
					continue
				}
			}
			_ = h.alerts.Alert(planID, errs.CodePayloadFinalizeConflict, "payload finalize conflict: same path different sha256", map[string]any{
				"message_id": env.MessageID, "path": rel,
			})
			conflictDst := filepath.Join(h.paths.DeadletterPayloadConflict(planID), env.MessageID, rel)
			if err := fsatomic.Move(src, conflictDst); err != nil {
				return err
			}
			continue
		}
		if err := fsatomic.Move(src, dst); err != nil {
			return err
		}
	}
	return nil
}
