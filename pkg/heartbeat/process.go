package heartbeat

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// processOneEnvelope claims name from the inbox via an atomic move into
// .pending/, validates and content-addresses it, and dispatches by type.
// On any parse/validation failure the file is moved to .deadletter/
// instead and an alert raised; the envelope is never left where a future
// tick's directory scan would pick it up again.
func (h *Heartbeat) processOneEnvelope(ctx context.Context, planID, name string) error {
	srcPath := filepath.Join(h.paths.InboxPlan(planID), name)
	claimedPath := filepath.Join(h.paths.Pending(planID), name)
	if err := fsatomic.Move(srcPath, claimedPath); err != nil {
		return err
	}

	var env message.Envelope
	if err := fsatomic.ReadJSON(claimedPath, &env); err != nil {
		deadPath := filepath.Join(h.paths.Deadletter(planID), name)
		_ = fsatomic.Move(claimedPath, deadPath)
		_ = h.alerts.Alert(planID, errs.CodeEnvelopeParseError, err.Error(), map[string]any{"file": name})
		return nil
	}
	if env.SchemaVersion != message.SchemaVersion {
		deadPath := filepath.Join(h.paths.Deadletter(planID), name)
		_ = fsatomic.Move(claimedPath, deadPath)
		_ = h.alerts.Alert(planID, errs.CodeSchemaVersionUnsupported, "unsupported envelope schema_version", map[string]any{"file": name})
		return nil
	}

	contentAddressedName := env.MessageID + "__" + name
	contentAddressedPath := filepath.Join(h.paths.Pending(planID), contentAddressedName)
	if claimedPath != contentAddressedPath {
		if fsatomic.Exists(contentAddressedPath) {
			// duplicate arrival of an in-flight message: keep both; the
			// terminal-ack check below (or the resume pass) settles them
			for n := 1; fsatomic.Exists(contentAddressedPath); n++ {
				contentAddressedName = fmt.Sprintf("%s__dup_%d__%s", env.MessageID, n, name)
				contentAddressedPath = filepath.Join(h.paths.Pending(planID), contentAddressedName)
			}
		}
		if err := fsatomic.Move(claimedPath, contentAddressedPath); err != nil {
			return err
		}
	}

	if h.terminalAck(planID, env.MessageID) {
		processedPath := filepath.Join(h.paths.Processed(planID), contentAddressedName)
		return fsatomic.Move(contentAddressedPath, processedPath)
	}

	switch env.Type {
	case message.TypeArtifact:
		if err := h.ingestArtifact(planID, &env); err != nil {
			code, ok := errs.CodeOf(err)
			if !ok {
				code = errs.CodeUnhandledException
			}
			_ = h.alerts.Alert(planID, code, err.Error(), map[string]any{"message_id": env.MessageID})
			deadPath := filepath.Join(h.paths.Deadletter(planID), contentAddressedName)
			return fsatomic.Move(contentAddressedPath, deadPath)
		}
		processedPath := filepath.Join(h.paths.Processed(planID), contentAddressedName)
		return fsatomic.Move(contentAddressedPath, processedPath)

	case message.TypeCommand:
		h.executeCommand(ctx, planID, &env)
		if h.terminalAck(planID, env.MessageID) {
			processedPath := filepath.Join(h.paths.Processed(planID), contentAddressedName)
			return fsatomic.Move(contentAddressedPath, processedPath)
		}
		return nil // stays in .pending/ for resume (e.g. BLOCKED_WAITING_INPUT)

	default:
		deadPath := filepath.Join(h.paths.Deadletter(planID), contentAddressedName)
		_ = fsatomic.Move(contentAddressedPath, deadPath)
		return h.alerts.Alert(planID, errs.CodeEnvelopeInvalid, fmt.Sprintf("unknown envelope type %q", env.Type), nil)
	}
}

// resumePending walks .pending/ for any command envelope left over from a
// prior tick or crash, capped at MaxResumeMessagesPerTick, and re-invokes
// the handler for any that are not yet terminal. This is best-effort, not
// guaranteed-once: a handler re-invoked after a crash mid-execution must
// be idempotent on its own terms.
func (h *Heartbeat) resumePending(ctx context.Context, planID string) error {
	names, err := fsatomic.ListReadyFiles(h.paths.Pending(planID), ".msg.json")
	if err != nil {
		return err
	}
	resumed := 0
	for _, name := range names {
		if resumed >= h.Config.MaxResumeMessagesPerTick {
			break
		}
		path := filepath.Join(h.paths.Pending(planID), name)
		var env message.Envelope
		if err := fsatomic.ReadJSON(path, &env); err != nil {
			continue
		}
		if h.terminalAck(planID, env.MessageID) {
			_ = fsatomic.Move(path, filepath.Join(h.paths.Processed(planID), name))
			continue
		}
		if env.Type != message.TypeCommand {
			continue
		}
		resumed++
		h.executeCommand(ctx, planID, &env)
		if h.terminalAck(planID, env.MessageID) {
			_ = fsatomic.Move(path, filepath.Join(h.paths.Processed(planID), name))
		}
	}
	return nil
}

// terminalAck reports whether a SUCCEEDED or FAILED ack already exists in
// this agent's own outbox for messageID. A terminal ack is final: the
// handler must never run again for that message.
func (h *Heartbeat) terminalAck(planID, messageID string) bool {
	if messageID == "" {
		return false
	}
	status, ok := readAckStatus(h.paths.AckPath(planID, messageID))
	if !ok {
		return false
	}
	return status == message.AckSucceeded || status == message.AckFailed
}

func readAckStatus(path string) (message.AckStatus, bool) {
	var ack message.Ack
	if err := fsatomic.ReadJSON(path, &ack); err != nil {
		return "", false
	}
	return ack.Status, true
}
