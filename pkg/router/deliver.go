package router

import (
	"path/filepath"

	"github.com/jiazeyu1987/AgentTalk/pkg/deliverylog"
	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// deliverOne routes a single discovered outbox envelope: a command is
// archived and copied (never its payload files — commands carry no
// payload files) to its DAG-assigned agent's inbox; an artifact has its
// payload files copied first, then its envelope copied last, to every
// agent the DAG's deliver_to rule names for that output, honoring the
// substrate's "payload before envelope" visibility ordering so a consumer
// that lists its inbox never observes an envelope whose files aren't there
// yet.
func (r *Router) deliverOne(
	planID string,
	env outboxEnvelope,
	raw *message.Envelope,
	dag *message.Dag,
	log *deliverylog.Log,
	envSHA string,
) error {
	if r.Schemas.Enabled() {
		var doc map[string]any
		if err := fsatomic.ReadJSON(env.Path, &doc); err == nil {
			if err := r.Schemas.Validate(doc, "message_envelope.schema.json"); err != nil {
				return err
			}
			if raw.Type == message.TypeCommand && raw.Payload.Command != nil {
				if cmdDoc, ok := nestedCommandDoc(doc); ok {
					if err := r.Schemas.Validate(cmdDoc, "command.schema.json"); err != nil {
						return err
					}
				}
			}
		}
	}

	switch raw.Type {
	case message.TypeCommand:
		return r.deliverCommand(planID, env, raw, dag, log, envSHA)
	case message.TypeArtifact:
		return r.deliverArtifact(planID, env, raw, dag, log, envSHA)
	default:
		return errs.New(errs.CodeUnsupportedMessageType, "unsupported envelope type %q", raw.Type)
	}
}

func messageIDSeenWithDifferentPayload(delivered map[[2]string]bool, messageID, sha string) bool {
	for key := range delivered {
		if key[0] == messageID && key[1] != sha {
			return true
		}
	}
	return false
}

func nestedCommandDoc(doc map[string]any) (map[string]any, bool) {
	payload, ok := doc["payload"].(map[string]any)
	if !ok {
		return nil, false
	}
	cmd, ok := payload["command"].(map[string]any)
	return cmd, ok
}

func (r *Router) deliverCommand(planID string, env outboxEnvelope, raw *message.Envelope, dag *message.Dag, log *deliverylog.Log, envSHA string) error {
	cmd := raw.Payload.Command
	if cmd == nil {
		return errs.New(errs.CodeEnvelopeInvalid, "command envelope missing payload.command")
	}
	if cmd.DagRef != nil {
		dagSHA, err := fsatomic.FileSHA256(r.Roots.Plan(planID).TaskDag())
		if err == nil && cmd.DagRef.SHA256 != dagSHA {
			return errs.New(errs.CodeCommandDagMismatch, "command dag_ref %q does not match active dag %q", cmd.DagRef.SHA256, dagSHA)
		}
	}

	r.archiveCommand(planID, raw, env.FileName)

	maxSeq, maxCommandID, err := r.maxCommandSeqInArchive(planID, cmd.TaskID)
	if err == nil && maxSeq > cmd.CommandSeq {
		return log.Append(deliverylog.Entry{
			SchemaVersion:       message.SchemaVersion,
			DeliveryID:          r.IDs.NewDeliveryID(),
			PlanID:              planID,
			MessageID:           raw.MessageID,
			EnvelopeSHA256:      envSHA,
			TaskID:              cmd.TaskID,
			CommandID:           cmd.CommandID,
			FromAgentID:         raw.ProducerAgentID,
			DeliveredAt:         r.nowZ(),
			Status:              deliverylog.StatusSkippedSuperseded,
			SkipReason:          "SUPERSEDED_BY_NEWER_COMMAND",
			Superseded:          true,
			SupersededByCommand: maxCommandID,
			SupersededByCmdSeq:  maxSeq,
		})
	}

	target, err := dag.AssignedAgentForTask(cmd.TaskID)
	if err != nil {
		return err
	}

	dstDir := r.Roots.Agent(target).InboxPlan(planID)
	dst := filepath.Join(dstDir, env.FileName)
	if err := fsatomic.Copy(env.Path, dst); err != nil {
		return err
	}

	return log.Append(deliverylog.Entry{
		SchemaVersion:  message.SchemaVersion,
		DeliveryID:     r.IDs.NewDeliveryID(),
		PlanID:         planID,
		MessageID:      raw.MessageID,
		EnvelopeSHA256: envSHA,
		TaskID:         cmd.TaskID,
		CommandID:      cmd.CommandID,
		FromAgentID:    raw.ProducerAgentID,
		ToAgentID:      target,
		DeliveredAt:    r.nowZ(),
		Status:         deliverylog.StatusDelivered,
	})
}

func (r *Router) deliverArtifact(planID string, env outboxEnvelope, raw *message.Envelope, dag *message.Dag, log *deliverylog.Log, envSHA string) error {
	targets, err := dag.DeliverToForOutput(raw.TaskID, raw.OutputName)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errs.New(errs.CodeRoutingNoTarget, "no deliver_to targets for task %q output %q", raw.TaskID, raw.OutputName)
	}

	for _, target := range targets {
		dstDir := r.Roots.Agent(target).InboxPlan(planID)
		var fileNames []string
		for _, pf := range raw.Payload.Files {
			rel, err := fsatomic.SafeRelPath(pf.Path)
			if err != nil {
				return errs.New(errs.CodeUnsafePath, "payload path %q: %v", pf.Path, err)
			}
			srcFile := filepath.Join(filepath.Dir(env.Path), rel)
			if !fsatomic.Exists(srcFile) {
				return errs.New(errs.CodeMissingPayload, "missing payload file: %s", rel)
			}
			dstFile := filepath.Join(dstDir, rel)
			if err := fsatomic.Copy(srcFile, dstFile); err != nil {
				return err
			}
			fileNames = append(fileNames, rel)
		}
		dstEnv := filepath.Join(dstDir, env.FileName)
		if err := fsatomic.Copy(env.Path, dstEnv); err != nil {
			return err
		}

		if err := log.Append(deliverylog.Entry{
			SchemaVersion:  message.SchemaVersion,
			DeliveryID:     r.IDs.NewDeliveryID(),
			PlanID:         planID,
			MessageID:      raw.MessageID,
			EnvelopeSHA256: envSHA,
			TaskID:         raw.TaskID,
			OutputName:     raw.OutputName,
			FromAgentID:    raw.ProducerAgentID,
			ToAgentID:      target,
			DeliveredAt:    r.nowZ(),
			Status:         deliverylog.StatusDelivered,
			PayloadFiles:   fileNames,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) maxCommandSeqInArchive(planID, taskID string) (int64, string, error) {
	plan := r.Roots.Plan(planID)
	files, err := fsatomic.ListReadyFiles(plan.Commands(), ".msg.json")
	if err != nil {
		return 0, "", err
	}
	var maxSeq int64 = -1
	var maxCmdID string
	for _, f := range files {
		var env message.Envelope
		if err := fsatomic.ReadJSON(filepath.Join(plan.Commands(), f), &env); err != nil {
			continue
		}
		if env.Payload.Command == nil || env.Payload.Command.TaskID != taskID {
			continue
		}
		if env.Payload.Command.CommandSeq > maxSeq {
			maxSeq = env.Payload.Command.CommandSeq
			maxCmdID = env.Payload.Command.CommandID
		}
	}
	if maxSeq < 0 {
		return 0, "", errs.New(errs.CodeDagInvalid, "no archived commands for task %q", taskID)
	}
	return maxSeq, maxCmdID, nil
}
