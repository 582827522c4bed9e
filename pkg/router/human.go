package router

import (
	"path/filepath"
	"strings"

	"github.com/jiazeyu1987/AgentTalk/pkg/deliverylog"
	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/ids"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

const humanGatewayAgentID = "agent_human_gateway"

// humanGatewayTaskID labels deliveries of operator-provided files in the
// delivery log and the injected envelope, since they belong to no DAG task.
const humanGatewayTaskID = "human_gateway"

// processHumanRequests archives every human_intervention_request_*.json
// found in any agent's outbox into the plan's human_requests/ archive,
// then delivers a copy into the human gateway agent's inbox so an
// operator-facing tool can pick it up.
func (r *Router) processHumanRequests(planID string) error {
	plan := r.Roots.Plan(planID)
	files, err := discoverOutboxFiles(r.Roots, planID, "", "human_intervention_request_")
	if err != nil {
		return err
	}
	for _, f := range files {
		stableID := strings.TrimSuffix(strings.TrimPrefix(f.FileName, "human_intervention_request_"), ".json")
		if _, err := archiveOneByStableID(f.Path, plan.HumanRequests(), "human_intervention_request_", stableID); err != nil {
			r.alertArchiveFailure(planID, err, f.Path)
			continue
		}
		gatewayInbox := r.Roots.Agent(humanGatewayAgentID).InboxPlan(planID)
		dst := filepath.Join(gatewayInbox, f.FileName)
		if !fsatomic.Exists(dst) {
			_ = fsatomic.Copy(f.Path, dst)
		}
	}
	return nil
}

// processHumanResponses reads every human_intervention_response_*.json
// from the human gateway agent's outbox, archives it under the plan's
// human_responses/ tree, and — for a PROVIDE decision — injects each
// provided file into its declared target agent's inbox as a synthesized
// artifact envelope. A .processed/<request_id>.json marker under the
// plan's human_responses/ archive is written only once every file has
// been delivered successfully, making the whole round-trip idempotent
// across ticks and crashes.
func (r *Router) processHumanResponses(planID string, log *deliverylog.Log, delivered map[[2]string]bool) error {
	plan := r.Roots.Plan(planID)
	gateway := r.Roots.Agent(humanGatewayAgentID)
	gatewayOutbox := gateway.OutboxPlan(planID)
	files, err := fsatomic.ListReadyFiles(gatewayOutbox, ".json")
	if err != nil {
		return nil
	}
	if err := fsatomic.EnsureDir(plan.HumanResponsesProcessed()); err != nil {
		return err
	}

	for _, fileName := range files {
		if !strings.HasPrefix(fileName, "human_intervention_response_") {
			continue
		}
		requestID := strings.TrimSuffix(strings.TrimPrefix(fileName, "human_intervention_response_"), ".json")
		srcPath := filepath.Join(gatewayOutbox, fileName)
		if _, err := archiveOneByStableID(srcPath, plan.HumanResponses(), "human_intervention_response_", requestID); err != nil {
			r.alertArchiveFailure(planID, err, srcPath)
			continue
		}

		markerPath := filepath.Join(plan.HumanResponsesProcessed(), requestID+".json")
		if fsatomic.Exists(markerPath) {
			continue
		}

		var resp message.HumanResponse
		if err := fsatomic.ReadJSON(srcPath, &resp); err != nil {
			_ = r.alerts.Alert(planID, errs.CodeEnvelopeParseError, err.Error(), map[string]any{"path": srcPath})
			continue
		}
		if resp.Decision != "PROVIDE" || len(resp.ProvidedFiles) == 0 {
			_ = r.writeResponseMarker(markerPath, planID, requestID)
			continue
		}

		allOK := true
		for _, pf := range resp.ProvidedFiles {
			if pf.Name == "" || pf.DeliverToAgentID == "" {
				allOK = false
				msg := "provided_files[] must include name and deliver_to_agent_id"
				_ = r.alerts.DeadLetter(planID, errs.CodeRoutingNoTarget, msg, srcPath, nil)
				_ = r.alerts.Alert(planID, errs.CodeRoutingNoTarget, msg, map[string]any{"file": fileName})
				continue
			}
			if err := r.deliverHumanProvidedFile(planID, requestID, gatewayOutbox, pf, log, delivered); err != nil {
				allOK = false
				code, ok := errs.CodeOf(err)
				if !ok {
					code = errs.CodeUnhandledException
				}
				_ = r.alerts.DeadLetter(planID, code, err.Error(), srcPath, nil)
				_ = r.alerts.Alert(planID, code, err.Error(), map[string]any{"file": fileName, "name": pf.Name})
			}
		}
		if allOK {
			_ = r.writeResponseMarker(markerPath, planID, requestID)
		}
	}

	return nil
}

func (r *Router) writeResponseMarker(markerPath, planID, requestID string) error {
	return fsatomic.WriteJSON(markerPath, map[string]any{
		"schema_version": message.SchemaVersion,
		"plan_id":        planID,
		"request_id":     requestID,
		"processed_at":   r.nowZ(),
	})
}

// deliverHumanProvidedFile injects one operator-supplied file into the
// target agent's inbox under a synthesized artifact envelope whose
// message_id is derived from the request id plus the file's content hash,
// so a redelivery of the same bytes can never mint a new id and defeat
// delivery-log dedup.
func (r *Router) deliverHumanProvidedFile(
	planID, requestID, gatewayOutbox string,
	pf message.HumanProvidedFile,
	log *deliverylog.Log,
	delivered map[[2]string]bool,
) error {
	rel, err := fsatomic.SafeRelPath(pf.Name)
	if err != nil {
		return errs.New(errs.CodeUnsafePath, "provided file name %q: %v", pf.Name, err)
	}
	srcFile := filepath.Join(gatewayOutbox, filepath.FromSlash(rel))
	if !fsatomic.Exists(srcFile) {
		return errs.New(errs.CodeMissingPayload, "missing payload file: %s", rel)
	}
	sha, err := fsatomic.FileSHA256(srcFile)
	if err != nil {
		return err
	}

	messageID := ids.NewHumanInjectedMessageID(requestID, strings.TrimPrefix(sha, "sha256:"))
	for key := range delivered {
		if key[0] == messageID {
			return nil // this exact file already injected on a prior tick
		}
	}

	inboxDir := r.Roots.Agent(pf.DeliverToAgentID).InboxPlan(planID)
	if err := fsatomic.Copy(srcFile, filepath.Join(inboxDir, filepath.FromSlash(rel))); err != nil {
		return err
	}

	env := message.Envelope{
		SchemaVersion:   message.SchemaVersion,
		MessageID:       messageID,
		PlanID:          planID,
		ProducerAgentID: humanGatewayAgentID,
		Type:            message.TypeArtifact,
		CreatedAt:       r.nowZ(),
		TaskID:          humanGatewayTaskID,
		OutputName:      requestID,
		Payload: message.Payload{
			Files: []message.PayloadFile{{Path: rel, SHA256: sha}},
		},
	}
	envPath := filepath.Join(inboxDir, messageID+".msg.json")
	if err := fsatomic.WriteJSON(envPath, env); err != nil {
		return err
	}
	envSHA, err := fsatomic.FileSHA256(envPath)
	if err != nil {
		return err
	}

	if err := log.Append(deliverylog.Entry{
		SchemaVersion:  message.SchemaVersion,
		DeliveryID:     r.IDs.NewDeliveryID(),
		PlanID:         planID,
		MessageID:      messageID,
		EnvelopeSHA256: envSHA,
		TaskID:         humanGatewayTaskID,
		OutputName:     requestID,
		FromAgentID:    humanGatewayAgentID,
		ToAgentID:      pf.DeliverToAgentID,
		DeliveredAt:    r.nowZ(),
		Status:         deliverylog.StatusDelivered,
		PayloadFiles:   []string{rel},
	}); err != nil {
		return err
	}
	delivered[[2]string{messageID, envSHA}] = true
	return nil
}
