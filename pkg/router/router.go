// Package router implements the filesystem router daemon: each tick it
// discovers every agent's outbox, archives control-plane artifacts
// (acks, human requests/responses, decision records, release manifests)
// into the shared system_runtime/ tree, resolves the current DAG, and
// delivers command and artifact envelopes to their target agents' inboxes
// guided by the DAG's routing rules. Delivery is idempotent: every
// decision the router makes is recorded in the plan's append-only
// delivery log, and re-running a tick over unchanged state is a no-op.
//
// Grounded on the original substrate's router/app.py tick() algorithm.
package router

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jiazeyu1987/AgentTalk/pkg/agentpaths"
	"github.com/jiazeyu1987/AgentTalk/pkg/alertlog"
	"github.com/jiazeyu1987/AgentTalk/pkg/clock"
	"github.com/jiazeyu1987/AgentTalk/pkg/deliverylog"
	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/ids"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/schema"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// Config controls router tick behavior.
type Config struct {
	PollIntervalSeconds    float64
	SchemaValidationEnabled bool
}

// Router ticks over every known plan, archiving and routing envelopes.
type Router struct {
	Roots  agentpaths.Roots
	Config Config
	Clock  clock.Clock
	IDs    ids.Generator
	Schemas *schema.Registry

	alerts *alertlog.Writer
}

// New builds a Router. If clk is nil, the real wall clock is used.
func New(roots agentpaths.Roots, cfg Config, schemas *schema.Registry, clk clock.Clock, idGen ids.Generator) *Router {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Router{
		Roots:   roots,
		Config:  cfg,
		Clock:   clk,
		IDs:     idGen,
		Schemas: schemas,
		alerts:  alertlog.New(roots.SystemRuntimeDir, idGen, clk),
	}
}

func (r *Router) now() time.Time   { return r.Clock.Now() }
func (r *Router) nowZ() string     { return clock.IsoZ(r.now()) }

// Alerts exposes the router's alert/dead-letter writer so a caller can
// attach a durable artifactmirror.Store (see cmd/router).
func (r *Router) Alerts() *alertlog.Writer { return r.alerts }

// Tick runs one full pass over every discovered plan. Per-plan failures
// (a bad DAG, an archive write error) are alerted and skip only that
// plan; they never abort the whole tick.
func (r *Router) Tick(ctx context.Context) error {
	plans, err := discoverPlans(r.Roots)
	if err != nil {
		return fmt.Errorf("router: discovering plans: %w", err)
	}
	for _, planID := range plans {
		if err := r.tickPlan(ctx, planID); err != nil {
			_ = r.alerts.Alert(planID, errs.CodeUnhandledException, err.Error(), nil)
		}
	}
	return nil
}

// RunForever ticks on Config.PollIntervalSeconds until ctx is cancelled.
func (r *Router) RunForever(ctx context.Context) error {
	interval := time.Duration(r.Config.PollIntervalSeconds * float64(time.Second))
	if interval <= 0 {
		interval = time.Second
	}
	for {
		if err := r.Tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (r *Router) tickPlan(ctx context.Context, planID string) error {
	plan := r.Roots.Plan(planID)
	for _, dir := range []string{plan.Commands(), plan.Acks(), plan.HumanRequests(), plan.HumanResponses(), plan.Decisions(), plan.Releases()} {
		if err := fsatomic.EnsureDir(dir); err != nil {
			return err
		}
	}

	log := deliverylog.Open(plan.Root())
	entries, err := log.ReadEntries()
	if err != nil {
		return fmt.Errorf("reading delivery log: %w", err)
	}
	delivered := deliverylog.DeliveredIndex(entries)
	settled := deliverylog.SettledIndex(entries)

	if err := r.processHumanRequests(planID); err != nil {
		_ = r.alerts.Alert(planID, errs.CodeUnhandledException, "human request archiving: "+err.Error(), nil)
	}
	if err := r.processHumanResponses(planID, log, delivered); err != nil {
		_ = r.alerts.Alert(planID, errs.CodeUnhandledException, "human response injection: "+err.Error(), nil)
	}
	if err := r.archiveControlArtifacts(planID, "decisions", "decision_record_"); err != nil {
		_ = r.alerts.Alert(planID, errs.CodeUnhandledException, "decision archiving: "+err.Error(), nil)
	}
	if err := r.archiveControlArtifacts(planID, "releases", "release_manifest_"); err != nil {
		_ = r.alerts.Alert(planID, errs.CodeUnhandledException, "release archiving: "+err.Error(), nil)
	}
	if err := r.refreshLatestReleaseManifest(planID); err != nil {
		_ = r.alerts.Alert(planID, errs.CodeUnhandledException, "release pointer refresh: "+err.Error(), nil)
	}
	if err := r.archiveAcks(planID); err != nil {
		_ = r.alerts.Alert(planID, errs.CodeUnhandledException, "ack archiving: "+err.Error(), nil)
	}

	dag, err := r.loadCurrentDag(planID)
	if err != nil {
		if code, ok := errs.CodeOf(err); ok {
			_ = r.alerts.Alert(planID, code, err.Error(), nil)
		}
		return nil // skip this plan's delivery for this tick; not an aborting error
	}

	envelopes, err := discoverOutboxEnvelopes(r.Roots, planID)
	if err != nil {
		return err
	}

	candidates := r.prescanCommands(envelopes)

	for _, env := range envelopes {
		envSHA, shaErr := fsatomic.FileSHA256(env.Path)
		if shaErr != nil {
			continue // outbox file vanished mid-tick; the next tick re-scans
		}

		raw, parseErr := readEnvelope(env.Path)
		if parseErr != nil {
			messageID := strings.TrimSuffix(env.FileName, ".msg.json")
			if raw != nil && raw.MessageID != "" {
				messageID = raw.MessageID
			}
			if settled[[2]string{messageID, envSHA}] {
				continue
			}
			code, ok := errs.CodeOf(parseErr)
			if !ok {
				code = errs.CodeEnvelopeParseError
			}
			r.deadletterEnvelope(planID, messageID, envSHA, env, code, parseErr, log, settled)
			continue
		}
		if settled[[2]string{raw.MessageID, envSHA}] {
			continue // this exact envelope content is already accounted for
		}
		if messageIDSeenWithDifferentPayload(settled, raw.MessageID, envSHA) {
			reuseErr := errs.New(errs.CodeMessageIDReusedDifferentPayload, "message_id %q reused with different payload", raw.MessageID)
			r.deadletterEnvelope(planID, raw.MessageID, envSHA, env, errs.CodeMessageIDReusedDifferentPayload, reuseErr, log, settled)
			continue
		}

		if raw.Type == message.TypeCommand && raw.Payload.Command != nil {
			cmd := raw.Payload.Command
			if max, ok := candidates[cmd.TaskID]; ok && max.CommandSeq > cmd.CommandSeq {
				r.archiveCommand(planID, raw, env.FileName)
				_ = log.Append(deliverylog.Entry{
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
					SupersededByMessage: max.MessageID,
					SupersededByCommand: max.CommandID,
					SupersededByCmdSeq:  max.CommandSeq,
				})
				settled[[2]string{raw.MessageID, envSHA}] = true
				continue
			}
		}

		if err := r.deliverOne(planID, env, raw, dag, log, envSHA); err != nil {
			code, ok := errs.CodeOf(err)
			if !ok {
				code = errs.CodeUnhandledException
			}
			r.deadletterEnvelope(planID, raw.MessageID, envSHA, env, code, err, log, settled)
			continue
		}
		settled[[2]string{raw.MessageID, envSHA}] = true
		delivered[[2]string{raw.MessageID, envSHA}] = true
	}

	return nil
}

// deadletterEnvelope records the three artifacts every rejected envelope
// produces — a dead-letter record, an alert, and a DEADLETTERED delivery
// log row — and marks the (message_id, sha) settled so later ticks skip
// the still-present outbox file without re-recording anything. The
// offending file itself is left in place: the router never mutates
// producer state.
func (r *Router) deadletterEnvelope(
	planID, messageID, envSHA string,
	env outboxEnvelope,
	code errs.Code,
	cause error,
	log *deliverylog.Log,
	settled map[[2]string]bool,
) {
	_ = r.alerts.DeadLetter(planID, code, cause.Error(), env.Path, nil)
	_ = r.alerts.Alert(planID, code, cause.Error(), map[string]any{"file": env.FileName})
	_ = log.Append(deliverylog.Entry{
		SchemaVersion:  message.SchemaVersion,
		DeliveryID:     r.IDs.NewDeliveryID(),
		PlanID:         planID,
		MessageID:      messageID,
		EnvelopeSHA256: envSHA,
		FromAgentID:    env.AgentID,
		DeliveredAt:    r.nowZ(),
		Status:         deliverylog.StatusDeadlettered,
		Error:          cause.Error(),
	})
	settled[[2]string{messageID, envSHA}] = true
}

// readEnvelope decodes an outbox envelope. On a schema_version mismatch
// the decoded envelope is still returned alongside the error so the
// caller can record the real message_id in its dead-letter entry.
func readEnvelope(path string) (*message.Envelope, error) {
	var env message.Envelope
	if err := fsatomic.ReadJSON(path, &env); err != nil {
		return nil, errs.New(errs.CodeEnvelopeParseError, "%v", err)
	}
	if env.SchemaVersion != message.SchemaVersion {
		return &env, errs.New(errs.CodeSchemaVersionUnsupported, "unsupported envelope schema_version %q", env.SchemaVersion)
	}
	return &env, nil
}

func (r *Router) loadCurrentDag(planID string) (*message.Dag, error) {
	plan := r.Roots.Plan(planID)

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

func (r *Router) archiveCommand(planID string, env *message.Envelope, fileName string) {
	plan := r.Roots.Plan(planID)
	dst := filepath.Join(plan.Commands(), env.MessageID+"__"+fileName)
	if fsatomic.Exists(dst) {
		return
	}
	_ = fsatomic.WriteJSON(dst, env)
}

type commandSeqInfo struct {
	MessageID  string
	CommandID  string
	CommandSeq int64
}

// prescanCommands computes, across every command envelope discovered in
// the outbox THIS tick, the highest command_seq seen per task_id. This
// in-tick comparison catches same-tick supersedence races the
// delivery-log/archive-based comparison alone would miss.
func (r *Router) prescanCommands(envelopes []outboxEnvelope) map[string]commandSeqInfo {
	candidates := make(map[string]commandSeqInfo)
	for _, env := range envelopes {
		raw, err := readEnvelope(env.Path)
		if err != nil {
			continue
		}
		if raw.Type != message.TypeCommand || raw.Payload.Command == nil {
			continue
		}
		cmd := raw.Payload.Command
		if cur, ok := candidates[cmd.TaskID]; !ok || cmd.CommandSeq > cur.CommandSeq {
			candidates[cmd.TaskID] = commandSeqInfo{MessageID: raw.MessageID, CommandID: cmd.CommandID, CommandSeq: cmd.CommandSeq}
		}
	}
	return candidates
}
