// Package releasegate implements the release coordinator described in
// the substrate's design as an external collaborator over the same
// filesystem contract every other daemon uses: it reads a plan's
// required release-gate evidence filenames out of plan_manifest.json,
// resolves each one through the release manager agent's own input index,
// evaluates each either against the original substrate's hardcoded
// "decision == PASS" rule or against a plan-declared CEL expression, and
// emits a signed release manifest plus a decision record into the release
// manager's outbox for the router to archive.
//
// Grounded on the original substrate's release/gate.py evaluate_gate().
package releasegate

import (
	"context"
	"path/filepath"

	"github.com/jiazeyu1987/AgentTalk/pkg/agentpaths"
	"github.com/jiazeyu1987/AgentTalk/pkg/clock"
	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/ids"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/policy"
	"github.com/jiazeyu1987/AgentTalk/pkg/schema"
	"github.com/jiazeyu1987/AgentTalk/pkg/signing"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// Decision values a release manifest and decision record can carry.
const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"
)

// Config identifies the agent this coordinator acts as.
type Config struct {
	ReleaseManagerAgentID string
}

// Gate evaluates release gates for a set of plans.
type Gate struct {
	Roots   agentpaths.Roots
	Config  Config
	Policy  *policy.Evaluator
	Signer  *signing.Signer
	Schemas *schema.Registry
	Clock   clock.Clock
	IDs     ids.Generator
}

// New builds a Gate. Policy and Signer may be nil: a nil Policy falls
// back to the hardcoded decision=="PASS" rule for every evidence file; a
// nil Signer leaves manifests and decision records unsigned.
func New(roots agentpaths.Roots, cfg Config, pol *policy.Evaluator, signer *signing.Signer, schemas *schema.Registry, clk clock.Clock, idGen ids.Generator) *Gate {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Gate{Roots: roots, Config: cfg, Policy: pol, Signer: signer, Schemas: schemas, Clock: clk, IDs: idGen}
}

func (g *Gate) now() string { return clock.IsoZ(g.Clock.Now()) }

// Evaluate evaluates planID's release gate and writes the resulting
// release manifest and decision record to the release manager's outbox,
// returning both for the caller's own logging/inspection.
func (g *Gate) Evaluate(ctx context.Context, planID string) (*message.ReleaseManifest, *message.DecisionRecord, error) {
	var manifest message.PlanManifest
	if err := fsatomic.ReadJSON(g.Roots.Plan(planID).PlanManifest(), &manifest); err != nil {
		return nil, nil, errs.New(errs.CodeReleaseGateEvaluationFailed, "reading plan_manifest.json: %v", err)
	}

	required := manifest.Policies.ReleaseGatesRequired
	var (
		missing      []string
		rejected     []string
		evidenceRefs []message.EvidenceRef
	)

	releaseAgent := g.Roots.Agent(g.Config.ReleaseManagerAgentID)
	lookup := buildEvidenceLookup(releaseAgent.InputIndex(planID))

	for _, name := range required {
		path, ok := lookup[name]
		if !ok || !fsatomic.Exists(path) {
			missing = append(missing, name)
			continue
		}

		var evidence map[string]any
		if err := fsatomic.ReadJSON(path, &evidence); err != nil {
			rejected = append(rejected, name)
			continue
		}
		if g.Schemas.Enabled() {
			if err := g.Schemas.Validate(evidence, "release_evidence.schema.json"); err != nil {
				rejected = append(rejected, name)
				continue
			}
		}
		if docPlanID, ok := evidence["plan_id"].(string); ok && docPlanID != "" && docPlanID != planID {
			rejected = append(rejected, name)
			continue
		}

		pass, err := g.evaluateEvidence(ctx, planID, manifest.Policies.ReleaseGateCEL, evidence)
		if err != nil || !pass {
			rejected = append(rejected, name)
			continue
		}

		sha, err := fsatomic.FileSHA256(path)
		if err != nil {
			rejected = append(rejected, name)
			continue
		}
		evidenceRefs = append(evidenceRefs, message.EvidenceRef{Name: name, SHA256: sha})
	}

	decision := DecisionApprove
	if len(missing) > 0 || len(rejected) > 0 {
		decision = DecisionReject
	}

	releaseID := g.IDs.NewReleaseID()
	createdAt := g.now()
	rm := message.ReleaseManifest{
		SchemaVersion:         message.SchemaVersion,
		ReleaseID:             releaseID,
		PlanID:                planID,
		CreatedAt:             createdAt,
		ReleaseManagerAgentID: g.Config.ReleaseManagerAgentID,
		EvidenceRequired:      required,
		EvidenceRefs:          evidenceRefs,
		Decision:              decision,
	}
	if g.Signer != nil {
		sha := fsatomic.BytesSHA256(manifestDigestBytes(rm))
		if sig, err := g.Signer.Sign(g.Config.ReleaseManagerAgentID, sha, g.Clock.Now()); err == nil {
			rm.Signature = sig
		}
	}

	decisionID := g.IDs.NewDecisionID()
	dr := message.DecisionRecord{
		SchemaVersion:       message.SchemaVersion,
		DecisionID:          decisionID,
		PlanID:              planID,
		DecisionType:        "release_gate",
		Decision:            decision,
		DecidedByAgentID:    g.Config.ReleaseManagerAgentID,
		CreatedAt:           createdAt,
		Subject:             message.DecisionSubject{Kind: "release", RefRevision: releaseID},
		MissingParticipants: missing,
		EvidenceFiles:        evidenceNames(evidenceRefs),
	}
	if len(rejected) > 0 {
		dr.Notes = "rejected evidence: " + joinNames(rejected)
	}
	if g.Signer != nil {
		sha := fsatomic.BytesSHA256(decisionDigestBytes(dr))
		if sig, err := g.Signer.Sign(g.Config.ReleaseManagerAgentID, sha, g.Clock.Now()); err == nil {
			dr.Signature = sig
		}
	}

	outbox := releaseAgent.OutboxPlan(planID)
	if err := fsatomic.WriteJSON(filepath.Join(outbox, "release_manifest_"+releaseID+".json"), rm); err != nil {
		return nil, nil, err
	}
	if err := fsatomic.WriteJSON(filepath.Join(outbox, "decision_record_"+decisionID+".json"), dr); err != nil {
		return nil, nil, err
	}

	return &rm, &dr, nil
}

func (g *Gate) evaluateEvidence(ctx context.Context, planID, expr string, evidence map[string]any) (bool, error) {
	if g.Policy == nil {
		decision, _ := evidence["decision"].(string)
		return decision == "PASS", nil
	}
	return g.Policy.EvaluateGate(ctx, expr, planID, evidence)
}

func evidenceNames(refs []message.EvidenceRef) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Name)
	}
	return out
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
