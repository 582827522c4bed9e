package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiazeyu1987/AgentTalk/pkg/agentpaths"
	"github.com/jiazeyu1987/AgentTalk/pkg/clock"
	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/ids"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/schema"
)

const monPlan = "plan_1"

func newTestRoots(t *testing.T) agentpaths.Roots {
	t.Helper()
	dir := t.TempDir()
	return agentpaths.Roots{AgentsRoot: filepath.Join(dir, "agents"), SystemRuntimeDir: filepath.Join(dir, "system_runtime")}
}

func writeDag(t *testing.T, roots agentpaths.Roots, dag message.Dag) {
	t.Helper()
	plan := roots.Plan(dag.PlanID)
	require.NoError(t, fsatomic.WriteJSON(plan.TaskDag(), dag))
	sha, err := fsatomic.FileSHA256(plan.TaskDag())
	require.NoError(t, err)
	require.NoError(t, fsatomic.WriteJSON(plan.ActiveDagRef(), message.ActiveDagRef{PlanID: dag.PlanID, TaskDagSHA256: sha}))
}

func twoNodeDag() message.Dag {
	return message.Dag{
		SchemaVersion: message.DagSchemaVersion, PlanID: monPlan,
		Nodes: []message.Node{
			{TaskID: "task_a", AssignedAgent: "agent_alpha"},
			{TaskID: "task_b", AssignedAgent: "agent_beta", DependsOn: []string{"task_a"}, RequiredInputs: []string{"summary.json"}},
		},
	}
}

func newTestMonitor(roots agentpaths.Roots) *Monitor {
	return New(roots, Config{PollIntervalSeconds: 1}, schema.NewRegistry(""), clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, ids.New())
}

func readPlanStatus(t *testing.T, roots agentpaths.Roots) message.PlanStatus {
	t.Helper()
	var status message.PlanStatus
	require.NoError(t, fsatomic.ReadJSON(roots.Plan(monPlan).PlanStatus(), &status))
	return status
}

func taskEntry(status message.PlanStatus, taskID string) (message.TaskStatusEntry, bool) {
	for _, e := range status.Tasks {
		if e.TaskID == taskID {
			return e, true
		}
	}
	return message.TaskStatusEntry{}, false
}

func TestMonitorDerivesPendingAndReadyFromDagWhenNoEvidence(t *testing.T) {
	roots := newTestRoots(t)
	writeDag(t, roots, twoNodeDag())

	m := newTestMonitor(roots)
	require.NoError(t, m.Tick(context.Background()))

	status := readPlanStatus(t, roots)
	a, ok := taskEntry(status, "task_a")
	require.True(t, ok)
	assert.Equal(t, message.TaskReady, a.State)
	assert.Equal(t, message.SourceDerived, a.Source)

	b, ok := taskEntry(status, "task_b")
	require.True(t, ok)
	assert.Equal(t, message.TaskPending, b.State, "task_b depends on an incomplete task_a")
}

func TestMonitorPrefersTaskStateOverAck(t *testing.T) {
	roots := newTestRoots(t)
	writeDag(t, roots, twoNodeDag())

	// an ack says SUCCEEDED, but the agent's own task_state says RUNNING —
	// task_state must win.
	ackPath := roots.Agent("agent_alpha").AckPath(monPlan, "msg_1")
	require.NoError(t, fsatomic.WriteJSON(ackPath, message.Ack{
		PlanID: monPlan, MessageID: "msg_1", TaskID: "task_a", CommandID: "cmd_1", CommandSeq: 1,
		ConsumerAgentID: "agent_alpha", Status: message.AckSucceeded,
	}))
	statePath := roots.Agent("agent_alpha").TaskStatePath(monPlan, "task_a")
	require.NoError(t, fsatomic.WriteJSON(statePath, message.TaskStateRecord{
		PlanID: monPlan, TaskID: "task_a", AgentID: "agent_alpha", State: message.TaskRunning, UpdatedAt: "2026-01-01T00:00:00.000000Z",
	}))

	// archive the ack so it's also visible through the ack tier, to prove
	// task_state still wins even when both exist.
	require.NoError(t, fsatomic.WriteJSON(filepath.Join(roots.Plan(monPlan).Acks(), "ack_msg_1.json"), message.Ack{
		PlanID: monPlan, MessageID: "msg_1", TaskID: "task_a", CommandID: "cmd_1", CommandSeq: 1,
		ConsumerAgentID: "agent_alpha", Status: message.AckSucceeded,
	}))

	m := newTestMonitor(roots)
	require.NoError(t, m.Tick(context.Background()))

	status := readPlanStatus(t, roots)
	a, ok := taskEntry(status, "task_a")
	require.True(t, ok)
	assert.Equal(t, message.TaskRunning, a.State)
	assert.Equal(t, message.SourceTaskState, a.Source)
}

func TestMonitorDerivesCompletedFromArchivedAckWhenNoTaskState(t *testing.T) {
	roots := newTestRoots(t)
	writeDag(t, roots, twoNodeDag())

	require.NoError(t, fsatomic.WriteJSON(filepath.Join(roots.Plan(monPlan).Acks(), "ack_msg_1.json"), message.Ack{
		PlanID: monPlan, MessageID: "msg_1", TaskID: "task_a", CommandID: "cmd_1", CommandSeq: 1,
		ConsumerAgentID: "agent_alpha", Status: message.AckSucceeded, FinishedAt: "2026-01-01T00:00:00.000000Z",
	}))

	m := newTestMonitor(roots)
	require.NoError(t, m.Tick(context.Background()))

	status := readPlanStatus(t, roots)
	a, ok := taskEntry(status, "task_a")
	require.True(t, ok)
	assert.Equal(t, message.TaskCompleted, a.State)
	assert.Equal(t, message.SourceAck, a.Source)
}

func TestMonitorBlocksWaitingReviewWhenScoreRequiredAndUndecided(t *testing.T) {
	roots := newTestRoots(t)
	writeDag(t, roots, twoNodeDag())

	env := message.Envelope{
		MessageID: "msg_1", TaskID: "task_a",
		Payload: message.Payload{Command: &message.Command{
			TaskID: "task_a", CommandID: "cmd_1", CommandSeq: 1, ScoreRequired: true,
		}},
	}
	require.NoError(t, fsatomic.WriteJSON(filepath.Join(roots.Plan(monPlan).Commands(), "msg_1__cmd.msg.json"), env))

	require.NoError(t, fsatomic.WriteJSON(filepath.Join(roots.Plan(monPlan).Acks(), "ack_msg_1.json"), message.Ack{
		PlanID: monPlan, MessageID: "msg_1", TaskID: "task_a", CommandID: "cmd_1", CommandSeq: 1,
		ConsumerAgentID: "agent_alpha", Status: message.AckSucceeded, FinishedAt: "2026-01-01T00:00:00.000000Z",
	}))

	m := newTestMonitor(roots)
	require.NoError(t, m.Tick(context.Background()))

	status := readPlanStatus(t, roots)
	a, ok := taskEntry(status, "task_a")
	require.True(t, ok)
	assert.Equal(t, message.TaskBlockedWaitingReview, a.State)
	assert.Equal(t, 1, status.BlockedSummary.Review)
}

func TestMonitorReviewClearsOnceDecisionRecordArchived(t *testing.T) {
	roots := newTestRoots(t)
	writeDag(t, roots, twoNodeDag())

	env := message.Envelope{
		MessageID: "msg_1", TaskID: "task_a",
		Payload: message.Payload{Command: &message.Command{
			TaskID: "task_a", CommandID: "cmd_1", CommandSeq: 1, ScoreRequired: true,
		}},
	}
	require.NoError(t, fsatomic.WriteJSON(filepath.Join(roots.Plan(monPlan).Commands(), "msg_1__cmd.msg.json"), env))
	require.NoError(t, fsatomic.WriteJSON(filepath.Join(roots.Plan(monPlan).Acks(), "ack_msg_1.json"), message.Ack{
		PlanID: monPlan, MessageID: "msg_1", TaskID: "task_a", CommandID: "cmd_1", CommandSeq: 1,
		ConsumerAgentID: "agent_alpha", Status: message.AckSucceeded, FinishedAt: "2026-01-01T00:00:00.000000Z",
	}))
	require.NoError(t, fsatomic.WriteJSON(filepath.Join(roots.Plan(monPlan).Decisions(), "decision_record_dec_1.json"), message.DecisionRecord{
		DecisionID: "dec_1", PlanID: monPlan, DecisionType: "review", Decision: "APPROVE",
		Subject: message.DecisionSubject{Kind: "review", TaskID: "task_a"},
	}))

	m := newTestMonitor(roots)
	require.NoError(t, m.Tick(context.Background()))

	status := readPlanStatus(t, roots)
	a, ok := taskEntry(status, "task_a")
	require.True(t, ok)
	assert.Equal(t, message.TaskCompleted, a.State)
}

func TestMonitorDetectsCommandArchiveInconsistency(t *testing.T) {
	roots := newTestRoots(t)
	writeDag(t, roots, twoNodeDag())

	// archived envelope disagrees with its own embedded command's task_id
	env := message.Envelope{
		MessageID: "msg_bad", TaskID: "task_a",
		Payload: message.Payload{Command: &message.Command{TaskID: "task_b", CommandID: "cmd_1", CommandSeq: 1}},
	}
	require.NoError(t, fsatomic.WriteJSON(filepath.Join(roots.Plan(monPlan).Commands(), "msg_bad__cmd.msg.json"), env))
	require.NoError(t, fsatomic.WriteJSON(filepath.Join(roots.Plan(monPlan).Acks(), "ack_msg_1.json"), message.Ack{
		PlanID: monPlan, MessageID: "msg_bad", TaskID: "", CommandID: "cmd_1", CommandSeq: 1,
		ConsumerAgentID: "agent_alpha", Status: message.AckSucceeded,
	}))

	m := newTestMonitor(roots)
	require.NoError(t, m.Tick(context.Background()))

	alertsDir := roots.Plan(monPlan).Alerts()
	names, err := fsatomic.ListReadyFiles(alertsDir, ".json")
	require.NoError(t, err)
	assert.NotEmpty(t, names, "an inconsistent archive must raise an alert rather than silently attribute the ack")
}

func TestMonitorMirrorsAgentStatusHeartbeat(t *testing.T) {
	roots := newTestRoots(t)
	writeDag(t, roots, twoNodeDag())

	require.NoError(t, fsatomic.WriteJSON(roots.Agent("agent_alpha").StatusHeartbeat(), map[string]any{
		"agent_id": "agent_alpha", "health": "OK",
	}))

	m := newTestMonitor(roots)
	require.NoError(t, m.Tick(context.Background()))

	var snapshot message.AgentStatusSnapshot
	require.NoError(t, fsatomic.ReadJSON(filepath.Join(roots.Plan(monPlan).AgentStatus(), "agent_alpha.json"), &snapshot))
	assert.Equal(t, "agent_alpha", snapshot.AgentID)
}
