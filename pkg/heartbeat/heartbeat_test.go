package heartbeat

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiazeyu1987/AgentTalk/pkg/agentpaths"
	"github.com/jiazeyu1987/AgentTalk/pkg/clock"
	"github.com/jiazeyu1987/AgentTalk/pkg/config"
	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/handler"
	"github.com/jiazeyu1987/AgentTalk/pkg/ids"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/schema"
)

const hbPlan = "plan_1"
const hbAgent = "agent_worker"

func newTestHeartbeat(t *testing.T, h handler.CommandHandler, clk clock.Clock) (*Heartbeat, agentpaths.Roots) {
	t.Helper()
	dir := t.TempDir()
	roots := agentpaths.Roots{AgentsRoot: filepath.Join(dir, "agents"), SystemRuntimeDir: filepath.Join(dir, "system_runtime")}
	if clk == nil {
		clk = clock.Fixed{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	}
	return New(hbAgent, roots, config.Default(), h, schema.NewRegistry(""), clk, ids.New()), roots
}

func writeInboxCommand(t *testing.T, roots agentpaths.Roots, env message.Envelope) {
	t.Helper()
	dir := roots.Agent(hbAgent).InboxPlan(hbPlan)
	require.NoError(t, fsatomic.WriteJSON(filepath.Join(dir, env.MessageID+".msg.json"), env))
}

func TestHeartbeatRunsCommandToCompletion(t *testing.T) {
	hb, roots := newTestHeartbeat(t, handler.DefaultCommandHandler{}, nil)
	writeInboxCommand(t, roots, message.Envelope{
		SchemaVersion: message.SchemaVersion, MessageID: "msg_1", PlanID: hbPlan,
		ProducerAgentID: "agent_orchestrator", Type: message.TypeCommand, CreatedAt: "2026-01-01T00:00:00.000000Z",
		Payload: message.Payload{Command: &message.Command{PlanID: hbPlan, TaskID: "task_a", CommandID: "cmd_1", CommandSeq: 1}},
	})

	require.NoError(t, hb.Tick(context.Background()))

	var ack message.Ack
	require.NoError(t, fsatomic.ReadJSON(roots.Agent(hbAgent).AckPath(hbPlan, "msg_1"), &ack))
	assert.Equal(t, message.AckSucceeded, ack.Status)
	assert.Equal(t, "task_a", ack.TaskID)

	var state message.TaskStateRecord
	require.NoError(t, fsatomic.ReadJSON(roots.Agent(hbAgent).TaskStatePath(hbPlan, "task_a"), &state))
	assert.Equal(t, message.TaskCompleted, state.State)

	processedDir := roots.Agent(hbAgent).Processed(hbPlan)
	names, err := fsatomic.ListReadyFiles(processedDir, ".msg.json")
	require.NoError(t, err)
	assert.Len(t, names, 1, "a terminal envelope must be moved out of .pending/ into .processed/")
}

func TestHeartbeatBlocksOnMissingInputsThenTimesOutToHuman(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := &advanceableClock{now: start}
	hb, roots := newTestHeartbeat(t, handler.DefaultCommandHandler{}, fc)

	writeInboxCommand(t, roots, message.Envelope{
		SchemaVersion: message.SchemaVersion, MessageID: "msg_1", PlanID: hbPlan,
		ProducerAgentID: "agent_orchestrator", Type: message.TypeCommand, CreatedAt: clock.IsoZ(start),
		Payload: message.Payload{Command: &message.Command{
			PlanID: hbPlan, TaskID: "task_a", CommandID: "cmd_1", CommandSeq: 1,
			WaitForInputs: true, TimeoutSeconds: 60, RequiredInputs: []string{"dataset.csv"},
		}},
	})

	require.NoError(t, hb.Tick(context.Background()))

	var state message.TaskStateRecord
	require.NoError(t, fsatomic.ReadJSON(roots.Agent(hbAgent).TaskStatePath(hbPlan, "task_a"), &state))
	assert.Equal(t, message.TaskBlockedWaitingInput, state.State)

	// advance past the timeout and re-tick: should escalate to a human request
	fc.now = start.Add(61 * time.Second)
	require.NoError(t, hb.Tick(context.Background()))

	require.NoError(t, fsatomic.ReadJSON(roots.Agent(hbAgent).TaskStatePath(hbPlan, "task_a"), &state))
	assert.Equal(t, message.TaskBlockedWaitingHuman, state.State)

	humanRequests, err := fsatomic.ListReadyFiles(roots.Agent(hbAgent).OutboxPlan(hbPlan), ".json")
	require.NoError(t, err)
	assert.NotEmpty(t, humanRequests)

	// sticky: a further tick must not re-evaluate the timeout or duplicate the human request
	fc.now = start.Add(120 * time.Second)
	require.NoError(t, hb.Tick(context.Background()))
	humanRequestsAfter, err := fsatomic.ListReadyFiles(roots.Agent(hbAgent).OutboxPlan(hbPlan), ".json")
	require.NoError(t, err)
	assert.Equal(t, humanRequests, humanRequestsAfter)
}

func TestHeartbeatIngestsArtifactIntoWorkspace(t *testing.T) {
	hb, roots := newTestHeartbeat(t, handler.DefaultCommandHandler{}, nil)

	inboxDir := roots.Agent(hbAgent).InboxPlan(hbPlan)
	require.NoError(t, fsatomic.WriteBytes(filepath.Join(inboxDir, "dataset.csv"), []byte("a,b,c")))
	sha := fsatomic.BytesSHA256([]byte("a,b,c"))

	writeInboxCommand(t, roots, message.Envelope{
		SchemaVersion: message.SchemaVersion, MessageID: "msg_artifact", PlanID: hbPlan,
		ProducerAgentID: "agent_producer", Type: message.TypeArtifact, CreatedAt: "2026-01-01T00:00:00.000000Z",
		TaskID: "task_a", OutputName: "dataset",
		Payload: message.Payload{Files: []message.PayloadFile{{Path: "dataset.csv", SHA256: sha}}},
	})

	require.NoError(t, hb.Tick(context.Background()))

	stored := filepath.Join(roots.Agent(hbAgent).WorkspaceInputs(hbPlan), "task_a", "dataset", "dataset.csv")
	assert.True(t, fsatomic.Exists(stored))

	var ack message.Ack
	require.NoError(t, fsatomic.ReadJSON(roots.Agent(hbAgent).AckPath(hbPlan, "msg_artifact"), &ack))
	assert.Equal(t, message.AckSucceeded, ack.Status)
}

func TestHeartbeatNeverReinvokesHandlerAfterTerminalAck(t *testing.T) {
	counter := &countingHandler{}
	hb, roots := newTestHeartbeat(t, counter, nil)

	env := message.Envelope{
		SchemaVersion: message.SchemaVersion, MessageID: "msg_cmd", PlanID: hbPlan,
		ProducerAgentID: "agent_orchestrator", Type: message.TypeCommand, CreatedAt: "2026-01-01T00:00:00.000000Z",
		Payload: message.Payload{Command: &message.Command{PlanID: hbPlan, TaskID: "task_a", CommandID: "cmd_1", CommandSeq: 1}},
	}
	writeInboxCommand(t, roots, env)
	require.NoError(t, hb.Tick(context.Background()))
	require.Equal(t, 1, counter.calls)

	ackPath := roots.Agent(hbAgent).AckPath(hbPlan, "msg_cmd")
	before, err := fsatomic.FileSHA256(ackPath)
	require.NoError(t, err)

	// the router redelivers the same envelope; the terminal ack must
	// short-circuit before the handler ever runs again
	writeInboxCommand(t, roots, env)
	require.NoError(t, hb.Tick(context.Background()))
	assert.Equal(t, 1, counter.calls)

	after, err := fsatomic.FileSHA256(ackPath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "redelivery must not rewrite the ack")
}

type countingHandler struct {
	calls int
}

func (c *countingHandler) HandleCommand(ctx context.Context, cmd handler.Command) (handler.Result, []handler.ProducedArtifact, error) {
	c.calls++
	return handler.Result{OK: true, Details: map[string]any{}}, nil, nil
}

// advanceableClock lets a test move time forward between ticks without
// depending on wall-clock sleeps.
type advanceableClock struct {
	now time.Time
}

func (c *advanceableClock) Now() time.Time { return c.now }
