package heartbeat

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

func TestIngestArtifactRejectsConflictingContentAtSamePath(t *testing.T) {
	hb, roots := newTestHeartbeat(t, nil, nil)
	paths := roots.Agent(hbAgent)

	// a prior delivery already stored dataset.csv under this task/output
	existingDst := filepath.Join(paths.WorkspaceInputs(hbPlan), "task_a", "dataset", "dataset.csv")
	require.NoError(t, fsatomic.WriteBytes(existingDst, []byte("original,content")))

	inboxDir := paths.InboxPlan(hbPlan)
	require.NoError(t, fsatomic.WriteBytes(filepath.Join(inboxDir, "dataset.csv"), []byte("different,content")))

	env := &message.Envelope{
		MessageID: "msg_conflict", TaskID: "task_a", OutputName: "dataset",
		Payload: message.Payload{Files: []message.PayloadFile{
			{Path: "dataset.csv", SHA256: fsatomic.BytesSHA256([]byte("different,content"))},
		}},
	}

	err := hb.ingestArtifact(hbPlan, env)
	require.Error(t, err)
	code, ok := errs.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.CodeInputConflict, code)

	// the original content must survive untouched
	data, err := fsatomic.FileSHA256(existingDst)
	require.NoError(t, err)
	assert.Equal(t, fsatomic.BytesSHA256([]byte("original,content")), data)
}

func TestIngestArtifactIsIdempotentForIdenticalContent(t *testing.T) {
	hb, roots := newTestHeartbeat(t, nil, nil)
	paths := roots.Agent(hbAgent)

	content := []byte("a,b,c")
	sha := fsatomic.BytesSHA256(content)

	inboxDir := paths.InboxPlan(hbPlan)
	require.NoError(t, fsatomic.WriteBytes(filepath.Join(inboxDir, "dataset.csv"), content))

	env := &message.Envelope{
		MessageID: "msg_1", TaskID: "task_a", OutputName: "dataset",
		Payload: message.Payload{Files: []message.PayloadFile{{Path: "dataset.csv", SHA256: sha}}},
	}
	require.NoError(t, hb.ingestArtifact(hbPlan, env))

	// re-deliver the identical payload a second time under a new message id
	require.NoError(t, fsatomic.WriteBytes(filepath.Join(inboxDir, "dataset.csv"), content))
	env2 := &message.Envelope{
		MessageID: "msg_2", TaskID: "task_a", OutputName: "dataset",
		Payload: message.Payload{Files: []message.PayloadFile{{Path: "dataset.csv", SHA256: sha}}},
	}
	assert.NoError(t, hb.ingestArtifact(hbPlan, env2))
}
