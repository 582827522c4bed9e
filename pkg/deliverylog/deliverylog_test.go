package deliverylog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReadEntriesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	log := Open(dir)

	require.NoError(t, log.Append(Entry{
		SchemaVersion: "1.0", DeliveryID: "del_1", PlanID: "p", MessageID: "msg_1",
		EnvelopeSHA256: "sha256:aaa", TaskID: "task_a", Status: StatusDelivered,
	}))
	require.NoError(t, log.Append(Entry{
		SchemaVersion: "1.0", DeliveryID: "del_2", PlanID: "p", MessageID: "msg_2",
		EnvelopeSHA256: "sha256:bbb", TaskID: "task_a", Status: StatusSkippedSuperseded,
	}))

	entries, err := log.ReadEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "del_1", entries[0].DeliveryID)
	assert.Equal(t, "del_2", entries[1].DeliveryID)
}

func TestReadEntriesMissingFileIsEmptyNotError(t *testing.T) {
	log := Open(filepath.Join(t.TempDir(), "does-not-exist"))
	entries, err := log.ReadEntries()
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestReadEntriesTolerantOfBlankAndBadLines(t *testing.T) {
	dir := t.TempDir()
	log := Open(dir)
	require.NoError(t, log.Append(Entry{DeliveryID: "del_1", MessageID: "msg_1", Status: StatusDelivered}))

	// simulate a torn trailing line from a crash mid-write, plus a blank line
	path := filepath.Join(dir, "deliveries.jsonl")
	appendRaw(t, path, "\n{not valid json\n")

	entries, err := log.ReadEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "del_1", entries[0].DeliveryID)
}

func TestDeliveredIndexOnlyCountsDelivered(t *testing.T) {
	entries := []Entry{
		{MessageID: "msg_1", EnvelopeSHA256: "sha256:aaa", Status: StatusDelivered},
		{MessageID: "msg_2", EnvelopeSHA256: "sha256:bbb", Status: StatusSkippedSuperseded},
		{MessageID: "msg_3", EnvelopeSHA256: "sha256:ccc", Status: StatusDeadlettered},
	}
	idx := DeliveredIndex(entries)
	assert.True(t, idx[[2]string{"msg_1", "sha256:aaa"}])
	assert.False(t, idx[[2]string{"msg_2", "sha256:bbb"}])
	assert.Len(t, idx, 1)
}

func TestDeliveredOutputsAggregatesTaskAndFiles(t *testing.T) {
	entries := []Entry{
		{Status: StatusDelivered, TaskID: "task_a", OutputName: "report", PayloadFiles: []string{"dir/report.json"}},
		{Status: StatusDelivered, TaskID: "task_a", OutputName: "report", PayloadFiles: []string{"dir/report.json"}},
		{Status: StatusSkippedSuperseded, TaskID: "task_b", OutputName: "ignored"},
	}
	outputs, files := DeliveredOutputs(entries)
	assert.True(t, outputs[[2]string{"task_a", "report"}])
	assert.False(t, outputs[[2]string{"task_b", "ignored"}])
	assert.True(t, files["report.json"])
}

func appendRaw(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(s)
	require.NoError(t, err)
}
