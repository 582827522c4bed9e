package heartbeat

import (
	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
)

func writeAck(path string, a message.Ack) error {
	return fsatomic.WriteJSON(path, a)
}

func writeTaskState(path string, s message.TaskStateRecord) error {
	return fsatomic.WriteJSON(path, s)
}

func readTaskState(path string) (message.TaskStateRecord, bool) {
	var s message.TaskStateRecord
	if err := fsatomic.ReadJSON(path, &s); err != nil {
		return message.TaskStateRecord{}, false
	}
	return s, true
}

// appendInputIndexEntry reads, appends to, and rewrites a workspace's
// input_index.json document. Missing files decode as a zero-value index.
// An entry whose message_id is already indexed only refreshes updated_at:
// redelivery of an already-ingested artifact must not grow the index.
func appendInputIndexEntry(path, planID, agentID, updatedAt string, entry message.InputIndexEntry) error {
	var idx message.InputIndex
	_ = fsatomic.ReadJSON(path, &idx)
	idx.SchemaVersion = message.SchemaVersion
	idx.PlanID = planID
	idx.AgentID = agentID
	idx.UpdatedAt = updatedAt
	for _, e := range idx.Entries {
		if e.MessageID == entry.MessageID {
			return fsatomic.WriteJSON(path, idx)
		}
	}
	idx.Entries = append(idx.Entries, entry)
	return fsatomic.WriteJSON(path, idx)
}

// buildInputLookup maps every file path recorded in an input index to its
// last-stored absolute location, so a command's required_inputs/
// resolved_inputs entries can be resolved regardless of which task/output
// originally delivered them — mirroring the Python substrate's
// build_input_lookup(), which lets a later task reference an input by bare
// filename without knowing which upstream task produced it.
func buildInputLookup(path string) map[string]string {
	var idx message.InputIndex
	if err := fsatomic.ReadJSON(path, &idx); err != nil {
		return map[string]string{}
	}
	lookup := make(map[string]string, len(idx.Entries))
	for _, e := range idx.Entries {
		for _, f := range e.Files {
			lookup[f.Path] = f.StoredAt
		}
	}
	return lookup
}
