package releasegate

import (
	"encoding/json"
	"path/filepath"

	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
)

// buildEvidenceLookup maps every file basename recorded in the release
// manager's input_index.json to its last-stored absolute path, the same
// "resolve by exact filename" rule the original substrate uses for
// required_inputs, applied here to required_gates evidence filenames.
func buildEvidenceLookup(path string) map[string]string {
	var idx message.InputIndex
	if err := fsatomic.ReadJSON(path, &idx); err != nil {
		return map[string]string{}
	}
	lookup := make(map[string]string)
	for _, e := range idx.Entries {
		for _, f := range e.Files {
			lookup[filepath.Base(f.Path)] = f.StoredAt
		}
	}
	return lookup
}

// manifestDigestBytes renders rm with its own Signature field cleared, so
// signing never binds a manifest's signature to itself.
func manifestDigestBytes(rm message.ReleaseManifest) []byte {
	rm.Signature = ""
	data, _ := json.Marshal(rm)
	return data
}

// decisionDigestBytes renders dr with its own Signature field cleared.
func decisionDigestBytes(dr message.DecisionRecord) []byte {
	dr.Signature = ""
	data, _ := json.Marshal(dr)
	return data
}
