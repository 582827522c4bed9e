// Package deliverylog implements the append-only JSONL delivery log each
// plan maintains under system_runtime/plans/<plan>/deliveries.jsonl.
// Every routing decision the router makes — delivered, skipped-superseded,
// dead-lettered — is appended as one line, never rewritten. The router
// replays it to avoid redelivering anything already settled, and the
// monitor replays it to reconstruct plan status.
//
// Grounded on the JSONL append idiom used throughout the filesystem
// substrate: the first write of a log file goes through the atomic
// tempfile-then-rename helper, but every subsequent line is appended in
// O_APPEND mode, since append-mode writes from a single writer are already
// crash-safe at the line granularity this format needs.
package deliverylog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
)

// Status is the outcome recorded for one delivery attempt.
type Status string

const (
	StatusDelivered        Status = "DELIVERED"
	StatusSkippedSuperseded Status = "SKIPPED_SUPERSEDED"
	StatusDeadlettered     Status = "DEADLETTERED"
)

// Entry is one line of the delivery log.
type Entry struct {
	SchemaVersion        string         `json:"schema_version"`
	DeliveryID           string         `json:"delivery_id"`
	PlanID               string         `json:"plan_id"`
	MessageID            string         `json:"message_id"`
	EnvelopeSHA256       string         `json:"envelope_sha256"`
	TaskID               string         `json:"task_id,omitempty"`
	CommandID            string         `json:"command_id,omitempty"`
	OutputName           string         `json:"output_name,omitempty"`
	FromAgentID          string         `json:"from_agent_id,omitempty"`
	ToAgentID            string         `json:"to_agent_id,omitempty"`
	DeliveredAt          string         `json:"delivered_at"`
	Status               Status         `json:"status"`
	SkipReason           string         `json:"skip_reason,omitempty"`
	Superseded           bool           `json:"superseded,omitempty"`
	SupersededByMessage  string         `json:"superseded_by_message_id,omitempty"`
	SupersededByCommand  string         `json:"superseded_by_command_id,omitempty"`
	SupersededByCmdSeq   int64          `json:"superseded_by_command_seq,omitempty"`
	PayloadFiles         []string       `json:"payload_files,omitempty"`
	Error                string         `json:"error,omitempty"`
}

// Log wraps append and replay operations over one plan's JSONL file.
type Log struct {
	path string
}

// Open returns a Log bound to the deliveries.jsonl file under planDir.
func Open(planDir string) *Log {
	return &Log{path: filepath.Join(planDir, "deliveries.jsonl")}
}

// Append writes one more entry to the log, creating the file (via the
// atomic-write helper) on first use and append-mode thereafter.
func (l *Log) Append(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if !fsatomic.Exists(l.path) {
		if err := fsatomic.EnsureDir(filepath.Dir(l.path)); err != nil {
			return err
		}
		return fsatomic.WriteBytes(l.path, data)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// ReadEntries replays every line of the log, silently skipping blank or
// unparseable lines (matching the original substrate's tolerant JSONL
// reader, since a torn trailing line can only ever be the very last one
// written before a crash and never affects earlier, already-fsynced
// entries).
func (l *Log) ReadEntries() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeliveredIndex builds the (message_id, envelope_sha256) dedup set from
// every DELIVERED entry in the log, the set the router checks before
// attempting to deliver an envelope again.
func DeliveredIndex(entries []Entry) map[[2]string]bool {
	idx := make(map[[2]string]bool)
	for _, e := range entries {
		if e.Status == StatusDelivered {
			idx[[2]string{e.MessageID, e.EnvelopeSHA256}] = true
		}
	}
	return idx
}

// SettledIndex builds the set of (message_id, envelope_sha256) pairs the
// log already records under any status — delivered, superseded, or
// dead-lettered. The router consults this so a re-run over unchanged
// outboxes appends nothing at all.
func SettledIndex(entries []Entry) map[[2]string]bool {
	idx := make(map[[2]string]bool)
	for _, e := range entries {
		if e.MessageID == "" || e.EnvelopeSHA256 == "" {
			continue
		}
		idx[[2]string{e.MessageID, e.EnvelopeSHA256}] = true
	}
	return idx
}

// DeliveredOutputs builds the (task_id, output_name) set of artifact
// outputs the log shows as delivered, plus the flat set of delivered file
// basenames — the two lookups the monitor's input-satisfaction check uses.
func DeliveredOutputs(entries []Entry) (map[[2]string]bool, map[string]bool) {
	outputs := make(map[[2]string]bool)
	files := make(map[string]bool)
	for _, e := range entries {
		if e.Status != StatusDelivered || e.TaskID == "" || e.OutputName == "" {
			continue
		}
		outputs[[2]string{e.TaskID, e.OutputName}] = true
		for _, f := range e.PayloadFiles {
			files[filepath.Base(f)] = true
		}
	}
	return outputs, files
}
