// Package ids generates the stable, timestamp-prefixed identifiers used
// throughout the substrate: messages, alerts, dead-letter entries,
// delivery-log entries, human intervention requests, and decision records.
//
// Every identifier has the shape "<prefix>_<compact-timestamp>_<hex8>" so
// that a directory listing sorts (mostly) chronologically even though the
// true ordering authority is always the envelope/ack/task-state content
// itself, never the filename.
package ids

import (
	"time"

	"github.com/google/uuid"
)

// Generator mints identifiers against an injected time source so tests can
// fix the timestamp portion; the hex suffix is always random.
type Generator struct {
	Now func() time.Time
}

// New returns a Generator backed by time.Now.
func New() Generator {
	return Generator{Now: time.Now}
}

func (g Generator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

func (g Generator) stamp() string {
	return g.now().UTC().Format("20060102T150405Z")
}

func hex8() string {
	return uuid.New().String()[:8]
}

func (g Generator) id(prefix string) string {
	return prefix + "_" + g.stamp() + "_" + hex8()
}

func (g Generator) NewMessageID() string       { return g.id("msg") }
func (g Generator) NewAlertID() string         { return g.id("alert") }
func (g Generator) NewDeadLetterID() string    { return g.id("dlq") }
func (g Generator) NewDeliveryID() string      { return g.id("del") }
func (g Generator) NewHumanRequestID() string  { return g.id("human_req") }
func (g Generator) NewDecisionID() string      { return g.id("dec") }
func (g Generator) NewReleaseID() string       { return g.id("release") }

// NewHumanInjectedMessageID derives a deterministic message id for an
// artifact synthesized from a human-provided file: msg_human_<request>_<sha12>.
// Deterministic (not timestamp-based) so redelivering the same file never
// mints a new id, which would defeat delivery-log dedup.
func NewHumanInjectedMessageID(requestID, sha256Hex string) string {
	short := sha256Hex
	if len(short) > 12 {
		short = short[:12]
	}
	return "msg_human_" + requestID + "_" + short
}
