// Package alertlog writes the two kinds of out-of-band notice every
// daemon in this module can raise without halting its current tick: an
// Alert (something worth an operator's attention) and a DeadLetter (an
// envelope or archive write this daemon could not process at all).
package alertlog

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/jiazeyu1987/AgentTalk/pkg/artifactmirror"
	"github.com/jiazeyu1987/AgentTalk/pkg/clock"
	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/ids"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// Writer writes alerts and dead-letters under a system_runtime root.
type Writer struct {
	SystemRuntimeDir string
	IDs              ids.Generator
	Clock            clock.Clock

	// Mirror, if set, receives a best-effort content-addressed copy of
	// every alert/dead-letter written, independent of the local disk's
	// lifecycle. A nil Mirror (the default) disables this entirely.
	Mirror artifactmirror.Store
}

// New returns a Writer rooted at systemRuntimeDir.
func New(systemRuntimeDir string, idGen ids.Generator, clk clock.Clock) *Writer {
	return &Writer{SystemRuntimeDir: systemRuntimeDir, IDs: idGen, Clock: clk}
}

// WithMirror attaches a durable mirror, returning the Writer for chaining.
func (w *Writer) WithMirror(m artifactmirror.Store) *Writer {
	w.Mirror = m
	return w
}

// mirror best-effort copies v's JSON encoding to the attached Store. A
// mirror failure never fails the caller's write — the local filesystem
// archive stays authoritative per spec §5.
func (w *Writer) mirror(v any) {
	if w.Mirror == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = w.Mirror.Store(context.Background(), data)
}

func (w *Writer) now() string {
	return clock.IsoZ(w.Clock.Now())
}

// Alert writes system_runtime/alerts/<plan>/<alert_id>.json.
func (w *Writer) Alert(planID string, code errs.Code, msg string, context map[string]any) error {
	a := message.Alert{
		SchemaVersion: message.SchemaVersion,
		AlertID:       w.IDs.NewAlertID(),
		PlanID:        planID,
		Code:          string(code),
		Message:       msg,
		CreatedAt:     w.now(),
		Context:       context,
	}
	path := filepath.Join(w.SystemRuntimeDir, "alerts", planID, a.AlertID+".json")
	if err := fsatomic.WriteJSON(path, a); err != nil {
		return err
	}
	w.mirror(a)
	return nil
}

// DeadLetter writes system_runtime/deadletter/<plan>/<dlq_id>.json.
func (w *Writer) DeadLetter(planID string, code errs.Code, msg, sourcePath string, originalPayload map[string]any) error {
	d := message.DeadLetter{
		SchemaVersion:   message.SchemaVersion,
		DeadLetterID:    w.IDs.NewDeadLetterID(),
		PlanID:          planID,
		Code:            string(code),
		Message:         msg,
		CreatedAt:       w.now(),
		SourcePath:      sourcePath,
		OriginalPayload: originalPayload,
	}
	path := filepath.Join(w.SystemRuntimeDir, "deadletter", planID, d.DeadLetterID+".json")
	if err := fsatomic.WriteJSON(path, d); err != nil {
		return err
	}
	w.mirror(d)
	return nil
}
