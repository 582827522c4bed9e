// Package errs defines the stable error-code taxonomy shared by the
// router, heartbeat, monitor, and release packages. Every domain error
// carries a short machine-stable Code alongside a human Message, mirroring
// the original Python substrate's frozen dataclass exceptions (each of
// which exposed a `.code` attribute consumed by the alert/dead-letter
// writers).
package errs

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-matchable error identifier. Callers that need
// to branch on failure kind (e.g. the router deciding whether to
// dead-letter or merely skip) should compare Code, never Message text.
type Code string

const (
	CodeUnsafePath                        Code = "UNSAFE_PATH"
	CodeEnvelopeParseError                Code = "ENVELOPE_PARSE_ERROR"
	CodeEnvelopeInvalid                   Code = "ENVELOPE_INVALID"
	CodeSchemaInvalid                     Code = "SCHEMA_INVALID"
	CodeSchemaVersionUnsupported          Code = "SCHEMA_VERSION_UNSUPPORTED"
	CodeDagInvalid                        Code = "DAG_INVALID"
	CodeActiveDagRefMismatch              Code = "ACTIVE_DAG_REF_MISMATCH"
	CodeDagTaskNotFound                   Code = "DAG_TASK_NOT_FOUND"
	CodeDagTaskNoAssignee                 Code = "DAG_TASK_NO_ASSIGNEE"
	CodeDagOutputNotFound                 Code = "DAG_OUTPUT_NOT_FOUND"
	CodeRoutingNoTarget                   Code = "ROUTING_NO_TARGET"
	CodeTargetAgentNotFound               Code = "TARGET_AGENT_NOT_FOUND"
	CodeUnsupportedMessageType            Code = "UNSUPPORTED_MESSAGE_TYPE"
	CodeCommandDagMismatch                Code = "COMMAND_DAG_MISMATCH"
	CodeMessageIDReusedDifferentPayload   Code = "MESSAGE_ID_REUSED_WITH_DIFFERENT_PAYLOAD"
	CodeIDReusedDifferentContent          Code = "ID_REUSED_WITH_DIFFERENT_CONTENT"
	CodeSkippedSuperseded                 Code = "SKIPPED_SUPERSEDED"
	CodeUnhandledException                Code = "UNHANDLED_EXCEPTION"
	CodeMissingPayload                    Code = "MISSING_PAYLOAD"
	CodeInputConflict                     Code = "INPUT_CONFLICT"
	CodePayloadFinalizeConflict           Code = "PAYLOAD_FINALIZE_CONFLICT"
	CodeTaskStateCorruptFallback          Code = "TASK_STATE_CORRUPT_FALLBACK"
	CodeWaitForInputsTimeout              Code = "WAIT_FOR_INPUTS_TIMEOUT"
	CodeCommandAckTimeout                 Code = "COMMAND_ACK_TIMEOUT"
	CodeCommandArchiveInconsistent        Code = "COMMAND_ARCHIVE_INCONSISTENT"
	CodePlanStatusAggregationFailed       Code = "PLAN_STATUS_AGGREGATION_FAILED"
	CodeReleaseGateEvaluationFailed       Code = "RELEASE_GATE_EVALUATION_FAILED"
)

// Error is the comparable domain-error type used across every package in
// this module. Two Errors are equal iff their Code and Message match,
// which keeps table-driven tests able to assert on Code alone via
// errors.As plus a Code comparison.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New constructs an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error, and
// reports whether extraction succeeded.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
