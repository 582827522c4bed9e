// Package handler implements the pluggable command-execution capability:
// given a command, produce zero or more artifact files to hand back to the
// heartbeat for writing to the owning agent's outbox. Arbitrary
// user-supplied handler code is out of scope (see Non-goals); this package
// ships the reference handlers the original substrate shipped
// (DefaultCommandHandler, DummyArtifactHandler) plus an optional
// WASI-sandboxed handler for running a command's prompt as untrusted code.
package handler

import "context"

// Result is what a CommandHandler returns after attempting a command.
type Result struct {
	OK      bool
	Details map[string]any
}

// ProducedFile is one file a handler wants written to an agent's outbox
// as part of an artifact it produced.
type ProducedFile struct {
	RelPath string
	Data    []byte
}

// ProducedArtifact groups the files produced for a single declared output.
type ProducedArtifact struct {
	OutputName string
	Files      []ProducedFile
}

// ProducesFileSpec declares one file path a command expects an output to
// consist of.
type ProducesFileSpec struct {
	Path        string
	ContentType string
}

// ProducesSpec names one output a command declares, with its file paths.
type ProducesSpec struct {
	OutputName string
	Files      []ProducesFileSpec
}

// Command is the minimal view of a command a handler needs; kept separate
// from message.Command so handler implementations do not need to import
// the full envelope model.
type Command struct {
	PlanID    string
	TaskID    string
	CommandID string
	Prompt    string
	Produces  []ProducesSpec
}

// CommandHandler executes one command and reports success/failure plus any
// artifacts it produced.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd Command) (Result, []ProducedArtifact, error)
}

// DefaultCommandHandler is a no-op handler: every command succeeds
// immediately with no artifacts. Matches the original substrate's
// DefaultCommandHandler, the handler used whenever an agent's runtime
// configuration names no other implementation.
type DefaultCommandHandler struct{}

func (DefaultCommandHandler) HandleCommand(ctx context.Context, cmd Command) (Result, []ProducedArtifact, error) {
	return Result{OK: true, Details: map[string]any{}}, nil, nil
}

// DummyArtifactHandler writes a fixed, human-readable placeholder body to
// every file path a command declares under Produces. It exists for
// integration tests and demos that need real (if meaningless) artifact
// files flowing through the pipeline. A command with no usable produces
// entries fails, since a dummy handler that silently produces nothing
// would mask a miswired command.
type DummyArtifactHandler struct{}

func (DummyArtifactHandler) HandleCommand(ctx context.Context, cmd Command) (Result, []ProducedArtifact, error) {
	if len(cmd.Produces) == 0 {
		return Result{OK: false, Details: map[string]any{"error": "command.produces is required for DummyArtifactHandler"}}, nil, nil
	}
	var artifacts []ProducedArtifact
	for _, spec := range cmd.Produces {
		body := "DUMMY OUTPUT\noutput_name=" + spec.OutputName + "\nprompt=" + cmd.Prompt + "\n"
		var files []ProducedFile
		for _, f := range spec.Files {
			if f.Path == "" {
				continue
			}
			files = append(files, ProducedFile{RelPath: f.Path, Data: []byte(body)})
		}
		if len(files) == 0 {
			continue
		}
		artifacts = append(artifacts, ProducedArtifact{OutputName: spec.OutputName, Files: files})
	}
	if len(artifacts) == 0 {
		return Result{OK: false, Details: map[string]any{"error": "no valid produces entries"}}, nil, nil
	}
	return Result{OK: true, Details: map[string]any{}}, artifacts, nil
}
