package handler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WasmCommandHandler executes a command's prompt inside a WASI-sandboxed
// WASM module to produce artifacts. This is a reference sandboxed
// implementation, not a general plugin mechanism: the module is fixed at
// construction time and every command is run against the same module with
// its prompt on WASI stdin and the module name, task id and command id as
// args, the module's stdout captured as the file body of every declared
// output file.
//
// The runtime is built with wazero's default configuration; this handler
// sets no memory or wall-clock limit of its own.
type WasmCommandHandler struct {
	runtime    wazero.Runtime
	moduleName string
	moduleWasm []byte
}

// NewWasmCommandHandler compiles the given WASM bytes once to reject an
// invalid module up front; each HandleCommand call instantiates a fresh
// module from the same bytes.
func NewWasmCommandHandler(ctx context.Context, moduleName string, moduleWasm []byte) (*WasmCommandHandler, error) {
	rt := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiating wasi: %w", err)
	}
	if _, err := rt.CompileModule(ctx, moduleWasm); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("compiling wasm module %s: %w", moduleName, err)
	}
	return &WasmCommandHandler{runtime: rt, moduleName: moduleName, moduleWasm: moduleWasm}, nil
}

// Close releases the underlying wazero runtime.
func (h *WasmCommandHandler) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

func (h *WasmCommandHandler) HandleCommand(ctx context.Context, cmd Command) (Result, []ProducedArtifact, error) {
	stdin := strings.NewReader(cmd.Prompt)
	var stdout bytes.Buffer

	cfg := wazero.NewModuleConfig().
		WithStdin(stdin).
		WithStdout(&stdout).
		WithStderr(os.Stderr).
		WithArgs(h.moduleName, cmd.TaskID, cmd.CommandID)

	mod, err := h.runtime.InstantiateWithConfig(ctx, h.moduleWasm, cfg)
	if err != nil {
		return Result{OK: false, Details: map[string]any{"error": err.Error()}}, nil, nil
	}
	defer mod.Close(ctx)

	body := stdout.Bytes()
	artifacts := make([]ProducedArtifact, 0, len(cmd.Produces))
	for _, spec := range cmd.Produces {
		files := make([]ProducedFile, 0, len(spec.Files))
		for _, f := range spec.Files {
			files = append(files, ProducedFile{RelPath: f.Path, Data: body})
		}
		if len(files) == 0 {
			files = []ProducedFile{{RelPath: spec.OutputName + ".out", Data: body}}
		}
		artifacts = append(artifacts, ProducedArtifact{OutputName: spec.OutputName, Files: files})
	}
	return Result{OK: true, Details: map[string]any{"sandboxed": true}}, artifacts, nil
}
