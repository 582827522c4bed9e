package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyWasmModule is the smallest valid WebAssembly module: the magic
// number and version, no sections. It instantiates cleanly under WASI,
// runs nothing, and writes nothing to stdout — enough to exercise the
// compile/instantiate/capture path without shipping a binary fixture.
var emptyWasmModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestWasmCommandHandlerRunsModuleAndProducesDeclaredFiles(t *testing.T) {
	ctx := context.Background()
	h, err := NewWasmCommandHandler(ctx, "noop.wasm", emptyWasmModule)
	require.NoError(t, err)
	defer h.Close(ctx)

	result, artifacts, err := h.HandleCommand(ctx, Command{
		PlanID: "plan_1", TaskID: "task_a", CommandID: "cmd_1", Prompt: "ignored",
		Produces: []ProducesSpec{{OutputName: "o", Files: []ProducesFileSpec{{Path: "o.txt"}}}},
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "o", artifacts[0].OutputName)
	require.Len(t, artifacts[0].Files, 1)
	assert.Equal(t, "o.txt", artifacts[0].Files[0].RelPath)
	assert.Empty(t, artifacts[0].Files[0].Data, "a module that writes nothing produces empty file bodies")
}

func TestWasmCommandHandlerReusableAcrossCommands(t *testing.T) {
	ctx := context.Background()
	h, err := NewWasmCommandHandler(ctx, "noop.wasm", emptyWasmModule)
	require.NoError(t, err)
	defer h.Close(ctx)

	for i := 0; i < 2; i++ {
		result, _, err := h.HandleCommand(ctx, Command{
			PlanID: "plan_1", TaskID: "task_a", CommandID: "cmd_1",
			Produces: []ProducesSpec{{OutputName: "o"}},
		})
		require.NoError(t, err)
		assert.True(t, result.OK)
	}
}

func TestNewWasmCommandHandlerRejectsInvalidModule(t *testing.T) {
	_, err := NewWasmCommandHandler(context.Background(), "bad.wasm", []byte("not a wasm module"))
	assert.Error(t, err)
}
