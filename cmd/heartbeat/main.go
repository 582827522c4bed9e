// Command heartbeat runs the per-agent heartbeat daemon: it ticks forever
// for exactly one agent, claiming inbox envelopes, ingesting artifacts,
// and executing commands via the configured handler, until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jiazeyu1987/AgentTalk/pkg/agentpaths"
	"github.com/jiazeyu1987/AgentTalk/pkg/artifactmirror"
	"github.com/jiazeyu1987/AgentTalk/pkg/config"
	"github.com/jiazeyu1987/AgentTalk/pkg/handler"
	"github.com/jiazeyu1987/AgentTalk/pkg/heartbeat"
	"github.com/jiazeyu1987/AgentTalk/pkg/ids"
	"github.com/jiazeyu1987/AgentTalk/pkg/schema"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("heartbeat", flag.ContinueOnError)
	rootsDir := fs.String("roots", ".", "directory containing agents/ and system_runtime/")
	schemasDir := fs.String("schemas", "", "directory of *.schema.json validators (optional)")
	agentID := fs.String("agent", "", "agent_id this heartbeat serves (falls back to the config's agent_id)")
	configPath := fs.String("config", "", "path to heartbeat_config.json (defaults to <roots>/agents/<agent>/heartbeat_config.json)")
	handlerName := fs.String("handler", "default", "command handler: default|dummy|wasm")
	wasmModulePath := fs.String("wasm-module", "", "path to a WASI module executed per command when -handler wasm")
	once := fs.Bool("once", false, "run a single tick and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *agentID == "" && *configPath == "" {
		fmt.Fprintln(os.Stderr, "heartbeat: -agent or -config is required")
		return 2
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	roots := agentpaths.Roots{
		AgentsRoot:       *rootsDir + "/agents",
		SystemRuntimeDir: *rootsDir + "/system_runtime",
	}

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = roots.Agent(*agentID).HeartbeatConfig()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("loading heartbeat config", "error", err)
		return 1
	}
	if *agentID == "" {
		*agentID = cfg.AgentID
	}
	if *agentID == "" {
		fmt.Fprintln(os.Stderr, "heartbeat: no agent_id from -agent or config")
		return 2
	}
	if *schemasDir != "" {
		cfg.SchemaValidation = config.SchemaValidation{Enabled: true, SchemasBaseDir: *schemasDir}
	}

	var h handler.CommandHandler
	switch *handlerName {
	case "dummy":
		h = handler.DummyArtifactHandler{}
	case "wasm":
		if *wasmModulePath == "" {
			fmt.Fprintln(os.Stderr, "heartbeat: -handler wasm requires -wasm-module")
			return 2
		}
		moduleWasm, err := os.ReadFile(*wasmModulePath)
		if err != nil {
			logger.Error("reading wasm module", "path", *wasmModulePath, "error", err)
			return 1
		}
		wh, err := handler.NewWasmCommandHandler(context.Background(), *wasmModulePath, moduleWasm)
		if err != nil {
			logger.Error("compiling wasm module", "path", *wasmModulePath, "error", err)
			return 1
		}
		defer wh.Close(context.Background())
		h = wh
	default:
		h = handler.DefaultCommandHandler{}
	}

	hb := heartbeat.New(*agentID, roots, cfg, h, schema.NewRegistry(cfg.SchemaValidation.SchemasBaseDir), nil, ids.New())
	if mirror, mErr := artifactmirror.NewMirrorFromEnv(context.Background()); mErr == nil {
		hb.Alerts().WithMirror(mirror)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *once {
		if err := hb.Tick(ctx); err != nil {
			logger.Error("heartbeat tick failed", "agent_id", *agentID, "error", err)
			return 1
		}
		return 0
	}

	interval := cfg.PollIntervalSeconds
	logger.Info("heartbeat starting", "agent_id", *agentID, "poll_interval_seconds", interval)
	for {
		if err := hb.Tick(ctx); err != nil {
			logger.Error("heartbeat tick failed", "agent_id", *agentID, "error", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("heartbeat stopped", "agent_id", *agentID)
			return 0
		default:
		}
		if !sleepInterval(ctx, interval) {
			logger.Info("heartbeat stopped", "agent_id", *agentID)
			return 0
		}
	}
}
