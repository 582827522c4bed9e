// Command monitor runs the plan-status aggregator daemon: it ticks
// forever, mirroring agent heartbeats and reconstructing plan_status.json
// for every in-scope plan, until interrupted.
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
	"github.com/jiazeyu1987/AgentTalk/pkg/ids"
	"github.com/jiazeyu1987/AgentTalk/pkg/monitor"
	"github.com/jiazeyu1987/AgentTalk/pkg/schema"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	rootsDir := fs.String("roots", ".", "directory containing agents/ and system_runtime/")
	schemasDir := fs.String("schemas", "", "directory of *.schema.json validators (optional)")
	pollSeconds := fs.Float64("poll-interval", 2.0, "seconds between ticks")
	once := fs.Bool("once", false, "run a single tick and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	roots := agentpaths.Roots{
		AgentsRoot:       *rootsDir + "/agents",
		SystemRuntimeDir: *rootsDir + "/system_runtime",
	}

	m := monitor.New(roots, monitor.Config{PollIntervalSeconds: *pollSeconds}, schema.NewRegistry(*schemasDir), nil, ids.New())
	if mirror, mErr := artifactmirror.NewMirrorFromEnv(context.Background()); mErr == nil {
		m.Alerts().WithMirror(mirror)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *once {
		if err := m.Tick(ctx); err != nil {
			logger.Error("monitor tick failed", "error", err)
			return 1
		}
		return 0
	}

	logger.Info("monitor starting", "roots", *rootsDir, "poll_interval_seconds", *pollSeconds)
	if err := m.RunForever(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "monitor: "+err.Error())
		return 1
	}
	logger.Info("monitor stopped")
	return 0
}
