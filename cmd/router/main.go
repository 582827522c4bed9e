// Command router runs the filesystem router daemon: it ticks forever,
// discovering every agent's outbox and routing envelopes to their
// DAG-assigned targets, until interrupted.
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
	"github.com/jiazeyu1987/AgentTalk/pkg/router"
	"github.com/jiazeyu1987/AgentTalk/pkg/schema"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("router", flag.ContinueOnError)
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

	r := router.New(roots, router.Config{
		PollIntervalSeconds:     *pollSeconds,
		SchemaValidationEnabled: *schemasDir != "",
	}, schema.NewRegistry(*schemasDir), nil, ids.New())
	if mirror, mErr := artifactmirror.NewMirrorFromEnv(context.Background()); mErr == nil {
		r.Alerts().WithMirror(mirror)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *once {
		if err := r.Tick(ctx); err != nil {
			logger.Error("router tick failed", "error", err)
			return 1
		}
		return 0
	}

	logger.Info("router starting", "roots", *rootsDir, "poll_interval_seconds", *pollSeconds)
	if err := r.RunForever(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "router: "+err.Error())
		return 1
	}
	logger.Info("router stopped")
	return 0
}
