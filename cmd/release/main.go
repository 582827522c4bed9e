// Command release runs the release gate coordinator: for every in-scope
// plan it evaluates the plan's required release-gate evidence and emits a
// release manifest plus a decision record into the release manager
// agent's outbox, for the router to archive. Unlike the router, heartbeat
// and monitor, this coordinator is commonly invoked once per release
// rather than left running: it evaluates once and exits unless -loop is
// set.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jiazeyu1987/AgentTalk/pkg/agentpaths"
	"github.com/jiazeyu1987/AgentTalk/pkg/ids"
	"github.com/jiazeyu1987/AgentTalk/pkg/planscan"
	"github.com/jiazeyu1987/AgentTalk/pkg/policy"
	"github.com/jiazeyu1987/AgentTalk/pkg/releasegate"
	"github.com/jiazeyu1987/AgentTalk/pkg/schema"
	"github.com/jiazeyu1987/AgentTalk/pkg/signing"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("release", flag.ContinueOnError)
	rootsDir := fs.String("roots", ".", "directory containing agents/ and system_runtime/")
	schemasDir := fs.String("schemas", "", "directory of *.schema.json validators (optional)")
	agentID := fs.String("agent", "agent_release_manager", "agent_id this coordinator acts as")
	signingKey := fs.String("signing-key", "", "HS256 signing key; unsigned manifests if empty")
	loop := fs.Bool("loop", false, "keep evaluating on -poll-interval instead of running once")
	pollSeconds := fs.Float64("poll-interval", 10.0, "seconds between evaluations when -loop is set")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	roots := agentpaths.Roots{
		AgentsRoot:       *rootsDir + "/agents",
		SystemRuntimeDir: *rootsDir + "/system_runtime",
	}

	pol, err := policy.NewEvaluator()
	if err != nil {
		logger.Error("building policy evaluator", "error", err)
		return 1
	}
	var signer *signing.Signer
	if *signingKey != "" {
		signer = signing.NewSigner(signing.StaticKeySet{Key: []byte(*signingKey)})
	}

	gate := releasegate.New(roots, releasegate.Config{ReleaseManagerAgentID: *agentID}, pol, signer, schema.NewRegistry(*schemasDir), nil, ids.New())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	evalOnce := func() bool {
		plans, err := planscan.DiscoverPlans(roots)
		if err != nil {
			logger.Error("discovering plans", "error", err)
			return false
		}
		ok := true
		for _, planID := range plans {
			if _, _, err := gate.Evaluate(ctx, planID); err != nil {
				logger.Error("release gate evaluation failed", "plan_id", planID, "error", err)
				ok = false
				continue
			}
			logger.Info("release gate evaluated", "plan_id", planID)
		}
		return ok
	}

	if !*loop {
		if !evalOnce() {
			return 1
		}
		return 0
	}

	logger.Info("release coordinator looping", "poll_interval_seconds", *pollSeconds)
	interval := time.Duration(*pollSeconds * float64(time.Second))
	for {
		evalOnce()
		select {
		case <-ctx.Done():
			logger.Info("release coordinator stopped")
			return 0
		case <-time.After(interval):
		}
	}
}
