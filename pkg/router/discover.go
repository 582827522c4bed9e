package router

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/jiazeyu1987/AgentTalk/pkg/agentpaths"
	"github.com/jiazeyu1987/AgentTalk/pkg/planscan"
)

// discoverAgents lists agent ids present under the agents root.
func discoverAgents(agentsRoot string) ([]string, error) {
	return planscan.DiscoverAgents(agentsRoot)
}

// discoverPlans unions every plan_id seen as an outbox subdirectory of any
// agent with every plan_id already archived under system_runtime/plans, so
// a plan remains in scope for as long as either side still references it.
// Shared with the monitor via pkg/planscan so both daemons see the same
// set of in-scope plans.
func discoverPlans(roots agentpaths.Roots) ([]string, error) {
	return planscan.DiscoverPlans(roots)
}

// discoverOutboxEnvelopes lists every *.msg.json file directly under each
// agent's outbox/<plan> directory, returning (agentID, filename) pairs
// sorted by agent then filename.
type outboxEnvelope struct {
	AgentID  string
	FileName string
	Path     string
}

func discoverOutboxEnvelopes(roots agentpaths.Roots, planID string) ([]outboxEnvelope, error) {
	agents, err := discoverAgents(roots.AgentsRoot)
	if err != nil {
		return nil, err
	}
	var out []outboxEnvelope
	for _, agentID := range agents {
		dir := roots.Agent(agentID).OutboxPlan(planID)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			n := e.Name()
			if len(n) >= len(".msg.json") && n[len(n)-len(".msg.json"):] == ".msg.json" {
				names = append(names, n)
			}
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, outboxEnvelope{AgentID: agentID, FileName: n, Path: filepath.Join(dir, n)})
		}
	}
	return out, nil
}

// discoverOutboxFiles lists outbox files directly under
// outbox/<plan>/<subdir> across every agent, matching a filename prefix,
// used for acks, human requests/responses, decisions, and releases.
func discoverOutboxFiles(roots agentpaths.Roots, planID, subdir, prefix string) ([]outboxEnvelope, error) {
	agents, err := discoverAgents(roots.AgentsRoot)
	if err != nil {
		return nil, err
	}
	var out []outboxEnvelope
	for _, agentID := range agents {
		dir := filepath.Join(roots.Agent(agentID).OutboxPlan(planID), subdir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			dir = roots.Agent(agentID).OutboxPlan(planID)
			entries, err = os.ReadDir(dir)
			if err != nil {
				continue
			}
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			n := e.Name()
			if len(n) >= len(".json") && n[len(n)-len(".json"):] == ".json" &&
				(prefix == "" || (len(n) >= len(prefix) && n[:len(prefix)] == prefix)) {
				names = append(names, n)
			}
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, outboxEnvelope{AgentID: agentID, FileName: n, Path: filepath.Join(dir, n)})
		}
	}
	return out, nil
}
