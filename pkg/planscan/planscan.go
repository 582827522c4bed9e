// Package planscan centralizes the directory-listing discovery every
// ticking daemon needs before it can do anything else: which agents
// exist, and which plan_ids are currently in scope. The router and the
// monitor both need exactly this union (agents' outbox subdirectories
// plus whatever is already archived under system_runtime/plans), so it
// lives here once rather than drifting between two copies.
package planscan

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/jiazeyu1987/AgentTalk/pkg/agentpaths"
)

// DiscoverAgents lists agent ids present as subdirectories of agentsRoot,
// sorted for deterministic tick ordering.
func DiscoverAgents(agentsRoot string) ([]string, error) {
	entries, err := os.ReadDir(agentsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var agents []string
	for _, e := range entries {
		if e.IsDir() {
			agents = append(agents, e.Name())
		}
	}
	sort.Strings(agents)
	return agents, nil
}

// DiscoverPlans unions every plan_id seen as an outbox subdirectory of any
// agent with every plan_id already archived under system_runtime/plans, so
// a plan remains in scope for as long as either side still references it.
func DiscoverPlans(roots agentpaths.Roots) ([]string, error) {
	seen := make(map[string]bool)

	agents, err := DiscoverAgents(roots.AgentsRoot)
	if err != nil {
		return nil, err
	}
	for _, agentID := range agents {
		outboxRoot := filepath.Join(roots.AgentsRoot, agentID, "outbox")
		entries, err := os.ReadDir(outboxRoot)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				seen[e.Name()] = true
			}
		}
	}

	plansRoot := filepath.Join(roots.SystemRuntimeDir, "plans")
	if entries, err := os.ReadDir(plansRoot); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				seen[e.Name()] = true
			}
		}
	}

	plans := make([]string, 0, len(seen))
	for p := range seen {
		plans = append(plans, p)
	}
	sort.Strings(plans)
	return plans, nil
}
