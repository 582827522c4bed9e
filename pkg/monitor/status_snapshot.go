package monitor

import (
	"path/filepath"

	"github.com/jiazeyu1987/AgentTalk/pkg/fsatomic"
	"github.com/jiazeyu1987/AgentTalk/pkg/message"
	"github.com/jiazeyu1987/AgentTalk/pkg/planscan"
	"github.com/jiazeyu1987/AgentTalk/pkg/substrate/errs"
)

// collectAgentStatuses mirrors every agent's self-reported
// status_heartbeat.json into system_runtime/agent_status/<agent_id>.json,
// annotated with the instant this tick observed it. An agent whose
// heartbeat file is missing is silently skipped (it may simply not have
// ticked yet); one whose declared agent_id disagrees with the directory
// it was read from is rejected as ENVELOPE_INVALID and alerted, since a
// dashboard trusting that mismatch could attribute one agent's health to
// another's identity.
func (m *Monitor) collectAgentStatuses(planID string) error {
	agents, err := planscan.DiscoverAgents(m.Roots.AgentsRoot)
	if err != nil {
		return err
	}
	for _, agentID := range agents {
		path := m.Roots.Agent(agentID).StatusHeartbeat()
		var raw map[string]any
		if err := fsatomic.ReadJSON(path, &raw); err != nil {
			continue // agent has not reported a heartbeat yet; not an error
		}
		if declared, ok := raw["agent_id"].(string); ok && declared != "" && declared != agentID {
			_ = m.alerts.Alert(planID, errs.CodeEnvelopeInvalid, "status_heartbeat.json agent_id mismatch", map[string]any{
				"directory_agent_id": agentID, "declared_agent_id": declared,
			})
			continue
		}
		if m.Schemas.Enabled() {
			if err := m.Schemas.Validate(raw, "status_heartbeat.schema.json"); err != nil {
				code, _ := errs.CodeOf(err)
				_ = m.alerts.Alert(planID, code, err.Error(), map[string]any{"agent_id": agentID})
				continue
			}
		}

		snapshot := message.AgentStatusSnapshot{
			SchemaVersion: message.SchemaVersion,
			AgentID:       agentID,
			CollectedAt:   m.nowZ(),
			Heartbeat:     raw,
		}
		dst := filepath.Join(m.Roots.Plan(planID).AgentStatus(), agentID+".json")
		if err := fsatomic.WriteJSON(dst, snapshot); err != nil {
			return err
		}
	}
	return nil
}
