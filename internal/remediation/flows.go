package remediation

import "github.com/linnemanlabs/aegis/internal/incident"

// DefaultNamespace is the Kestra namespace remediation flows are deployed in.
const DefaultNamespace = "system"

// Flow identifiers for the deployed remediation flows. The mapping from
// action type to flow is a static lookup table owned by this package; the
// triage prompt embeds it so the model never invents flow identifiers.
const (
	FlowBlockIP      = DefaultNamespace + ".block-ip"
	FlowDisableUser  = DefaultNamespace + ".disable-user"
	FlowCreateTicket = DefaultNamespace + ".create-ticket-jira"
)

// flowByAction maps action types to their remediation flow. isolate_host has
// no deployed flow and is intentionally absent.
var flowByAction = map[incident.ActionType]string{
	incident.ActionBlockIP:      FlowBlockIP,
	incident.ActionDisableUser:  FlowDisableUser,
	incident.ActionCreateTicket: FlowCreateTicket,
}

// FlowForAction returns the remediation flow identifier for an action type,
// or "" when the action has no automated flow.
func FlowForAction(t incident.ActionType) string {
	return flowByAction[t]
}

// KnownFlows returns the flow identifiers the status query fans out over.
func KnownFlows() []string {
	return []string{FlowBlockIP, FlowDisableUser, FlowCreateTicket}
}
