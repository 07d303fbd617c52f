package models

// Action is the lifecycle operation carried by an inbound provisioning event.
type Action string

const (
	ActionCreate  Action = "Create"
	ActionUpdate  Action = "Update"
	ActionDelete  Action = "Delete"
	ActionWait    Action = "Wait"
	ActionUnknown Action = ""
)

// ParseAction maps a RequestType onto an Action. Anything it does not
// recognize is ActionUnknown.
func ParseAction(requestType string) Action {
	switch Action(requestType) {
	case ActionCreate, ActionUpdate, ActionDelete, ActionWait:
		return Action(requestType)
	default:
		return ActionUnknown
	}
}

// String returns the string representation
func (a Action) String() string {
	if a == ActionUnknown {
		return "Unknown"
	}
	return string(a)
}
