package routing

// Decision is the outcome of resolving a spoken transfer destination.
// It carries only what the action executor needs to answer the voice engine.
type Decision struct {
	Destination string `json:"destination"`
	Action      Action `json:"action"`
	ConnectTo   string `json:"connect_to,omitempty"`

	// Reason is for logs only.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionConnect Action = "connect"
	ActionReject  Action = "reject"
)
