package audit

type Logger interface {
	Write(event Event)
}

type Event struct {
	TS       string `json:"ts"`
	EventId  string `json:"event_id"`
	Severity string `json:"severity"`

	Action string `json:"action"`
	Target Target `json:"target,omitempty"`

	Result  Result  `json:"result"`
	Runtime Runtime `json:"runtime"`
}

type Target struct {
	Names   []string `json:"names,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

type Result struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	// Count is the number of templates held after the action.
	Count int `json:"count"`
}

type Runtime struct {
	Component string `json:"component,omitempty"`
	Store     string `json:"store,omitempty"`
}

var Severity = map[int]string{
	0: "information",
	1: "low",
	2: "medium",
	3: "high",
	4: "critical",
}

const (
	SEV_INFO     = 0
	SEV_LOW      = 1
	SEV_MEDIUM   = 2
	SEV_HIGH     = 3
	SEV_CRITICAL = 4
)

const (
	ActionAdd     = "template.add"
	ActionRemove  = "template.remove"
	ActionPersist = "store.persist"
)

var actionSeverity = map[string]int{
	ActionAdd:     SEV_MEDIUM,
	ActionRemove:  SEV_HIGH,
	ActionPersist: SEV_LOW,
}
