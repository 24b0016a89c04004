package audit

import (
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("templatestore.audit")

const component = "templatestore"

// NewEvent starts an event for action against the store at storePath.
func NewEvent(action string, storePath string) Event {
	return Event{
		TS:       time.Now().Format(time.RFC3339Nano),
		EventId:  uuid.NewString(),
		Severity: Severity[severityForAction(action)],
		Action:   action,
		Runtime: Runtime{
			Component: component,
			Store:     storePath,
		},
	}
}

// SetResult records the outcome; failures raise the severity one level.
func (e *Event) SetResult(count int, err error) {
	e.Result.Count = count
	if err == nil {
		e.Result.Status = "ok"
		return
	}
	e.Result.Status = "error"
	e.Result.Reason = err.Error()
	e.Severity = bump(e.Severity)
}

type JsonLineLogger struct {
	Out io.Writer
}

// Write appends event as one JSON line. Failures are logged, never returned,
// so a broken journal cannot fail a store mutation.
func (l JsonLineLogger) Write(event Event) {
	b, err := json.Marshal(event)
	if err != nil {
		logger.Warningf("encode audit event %s (%s): %v", event.EventId, event.Action, err)
		return
	}
	if _, err := l.Out.Write(append(b, '\n')); err != nil {
		logger.Warningf("write audit event %s (%s): %v", event.EventId, event.Action, err)
	}
}

type discard struct{}

func (discard) Write(Event) {}

// Discard drops every event.
var Discard Logger = discard{}

func severityForAction(action string) int {
	if s, ok := actionSeverity[action]; ok {
		return s
	}
	return SEV_LOW
}

func bump(s string) string {
	switch s {
	case "information":
		return "low"
	case "low":
		return "medium"
	case "medium":
		return "high"
	case "high":
		return "critical"
	default:
		return s
	}
}
