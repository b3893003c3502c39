package simulation

import "fmt"

// ProtocolError reports a fleet manager stepping outside its contract: a
// non-adjacent next intersection, an action referencing unknown ids, or an
// assignment to an agent that is already serving. Fatal; the run aborts.
type ProtocolError struct {
	AgentID    int64
	ResourceID int64
	Reason     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("fleet manager protocol violation (agent %d, resource %d): %s", e.AgentID, e.ResourceID, e.Reason)
}

// invariantError reports an engine-internal invariant violation such as time
// going backwards or an on-road distance out of range. Fatal.
type invariantError struct {
	msg string
}

func (e *invariantError) Error() string {
	return "simulation invariant violated: " + e.msg
}

func invariantf(format string, args ...any) error {
	return &invariantError{msg: fmt.Sprintf(format, args...)}
}
