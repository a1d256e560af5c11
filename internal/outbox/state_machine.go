package outbox

// OutboxStatus is the lifecycle state of a Message row.
type OutboxStatus string

const (
	StatusPending    OutboxStatus = "PENDING"
	StatusProcessing OutboxStatus = "PROCESSING"
	StatusPublished  OutboxStatus = "PUBLISHED"
	StatusFailed     OutboxStatus = "FAILED"
	StatusDead       OutboxStatus = "DEAD"
)

// ValidOutboxTransitions enumerates every status a message may move to from
// a given status. PENDING and FAILED both lead into PROCESSING, which is
// the only status the lease primitive (markProcessing) ever writes; a
// PROCESSING row whose final attempt fails goes straight to DEAD;
// PUBLISHED and DEAD are terminal.
var ValidOutboxTransitions = map[OutboxStatus][]OutboxStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusPublished, StatusFailed, StatusDead},
	StatusFailed:     {StatusProcessing, StatusDead},
	StatusPublished:  {},
	StatusDead:       {},
}

// CanTransitionTo reports whether moving from s to to is a legal state
// transition.
func (s OutboxStatus) CanTransitionTo(to OutboxStatus) bool {
	for _, candidate := range ValidOutboxTransitions[s] {
		if candidate == to {
			return true
		}
	}

	return false
}

// IsTerminal reports whether s is a final status that the processor will
// never move on from again.
func (s OutboxStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusDead
}
