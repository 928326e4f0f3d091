package domain

import "time"

// Phase names a workflow state. Every entered phase is recorded on the
// result and reported to the progress sink.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseEnsuringPower   Phase = "ensuring_power"
	PhaseAwaitingOnline  Phase = "awaiting_online"
	PhaseAwaitingReady   Phase = "awaiting_ready"
	PhaseExecuting       Phase = "executing"
	PhaseAwaitingOffline Phase = "awaiting_offline"
	PhaseReporting       Phase = "reporting"
	PhaseSettled         Phase = "settled"
	PhaseFailed          Phase = "failed"
	PhaseTimedOut        Phase = "timed_out"
)

// Terminal reports whether no further transition can leave p.
func (p Phase) Terminal() bool {
	return p == PhaseSettled || p == PhaseFailed || p == PhaseTimedOut
}

// Severity of a progress update.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Update is one progress notification.
type Update struct {
	Phase    Phase     `json:"phase"`
	Title    string    `json:"title"`
	Detail   string    `json:"detail,omitempty"`
	Severity Severity  `json:"severity"`
	At       time.Time `json:"at"`
}

// Reporter receives progress for one request. Report appends a new entry,
// Revise replaces the most recent one. Implementations must be safe for use
// from the goroutine running the workflow while readers poll.
type Reporter interface {
	Report(u Update)
	Revise(u Update)
}

// DiscardReporter drops every update.
type DiscardReporter struct{}

func (DiscardReporter) Report(Update) {}
func (DiscardReporter) Revise(Update) {}

// LifecycleRequest is one user-initiated operation. It lives for the
// duration of a single workflow.
type LifecycleRequest struct {
	ID        string
	ServiceID string
	Action    Action
	Reporter  Reporter
}
