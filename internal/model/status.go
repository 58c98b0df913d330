package model

// Status is the campaign lifecycle state. Transitions only move forward:
// draft -> scheduled -> processing -> completed/failed. Completed and failed
// are terminal.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusScheduled  Status = "scheduled"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func Statuses() []Status {
	return []Status{StatusDraft, StatusScheduled, StatusProcessing, StatusCompleted, StatusFailed}
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Label is the human-readable form used in list views.
func (s Status) Label() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusScheduled:
		return "Scheduled"
	case StatusProcessing:
		return "Processing"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	}
	return string(s)
}

// CanBeEdited reports whether the campaign's fields may still change. Once a
// run has started the campaign is read-only.
func (s Status) CanBeEdited() bool {
	return s == StatusDraft || s == StatusScheduled
}

// CanBeSent reports whether the campaign may be scheduled or sent now.
func (s Status) CanBeSent() bool {
	return s == StatusDraft || s == StatusScheduled
}

// CanBeDeleted permits deletion of drafts only; anything scheduled or later
// is part of the delivery record.
func (s Status) CanBeDeleted() bool {
	return s == StatusDraft
}

// IsTerminal reports whether the campaign has converged and will never be
// picked up by the scheduler again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
