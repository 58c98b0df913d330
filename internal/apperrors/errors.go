package apperrors

import (
	"fmt"

	"github.com/mailkite/mailkite/internal/model"
)

// NotFoundError is returned when an entity lookup misses.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Entity, e.ID)
}

func NewCampaignNotFound(id int64) error { return &NotFoundError{Entity: "campaign", ID: id} }
func NewTemplateNotFound(id int64) error { return &NotFoundError{Entity: "template", ID: id} }
func NewCustomerNotFound(id int64) error { return &NotFoundError{Entity: "customer", ID: id} }
func NewGroupNotFound(id int64) error    { return &NotFoundError{Entity: "group", ID: id} }

// NoTargetGroupsError aborts a dispatch run before any send is attempted.
type NoTargetGroupsError struct {
	CampaignID int64
}

func (e *NoTargetGroupsError) Error() string {
	return fmt.Sprintf("campaign %d has no target groups assigned", e.CampaignID)
}

// NoTemplateError aborts a dispatch run when the campaign has no template.
type NoTemplateError struct {
	CampaignID int64
}

func (e *NoTemplateError) Error() string {
	return fmt.Sprintf("campaign %d has no email template assigned", e.CampaignID)
}

// EmptyContentError marks a single recipient whose rendered subject or body
// came out empty. It is counted as a failure; the run continues.
type EmptyContentError struct {
	CustomerID int64
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("email subject or body is empty for customer %d", e.CustomerID)
}

// StateError is returned when an operation is not permitted in the
// campaign's current status.
type StateError struct {
	CampaignID int64
	Status     model.Status
	Operation  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s campaign %d in status %q", e.Operation, e.CampaignID, e.Status)
}

// TemplateInUseError guards template deletion while campaigns reference it.
type TemplateInUseError struct {
	TemplateID int64
	Campaigns  int
}

func (e *TemplateInUseError) Error() string {
	return fmt.Sprintf("template %d is referenced by %d campaign(s)", e.TemplateID, e.Campaigns)
}

// ValidationError reports invalid user input on a CRUD operation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// SendError wraps a mailer failure for one recipient.
type SendError struct {
	CustomerID int64
	Err        error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send email to customer %d: %v", e.CustomerID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
