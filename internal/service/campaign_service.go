package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailkite/mailkite/internal/apperrors"
	"github.com/mailkite/mailkite/internal/model"
	"github.com/mailkite/mailkite/internal/queue"
	"github.com/mailkite/mailkite/internal/repository"
)

// CampaignService owns the user-facing campaign operations. Every mutation
// checks the status predicates; the repository re-checks them in SQL so a
// concurrent dispatch claim cannot race an edit.
type CampaignService struct {
	Campaigns repository.CampaignRepositoryInterface
	Templates repository.TemplateRepositoryInterface
	Publisher queue.Publisher
	Now       func() time.Time
	Log       zerolog.Logger
}

func NewCampaignService(
	campaigns repository.CampaignRepositoryInterface,
	templates repository.TemplateRepositoryInterface,
	publisher queue.Publisher,
	log zerolog.Logger,
) *CampaignService {
	return &CampaignService{
		Campaigns: campaigns,
		Templates: templates,
		Publisher: publisher,
		Now:       time.Now,
		Log:       log,
	}
}

// CampaignInput carries the editable campaign fields.
type CampaignInput struct {
	Name        string     `json:"name"`
	TemplateID  *int64     `json:"template_id"`
	GroupIDs    []int64    `json:"group_ids"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (s *CampaignService) validate(ctx context.Context, in CampaignInput) error {
	if in.Name == "" {
		return apperrors.NewValidation("campaign name must not be empty")
	}
	if in.TemplateID != nil {
		if _, err := s.Templates.GetByID(ctx, *in.TemplateID); err != nil {
			return err
		}
	}
	return nil
}

// Create stores a new campaign. A future scheduled_at makes it scheduled
// right away; otherwise it starts as a draft.
func (s *CampaignService) Create(ctx context.Context, userID int64, in CampaignInput) (*model.Campaign, error) {
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	status := model.StatusDraft
	if in.ScheduledAt != nil {
		if !in.ScheduledAt.After(s.Now()) {
			return nil, apperrors.NewValidation("scheduled_at must be in the future")
		}
		status = model.StatusScheduled
	}

	c := &model.Campaign{
		UserID:      userID,
		TemplateID:  in.TemplateID,
		Name:        in.Name,
		Status:      status,
		ScheduledAt: in.ScheduledAt,
		GroupIDs:    in.GroupIDs,
	}
	if err := s.Campaigns.Create(ctx, c); err != nil {
		return nil, err
	}

	s.Log.Info().Int64("campaign_id", c.ID).Str("status", string(c.Status)).Msg("campaign created")
	return c, nil
}

func (s *CampaignService) Get(ctx context.Context, id int64) (*model.Campaign, error) {
	return s.Campaigns.GetByID(ctx, id)
}

func (s *CampaignService) ListForUser(ctx context.Context, userID int64) ([]model.Campaign, error) {
	return s.Campaigns.ListForUser(ctx, userID)
}

// Update edits a campaign still in an editable status. The schedule rules
// match Create: a future scheduled_at makes the campaign scheduled, a past
// one is rejected, and clearing it demotes a scheduled campaign back to
// draft so no scheduled campaign ever sits without a valid send time.
func (s *CampaignService) Update(ctx context.Context, id int64, in CampaignInput) (*model.Campaign, error) {
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	c, err := s.Campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanBeEdited() {
		return nil, &apperrors.StateError{CampaignID: id, Status: c.Status, Operation: "update"}
	}

	if in.ScheduledAt != nil {
		if !in.ScheduledAt.After(s.Now()) {
			return nil, apperrors.NewValidation("scheduled_at must be in the future")
		}
		c.Status = model.StatusScheduled
	} else if c.Status == model.StatusScheduled {
		c.Status = model.StatusDraft
	}

	c.Name = in.Name
	c.TemplateID = in.TemplateID
	c.GroupIDs = in.GroupIDs
	c.ScheduledAt = in.ScheduledAt
	if err := s.Campaigns.Update(ctx, c); err != nil {
		return nil, err
	}
	return s.Campaigns.GetByID(ctx, id)
}

// Delete removes a draft campaign. Group references are detached, never
// cascaded.
func (s *CampaignService) Delete(ctx context.Context, id int64) error {
	c, err := s.Campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !c.Status.CanBeDeleted() {
		return &apperrors.StateError{CampaignID: id, Status: c.Status, Operation: "delete"}
	}
	return s.Campaigns.Delete(ctx, id)
}

// Schedule sets a future send time; the scheduler picks the campaign up
// when the time arrives.
func (s *CampaignService) Schedule(ctx context.Context, id int64, at time.Time) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanBeSent() {
		return nil, &apperrors.StateError{CampaignID: id, Status: c.Status, Operation: "schedule"}
	}
	if !at.After(s.Now()) {
		return nil, apperrors.NewValidation("scheduled_at must be in the future")
	}

	ok, err := s.Campaigns.SetSchedule(ctx, id, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &apperrors.StateError{CampaignID: id, Status: c.Status, Operation: "schedule"}
	}

	s.Log.Info().Int64("campaign_id", id).Time("scheduled_at", at).Msg("campaign scheduled")
	return s.Campaigns.GetByID(ctx, id)
}

// SendNow schedules the campaign for the current instant and publishes a
// dispatch job immediately rather than waiting for the next probe tick.
func (s *CampaignService) SendNow(ctx context.Context, id int64) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanBeSent() {
		return nil, &apperrors.StateError{CampaignID: id, Status: c.Status, Operation: "send"}
	}

	ok, err := s.Campaigns.SetSchedule(ctx, id, s.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &apperrors.StateError{CampaignID: id, Status: c.Status, Operation: "send"}
	}

	if err := s.Publisher.PublishDispatch(ctx, id); err != nil {
		// The campaign stays scheduled; the next probe tick retries.
		s.Log.Error().Err(err).Int64("campaign_id", id).Msg("immediate dispatch publish failed")
	}

	return s.Campaigns.GetByID(ctx, id)
}

// Statistics summarizes a campaign's delivery progress.
type Statistics struct {
	TotalRecipients    int          `json:"total_recipients"`
	SentCount          int          `json:"sent_count"`
	FailedCount        int          `json:"failed_count"`
	PendingCount       int          `json:"pending_count"`
	ProgressPercentage int          `json:"progress_percentage"`
	Status             model.Status `json:"status"`
}

func (s *CampaignService) Statistics(ctx context.Context, id int64) (*Statistics, error) {
	c, err := s.Campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Statistics{
		TotalRecipients:    c.TotalRecipients,
		SentCount:          c.SentCount,
		FailedCount:        c.FailedCount,
		PendingCount:       c.PendingCount(),
		ProgressPercentage: c.ProgressPercentage(),
		Status:             c.Status,
	}, nil
}
