// Package dispatch runs the send pipeline for one campaign: claim the
// campaign, stream its recipients in chunks, render and deliver per
// recipient, checkpoint progress, and converge to a terminal status.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mailkite/mailkite/internal/apperrors"
	"github.com/mailkite/mailkite/internal/mailer"
	"github.com/mailkite/mailkite/internal/model"
	"github.com/mailkite/mailkite/internal/render"
	"github.com/mailkite/mailkite/internal/sentlog"
)

// CampaignStore is the slice of the campaign repository the pipeline needs:
// the atomic claim plus the progress tracker.
type CampaignStore interface {
	ClaimProcessing(ctx context.Context, id int64) (*model.Campaign, bool, error)
	RecordProgress(ctx context.Context, id int64, sent, failed int) error
	Finalize(ctx context.Context, id int64, sent, failed int, success bool) error
}

// RecipientSource streams the distinct contacts of a set of groups in
// id-ordered chunks.
type RecipientSource interface {
	ListInGroups(ctx context.Context, groupIDs []int64, afterID int64, limit int) ([]model.Customer, error)
}

type TemplateStore interface {
	GetByID(ctx context.Context, id int64) (*model.Template, error)
}

// CompletionPolicy decides the terminal status of an exhausted run from its
// final counters. The default treats partial success as completed and only
// an all-failed run as failed.
type CompletionPolicy func(sent, failed int) bool

func DefaultCompletionPolicy(sent, failed int) bool {
	return failed == 0 || sent > 0
}

// StrictCompletionPolicy fails the run on any delivery failure.
func StrictCompletionPolicy(sent, failed int) bool {
	return failed == 0
}

type Config struct {
	ChunkSize        int
	ProgressInterval int
	Throttle         time.Duration
	Timeout          time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 100
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Hour
	}
	return c
}

type Pipeline struct {
	campaigns  CampaignStore
	templates  TemplateStore
	recipients RecipientSource
	mailer     mailer.Mailer
	delivered  sentlog.Log
	policy     CompletionPolicy
	cfg        Config
	log        zerolog.Logger
}

// New wires a pipeline. delivered may be nil; the run then has no memory of
// previous attempts and a retry re-sends from the first recipient.
func New(
	campaigns CampaignStore,
	templates TemplateStore,
	recipients RecipientSource,
	m mailer.Mailer,
	delivered sentlog.Log,
	cfg Config,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		campaigns:  campaigns,
		templates:  templates,
		recipients: recipients,
		mailer:     m,
		delivered:  delivered,
		policy:     DefaultCompletionPolicy,
		cfg:        cfg.withDefaults(),
		log:        log,
	}
}

// WithCompletionPolicy overrides the terminal-status rule.
func (p *Pipeline) WithCompletionPolicy(policy CompletionPolicy) *Pipeline {
	p.policy = policy
	return p
}

// runState is the run-local counter set. It is owned by a single Run call
// and passed explicitly; nothing outside the run mutates it.
type runState struct {
	sent      int
	failed    int
	processed int
}

// Run executes exactly one send run for the campaign. Invoking it on a
// campaign that is not claimable (running on another worker, terminal, or
// still a draft) is a no-op; a processing campaign abandoned by a crashed
// worker becomes claimable again once the store's stale window passes. Run-level errors mark the campaign failed and are
// returned so the job runner can apply its retry policy; per-recipient
// failures are counted and logged but never returned.
func (p *Pipeline) Run(ctx context.Context, campaignID int64) error {
	log := p.log.With().
		Int64("campaign_id", campaignID).
		Str("run_id", uuid.NewString()).
		Logger()

	campaign, claimed, err := p.campaigns.ClaimProcessing(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("claim campaign %d: %w", campaignID, err)
	}
	if !claimed {
		log.Debug().Msg("campaign not claimable, skipping run")
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	log.Info().
		Int("total_recipients", campaign.TotalRecipients).
		Int("target_groups", len(campaign.GroupIDs)).
		Msg("campaign run started")

	start := time.Now()
	state := &runState{}

	if err := p.process(runCtx, log, campaign, state); err != nil {
		p.abort(ctx, log, campaignID, state)
		return fmt.Errorf("campaign %d run: %w", campaignID, err)
	}

	success := p.policy(state.sent, state.failed)
	if err := p.campaigns.Finalize(runCtx, campaignID, state.sent, state.failed, success); err != nil {
		p.abort(ctx, log, campaignID, state)
		return fmt.Errorf("finalize campaign %d: %w", campaignID, err)
	}

	if success && p.delivered != nil {
		// The registry only matters for retries of an unfinished run.
		if err := p.delivered.Clear(runCtx, campaignID); err != nil {
			log.Warn().Err(err).Msg("failed to clear delivery registry")
		}
	}

	log.Info().
		Int("sent", state.sent).
		Int("failed", state.failed).
		Bool("success", success).
		Dur("duration", time.Since(start)).
		Msg("campaign run finished")
	return nil
}

func (p *Pipeline) process(ctx context.Context, log zerolog.Logger, campaign *model.Campaign, state *runState) error {
	if len(campaign.GroupIDs) == 0 {
		return &apperrors.NoTargetGroupsError{CampaignID: campaign.ID}
	}
	if campaign.TemplateID == nil {
		return &apperrors.NoTemplateError{CampaignID: campaign.ID}
	}

	tmpl, err := p.templates.GetByID(ctx, *campaign.TemplateID)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}

	var limiter *rate.Limiter
	if p.cfg.Throttle > 0 {
		limiter = rate.NewLimiter(rate.Every(p.cfg.Throttle), 1)
	}

	afterID := int64(0)
	for {
		chunk, err := p.recipients.ListInGroups(ctx, campaign.GroupIDs, afterID, p.cfg.ChunkSize)
		if err != nil {
			return fmt.Errorf("resolve recipients after id %d: %w", afterID, err)
		}
		if len(chunk) == 0 {
			break
		}

		for i := range chunk {
			customer := &chunk[i]

			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return fmt.Errorf("run budget exceeded: %w", err)
				}
			} else if err := ctx.Err(); err != nil {
				return fmt.Errorf("run budget exceeded: %w", err)
			}

			if err := p.sendOne(ctx, campaign, tmpl, customer); err != nil {
				// A canceled context is a run failure, not this
				// recipient's fault.
				if ctx.Err() != nil {
					return fmt.Errorf("run budget exceeded: %w", ctx.Err())
				}
				state.failed++
				log.Error().Err(err).
					Int64("customer_id", customer.ID).
					Msg("email sending failed")
			} else {
				state.sent++
			}
			state.processed++

			if state.processed%p.cfg.ProgressInterval == 0 {
				if err := p.campaigns.RecordProgress(ctx, campaign.ID, state.sent, state.failed); err != nil {
					return fmt.Errorf("record progress: %w", err)
				}
			}
		}

		afterID = chunk[len(chunk)-1].ID
	}

	return nil
}

// sendOne renders and delivers to a single recipient. A recipient already in
// the delivery registry (from an aborted earlier attempt) is counted as sent
// without contacting the mailer again.
func (p *Pipeline) sendOne(ctx context.Context, campaign *model.Campaign, tmpl *model.Template, customer *model.Customer) error {
	if p.delivered != nil {
		seen, err := p.delivered.Delivered(ctx, campaign.ID, customer.ID)
		if err == nil && seen {
			return nil
		}
	}

	data := customer.PlaceholderData()
	subject := render.Subject(tmpl.Subject, data)
	body := render.Body(tmpl.Body, data)
	if subject == "" || body == "" {
		return &apperrors.EmptyContentError{CustomerID: customer.ID}
	}

	if err := p.mailer.Send(ctx, mailer.Email{To: customer.Email, Subject: subject, Body: body}); err != nil {
		return &apperrors.SendError{CustomerID: customer.ID, Err: err}
	}

	if p.delivered != nil {
		if err := p.delivered.MarkDelivered(ctx, campaign.ID, customer.ID); err != nil {
			p.log.Warn().Err(err).
				Int64("campaign_id", campaign.ID).
				Int64("customer_id", customer.ID).
				Msg("failed to record delivery")
		}
	}
	return nil
}

// abort marks the campaign failed after a run-level error. It uses a fresh
// deadline detached from the run context, which may already be canceled.
func (p *Pipeline) abort(ctx context.Context, log zerolog.Logger, campaignID int64, state *runState) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := p.campaigns.Finalize(failCtx, campaignID, state.sent, state.failed, false); err != nil {
		log.Error().Err(err).Msg("failed to mark campaign as failed")
	}
}
