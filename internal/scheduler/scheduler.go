// Package scheduler probes for campaigns whose scheduled time has arrived
// and hands them to the worker via the dispatch queue. Submission is
// fire-and-forget: the probe never waits for a send to finish. Overlapping
// probe ticks are safe because the pipeline's atomic claim makes duplicate
// jobs no-ops.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailkite/mailkite/internal/model"
	"github.com/mailkite/mailkite/internal/queue"
)

// CampaignSource lists campaigns due for dispatch.
type CampaignSource interface {
	ListDue(ctx context.Context, now time.Time) ([]model.Campaign, error)
}

type Probe struct {
	campaigns CampaignSource
	publisher queue.Publisher
	now       func() time.Time
	log       zerolog.Logger
}

func NewProbe(campaigns CampaignSource, publisher queue.Publisher, log zerolog.Logger) *Probe {
	return &Probe{
		campaigns: campaigns,
		publisher: publisher,
		now:       time.Now,
		log:       log,
	}
}

// Tick runs one probe: every campaign with status=scheduled and
// scheduled_at <= now gets one dispatch job published. A publish failure for
// one campaign does not stop the others; the next tick will pick it up
// again. Returns the number of jobs published.
func (p *Probe) Tick(ctx context.Context) int {
	start := p.now()

	due, err := p.campaigns.ListDue(ctx, start)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to list due campaigns")
		return 0
	}
	if len(due) == 0 {
		p.log.Debug().Msg("no campaigns ready to process")
		return 0
	}

	published := 0
	for _, c := range due {
		if err := p.publisher.PublishDispatch(ctx, c.ID); err != nil {
			p.log.Error().Err(err).
				Int64("campaign_id", c.ID).
				Str("name", c.Name).
				Msg("failed to publish dispatch job")
			continue
		}
		published++
		p.log.Info().
			Int64("campaign_id", c.ID).
			Str("name", c.Name).
			Msg("dispatch job published")
	}

	p.log.Info().
		Int("due", len(due)).
		Int("published", published).
		Dur("duration", time.Since(start)).
		Msg("scheduler tick completed")
	return published
}
