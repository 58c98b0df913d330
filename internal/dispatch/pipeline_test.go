package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailkite/mailkite/internal/apperrors"
	"github.com/mailkite/mailkite/internal/dispatch"
	"github.com/mailkite/mailkite/internal/mailer"
	"github.com/mailkite/mailkite/internal/model"
)

// --- Fakes ---

type snapshot struct {
	sent   int
	failed int
}

type fakeCampaigns struct {
	mu        sync.Mutex
	campaign  *model.Campaign
	snapshots []snapshot

	// stale marks a processing campaign as abandoned by a crashed run,
	// making it reclaimable the way the repository's stale window does.
	stale bool

	progressErr error

	finalized    bool
	finalSent    int
	finalFailed  int
	finalSuccess bool
}

func (f *fakeCampaigns) ClaimProcessing(ctx context.Context, id int64) (*model.Campaign, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.campaign == nil || f.campaign.ID != id {
		return nil, false, nil
	}
	claimable := f.campaign.Status == model.StatusScheduled ||
		(f.campaign.Status == model.StatusProcessing && f.stale)
	if !claimable {
		return nil, false, nil
	}
	f.campaign.Status = model.StatusProcessing
	f.campaign.SentCount = 0
	f.campaign.FailedCount = 0
	cp := *f.campaign
	cp.GroupIDs = append([]int64(nil), f.campaign.GroupIDs...)
	return &cp, true, nil
}

func (f *fakeCampaigns) RecordProgress(ctx context.Context, id int64, sent, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progressErr != nil {
		return f.progressErr
	}
	f.snapshots = append(f.snapshots, snapshot{sent: sent, failed: failed})
	f.campaign.SentCount = sent
	f.campaign.FailedCount = failed
	return nil
}

func (f *fakeCampaigns) Finalize(ctx context.Context, id int64, sent, failed int, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = true
	f.finalSent = sent
	f.finalFailed = failed
	f.finalSuccess = success
	f.campaign.SentCount = sent
	f.campaign.FailedCount = failed
	if success {
		f.campaign.Status = model.StatusCompleted
		now := time.Now()
		f.campaign.SentAt = &now
	} else {
		f.campaign.Status = model.StatusFailed
	}
	return nil
}

type fakeTemplates struct {
	templates map[int64]*model.Template
}

func (f *fakeTemplates) GetByID(ctx context.Context, id int64) (*model.Template, error) {
	t, ok := f.templates[id]
	if !ok {
		return nil, apperrors.NewTemplateNotFound(id)
	}
	return t, nil
}

type fakeRecipients struct {
	customers []model.Customer
	err       error
}

func (f *fakeRecipients) ListInGroups(ctx context.Context, groupIDs []int64, afterID int64, limit int) ([]model.Customer, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Customer
	for _, c := range f.customers {
		if c.ID > afterID {
			out = append(out, c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []mailer.Email
	failFor map[string]error
}

func (f *fakeMailer) Send(ctx context.Context, email mailer.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[email.To]; ok {
		return err
	}
	f.sent = append(f.sent, email)
	return nil
}

type fakeSentLog struct {
	mu        sync.Mutex
	delivered map[int64]bool
	cleared   bool
}

func (f *fakeSentLog) MarkDelivered(ctx context.Context, campaignID, customerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delivered == nil {
		f.delivered = map[int64]bool{}
	}
	f.delivered[customerID] = true
	return nil
}

func (f *fakeSentLog) Delivered(ctx context.Context, campaignID, customerID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered[customerID], nil
}

func (f *fakeSentLog) Clear(ctx context.Context, campaignID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	f.delivered = nil
	return nil
}

// --- Helpers ---

func templateID(id int64) *int64 { return &id }

func scheduledCampaign(groupIDs ...int64) *model.Campaign {
	now := time.Now().Add(-time.Minute)
	return &model.Campaign{
		ID:          1,
		UserID:      1,
		TemplateID:  templateID(7),
		Name:        "launch",
		Status:      model.StatusScheduled,
		ScheduledAt: &now,
		GroupIDs:    groupIDs,
	}
}

func welcomeTemplates() *fakeTemplates {
	return &fakeTemplates{templates: map[int64]*model.Template{
		7: {ID: 7, Subject: "Hello {{first_name}}!", Body: "Welcome {{full_name}}!"},
	}}
}

func customers(n int) []model.Customer {
	out := make([]model.Customer, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.Customer{
			ID:        int64(i),
			Email:     fmt.Sprintf("c%d@example.com", i),
			FirstName: fmt.Sprintf("First%d", i),
			LastName:  fmt.Sprintf("Last%d", i),
		})
	}
	return out
}

func newPipeline(c *fakeCampaigns, tpl *fakeTemplates, rec *fakeRecipients, m *fakeMailer, cfg dispatch.Config) *dispatch.Pipeline {
	return dispatch.New(c, tpl, rec, m, nil, cfg, zerolog.Nop())
}

// --- Tests ---

func TestRun_NoopWhenNotClaimable(t *testing.T) {
	t.Parallel()

	for _, status := range []model.Status{model.StatusDraft, model.StatusProcessing, model.StatusCompleted, model.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			c := scheduledCampaign(1)
			c.Status = status
			c.SentCount = 5
			c.FailedCount = 2
			store := &fakeCampaigns{campaign: c}
			m := &fakeMailer{}

			p := newPipeline(store, welcomeTemplates(), &fakeRecipients{customers: customers(3)}, m, dispatch.Config{})
			err := p.Run(context.Background(), 1)

			require.NoError(t, err)
			assert.Empty(t, m.sent, "no sends expected")
			assert.False(t, store.finalized)
			assert.Equal(t, status, c.Status)
			assert.Equal(t, 5, c.SentCount)
			assert.Equal(t, 2, c.FailedCount)
		})
	}
}

func TestRun_NoTargetGroupsFailsBeforeAnySend(t *testing.T) {
	t.Parallel()

	store := &fakeCampaigns{campaign: scheduledCampaign()}
	m := &fakeMailer{}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{customers: customers(3)}, m, dispatch.Config{})
	err := p.Run(context.Background(), 1)

	var noGroups *apperrors.NoTargetGroupsError
	require.ErrorAs(t, err, &noGroups)
	assert.Empty(t, m.sent)
	assert.True(t, store.finalized)
	assert.False(t, store.finalSuccess)
	assert.Equal(t, 0, store.finalSent)
	assert.Equal(t, 0, store.finalFailed)
	assert.Equal(t, model.StatusFailed, store.campaign.Status)
}

func TestRun_NoTemplateFails(t *testing.T) {
	t.Parallel()

	c := scheduledCampaign(1)
	c.TemplateID = nil
	store := &fakeCampaigns{campaign: c}
	m := &fakeMailer{}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{customers: customers(3)}, m, dispatch.Config{})
	err := p.Run(context.Background(), 1)

	var noTemplate *apperrors.NoTemplateError
	require.ErrorAs(t, err, &noTemplate)
	assert.Empty(t, m.sent)
	assert.Equal(t, model.StatusFailed, store.campaign.Status)
}

func TestRun_AllSucceed(t *testing.T) {
	t.Parallel()

	c := scheduledCampaign(1)
	c.TotalRecipients = 3
	store := &fakeCampaigns{campaign: c}
	m := &fakeMailer{}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{customers: customers(3)}, m, dispatch.Config{})
	err := p.Run(context.Background(), 1)

	require.NoError(t, err)
	require.True(t, store.finalized)
	assert.True(t, store.finalSuccess)
	assert.Equal(t, 3, store.finalSent)
	assert.Equal(t, 0, store.finalFailed)
	assert.Equal(t, model.StatusCompleted, store.campaign.Status)
	assert.NotNil(t, store.campaign.SentAt)

	require.Len(t, m.sent, 3)
	assert.Equal(t, "c1@example.com", m.sent[0].To)
	assert.Equal(t, "Hello First1!", m.sent[0].Subject)
	assert.Equal(t, "Welcome First1 Last1!", m.sent[0].Body)
}

func TestRun_PartialFailureStillCompletes(t *testing.T) {
	t.Parallel()

	store := &fakeCampaigns{campaign: scheduledCampaign(1)}
	m := &fakeMailer{failFor: map[string]error{
		"c1@example.com": errors.New("mailbox full"),
		"c3@example.com": errors.New("connection reset"),
	}}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{customers: customers(3)}, m, dispatch.Config{})
	err := p.Run(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, store.finalSuccess)
	assert.Equal(t, 1, store.finalSent)
	assert.Equal(t, 2, store.finalFailed)
	assert.Equal(t, model.StatusCompleted, store.campaign.Status)
}

func TestRun_AllFailEndsFailed(t *testing.T) {
	t.Parallel()

	store := &fakeCampaigns{campaign: scheduledCampaign(1)}
	m := &fakeMailer{failFor: map[string]error{
		"c1@example.com": errors.New("rejected"),
		"c2@example.com": errors.New("rejected"),
		"c3@example.com": errors.New("rejected"),
	}}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{customers: customers(3)}, m, dispatch.Config{})
	err := p.Run(context.Background(), 1)

	require.NoError(t, err, "per-recipient failures never propagate")
	assert.False(t, store.finalSuccess)
	assert.Equal(t, 0, store.finalSent)
	assert.Equal(t, 3, store.finalFailed)
	assert.Equal(t, model.StatusFailed, store.campaign.Status)
}

func TestRun_ZeroRecipientsCompletes(t *testing.T) {
	t.Parallel()

	store := &fakeCampaigns{campaign: scheduledCampaign(1)}
	m := &fakeMailer{}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{}, m, dispatch.Config{})
	err := p.Run(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, store.finalSuccess)
	assert.Equal(t, 0, store.finalSent)
	assert.Equal(t, 0, store.finalFailed)
	assert.Equal(t, model.StatusCompleted, store.campaign.Status)
}

func TestRun_ProgressSnapshotsAreMonotonePrefixes(t *testing.T) {
	t.Parallel()

	c := scheduledCampaign(1)
	c.TotalRecipients = 25
	store := &fakeCampaigns{campaign: c}
	m := &fakeMailer{failFor: map[string]error{"c4@example.com": errors.New("bad address")}}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{customers: customers(25)}, m, dispatch.Config{
		ChunkSize:        10,
		ProgressInterval: 10,
	})
	err := p.Run(context.Background(), 1)
	require.NoError(t, err)

	// 25 processed with interval 10 means checkpoints at 10 and 20.
	require.Len(t, store.snapshots, 2)
	prevTotal := 0
	for _, s := range store.snapshots {
		total := s.sent + s.failed
		assert.GreaterOrEqual(t, total, prevTotal, "snapshots must not regress")
		assert.LessOrEqual(t, total, c.TotalRecipients)
		prevTotal = total
	}
	assert.Equal(t, snapshot{sent: 9, failed: 1}, store.snapshots[0])
	assert.Equal(t, snapshot{sent: 19, failed: 1}, store.snapshots[1])

	assert.Equal(t, 24, store.finalSent)
	assert.Equal(t, 1, store.finalFailed)
	assert.Len(t, m.sent, 24)
}

func TestRun_EmptyRenderedContentCountsAsFailure(t *testing.T) {
	t.Parallel()

	store := &fakeCampaigns{campaign: scheduledCampaign(1)}
	tpl := &fakeTemplates{templates: map[int64]*model.Template{
		7: {ID: 7, Subject: "{{first_name}}", Body: "Welcome {{full_name}}!"},
	}}
	m := &fakeMailer{}

	// The second recipient has no first name, so their subject renders empty.
	recipients := customers(2)
	recipients[1].FirstName = ""

	p := newPipeline(store, tpl, &fakeRecipients{customers: recipients}, m, dispatch.Config{})
	err := p.Run(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, 1, store.finalSent)
	assert.Equal(t, 1, store.finalFailed)
	assert.True(t, store.finalSuccess)
	assert.Len(t, m.sent, 1)
}

func TestRun_ResolverErrorAbortsAndPropagates(t *testing.T) {
	t.Parallel()

	store := &fakeCampaigns{campaign: scheduledCampaign(1)}
	m := &fakeMailer{}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{err: errors.New("connection refused")}, m, dispatch.Config{})
	err := p.Run(context.Background(), 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, store.finalized)
	assert.False(t, store.finalSuccess)
	assert.Equal(t, model.StatusFailed, store.campaign.Status)
}

func TestRun_ProgressPersistErrorAbortsAndPropagates(t *testing.T) {
	t.Parallel()

	store := &fakeCampaigns{
		campaign:    scheduledCampaign(1),
		progressErr: errors.New("database unavailable"),
	}
	m := &fakeMailer{}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{customers: customers(12)}, m, dispatch.Config{
		ProgressInterval: 10,
	})
	err := p.Run(context.Background(), 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
	assert.Equal(t, model.StatusFailed, store.campaign.Status)
}

func TestRun_StrictPolicyFailsOnAnyFailure(t *testing.T) {
	t.Parallel()

	store := &fakeCampaigns{campaign: scheduledCampaign(1)}
	m := &fakeMailer{failFor: map[string]error{"c2@example.com": errors.New("rejected")}}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{customers: customers(3)}, m, dispatch.Config{}).
		WithCompletionPolicy(dispatch.StrictCompletionPolicy)
	err := p.Run(context.Background(), 1)

	require.NoError(t, err)
	assert.False(t, store.finalSuccess)
	assert.Equal(t, 2, store.finalSent)
	assert.Equal(t, 1, store.finalFailed)
	assert.Equal(t, model.StatusFailed, store.campaign.Status)
}

func TestRun_ReclaimsStaleRunAndSkipsDelivered(t *testing.T) {
	t.Parallel()

	// A worker died mid-run: the campaign is stuck in processing with the
	// first two recipients already in the delivery registry. The retried
	// job must reclaim the run, skip them, and still converge.
	c := scheduledCampaign(1)
	c.Status = model.StatusProcessing
	c.SentCount = 2
	store := &fakeCampaigns{campaign: c, stale: true}
	m := &fakeMailer{}
	registry := &fakeSentLog{delivered: map[int64]bool{1: true, 2: true}}

	p := dispatch.New(store, welcomeTemplates(), &fakeRecipients{customers: customers(3)}, m, registry, dispatch.Config{}, zerolog.Nop())
	err := p.Run(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, m.sent, 1, "only the undelivered recipient gets mail")
	assert.Equal(t, "c3@example.com", m.sent[0].To)
	// Skipped recipients still count as sent.
	assert.Equal(t, 3, store.finalSent)
	assert.Equal(t, 0, store.finalFailed)
	assert.Equal(t, model.StatusCompleted, store.campaign.Status)
	assert.True(t, registry.cleared, "registry cleared after successful run")
}

func TestRun_ReclaimsStaleRunWithoutRegistry(t *testing.T) {
	t.Parallel()

	// Without a delivery registry a reclaimed run starts over: every
	// recipient is contacted again (at-least-once delivery).
	c := scheduledCampaign(1)
	c.Status = model.StatusProcessing
	store := &fakeCampaigns{campaign: c, stale: true}
	m := &fakeMailer{}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{customers: customers(3)}, m, dispatch.Config{})
	err := p.Run(context.Background(), 1)

	require.NoError(t, err)
	assert.Len(t, m.sent, 3)
	assert.Equal(t, 3, store.finalSent)
	assert.Equal(t, model.StatusCompleted, store.campaign.Status)
}

func TestRun_TimeoutBudgetFailsTheRun(t *testing.T) {
	t.Parallel()

	store := &fakeCampaigns{campaign: scheduledCampaign(1)}
	m := &fakeMailer{}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{customers: customers(3)}, m, dispatch.Config{
		Timeout: time.Nanosecond,
	})
	err := p.Run(context.Background(), 1)

	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, m.sent)
	assert.Equal(t, model.StatusFailed, store.campaign.Status)
}

func TestRun_CountersNeverExceedTotal(t *testing.T) {
	t.Parallel()

	c := scheduledCampaign(1)
	c.TotalRecipients = 7
	store := &fakeCampaigns{campaign: c}
	m := &fakeMailer{failFor: map[string]error{
		"c2@example.com": errors.New("rejected"),
		"c5@example.com": errors.New("rejected"),
	}}

	p := newPipeline(store, welcomeTemplates(), &fakeRecipients{customers: customers(7)}, m, dispatch.Config{
		ChunkSize:        3,
		ProgressInterval: 2,
	})
	err := p.Run(context.Background(), 1)
	require.NoError(t, err)

	for _, s := range store.snapshots {
		assert.LessOrEqual(t, s.sent+s.failed, c.TotalRecipients)
	}
	assert.Equal(t, 5, store.finalSent)
	assert.Equal(t, 2, store.finalFailed)
}
