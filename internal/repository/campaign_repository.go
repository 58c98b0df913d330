package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/mailkite/mailkite/internal/apperrors"
	"github.com/mailkite/mailkite/internal/model"
)

// CampaignRepositoryInterface is the guarded update path for campaign status
// and counters. Status never changes through a raw field write; every
// transition is a conditional UPDATE so concurrent triggers cannot race.
type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	ListForUser(ctx context.Context, userID int64) ([]model.Campaign, error)
	Update(ctx context.Context, c *model.Campaign) error
	Delete(ctx context.Context, id int64) error

	// SetSchedule moves draft/scheduled -> scheduled with the given time.
	// Returns false when the campaign was not in a sendable status.
	SetSchedule(ctx context.Context, id int64, at time.Time) (bool, error)

	// ClaimProcessing atomically moves scheduled -> processing, resets the
	// run counters and refreshes total_recipients. It also reclaims a
	// processing campaign abandoned by a crashed worker once its last
	// update is older than the stale window. Returns (nil, false) when the
	// campaign is not claimable; duplicate triggers land here.
	ClaimProcessing(ctx context.Context, id int64) (*model.Campaign, bool, error)

	// RecordProgress persists both counters in one statement, mid-run.
	RecordProgress(ctx context.Context, id int64, sent, failed int) error

	// Finalize moves processing -> completed/failed with the final counters,
	// stamping sent_at on completion. Aborted runs finalize as failed with
	// whatever the counters reached.
	Finalize(ctx context.Context, id int64, sent, failed int, success bool) error

	ListDue(ctx context.Context, now time.Time) ([]model.Campaign, error)
	TargetGroupIDs(ctx context.Context, id int64) ([]int64, error)
	CountForTemplate(ctx context.Context, templateID int64) (int, error)
}

type CampaignRepository struct {
	DB *sql.DB

	// StaleClaimAge lets ClaimProcessing take over a processing campaign
	// whose updated_at is older than this, which happens when a worker
	// dies mid-run. Zero disables reclaiming.
	StaleClaimAge time.Duration
}

const campaignColumns = `id, user_id, template_id, name, status, scheduled_at, sent_at,
	total_recipients, sent_count, failed_count, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	var status string
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.TemplateID,
		&c.Name,
		&status,
		&c.ScheduledAt,
		&c.SentAt,
		&c.TotalRecipients,
		&c.SentCount,
		&c.FailedCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.Status(status)
	return &c, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.StatusDraft
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO campaigns (user_id, template_id, name, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, c.UserID, c.TemplateID, c.Name, string(c.Status), c.ScheduledAt).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return err
	}

	if err := attachGroups(ctx, tx, c.ID, c.GroupIDs); err != nil {
		return err
	}

	total, err := countDistinctMembers(ctx, tx, c.GroupIDs)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET total_recipients=$2 WHERE id=$1`, c.ID, total); err != nil {
		return err
	}
	c.TotalRecipients = total

	return tx.Commit()
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id)
	c, err := scanCampaign(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewCampaignNotFound(id)
		}
		return nil, err
	}

	c.GroupIDs, err = r.TargetGroupIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListForUser(ctx context.Context, userID int64) ([]model.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// Update rewrites the editable fields and re-syncs target groups. The caller
// is responsible for checking the status predicate first; the WHERE clause
// re-checks it so a concurrent claim cannot slip an edit into a running
// campaign.
func (r *CampaignRepository) Update(ctx context.Context, c *model.Campaign) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE campaigns
		SET template_id=$2, name=$3, status=$4, scheduled_at=$5, updated_at=now()
		WHERE id=$1 AND status IN ('draft', 'scheduled')
	`, c.ID, c.TemplateID, c.Name, string(c.Status), c.ScheduledAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &apperrors.StateError{CampaignID: c.ID, Status: model.StatusProcessing, Operation: "update"}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM campaign_groups WHERE campaign_id=$1`, c.ID); err != nil {
		return err
	}
	if err := attachGroups(ctx, tx, c.ID, c.GroupIDs); err != nil {
		return err
	}

	total, err := countDistinctMembers(ctx, tx, c.GroupIDs)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE campaigns SET total_recipients=$2 WHERE id=$1`, c.ID, total); err != nil {
		return err
	}
	c.TotalRecipients = total

	return tx.Commit()
}

// Delete removes a draft campaign, detaching (not deleting) its groups.
func (r *CampaignRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM campaign_groups WHERE campaign_id=$1`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM campaigns WHERE id=$1 AND status='draft'`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &apperrors.StateError{CampaignID: id, Status: model.StatusScheduled, Operation: "delete"}
	}

	return tx.Commit()
}

func (r *CampaignRepository) SetSchedule(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE campaigns
		SET status='scheduled', scheduled_at=$2, updated_at=now()
		WHERE id=$1 AND status IN ('draft', 'scheduled')
	`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const claimSet = `
	SET status='processing',
	    sent_count=0,
	    failed_count=0,
	    total_recipients=(
	        SELECT COUNT(DISTINCT cg.customer_id)
	        FROM customer_groups cg
	        JOIN campaign_groups g ON g.group_id = cg.group_id
	        WHERE g.campaign_id = campaigns.id
	    ),
	    updated_at=now()`

func (r *CampaignRepository) ClaimProcessing(ctx context.Context, id int64) (*model.Campaign, bool, error) {
	var row *sql.Row
	if r.StaleClaimAge > 0 {
		// A processing campaign whose last update predates the stale window
		// belongs to a crashed run; reclaim it so the campaign still
		// converges. Live runs touch updated_at at every progress
		// checkpoint, so they are never inside the window.
		row = r.DB.QueryRowContext(ctx, `
			UPDATE campaigns`+claimSet+`
			WHERE id=$1 AND (status='scheduled'
				OR (status='processing' AND updated_at < now() - $2 * interval '1 second'))
			RETURNING `+campaignColumns, id, int64(r.StaleClaimAge.Seconds()))
	} else {
		row = r.DB.QueryRowContext(ctx, `
			UPDATE campaigns`+claimSet+`
			WHERE id=$1 AND status='scheduled'
			RETURNING `+campaignColumns, id)
	}

	c, err := scanCampaign(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	c.GroupIDs, err = r.TargetGroupIDs(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (r *CampaignRepository) RecordProgress(ctx context.Context, id int64, sent, failed int) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE campaigns
		SET sent_count=$2, failed_count=$3, updated_at=now()
		WHERE id=$1 AND status='processing'
	`, id, sent, failed)
	return err
}

func (r *CampaignRepository) Finalize(ctx context.Context, id int64, sent, failed int, success bool) error {
	if success {
		_, err := r.DB.ExecContext(ctx, `
			UPDATE campaigns
			SET status='completed', sent_count=$2, failed_count=$3, sent_at=now(), updated_at=now()
			WHERE id=$1 AND status='processing'
		`, id, sent, failed)
		return err
	}
	_, err := r.DB.ExecContext(ctx, `
		UPDATE campaigns
		SET status='failed', sent_count=$2, failed_count=$3, updated_at=now()
		WHERE id=$1 AND status='processing'
	`, id, sent, failed)
	return err
}

func (r *CampaignRepository) ListDue(ctx context.Context, now time.Time) ([]model.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status='scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	due := []model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, *c)
	}
	return due, rows.Err()
}

func (r *CampaignRepository) TargetGroupIDs(ctx context.Context, id int64) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT group_id FROM campaign_groups WHERE campaign_id=$1 ORDER BY group_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var gid int64
		if err := rows.Scan(&gid); err != nil {
			return nil, err
		}
		ids = append(ids, gid)
	}
	return ids, rows.Err()
}

func (r *CampaignRepository) CountForTemplate(ctx context.Context, templateID int64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaigns WHERE template_id=$1`, templateID).Scan(&n)
	return n, err
}

func attachGroups(ctx context.Context, tx *sql.Tx, campaignID int64, groupIDs []int64) error {
	for _, gid := range groupIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_groups (campaign_id, group_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, campaignID, gid); err != nil {
			return err
		}
	}
	return nil
}

func countDistinctMembers(ctx context.Context, tx *sql.Tx, groupIDs []int64) (int, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT customer_id)
		FROM customer_groups
		WHERE group_id = ANY($1)
	`, pq.Array(groupIDs)).Scan(&n)
	return n, err
}
