package model

import "time"

type Campaign struct {
	ID              int64      `db:"id" json:"id"`
	UserID          int64      `db:"user_id" json:"user_id"`
	TemplateID      *int64     `db:"template_id" json:"template_id,omitempty"`
	Name            string     `db:"name" json:"name"`
	Status          Status     `db:"status" json:"status"`
	ScheduledAt     *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	SentAt          *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	TotalRecipients int        `db:"total_recipients" json:"total_recipients"`
	SentCount       int        `db:"sent_count" json:"sent_count"`
	FailedCount     int        `db:"failed_count" json:"failed_count"`
	GroupIDs        []int64    `db:"-" json:"group_ids"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// ProgressPercentage is the share of recipients already delivered, 0-100.
func (c *Campaign) ProgressPercentage() int {
	if c.TotalRecipients == 0 {
		return 0
	}
	return c.SentCount * 100 / c.TotalRecipients
}

// PendingCount is the number of recipients not yet attempted.
func (c *Campaign) PendingCount() int {
	return c.TotalRecipients - c.SentCount - c.FailedCount
}
