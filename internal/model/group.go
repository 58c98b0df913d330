package model

import "time"

type Group struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	Name          string    `db:"name" json:"name"`
	Description   *string   `db:"description" json:"description,omitempty"`
	CustomerCount int       `db:"-" json:"customer_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
