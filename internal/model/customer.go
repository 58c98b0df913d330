package model

import "time"

type Customer struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Email     string     `db:"email" json:"email"`
	FirstName string     `db:"first_name" json:"first_name"`
	LastName  string     `db:"last_name" json:"last_name"`
	Sex       *string    `db:"sex" json:"sex,omitempty"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// FullName joins first and last name with a single space.
func (c *Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

// PlaceholderData is the flat field mapping substituted into templates.
// Missing optional fields map to the empty string.
func (c *Customer) PlaceholderData() map[string]string {
	sex := ""
	if c.Sex != nil {
		sex = *c.Sex
	}
	birthDate := ""
	if c.BirthDate != nil {
		birthDate = c.BirthDate.Format("2006-01-02")
	}
	return map[string]string{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"full_name":  c.FullName(),
		"email":      c.Email,
		"sex":        sex,
		"birth_date": birthDate,
	}
}
