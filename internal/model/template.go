package model

import "time"

// Template holds the subject and body patterns for campaign emails.
// Both may contain {{field_name}} placeholder tokens.
type Template struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Name      string     `db:"name" json:"name"`
	Subject   string     `db:"subject" json:"subject"`
	Body      string     `db:"body" json:"body"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// AvailablePlaceholders maps each supported token to its description, for
// display next to the template editor.
func AvailablePlaceholders() map[string]string {
	return map[string]string{
		"{{first_name}}": "Customer first name",
		"{{last_name}}":  "Customer last name",
		"{{full_name}}":  "Customer full name",
		"{{email}}":      "Customer email",
		"{{sex}}":        "Customer sex",
		"{{birth_date}}": "Customer birth date",
	}
}
