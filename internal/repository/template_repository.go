package repository

import (
	"context"
	"database/sql"

	"github.com/mailkite/mailkite/internal/apperrors"
	"github.com/mailkite/mailkite/internal/model"
)

type TemplateRepositoryInterface interface {
	Create(ctx context.Context, t *model.Template) error
	GetByID(ctx context.Context, id int64) (*model.Template, error)
	ListForUser(ctx context.Context, userID int64) ([]model.Template, error)
	Update(ctx context.Context, t *model.Template) error
	Delete(ctx context.Context, id int64) error
}

type TemplateRepository struct {
	DB *sql.DB
}

func (r *TemplateRepository) Create(ctx context.Context, t *model.Template) error {
	return r.DB.QueryRowContext(ctx, `
		INSERT INTO templates (user_id, name, subject, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, t.UserID, t.Name, t.Subject, t.Body).Scan(&t.ID, &t.CreatedAt)
}

func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*model.Template, error) {
	var t model.Template
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, user_id, name, subject, body, created_at, updated_at
		FROM templates WHERE id=$1
	`, id).Scan(&t.ID, &t.UserID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewTemplateNotFound(id)
		}
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) ListForUser(ctx context.Context, userID int64) ([]model.Template, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, user_id, name, subject, body, created_at, updated_at
		FROM templates
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []model.Template{}
	for rows.Next() {
		var t model.Template
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Subject, &t.Body, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (r *TemplateRepository) Update(ctx context.Context, t *model.Template) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE templates
		SET name=$2, subject=$3, body=$4, updated_at=now()
		WHERE id=$1
	`, t.ID, t.Name, t.Subject, t.Body)
	return err
}

// Delete refuses to remove a template any campaign still references.
func (r *TemplateRepository) Delete(ctx context.Context, id int64) error {
	var refs int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaigns WHERE template_id=$1`, id).Scan(&refs)
	if err != nil {
		return err
	}
	if refs > 0 {
		return &apperrors.TemplateInUseError{TemplateID: id, Campaigns: refs}
	}
	_, err = r.DB.ExecContext(ctx, `DELETE FROM templates WHERE id=$1`, id)
	return err
}
