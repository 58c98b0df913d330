package repository

import (
	"context"
	"database/sql"

	"github.com/mailkite/mailkite/internal/apperrors"
	"github.com/mailkite/mailkite/internal/model"
)

type GroupRepositoryInterface interface {
	Create(ctx context.Context, g *model.Group) error
	GetByID(ctx context.Context, id int64) (*model.Group, error)
	ListForUser(ctx context.Context, userID int64) ([]model.Group, error)
	Update(ctx context.Context, g *model.Group) error
	Delete(ctx context.Context, id int64) error
	SetCustomers(ctx context.Context, groupID int64, customerIDs []int64) error
}

type GroupRepository struct {
	DB *sql.DB
}

func (r *GroupRepository) Create(ctx context.Context, g *model.Group) error {
	return r.DB.QueryRowContext(ctx, `
		INSERT INTO groups (user_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, g.UserID, g.Name, g.Description).Scan(&g.ID, &g.CreatedAt)
}

func (r *GroupRepository) GetByID(ctx context.Context, id int64) (*model.Group, error) {
	var g model.Group
	err := r.DB.QueryRowContext(ctx, `
		SELECT g.id, g.user_id, g.name, g.description, g.created_at,
		       (SELECT COUNT(*) FROM customer_groups cg WHERE cg.group_id = g.id)
		FROM groups g WHERE g.id=$1
	`, id).Scan(&g.ID, &g.UserID, &g.Name, &g.Description, &g.CreatedAt, &g.CustomerCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewGroupNotFound(id)
		}
		return nil, err
	}
	return &g, nil
}

func (r *GroupRepository) ListForUser(ctx context.Context, userID int64) ([]model.Group, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT g.id, g.user_id, g.name, g.description, g.created_at,
		       (SELECT COUNT(*) FROM customer_groups cg WHERE cg.group_id = g.id)
		FROM groups g
		WHERE g.user_id=$1
		ORDER BY g.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []model.Group{}
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.Description, &g.CreatedAt, &g.CustomerCount); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *GroupRepository) Update(ctx context.Context, g *model.Group) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE groups SET name=$2, description=$3 WHERE id=$1
	`, g.ID, g.Name, g.Description)
	return err
}

// Delete detaches members and campaign references before removing the group.
func (r *GroupRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM customer_groups WHERE group_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM campaign_groups WHERE group_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *GroupRepository) SetCustomers(ctx context.Context, groupID int64, customerIDs []int64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM customer_groups WHERE group_id=$1`, groupID); err != nil {
		return err
	}
	for _, cid := range customerIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO customer_groups (customer_id, group_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, cid, groupID); err != nil {
			return err
		}
	}
	return tx.Commit()
}
