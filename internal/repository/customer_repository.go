package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/mailkite/mailkite/internal/apperrors"
	"github.com/mailkite/mailkite/internal/model"
)

// CustomerRepositoryInterface covers customer CRUD plus the recipient
// resolution queries the dispatch pipeline streams over.
type CustomerRepositoryInterface interface {
	Create(ctx context.Context, c *model.Customer) error
	GetByID(ctx context.Context, id int64) (*model.Customer, error)
	ListForUser(ctx context.Context, userID int64, limit, offset int) ([]model.Customer, error)
	Update(ctx context.Context, c *model.Customer) error
	Delete(ctx context.Context, id int64) error
	SetGroups(ctx context.Context, customerID int64, groupIDs []int64) error

	// ListInGroups returns the distinct customers belonging to any of the
	// groups, with id > afterID, ordered by id, at most limit rows. Paging
	// by id keyset keeps memory bounded for large recipient sets and is
	// stable across calls within one dispatch run.
	ListInGroups(ctx context.Context, groupIDs []int64, afterID int64, limit int) ([]model.Customer, error)
}

type CustomerRepository struct {
	DB *sql.DB
}

const customerColumns = `id, user_id, email, first_name, last_name, sex, birth_date, created_at`

func scanCustomer(row interface{ Scan(...any) error }) (*model.Customer, error) {
	var c model.Customer
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Email,
		&c.FirstName,
		&c.LastName,
		&c.Sex,
		&c.BirthDate,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CustomerRepository) Create(ctx context.Context, c *model.Customer) error {
	return r.DB.QueryRowContext(ctx, `
		INSERT INTO customers (user_id, email, first_name, last_name, sex, birth_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, c.UserID, c.Email, c.FirstName, c.LastName, c.Sex, c.BirthDate).Scan(&c.ID, &c.CreatedAt)
}

func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*model.Customer, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id=$1`, id)
	c, err := scanCustomer(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NewCustomerNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CustomerRepository) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]model.Customer, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectCustomers(rows)
}

func (r *CustomerRepository) Update(ctx context.Context, c *model.Customer) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE customers
		SET email=$2, first_name=$3, last_name=$4, sex=$5, birth_date=$6
		WHERE id=$1
	`, c.ID, c.Email, c.FirstName, c.LastName, c.Sex, c.BirthDate)
	return err
}

func (r *CustomerRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM customers WHERE id=$1`, id)
	return err
}

func (r *CustomerRepository) SetGroups(ctx context.Context, customerID int64, groupIDs []int64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM customer_groups WHERE customer_id=$1`, customerID); err != nil {
		return err
	}
	for _, gid := range groupIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO customer_groups (customer_id, group_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, customerID, gid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *CustomerRepository) ListInGroups(ctx context.Context, groupIDs []int64, afterID int64, limit int) ([]model.Customer, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT DISTINCT `+qualifiedCustomerColumns+`
		FROM customers c
		JOIN customer_groups cg ON cg.customer_id = c.id
		WHERE cg.group_id = ANY($1) AND c.id > $2
		ORDER BY c.id ASC
		LIMIT $3
	`, pq.Array(groupIDs), afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectCustomers(rows)
}

const qualifiedCustomerColumns = `c.id, c.user_id, c.email, c.first_name, c.last_name, c.sex, c.birth_date, c.created_at`

func collectCustomers(rows *sql.Rows) ([]model.Customer, error) {
	customers := []model.Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}
