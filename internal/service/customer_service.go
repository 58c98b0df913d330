package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mailkite/mailkite/internal/model"
	"github.com/mailkite/mailkite/internal/repository"
)

type CustomerService struct {
	Customers repository.CustomerRepositoryInterface
	Log       zerolog.Logger
}

// BulkImport creates customers one by one, skipping rows that fail (bad
// data, duplicate email). Returns how many were imported.
func (s *CustomerService) BulkImport(ctx context.Context, userID int64, customers []model.Customer) (int, error) {
	imported := 0
	for i := range customers {
		c := customers[i]
		c.UserID = userID
		if c.Email == "" || c.FirstName == "" || c.LastName == "" {
			s.Log.Warn().Int("row", i).Msg("skipping customer row with missing fields")
			continue
		}
		if err := s.Customers.Create(ctx, &c); err != nil {
			if ctx.Err() != nil {
				return imported, ctx.Err()
			}
			s.Log.Warn().Err(err).Int("row", i).Str("email", c.Email).Msg("skipping customer row")
			continue
		}
		imported++
	}
	return imported, nil
}
