package service

import (
	"context"

	"github.com/mailkite/mailkite/internal/render"
	"github.com/mailkite/mailkite/internal/repository"
)

// TemplateService adds the preview operation on top of template CRUD.
type TemplateService struct {
	Templates repository.TemplateRepositoryInterface
	Customers repository.CustomerRepositoryInterface
}

// Preview renders a template against one customer's placeholder data, the
// same substitution the dispatch pipeline performs.
type Preview struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *TemplateService) Preview(ctx context.Context, templateID, customerID int64) (*Preview, error) {
	tmpl, err := s.Templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	customer, err := s.Customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	data := customer.PlaceholderData()
	return &Preview{
		Subject: render.Subject(tmpl.Subject, data),
		Body:    render.Body(tmpl.Body, data),
	}, nil
}
