package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mailkite/mailkite/internal/apperrors"
	"github.com/mailkite/mailkite/internal/model"
	"github.com/mailkite/mailkite/internal/repository"
	"github.com/mailkite/mailkite/internal/service"
)

type TemplateHandler struct {
	Repo    repository.TemplateRepositoryInterface
	Service *service.TemplateService
}

type templateInput struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (in *templateInput) validate() error {
	if in.Name == "" || in.Subject == "" || in.Body == "" {
		return apperrors.NewValidation("template name, subject and body are required")
	}
	return nil
}

func (h *TemplateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in templateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := in.validate(); err != nil {
		respondError(w, err)
		return
	}

	t := &model.Template{UserID: userID(r), Name: in.Name, Subject: in.Subject, Body: in.Body}
	if err := h.Repo.Create(r.Context(), t); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Repo.ListForUser(r.Context(), userID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":         templates,
		"placeholders": model.AvailablePlaceholders(),
	})
}

func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	t, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	var in templateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := in.validate(); err != nil {
		respondError(w, err)
		return
	}

	t, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	t.Name, t.Subject, t.Body = in.Name, in.Subject, in.Body
	if err := h.Repo.Update(r.Context(), t); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	if err := h.Repo.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview renders a template against one customer, exactly as the dispatch
// pipeline would.
func (h *TemplateHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}

	var body struct {
		CustomerID int64 `json:"customer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	preview, err := h.Service.Preview(r.Context(), id, body.CustomerID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, preview)
}
