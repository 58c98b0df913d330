package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mailkite/mailkite/internal/apperrors"
	"github.com/mailkite/mailkite/internal/model"
	"github.com/mailkite/mailkite/internal/repository"
	"github.com/mailkite/mailkite/internal/service"
)

type CustomerHandler struct {
	Repo    repository.CustomerRepositoryInterface
	Service *service.CustomerService
}

func parseDate(s string) (*time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.Customer
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if in.Email == "" || in.FirstName == "" || in.LastName == "" {
		respondError(w, apperrors.NewValidation("email, first_name and last_name are required"))
		return
	}

	in.UserID = userID(r)
	if err := h.Repo.Create(r.Context(), &in); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, in)
}

func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	customers, err := h.Repo.ListForUser(r.Context(), userID(r), limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": customers})
}

func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}

	c, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}

	var in struct {
		Email     string   `json:"email"`
		FirstName string   `json:"first_name"`
		LastName  string   `json:"last_name"`
		Sex       *string  `json:"sex"`
		BirthDate *string  `json:"birth_date"`
		GroupIDs  *[]int64 `json:"group_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	c, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	c.Email = in.Email
	c.FirstName = in.FirstName
	c.LastName = in.LastName
	c.Sex = in.Sex
	if in.BirthDate != nil {
		t, err := parseDate(*in.BirthDate)
		if err != nil {
			respondError(w, apperrors.NewValidation("birth_date must be YYYY-MM-DD"))
			return
		}
		c.BirthDate = t
	} else {
		c.BirthDate = nil
	}

	if err := h.Repo.Update(r.Context(), c); err != nil {
		respondError(w, err)
		return
	}
	if in.GroupIDs != nil {
		if err := h.Repo.SetGroups(r.Context(), id, *in.GroupIDs); err != nil {
			respondError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid customer id", http.StatusBadRequest)
		return
	}

	if err := h.Repo.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Import accepts a JSON array of customers and loads them, skipping bad rows.
func (h *CustomerHandler) Import(w http.ResponseWriter, r *http.Request) {
	var rows []model.Customer
	if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	imported, err := h.Service.BulkImport(r.Context(), userID(r), rows)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"imported": imported, "skipped": len(rows) - imported})
}
