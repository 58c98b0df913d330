package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mailkite/mailkite/internal/apperrors"
	"github.com/mailkite/mailkite/internal/model"
	"github.com/mailkite/mailkite/internal/repository"
)

type GroupHandler struct {
	Repo repository.GroupRepositoryInterface
}

type groupInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	CustomerIDs []int64 `json:"customer_ids"`
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in groupInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if in.Name == "" {
		respondError(w, apperrors.NewValidation("group name must not be empty"))
		return
	}

	g := &model.Group{UserID: userID(r), Name: in.Name, Description: in.Description}
	if err := h.Repo.Create(r.Context(), g); err != nil {
		respondError(w, err)
		return
	}
	if len(in.CustomerIDs) > 0 {
		if err := h.Repo.SetCustomers(r.Context(), g.ID, in.CustomerIDs); err != nil {
			respondError(w, err)
			return
		}
		g.CustomerCount = len(in.CustomerIDs)
	}
	respondJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Repo.ListForUser(r.Context(), userID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": groups})
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid group id", http.StatusBadRequest)
		return
	}

	g, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid group id", http.StatusBadRequest)
		return
	}

	var in groupInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	g, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	g.Name = in.Name
	g.Description = in.Description
	if err := h.Repo.Update(r.Context(), g); err != nil {
		respondError(w, err)
		return
	}
	if in.CustomerIDs != nil {
		if err := h.Repo.SetCustomers(r.Context(), id, in.CustomerIDs); err != nil {
			respondError(w, err)
			return
		}
	}

	g, err = h.Repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		http.Error(w, "invalid group id", http.StatusBadRequest)
		return
	}

	if err := h.Repo.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
