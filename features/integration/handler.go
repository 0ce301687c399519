package integration

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"weft/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	integrations, err := h.service.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list integrations", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.writeData(w, integrations)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	in, err := h.service.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		h.writeError(r.Context(), w, "NOT_FOUND", "Integration not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to get integration", "error", err, "id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.writeData(w, in)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Schedule string `json:"schedule"`
		IsActive bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Schedule == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "schedule is required", http.StatusBadRequest)
		return
	}

	err := h.service.Update(r.Context(), id, req.Schedule, req.IsActive)
	if errors.Is(err, ErrNotFound) {
		h.writeError(r.Context(), w, "NOT_FOUND", "Integration not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to update integration", "error", err, "id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.service.Delete(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		h.writeError(r.Context(), w, "NOT_FOUND", "Integration not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to delete integration", "error", err, "id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListParentGroups(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	groups, err := h.service.ListParentGroups(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list parent groups", "error", err, "integration_id", id)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.writeData(w, groups)
}

func (h *Handler) Resync(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupId")
	err := h.service.Resync(r.Context(), groupID)
	if errors.Is(err, ErrNotFound) {
		h.writeError(r.Context(), w, "NOT_FOUND", "Parent group not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to resync parent group", "error", err, "parent_group_id", groupID)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) writeData(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
