package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/workloop/internal/adapters/repository"
	"github.com/okian/workloop/internal/domain/types"
)

// WorkerDependencies defines the interface for worker lookups.
type WorkerDependencies interface {
	Worker(ctx context.Context, workerID string) (types.WorkerView, error)
}

// WorkerHandler handles worker requests.
type WorkerHandler struct {
	deps WorkerDependencies
}

// NewWorkerHandler creates a new worker handler.
func NewWorkerHandler(deps WorkerDependencies) *WorkerHandler {
	return &WorkerHandler{deps: deps}
}

// HandleGetWorker handles GET /workers/{id}.
func (h *WorkerHandler) HandleGetWorker(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Worker(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
