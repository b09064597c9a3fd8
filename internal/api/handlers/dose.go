package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medtrack/adherence-engine/internal/api/middleware"
	"github.com/medtrack/adherence-engine/internal/domain/dose"
	"github.com/medtrack/adherence-engine/internal/observability/metrics"
)

// Lifecycle records dose transitions.
type Lifecycle interface {
	RecordPatientAction(ctx context.Context, doseID, patientID string, status dose.Status, note string) (*dose.Dose, error)
	SweepOverdue(ctx context.Context) (int, error)
}

// DoseHandler handles dose endpoints.
type DoseHandler struct {
	lifecycle Lifecycle
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewDoseHandler creates a handler.
func NewDoseHandler(lifecycle Lifecycle, m *metrics.Metrics, logger *zap.Logger) *DoseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DoseHandler{lifecycle: lifecycle, metrics: m, logger: logger}
}

// Routes returns the handler routes.
func (h *DoseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}/action", h.Action)
	return r
}

// ActionRequest is the request body for a patient dose action.
type ActionRequest struct {
	Status dose.Status `json:"status"`
	Note   string      `json:"note"`
}

// ActionResponse echoes the updated dose with its display label.
type ActionResponse struct {
	Dose  *dose.Dose `json:"dose"`
	Label string     `json:"label"`
}

// Action handles POST /doses/{id}/action. The acting patient comes from
// the authenticated actor; acting on someone else's dose is forbidden.
func (h *DoseHandler) Action(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doseID := chi.URLParam(r, "id")

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	patientID := middleware.GetActorID(ctx)
	d, err := h.lifecycle.RecordPatientAction(ctx, doseID, patientID, req.Status, req.Note)
	if err != nil {
		writeFault(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.DoseActions.WithLabelValues(string(d.Status)).Inc()
	}
	writeJSON(w, http.StatusOK, ActionResponse{Dose: d, Label: d.Status.Label()})
}

// Sweep handles POST /internal/sweep, the scheduler's entry point for
// marking overdue doses missed.
func (h *DoseHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.lifecycle.SweepOverdue(ctx)
	if err != nil {
		h.logger.Error("sweep failed", zap.Error(err))
		writeError(w, "sweep failed", http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.DosesSweptMissed.Add(float64(n))
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked_missed": n})
}
