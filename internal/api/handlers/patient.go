package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medtrack/adherence-engine/internal/adherence"
	"github.com/medtrack/adherence-engine/internal/api/middleware"
	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/domain/dose"
	"github.com/medtrack/adherence-engine/internal/domain/nudge"
	"github.com/medtrack/adherence-engine/internal/observability/metrics"
	"github.com/medtrack/adherence-engine/internal/report"
	"github.com/medtrack/adherence-engine/internal/risk"
)

// Reports builds read-side patient views.
type Reports interface {
	AdherenceSummary(ctx context.Context, actorID, patientID string) (*adherence.Summary, error)
	DaySchedule(ctx context.Context, actorID, patientID string, day clinic.Date) ([]dose.Dose, error)
	RiskFor(ctx context.Context, actorID, patientID string) (*risk.Assessment, error)
	RiskList(ctx context.Context, doctorID string) ([]report.PatientRisk, error)
}

// Nudger queues reminders.
type Nudger interface {
	Send(ctx context.Context, doctorID, patientID, doseID, message string) (*nudge.Nudge, error)
}

// PatientHandler handles patient-scoped endpoints.
type PatientHandler struct {
	reports Reports
	nudger  Nudger
	clock   clinic.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewPatientHandler creates a handler.
func NewPatientHandler(reports Reports, nudger Nudger, clock clinic.Clock, m *metrics.Metrics, logger *zap.Logger) *PatientHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientHandler{reports: reports, nudger: nudger, clock: clock, metrics: m, logger: logger}
}

// Routes returns the handler routes.
func (h *PatientHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/risk", h.RiskList)
	r.Get("/{id}/adherence", h.Adherence)
	r.Get("/{id}/doses", h.DaySchedule)
	r.Get("/{id}/risk", h.Risk)
	r.Post("/{id}/nudge", h.Nudge)
	return r
}

// Adherence handles GET /patients/{id}/adherence.
func (h *PatientHandler) Adherence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "id")

	summary, err := h.reports.AdherenceSummary(ctx, middleware.GetActorID(ctx), patientID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// DaySchedule handles GET /patients/{id}/doses?date=YYYY-MM-DD. Today is
// the default.
func (h *PatientHandler) DaySchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "id")

	day := clinic.Today(h.clock)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := clinic.ParseDate(raw)
		if err != nil {
			writeError(w, "invalid date", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	doses, err := h.reports.DaySchedule(ctx, middleware.GetActorID(ctx), patientID, day)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  day.String(),
		"doses": doses,
	})
}

// Risk handles GET /patients/{id}/risk.
func (h *PatientHandler) Risk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "id")

	assessment, err := h.reports.RiskFor(ctx, middleware.GetActorID(ctx), patientID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

// RiskList handles GET /patients/risk: the acting doctor's assigned
// patients ranked by risk, highest first.
func (h *PatientHandler) RiskList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.reports.RiskList(ctx, middleware.GetActorID(ctx))
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// NudgeRequest is the request body for sending a nudge.
type NudgeRequest struct {
	DoseID  string `json:"dose_id"`
	Message string `json:"message"`
}

// Nudge handles POST /patients/{id}/nudge.
func (h *PatientHandler) Nudge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	patientID := chi.URLParam(r, "id")

	var req NudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	n, err := h.nudger.Send(ctx, middleware.GetActorID(ctx), patientID, req.DoseID, req.Message)
	if err != nil {
		writeFault(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.NudgesQueued.Inc()
	}
	writeJSON(w, http.StatusAccepted, n)
}
