package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medtrack/adherence-engine/internal/api/middleware"
	"github.com/medtrack/adherence-engine/internal/domain/plan"
	"github.com/medtrack/adherence-engine/internal/observability/metrics"
	"github.com/medtrack/adherence-engine/internal/prescribe"
	"github.com/medtrack/adherence-engine/pkg/idempotency"
)

// Builder creates prescriptions.
type Builder interface {
	CreatePrescription(ctx context.Context, patientID, doctorID string, inputs []plan.MedicationInput) (*prescribe.Result, error)
}

// Importer ingests clinic handovers.
type Importer interface {
	Import(ctx context.Context, doctorID string, payload prescribe.ImportPayload) (*prescribe.ImportResult, error)
}

// Inbox deduplicates handover imports. A nil inbox processes directly.
type Inbox interface {
	Process(ctx context.Context, key, handlerName string, payload json.RawMessage, fn idempotency.ProcessFunc) (*idempotency.ProcessResult, error)
}

// PlanReader loads plans for display.
type PlanReader interface {
	GetPlan(ctx context.Context, id string) (*plan.Plan, error)
	ListPlansForPatient(ctx context.Context, patientID string) ([]plan.Plan, error)
}

// PrescriptionHandler handles prescribing endpoints.
type PrescriptionHandler struct {
	builder  Builder
	importer Importer
	inbox    Inbox
	plans    PlanReader
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewPrescriptionHandler creates a handler.
func NewPrescriptionHandler(builder Builder, importer Importer, inbox Inbox, plans PlanReader, m *metrics.Metrics, logger *zap.Logger) *PrescriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionHandler{
		builder:  builder,
		importer: importer,
		inbox:    inbox,
		plans:    plans,
		metrics:  m,
		logger:   logger,
	}
}

// Routes returns the handler routes.
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Post("/import", h.Import)
	r.Get("/{id}", h.Get)
	return r
}

// CreateRequest is the request body for creating a prescription.
type CreateRequest struct {
	PatientID string                 `json:"patient_id"`
	Meds      []plan.MedicationInput `json:"meds"`
}

// Create handles POST /prescriptions.
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	doctorID := middleware.GetActorID(ctx)
	res, err := h.builder.CreatePrescription(ctx, req.PatientID, doctorID, req.Meds)
	if err != nil {
		h.logger.Warn("create prescription failed",
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		writeFault(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.PrescriptionsCreated.Inc()
		h.metrics.DosesGenerated.Add(float64(res.Doses))
	}
	writeJSON(w, http.StatusCreated, res)
}

// Import handles POST /prescriptions/import. Retransmissions of the same
// handover return the original result.
func (h *PrescriptionHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload prescribe.ImportPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	doctorID := middleware.GetActorID(ctx)

	if h.inbox == nil {
		res, err := h.importer.Import(ctx, doctorID, payload)
		if err != nil {
			writeFault(w, err)
			return
		}
		h.countImport(res)
		writeJSON(w, http.StatusCreated, res)
		return
	}

	medNames := make([]string, 0, len(payload.Meds))
	for _, m := range payload.Meds {
		medNames = append(medNames, m.Name)
	}
	key := idempotency.GenerateKey(doctorID, payload.Patient.MRN, payload.Plan.StartDate, medNames)

	raw, _ := json.Marshal(payload)
	outcome, err := h.inbox.Process(ctx, key, "handover-import", raw, func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		res, err := h.importer.Import(ctx, doctorID, payload)
		if err != nil {
			return nil, err
		}
		h.countImport(res)
		return json.Marshal(res)
	})
	if err != nil {
		writeFault(w, err)
		return
	}

	status := http.StatusCreated
	if !outcome.IsNew {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(outcome.Result)
}

func (h *PrescriptionHandler) countImport(res *prescribe.ImportResult) {
	if h.metrics == nil {
		return
	}
	h.metrics.ImportsProcessed.Inc()
	h.metrics.PrescriptionsCreated.Inc()
	h.metrics.DosesGenerated.Add(float64(res.Doses))
}

// Get handles GET /prescriptions/{id}.
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	p, err := h.plans.GetPlan(ctx, id)
	if err != nil {
		writeError(w, "failed to load prescription", http.StatusInternalServerError)
		return
	}
	if p == nil {
		writeError(w, "prescription not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
