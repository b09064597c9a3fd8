package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medtrack/adherence-engine/internal/adherence"
	"github.com/medtrack/adherence-engine/internal/api/middleware"
	"github.com/medtrack/adherence-engine/internal/clinic"
	"github.com/medtrack/adherence-engine/internal/domain/dose"
	"github.com/medtrack/adherence-engine/internal/domain/nudge"
	"github.com/medtrack/adherence-engine/internal/domain/plan"
	"github.com/medtrack/adherence-engine/internal/fault"
	"github.com/medtrack/adherence-engine/internal/prescribe"
	"github.com/medtrack/adherence-engine/internal/report"
	"github.com/medtrack/adherence-engine/internal/risk"
)

type stubBuilder struct {
	res *prescribe.Result
	err error
}

func (s *stubBuilder) CreatePrescription(_ context.Context, _, _ string, _ []plan.MedicationInput) (*prescribe.Result, error) {
	return s.res, s.err
}

type stubLifecycle struct {
	dose     *dose.Dose
	err      error
	swept    int
	sweepErr error
}

func (s *stubLifecycle) RecordPatientAction(_ context.Context, _, _ string, _ dose.Status, _ string) (*dose.Dose, error) {
	return s.dose, s.err
}

func (s *stubLifecycle) SweepOverdue(context.Context) (int, error) {
	return s.swept, s.sweepErr
}

type stubReports struct {
	summary *adherence.Summary
	err     error
}

func (s *stubReports) AdherenceSummary(context.Context, string, string) (*adherence.Summary, error) {
	return s.summary, s.err
}
func (s *stubReports) DaySchedule(context.Context, string, string, clinic.Date) ([]dose.Dose, error) {
	return nil, s.err
}
func (s *stubReports) RiskFor(context.Context, string, string) (*risk.Assessment, error) {
	return &risk.Assessment{}, s.err
}
func (s *stubReports) RiskList(context.Context, string) ([]report.PatientRisk, error) {
	return nil, s.err
}

type stubNudger struct {
	nudge *nudge.Nudge
	err   error
}

func (s *stubNudger) Send(context.Context, string, string, string, string) (*nudge.Nudge, error) {
	return s.nudge, s.err
}

func doRequest(t *testing.T, router chi.Router, method, path, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("X-Actor-ID", actor)

	rec := httptest.NewRecorder()
	middleware.ActorAuth(router).ServeHTTP(rec, req)
	return rec
}

func TestCreatePrescriptionEndpoint(t *testing.T) {
	builder := &stubBuilder{res: &prescribe.Result{PlanID: "pl1", Number: "RX-20260214-4242", Medications: 1, Doses: 2}}
	h := NewPrescriptionHandler(builder, nil, nil, nil, nil, nil)
	router := chi.NewRouter()
	router.Mount("/prescriptions", h.Routes())

	rec := doRequest(t, router, http.MethodPost, "/prescriptions",
		"d1", `{"patient_id":"p1","meds":[{"med_name":"metformin"}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var res prescribe.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Number != "RX-20260214-4242" || res.Doses != 2 {
		t.Errorf("response %+v", res)
	}
}

func TestCreatePrescriptionFaultMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", fault.Validation("bad input"), http.StatusBadRequest},
		{"authorization", fault.Authorization("not assigned"), http.StatusForbidden},
		{"not found", fault.NotFound("patient x"), http.StatusNotFound},
		{"exhausted", fault.GenerationExhausted(5), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewPrescriptionHandler(&stubBuilder{err: tc.err}, nil, nil, nil, nil, nil)
			router := chi.NewRouter()
			router.Mount("/prescriptions", h.Routes())

			rec := doRequest(t, router, http.MethodPost, "/prescriptions",
				"d1", `{"patient_id":"p1","meds":[]}`)
			if rec.Code != tc.code {
				t.Fatalf("status %d, want %d", rec.Code, tc.code)
			}
		})
	}
}

func TestMissingActorRejected(t *testing.T) {
	h := NewPrescriptionHandler(&stubBuilder{}, nil, nil, nil, nil, nil)
	router := chi.NewRouter()
	router.Mount("/prescriptions", h.Routes())

	req := httptest.NewRequest(http.MethodPost, "/prescriptions", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	middleware.ActorAuth(router).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
}

func TestDoseActionEndpoint(t *testing.T) {
	acted := time.Date(2026, time.February, 14, 6, 10, 0, 0, clinic.Location)
	lc := &stubLifecycle{dose: &dose.Dose{ID: "ds1", PatientID: "p1", Status: dose.StatusTaken, ActedAt: &acted}}
	h := NewDoseHandler(lc, nil, nil)
	router := chi.NewRouter()
	router.Mount("/doses", h.Routes())

	rec := doRequest(t, router, http.MethodPost, "/doses/ds1/action",
		"p1", `{"status":"taken"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var res ActionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Label != "Complete" {
		t.Errorf("label %q, want Complete", res.Label)
	}
}

func TestDoseActionForeignDose(t *testing.T) {
	lc := &stubLifecycle{err: fault.Authorization("dose belongs to another patient")}
	h := NewDoseHandler(lc, nil, nil)
	router := chi.NewRouter()
	router.Mount("/doses", h.Routes())

	rec := doRequest(t, router, http.MethodPost, "/doses/ds1/action", "intruder", `{"status":"taken"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d, want 403", rec.Code)
	}
}

func TestSweepEndpoint(t *testing.T) {
	h := NewDoseHandler(&stubLifecycle{swept: 3}, nil, nil)
	router := chi.NewRouter()
	router.Post("/internal/sweep", h.Sweep)

	rec := doRequest(t, router, http.MethodPost, "/internal/sweep", "cron", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var res map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res["marked_missed"] != 3 {
		t.Errorf("marked_missed %d, want 3", res["marked_missed"])
	}
}

func TestNudgeEndpoint(t *testing.T) {
	n := &nudge.Nudge{ID: "n1", PatientID: "p1", Status: nudge.StatusQueued}
	h := NewPatientHandler(&stubReports{}, &stubNudger{nudge: n}, clinic.System(), nil, nil)
	router := chi.NewRouter()
	router.Mount("/patients", h.Routes())

	rec := doRequest(t, router, http.MethodPost, "/patients/p1/nudge", "d1", `{"message":"take your meds"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d, want 202: %s", rec.Code, rec.Body.String())
	}
}

func TestAdherenceEndpoint(t *testing.T) {
	summary := &adherence.Summary{Streak: 4}
	h := NewPatientHandler(&stubReports{summary: summary}, &stubNudger{}, clinic.System(), nil, nil)
	router := chi.NewRouter()
	router.Mount("/patients", h.Routes())

	rec := doRequest(t, router, http.MethodGet, "/patients/p1/adherence", "p1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var res adherence.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Streak != 4 {
		t.Errorf("streak %d, want 4", res.Streak)
	}
}
