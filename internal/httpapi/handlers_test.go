package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/qdadvisor/advisor/internal/liveprogress"
	"github.com/qdadvisor/advisor/internal/report"
	"github.com/qdadvisor/advisor/internal/statementsource"
)

func TestSubmitAndGetRun(t *testing.T) {
	reg := liveprogress.NewRegistry()
	done := make(chan struct{})
	driver := func(run *liveprogress.Run, statements []statementsource.Statement, onDone func(*report.Report, error)) {
		rep := report.NewReport(0, []report.StatementReport{{Query: statements[0].Query, BaseCost: 10, FinalCost: 2}})
		onDone(&rep, nil)
		close(done)
	}
	h := NewHandler(reg, driver)

	router := chi.NewRouter()
	router.Post("/api/runs", h.HandleSubmitRun)
	router.Get("/api/runs/{runID}", h.HandleGetRun)

	body, _ := json.Marshal(submitRunRequest{Statements: []statementsource.Statement{{Query: "SELECT 1"}}})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status %d, body %s", rec.Code, rec.Body.String())
	}
	var submitted RunState
	if err := json.Unmarshal(rec.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	<-done

	getReq := httptest.NewRequest(http.MethodGet, "/api/runs/"+submitted.ID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("get: status %d, body %s", getRec.Code, getRec.Body.String())
	}
	var got RunState
	if err := json.Unmarshal(getRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if got.Status != RunStatusDone {
		t.Errorf("expected status done, got %q", got.Status)
	}
	if got.Report == nil || len(got.Report.Statements) != 1 {
		t.Fatalf("expected a populated report, got %+v", got.Report)
	}
}

func TestSubmitRunRejectsEmptyStatementList(t *testing.T) {
	h := NewHandler(liveprogress.NewRegistry(), func(*liveprogress.Run, []statementsource.Statement, func(*report.Report, error)) {})
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader([]byte(`{"statements":[]}`)))
	rec := httptest.NewRecorder()
	h.HandleSubmitRun(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an empty statement list, got %d", rec.Code)
	}
}

func TestGetRunNotFound(t *testing.T) {
	h := NewHandler(liveprogress.NewRegistry(), nil)
	router := chi.NewRouter()
	router.Get("/api/runs/{runID}", h.HandleGetRun)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
