package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pulseboard/internal/engine"
	"pulseboard/internal/handlers"
	"pulseboard/internal/models"
	"pulseboard/internal/store"
)

func ruleFixture(id, condition string) models.AlertRule {
	return models.AlertRule{
		ID:              id,
		Condition:       condition,
		Level:           models.LevelHigh,
		CooldownSeconds: 300,
		Enabled:         true,
	}
}

func newTestServer(t *testing.T) (*engine.Engine, *store.Store, *http.ServeMux) {
	t.Helper()
	st := store.New()
	eng := engine.New(st)
	t.Cleanup(eng.Close)

	mux := http.NewServeMux()
	mux.Handle("/ingest", handlers.NewIngestHandler(handlers.IngestConfig{Engine: eng}))
	handlers.NewAdminHandler(eng, st, nil).Register(mux)
	return eng, st, mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestIngestSingleReading(t *testing.T) {
	_, st, mux := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/ingest",
		`{"source_id": "btc", "value": 50000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp handlers.IngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Accepted != 1 || resp.Rejected != 0 {
		t.Errorf("response = %+v", resp)
	}

	if v, ok := st.Get("btc"); !ok || v != 50000 {
		t.Errorf("store btc = %v, %v", v, ok)
	}
}

func TestIngestBatch(t *testing.T) {
	_, st, mux := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/ingest",
		`{"readings": [{"source_id": "btc", "value": 50000}, {"source_id": "eth", "value": 3000}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp handlers.IngestResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Accepted != 2 {
		t.Errorf("accepted = %d, want 2", resp.Accepted)
	}
	if v, _ := st.Get("eth"); v != 3000 {
		t.Errorf("eth = %v", v)
	}
}

func TestIngestPartialBatch(t *testing.T) {
	_, _, mux := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/ingest",
		`[{"source_id": "btc", "value": 1}, {"source_id": "", "value": 2}, {"source_id": "eth"}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, partial batches are accepted", rec.Code)
	}

	var resp handlers.IngestResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Accepted != 1 || resp.Rejected != 2 || len(resp.Errors) != 2 {
		t.Errorf("response = %+v", resp)
	}
	if resp.Success {
		t.Error("success should be false with rejected readings")
	}
}

func TestIngestRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"empty object", http.MethodPost, `{}`, http.StatusBadRequest},
		{"garbage", http.MethodPost, `not json`, http.StatusBadRequest},
		{"all invalid", http.MethodPost, `[{"value": 1}]`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, mux := newTestServer(t)
			rec := doJSON(t, mux, tt.method, "/ingest", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestIngestReturnsFiredAlerts(t *testing.T) {
	eng, _, mux := newTestServer(t)

	if err := eng.RegisterRule(ruleFixture("btc-high", "${webhook:btc} > 40000")); err != nil {
		t.Fatalf("register rule: %v", err)
	}

	rec := doJSON(t, mux, http.MethodPost, "/ingest",
		`{"source_id": "btc", "value": 50000}`)

	var resp handlers.IngestResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Fired) != 1 || resp.Fired[0].RuleID != "btc-high" {
		t.Fatalf("fired = %+v", resp.Fired)
	}
}

func TestMonitorCRUD(t *testing.T) {
	_, _, mux := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/monitors",
		`{"id": "spread", "formula": "${webhook:btc} - ${webhook:eth}", "enabled": true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/monitors", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "spread") {
		t.Fatalf("list status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodPut, "/api/monitors/spread",
		`{"formula": "${webhook:btc} * 2", "enabled": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodDelete, "/api/monitors/spread", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodDelete, "/api/monitors/spread", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestMonitorRegistrationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing formula", `{"id": "m"}`, http.StatusBadRequest},
		{"parse error", `{"id": "m", "formula": "1 +"}`, http.StatusUnprocessableEntity},
		{"self cycle", `{"id": "m", "formula": "${monitor:m} + 1"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, mux := newTestServer(t)
			rec := doJSON(t, mux, http.MethodPost, "/api/monitors", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRuleEndpoints(t *testing.T) {
	_, _, mux := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/rules",
		`{"id": "r1", "condition": "${webhook:btc} > 100", "level": "high", "enabled": true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/rules",
		`{"id": "r2", "condition": "${webhook:btc} >", "level": "low"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad condition status = %d", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/rules", "")
	var statuses []engine.RuleStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Rule.ID != "r1" || statuses[0].Active {
		t.Errorf("statuses = %+v", statuses)
	}

	rec = doJSON(t, mux, http.MethodDelete, "/api/rules/r1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestSourcesAndRecompute(t *testing.T) {
	_, _, mux := newTestServer(t)

	doJSON(t, mux, http.MethodPost, "/ingest", `{"source_id": "btc", "value": 7}`)
	doJSON(t, mux, http.MethodPost, "/api/monitors",
		`{"id": "double", "formula": "${webhook:btc} * 2", "enabled": true}`)

	rec := doJSON(t, mux, http.MethodGet, "/api/sources", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("sources status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"btc"`) || !strings.Contains(body, `"double"`) {
		t.Errorf("sources body = %s", body)
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/recompute", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("recompute status = %d", rec.Code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	_, _, mux := newTestServer(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/alerts/history", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when history is disabled", rec.Code)
	}
}
