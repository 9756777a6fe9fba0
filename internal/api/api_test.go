package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/opensource-care/kestrel/internal/catalog"
	"github.com/opensource-care/kestrel/internal/domain"
	"github.com/opensource-care/kestrel/internal/evaluate"
	"github.com/opensource-care/kestrel/internal/matrix"
	"github.com/opensource-care/kestrel/internal/repository"
	"github.com/opensource-care/kestrel/internal/scoring"
	"github.com/opensource-care/kestrel/internal/snapshot"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine, err := scoring.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	catalogSvc := catalog.NewService(repo)
	store := matrix.NewStore(repo, matrix.NewValidator(engine))
	activation := matrix.NewActivationManager(repo, nil)
	recorder := snapshot.NewRecorder(repo, nil, nil)
	evaluator := evaluate.NewService(catalogSvc, store, engine, recorder)

	cfg := domain.ServerConfig{Host: "127.0.0.1", Port: 0}
	return NewServer(cfg, repo, nil, nil, catalogSvc, store, activation, evaluator, recorder, "test")
}

func doRequest(t *testing.T, srv *Server, method, path, tenantID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if tenantID != "" {
		req.Header.Set(TenantIDHeader, tenantID)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", resp["status"])
	}
}

func TestTenantHeaderRequired(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/indicators", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without tenant header, got %d", rec.Code)
	}
}

func TestIndicatorLifecycle(t *testing.T) {
	srv := newTestServer(t)
	tenant := "tenant-001"

	t.Run("Create", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/indicators", tenant, IndicatorRequest{
			ID:       "IND_BRUISES",
			Label:    "Unexplained bruises",
			Category: "BODY",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("Update", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPut, "/indicators/IND_BRUISES", tenant, IndicatorRequest{
			Label:     "Unexplained bruising",
			Category:  "BODY",
			SortOrder: 5,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var ind domain.Indicator
		decodeBody(t, rec, &ind)
		if ind.Label != "Unexplained bruising" || ind.SortOrder != 5 {
			t.Errorf("update not applied: %+v", ind)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPut, "/indicators/IND_NOPE", tenant, IndicatorRequest{
			Label: "x",
		})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("Disable", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/indicators/IND_BRUISES/disable", tenant, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		// Disabled indicators are hidden by default
		rec = doRequest(t, srv, http.MethodGet, "/indicators", tenant, nil)
		var list struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &list)
		if list.Count != 0 {
			t.Errorf("expected 0 enabled indicators, got %d", list.Count)
		}

		rec = doRequest(t, srv, http.MethodGet, "/indicators?includeDisabled=true", tenant, nil)
		decodeBody(t, rec, &list)
		if list.Count != 1 {
			t.Errorf("expected 1 indicator with disabled included, got %d", list.Count)
		}
	})
}

func TestConfigLifecycle(t *testing.T) {
	srv := newTestServer(t)
	tenant := "tenant-001"

	doRequest(t, srv, http.MethodPost, "/indicators", tenant, IndicatorRequest{
		ID: "IND_A", Label: "A", Category: "BODY",
	})

	document := domain.ConfigDocument{
		CategoryWeights: map[string]float64{"BODY": 3},
		Thresholds:      domain.Thresholds{Green: 0, Yellow: 5, Red: 10},
	}

	var configID string

	t.Run("Create", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/configs", tenant, CreateConfigRequest{
			Version:  "v1",
			Document: document,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var cfg domain.MatrixConfig
		decodeBody(t, rec, &cfg)
		if cfg.Active {
			t.Error("new config must not be active")
		}
		configID = cfg.ID
	})

	t.Run("DuplicateVersion", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/configs", tenant, CreateConfigRequest{
			Version:  "v1",
			Document: document,
		})
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("UnknownIndicatorRejected", func(t *testing.T) {
		bad := document
		bad.IndicatorWeights = map[string]float64{"IND_GHOST": 2}
		rec := doRequest(t, srv, http.MethodPost, "/configs", tenant, CreateConfigRequest{
			Version:  "v2",
			Document: bad,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("NoActiveConfigYet", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/configs/active", tenant, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("Activate", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, fmt.Sprintf("/configs/%s/activate", configID), tenant, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = doRequest(t, srv, http.MethodGet, "/configs/active", tenant, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var cfg domain.MatrixConfig
		decodeBody(t, rec, &cfg)
		if cfg.ID != configID || !cfg.Active {
			t.Errorf("unexpected active config: %+v", cfg)
		}
	})

	t.Run("ActivateMissing", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/configs/no-such-id/activate", tenant, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("History", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/configs", tenant, nil)
		var list struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &list)
		if list.Count != 1 {
			t.Errorf("expected 1 config, got %d", list.Count)
		}
	})
}

func TestEvaluateFlow(t *testing.T) {
	srv := newTestServer(t)
	tenant := "tenant-001"

	sev := 2
	doRequest(t, srv, http.MethodPost, "/indicators", tenant, IndicatorRequest{
		ID: "IND_A", Label: "A", Category: "BODY", DefaultSeverity: &sev,
	})

	rec := doRequest(t, srv, http.MethodPost, "/configs", tenant, CreateConfigRequest{
		Version: "v1",
		Document: domain.ConfigDocument{
			CategoryWeights: map[string]float64{"BODY": 3},
			Thresholds:      domain.Thresholds{Green: 0, Yellow: 5, Red: 10},
		},
	})
	var cfg domain.MatrixConfig
	decodeBody(t, rec, &cfg)
	doRequest(t, srv, http.MethodPost, fmt.Sprintf("/configs/%s/activate", cfg.ID), tenant, nil)

	t.Run("EvaluateWithoutTags", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPost, "/cases/case-001/evaluate", tenant, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp EvaluateResponse
		decodeBody(t, rec, &resp)
		if resp.Snapshot.Result.FinalScore != 0 || resp.Snapshot.Result.TrafficLight != domain.LightGreen {
			t.Errorf("expected zero GREEN, got %+v", resp.Snapshot.Result)
		}
	})

	t.Run("TagAndEvaluate", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPut, "/cases/case-001/tags/IND_A", tenant, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("tagging failed: %d %s", rec.Code, rec.Body.String())
		}

		rec = doRequest(t, srv, http.MethodPost, "/cases/case-001/evaluate", tenant, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp EvaluateResponse
		decodeBody(t, rec, &resp)
		// severity 2 * weight 3 = 6, YELLOW band
		if resp.Snapshot.Result.RawScore != 6 {
			t.Errorf("expected raw score 6, got %v", resp.Snapshot.Result.RawScore)
		}
		if resp.Snapshot.Result.TrafficLight != domain.LightYellow {
			t.Errorf("expected YELLOW, got %s", resp.Snapshot.Result.TrafficLight)
		}
		if resp.Snapshot.ConfigVersion != "v1" {
			t.Errorf("expected config version v1, got %s", resp.Snapshot.ConfigVersion)
		}
	})

	t.Run("TagUnknownIndicator", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodPut, "/cases/case-001/tags/IND_GHOST", tenant, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("SnapshotHistoryAndLatest", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/cases/case-001/snapshots", tenant, nil)
		var list struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &list)
		if list.Count != 2 {
			t.Errorf("expected 2 snapshots, got %d", list.Count)
		}

		rec = doRequest(t, srv, http.MethodGet, "/cases/case-001/snapshots/latest", tenant, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var snap domain.RiskSnapshot
		decodeBody(t, rec, &snap)
		if snap.Result.RawScore != 6 {
			t.Errorf("latest should be second evaluation, got raw %v", snap.Result.RawScore)
		}
	})

	t.Run("LatestForUnknownCase", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodGet, "/cases/never-seen/snapshots/latest", tenant, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("RemoveTag", func(t *testing.T) {
		rec := doRequest(t, srv, http.MethodDelete, "/cases/case-001/tags/IND_A", tenant, nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}

		rec = doRequest(t, srv, http.MethodPost, "/cases/case-001/evaluate", tenant, nil)
		var resp EvaluateResponse
		decodeBody(t, rec, &resp)
		if resp.Snapshot.Result.FinalScore != 0 {
			t.Errorf("expected 0 after untag, got %v", resp.Snapshot.Result.FinalScore)
		}
	})
}

func TestEvaluateWithoutActiveConfig(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/cases/case-001/evaluate", "tenant-x", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 with no active config, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTenantIsolation(t *testing.T) {
	srv := newTestServer(t)

	doRequest(t, srv, http.MethodPost, "/indicators", "tenant-a", IndicatorRequest{
		ID: "IND_A", Label: "A",
	})

	rec := doRequest(t, srv, http.MethodGet, "/indicators", "tenant-b", nil)
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 0 {
		t.Errorf("tenant-b must not see tenant-a indicators, got %d", list.Count)
	}
}
