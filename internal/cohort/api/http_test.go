package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
	"github.com/rwdlab/rwdsim/internal/cohort/infrastructure"
	"github.com/rwdlab/rwdsim/internal/pipeline"
	"github.com/rwdlab/rwdsim/internal/shared/events"
	"github.com/rwdlab/rwdsim/internal/shared/types"
)

type fakePublisher struct {
	calls int
	err   error
}

func (f *fakePublisher) Publish(ctx context.Context, runID types.ID, table domain.Table) error {
	f.calls++
	return f.err
}

func newTestServer(t *testing.T, publisher Publisher) (*httptest.Server, domain.Repository) {
	t.Helper()
	repo := infrastructure.NewMemoryRepository()
	runner := pipeline.NewRunner(zerolog.Nop())
	h := NewHandler(repo, runner, events.NoopBus{}, publisher)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, repo
}

func testParamsJSON() string {
	return `{
		"observation_start": "2020-01-01T00:00:00Z",
		"observation_end": "2020-12-31T00:00:00Z",
		"study_start": "2020-01-01T00:00:00Z",
		"cohort_size": 20,
		"export_cadence_months": 1,
		"patients_abstracted_per_month": 1000,
		"death_recording_latency_days": {"min": 0, "max": 14},
		"diagnosis_abstraction_latency_days": {"min": 0, "max": 10},
		"death_abstraction_latency_days": {"min": 0, "max": 10},
		"seed": 42,
		"drugs": [{
			"name": "drug-a",
			"weight": 1,
			"survival_curve": {"1": 0.8, "5": 0.2},
			"start_offset_days": {"min": -30, "max": 60},
			"abstraction_latency_days": {"min": 0, "max": 21}
		}]
	}`
}

func createRun(t *testing.T, srv *httptest.Server) *domain.Run {
	t.Helper()
	body := fmt.Sprintf(`{"name": "test-run", "params": %s}`, testParamsJSON())
	resp, err := http.Post(srv.URL+"/", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create run status = %d", resp.StatusCode)
	}

	var run domain.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatal(err)
	}
	return &run
}

func TestCreateRun(t *testing.T) {
	srv, repo := newTestServer(t, nil)

	run := createRun(t, srv)
	if run.Name != "test-run" {
		t.Errorf("name = %q", run.Name)
	}
	if run.Seed != 42 {
		t.Errorf("seed = %d, want 42", run.Seed)
	}
	if !run.FullyAbstracted {
		t.Error("ample capacity should fully abstract the cohort")
	}

	table, err := repo.GetTable(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(table) != 20 {
		t.Errorf("stored table has %d rows, want 20", len(table))
	}
}

func TestCreateRunRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"missing params", `{"name": "x"}`, http.StatusBadRequest},
		{"invalid params", `{"params": {"cohort_size": -1}}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestListRuns(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	createRun(t, srv)
	createRun(t, srv)

	resp, err := http.Get(srv.URL + "/?limit=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out struct {
		Data  []domain.Run `json:"data"`
		Total int          `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 1 || len(out.Data) != 1 {
		t.Errorf("limit=1 returned %d runs", out.Total)
	}
}

func TestGetRun(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	created := createRun(t, srv)

	resp, err := http.Get(srv.URL + "/" + created.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var run domain.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatal(err)
	}
	if run.ID != created.ID {
		t.Errorf("ID = %s, want %s", run.ID, created.ID)
	}
}

func TestGetRunErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/not-a-uuid")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/" + types.NewID().String())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", resp.StatusCode)
	}
}

func TestGetTable(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	run := createRun(t, srv)

	t.Run("json", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/" + run.ID.String() + "/table")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}

		var out struct {
			Total int `json:"total"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.Total != 20 {
			t.Errorf("total = %d, want 20", out.Total)
		}
	})

	t.Run("csv", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/" + run.ID.String() + "/table?format=csv")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
			t.Errorf("Content-Type = %q", ct)
		}

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 21 {
			t.Errorf("csv has %d lines, want header plus 20 rows", len(lines))
		}
		if !strings.HasPrefix(lines[0], "patient_id,drug,diagnosis_date") {
			t.Errorf("unexpected header: %s", lines[0])
		}
	})
}

func TestGetReport(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	run := createRun(t, srv)

	resp, err := http.Get(srv.URL + "/" + run.ID.String() + "/report")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var rep struct {
		Name        string    `json:"name"`
		ReportDate  time.Time `json:"report_date"`
		NumPatients int       `json:"num_patients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.Name != "Whole Cohort" {
		t.Errorf("name = %q", rep.Name)
	}
	// The default report date sits well past the last abstraction.
	if rep.NumPatients != 20 {
		t.Errorf("num_patients = %d, want 20", rep.NumPatients)
	}

	t.Run("bad date", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/" + run.ID.String() + "/report?date=tomorrow")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("single drug", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/" + run.ID.String() + "/report?drug=drug-a&date=2035-01-01")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var rep struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
			t.Fatal(err)
		}
		if rep.Name != "drug-a" {
			t.Errorf("name = %q", rep.Name)
		}
	})
}

func TestPublishRun(t *testing.T) {
	publisher := &fakePublisher{}
	srv, _ := newTestServer(t, publisher)
	run := createRun(t, srv)

	resp, err := http.Post(srv.URL+"/"+run.ID.String()+"/publish", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if publisher.calls != 1 {
		t.Errorf("publisher called %d times, want 1", publisher.calls)
	}

	var out struct {
		Patients int    `json:"patients"`
		Status   string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Patients != 20 || out.Status != "published" {
		t.Errorf("response = %+v", out)
	}
}

func TestPublishRunWithoutWarehouse(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	run := createRun(t, srv)

	resp, err := http.Post(srv.URL+"/"+run.ID.String()+"/publish", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}
