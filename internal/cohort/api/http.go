package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rwdlab/rwdsim/internal/cohort/domain"
	"github.com/rwdlab/rwdsim/internal/cohort/infrastructure"
	"github.com/rwdlab/rwdsim/internal/pipeline"
	"github.com/rwdlab/rwdsim/internal/report"
	"github.com/rwdlab/rwdsim/internal/shared/errors"
	"github.com/rwdlab/rwdsim/internal/shared/events"
	"github.com/rwdlab/rwdsim/internal/shared/types"
)

// Publisher pushes a finished table to the research warehouse.
type Publisher interface {
	Publish(ctx context.Context, runID types.ID, table domain.Table) error
}

// Handler provides HTTP handlers for simulation runs
type Handler struct {
	repo      domain.Repository
	runner    *pipeline.Runner
	bus       events.Bus
	publisher Publisher
}

// NewHandler creates a new run handler. publisher may be nil when no
// warehouse is configured.
func NewHandler(repo domain.Repository, runner *pipeline.Runner, bus events.Bus, publisher Publisher) *Handler {
	return &Handler{repo: repo, runner: runner, bus: bus, publisher: publisher}
}

// Routes registers the run routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListRuns)
	r.Post("/", h.CreateRun)

	r.Route("/{runID}", func(r chi.Router) {
		r.Get("/", h.GetRun)
		r.Get("/table", h.GetTable)
		r.Get("/report", h.GetReport)
		r.Post("/publish", h.PublishRun)
	})

	return r
}

// --- Request/Response types ---

type CreateRunRequest struct {
	Name   string            `json:"name"`
	Params *domain.SimParams `json:"params"`
}

// --- Handlers ---

func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.Params == nil {
		writeError(w, errors.BadRequest("params are required"))
		return
	}
	if req.Name == "" {
		req.Name = "run"
	}

	h.publish(r.Context(), events.EventRunStarted, map[string]any{
		"name":        req.Name,
		"cohort_size": req.Params.CohortSize,
	})

	result, err := h.runner.Execute(req.Name, req.Params)
	if err != nil {
		h.publish(r.Context(), events.EventRunFailed, map[string]any{
			"name":  req.Name,
			"error": err.Error(),
		})
		writeError(w, err)
		return
	}

	if err := h.repo.SaveRun(r.Context(), result.Run, result.Table); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r.Context(), events.EventRunCompleted, map[string]any{
		"run_id":           result.Run.ID,
		"name":             result.Run.Name,
		"cycles":           result.Run.Cycles,
		"fully_abstracted": result.Run.FullyAbstracted,
		"violations":       len(result.Violations),
	})

	writeJSON(w, http.StatusCreated, result.Run)
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, errors.BadRequest("invalid limit"))
			return
		}
		limit = n
	}

	runs, err := h.repo.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  runs,
		"total": len(runs),
	})
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid run ID"))
		return
	}

	run, err := h.repo.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid run ID"))
		return
	}

	table, err := h.repo.GetTable(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="cohort.csv"`)
		if err := infrastructure.WriteTable(w, table); err != nil {
			writeError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  table,
		"total": len(table),
	})
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid run ID"))
		return
	}

	run, err := h.repo.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	table, err := h.repo.GetTable(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	// Default report date is far enough past the study for the data to have
	// settled.
	reportDate := run.Params.StudyStart.AddDate(15, 0, 0)
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, time.UTC)
		if err != nil {
			writeError(w, errors.BadRequest("invalid date, want YYYY-MM-DD"))
			return
		}
		reportDate = parsed
	}

	drugs := make(map[string]bool)
	name := "Whole Cohort"
	if drug := r.URL.Query().Get("drug"); drug != "" {
		drugs[drug] = true
		name = drug
	} else {
		for _, d := range run.Params.Drugs {
			drugs[d.Name] = true
		}
	}

	writeJSON(w, http.StatusOK, report.ForDrugs(table, reportDate, drugs, name))
}

func (h *Handler) PublishRun(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		writeError(w, errors.Internal("no warehouse configured"))
		return
	}

	id, err := types.ParseID(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid run ID"))
		return
	}

	table, err := h.repo.GetTable(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.publisher.Publish(r.Context(), id, table); err != nil {
		writeError(w, errors.Wrap(err, "failed to publish cohort"))
		return
	}

	h.publish(r.Context(), events.EventCohortPublished, map[string]any{
		"run_id":   id,
		"patients": len(table),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   id,
		"patients": len(table),
		"status":   "published",
	})
}

func (h *Handler) publish(ctx context.Context, eventType string, data map[string]any) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(ctx, events.NewEvent(eventType, "cohort", data))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
