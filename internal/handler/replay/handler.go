package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zixuanli/edge-sim/backend/internal/config"
	"github.com/zixuanli/edge-sim/backend/internal/model/job"
	"github.com/zixuanli/edge-sim/backend/internal/model/persona"
	replayservice "github.com/zixuanli/edge-sim/backend/internal/service/replay"
	"github.com/zixuanli/edge-sim/backend/internal/store"
	"github.com/zixuanli/edge-sim/backend/pkg/utils"
)

// Handler triggers replay/postmortem jobs and serves their status.
type Handler struct {
	executor *replayservice.Executor
	personas persona.Store
	cfg      config.ReplayConfig
	now      func() time.Time
}

// New creates the replay handler.
func New(executor *replayservice.Executor, personas persona.Store, cfg config.ReplayConfig) *Handler {
	return &Handler{
		executor: executor,
		personas: personas,
		cfg:      cfg,
		now:      time.Now,
	}
}

// RegisterRoutes registers replay routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/replay", h.handleCreate)
	r.Get("/replay/{jobID}", h.handleStatus)
}

type createRequest struct {
	SessionID string   `json:"sessionId"`
	Persona   string   `json:"persona"`
	Message   string   `json:"message"`
	Mode      job.Mode `json:"mode"`
}

// handleCreate starts a job and polls inline for a bounded window, returning
// the rendered report when the job finishes in time and a still-processing
// notice (with the job id for later re-polling) when it does not.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload createRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.SessionID == "" || payload.Message == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId and message are required")
		return
	}
	if !payload.Mode.Valid() {
		utils.RespondError(w, http.StatusBadRequest, "mode must be replay or postmortem")
		return
	}
	if _, ok := h.personas.FindByID(persona.ID(payload.Persona)); !ok {
		utils.RespondError(w, http.StatusBadRequest, "persona not found")
		return
	}

	jobID := buildJobID(payload.SessionID, payload.Mode, h.now())
	params := job.Params{
		SessionID:   payload.SessionID,
		Persona:     payload.Persona,
		UserMessage: payload.Message,
		Mode:        payload.Mode,
	}

	if err := h.executor.Create(r.Context(), jobID, params); err != nil {
		if errors.Is(err, store.ErrDuplicateJob) {
			utils.RespondError(w, http.StatusConflict, "job already exists")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	state, finished := h.poll(r, jobID)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	switch {
	case finished && state.Status == job.StatusComplete && state.Output != nil:
		fmt.Fprint(w, RenderReport(*state.Output))
	case finished && state.Status == job.StatusErrored:
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Error: analysis failed\n\nDetails: %s\n", state.Error)
	default:
		fmt.Fprintf(w, "Analysis is still processing...\n\nPlease try again in a few seconds.\nJob ID: %s\n", jobID)
	}
}

// poll checks status on a fixed interval up to the configured attempt count.
// Hitting the bound is not a failure; the job keeps running.
func (h *Handler) poll(r *http.Request, jobID string) (job.State, bool) {
	var state job.State
	for attempt := 0; attempt < h.cfg.PollAttempts; attempt++ {
		var err error
		state, err = h.executor.Status(r.Context(), jobID)
		if err == nil && state.Status.Terminal() {
			return state, true
		}

		select {
		case <-r.Context().Done():
			return state, false
		case <-time.After(h.cfg.PollInterval):
		}
	}
	return state, false
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	state, err := h.executor.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			utils.RespondError(w, http.StatusNotFound, "job not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, state)
}

// RenderReport formats a completed job output as the plain-text report.
func RenderReport(out job.Output) string {
	var b strings.Builder

	b.WriteString(out.Title + "\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	b.WriteString("ANALYSIS\n")
	b.WriteString(strings.Repeat("-", 50) + "\n")
	b.WriteString(out.Analysis + "\n\n")

	b.WriteString("RESULT\n")
	b.WriteString(strings.Repeat("-", 50) + "\n")
	b.WriteString(out.Result + "\n")

	return b.String()
}

// buildJobID derives a stable, url-safe job id:
// eps-<session>-<mode>-<timestamp>, restricted to [A-Za-z0-9-].
func buildJobID(sessionID string, mode job.Mode, now time.Time) string {
	raw := fmt.Sprintf("eps-%s-%s-%d", sessionID, mode, now.UnixMilli())

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
