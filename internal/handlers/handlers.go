package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"bluegreen-deployment/internal/config"
	"bluegreen-deployment/internal/logger"
	"bluegreen-deployment/internal/models"
	"bluegreen-deployment/internal/newrelic"
	"bluegreen-deployment/internal/orchestrator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Runner starts one deployment attempt end to end.
type Runner interface {
	Run(ctx context.Context, sourcePath string, opts orchestrator.Options) (*models.DeploymentAttempt, error)
}

// LedgerReader is the read side of the deployment ledger.
type LedgerReader interface {
	Last() (*models.DeploymentRecord, error)
	ByAttempt(attemptID string) (*models.DeploymentRecord, error)
	History(limit int) ([]*models.DeploymentRecord, error)
}

// Registry answers which slot currently holds traffic.
type Registry interface {
	CurrentLiveSlot(ctx context.Context) models.Slot
}

type Handler struct {
	config   *config.Config
	runner   Runner
	ledger   LedgerReader
	registry Registry

	// Single active attempt guard: two simultaneous deploys against the
	// same slot pair would corrupt slot state.
	busy atomic.Bool
}

func NewHandler(cfg *config.Config, runner Runner, ledger LedgerReader, registry Registry) *Handler {
	return &Handler{
		config:   cfg,
		runner:   runner,
		ledger:   ledger,
		registry: registry,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// Deploy starts an attempt asynchronously and returns its ID. While an
// attempt is in flight any further deploy request is rejected with 409.
func (h *Handler) Deploy(w http.ResponseWriter, r *http.Request) {
	log := logger.WithModule("handlers")

	var req models.DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SourcePath == "" {
		http.Error(w, "source_path is required", http.StatusBadRequest)
		return
	}

	if !h.busy.CompareAndSwap(false, true) {
		http.Error(w, "A deployment attempt is already in progress", http.StatusConflict)
		return
	}

	attemptID := uuid.New().String()
	opts := orchestrator.Options{
		SkipSwitch: req.SkipSwitch,
		Force:      req.Force,
		Cleanup:    req.Cleanup,
		AttemptID:  attemptID,
	}

	go func() {
		defer h.busy.Store(false)
		// The request context dies with the HTTP response; the attempt
		// must not.
		_, err := h.runner.Run(context.Background(), req.SourcePath, opts)
		if err != nil {
			log.WithField("attempt", attemptID).WithError(err).
				Error("Deployment attempt failed")
		}
		if rec, recErr := h.ledger.ByAttempt(attemptID); recErr == nil && rec != nil {
			newrelic.RecordDeployment(rec)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(models.DeployResponse{
		Status:    "started",
		AttemptID: attemptID,
	})
}

// Status reports one attempt's ledger record plus the current live slot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	attemptID := vars["attempt_id"]

	record, err := h.ledger.ByAttempt(attemptID)
	if err != nil {
		http.Error(w, "Ledger error", http.StatusInternalServerError)
		return
	}

	resp := models.StatusResponse{
		LiveSlot: h.registry.CurrentLiveSlot(r.Context()),
		Record:   record,
	}
	if record == nil {
		if h.busy.Load() {
			resp.Message = "attempt in progress"
		} else {
			http.Error(w, "Attempt not found", http.StatusNotFound)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// LastStatus reports the most recent ledger record and the live slot.
func (h *Handler) LastStatus(w http.ResponseWriter, r *http.Request) {
	record, err := h.ledger.Last()
	if err != nil {
		http.Error(w, "Ledger error", http.StatusInternalServerError)
		return
	}

	resp := models.StatusResponse{
		LiveSlot: h.registry.CurrentLiveSlot(r.Context()),
		Record:   record,
	}
	if record == nil {
		resp.Message = "no deployments on record"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
