package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"sjsage522/dealalert/config"
	"sjsage522/dealalert/logger"
	"sjsage522/dealalert/services/worker"
)

// maxBodyBytes caps config request bodies
const maxBodyBytes = 64 << 10

// StatusProvider is implemented by the worker
type StatusProvider interface {
	Status() worker.Status
}

// EntryCounter reports how many fingerprints are tracked
type EntryCounter interface {
	Len() int
}

// StatusResponse is served by /status and /health
type StatusResponse struct {
	Status       string               `json:"status"`
	Timestamp    string               `json:"timestamp"`
	Worker       *worker.Status       `json:"worker,omitempty"`
	DedupEntries int                  `json:"dedupEntries"`
	Config       config.RuntimeConfig `json:"config"`
}

// Handlers serves the health and runtime config endpoints
type Handlers struct {
	store  *config.RuntimeStore
	worker StatusProvider
	dedup  EntryCounter
	now    func() time.Time
	log    *logger.Logger
}

// NewHandlers creates the handlers. workerStatus and dedup may be nil.
func NewHandlers(store *config.RuntimeStore, workerStatus StatusProvider, dedup EntryCounter) *Handlers {
	return &Handlers{
		store:  store,
		worker: workerStatus,
		dedup:  dedup,
		now:    time.Now,
		log:    logger.ForAPI(),
	}
}

// Status reports liveness and the active configuration
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:    "UP",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Config:    h.store.Snapshot(),
	}
	if h.worker != nil {
		status := h.worker.Status()
		resp.Worker = &status
	}
	if h.dedup != nil {
		resp.DedupEntries = h.dedup.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetConfig returns the current runtime configuration
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.store.Snapshot()
	writeJSON(w, http.StatusOK, config.Result{Success: true, Message: "current configuration", Config: &cfg})
}

type updateRequest struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// UpdateConfig applies {key, value}
func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	h.writeResult(w, h.store.Update(req.Key, req.Value))
}

// UpdateConfigKey applies {value} to the key in the path
func (h *Handlers) UpdateConfigKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req struct {
		Value interface{} `json:"value"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	h.writeResult(w, h.store.Update(key, req.Value))
}

// UpdateConfigBatch applies every key of the body
func (h *Handlers) UpdateConfigBatch(w http.ResponseWriter, r *http.Request) {
	var updates map[string]interface{}
	if !h.decode(w, r, &updates) {
		return
	}
	if len(updates) == 0 {
		writeError(w, http.StatusBadRequest, "no updates provided")
		return
	}
	h.writeResult(w, h.store.UpdateBatch(updates))
}

// ResetConfig restores the startup configuration
func (h *Handlers) ResetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.store.Reset()
	writeJSON(w, http.StatusOK, config.Result{
		Success: true,
		Message: "Configuration reset to defaults",
		Config:  &cfg,
	})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected request body")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handlers) writeResult(w http.ResponseWriter, result config.Result) {
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ForAPI().Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, config.Result{Success: false, Message: message})
}
