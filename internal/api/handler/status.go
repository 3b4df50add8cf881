package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Aptos-Scan/aptos-indexer/internal/worker"
	"go.uber.org/zap"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Processor          string             `json:"processor"`
	LastSuccessVersion *uint64            `json:"last_success_version"`
	LastUpdated        *time.Time         `json:"last_updated,omitempty"`
	Queue              *worker.QueueStats `json:"queue,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleStatus reports the checkpoint of this processor and the queue backlog.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Status.GetStatus(r.Context(), h.ProcessorName)
	if err != nil {
		h.Logger.Error("failed to read processor status", zap.String("processor", h.ProcessorName), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := StatusResponse{Processor: h.ProcessorName}
	if status != nil {
		resp.LastSuccessVersion = &status.LastSuccessVersion
		resp.LastUpdated = &status.LastUpdated
	}

	if h.Queue != nil {
		stats, err := h.Queue.QueueStats(r.Context())
		if err != nil {
			h.Logger.Warn("failed to read queue stats", zap.Error(err))
		} else {
			resp.Queue = &stats
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleGaps runs a gap scan between the start version and the ledger head.
func (h *Handler) HandleGaps(w http.ResponseWriter, r *http.Request) {
	if h.Gaps == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "gap checks are disabled"})
		return
	}

	stats, err := h.Gaps.CheckHealth(r.Context())
	if err != nil {
		h.Logger.Error("gap check failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]uint64{
		"total_expected": stats.TotalExpected,
		"total_indexed":  stats.TotalIndexed,
		"total_missing":  stats.TotalMissing,
		"first_missing":  stats.FirstMissing,
		"last_missing":   stats.LastMissing,
	})
}
