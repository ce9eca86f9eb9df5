package web

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hpungsan/scout/internal/chat"
	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/results"
)

// Handlers contains HTTP route handlers for the dashboard.
type Handlers struct {
	deps    Deps
	version string
}

// HandleStatus handles GET /status: the phase of every mode.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":       h.version,
		"modes":         h.deps.Orchestrator.Status(),
		"chat_unlocked": h.deps.Chat.Unlocked(),
	})
}

// HandleResults handles GET /results/{mode}. The optional limit query
// parameter caps the number of records returned.
func (h *Handlers) HandleResults(w http.ResponseWriter, r *http.Request) {
	mode, err := results.ParseMode(r.PathValue("mode"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	records, ok := h.deps.Results.Get(mode)
	if !ok {
		h.writeError(w, errors.NewNoData(string(mode)))
		return
	}
	total := len(records)
	if limit := parseIntParam(r, "limit", 0); limit > 0 && limit < total {
		records = records[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":     mode,
		"total":    total,
		"returned": len(records),
		"records":  records,
	})
}

// HandleTranscript handles GET /transcript: the chat log as an HTML page.
func (h *Handlers) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := chat.RenderHTML(w, "Chat transcript", h.deps.Chat.Transcript()); err != nil {
		h.deps.Logger.Error("failed to render transcript", zap.Error(err))
	}
}

// writeError renders err as a JSON error body. Internal details are not exposed.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	var sErr *errors.ScoutError
	if !stderrors.As(err, &sErr) {
		h.deps.Logger.Error("dashboard request failed", zap.Error(err))
		sErr = errors.NewInternal(err)
	}

	status := sErr.Status
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	message := sErr.Message
	if sErr.Code == errors.ErrInternal {
		message = "an internal error occurred"
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    string(sErr.Code),
			"message": message,
			"status":  status,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
