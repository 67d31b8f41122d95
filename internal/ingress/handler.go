package ingress

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"idgateway/internal/pool"
	"idgateway/internal/queuestore"
	"idgateway/internal/shared/logger"
)

// Handlers implements the interface-only Ingress Adapter from spec.md §4.5.
type Handlers struct {
	queue     *queuestore.Store
	pool      *pool.Pool
	startedAt time.Time
}

func NewHandlers(queue *queuestore.Store, p *pool.Pool) *Handlers {
	return &Handlers{queue: queue, pool: p, startedAt: time.Now()}
}

type addSteamIDBody struct {
	SteamID  string `json:"steam_id"`
	Username string `json:"username"`
}

// AddSteamID implements POST/GET /api/add-steam-id. It validates the
// 17-digit id and non-empty submitter before calling queue.Enqueue, then
// maps the enqueue outcome onto the ingress response vocabulary from
// spec.md §4.5.
func (h *Handlers) AddSteamID(w http.ResponseWriter, r *http.Request) {
	var steamID, username string

	if r.Method == http.MethodPost {
		var body addSteamIDBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]interface{}{"status": "invalid_input"})
			return
		}
		steamID, username = body.SteamID, body.Username
	} else {
		steamID = r.URL.Query().Get("steam_id")
		username = r.URL.Query().Get("username")
	}

	if username == "" || !queuestore.ValidAccountID(steamID) {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{"status": "invalid_input"})
		return
	}

	outcome, err := h.queue.Enqueue(r.Context(), steamID, username)
	if err != nil {
		if errors.Is(err, queuestore.ErrInvalidInput) {
			respondJSON(w, http.StatusBadRequest, map[string]interface{}{"status": "invalid_input"})
			return
		}
		logger.WithComponent("ingress").Error().Err(err).Str("account_id", steamID).Msg("enqueue failed")
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{"status": "internal_error"})
		return
	}

	switch outcome {
	case queuestore.Added:
		respondJSON(w, http.StatusOK, map[string]interface{}{"status": "added", "added": true})
	case queuestore.AlreadyQueued:
		respondJSON(w, http.StatusOK, map[string]interface{}{"status": "already_in_queue"})
	case queuestore.DuplicateInRemote:
		respondJSON(w, http.StatusOK, map[string]interface{}{"status": "already_in_remote", "already_exists": true})
	}
}

// Health implements GET /api/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	st := h.pool.Status()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"connections": map[string]interface{}{
			"total":           st.Total,
			"available":       st.Available,
			"all_in_cooldown": st.AllInCooldown,
		},
		"uptime": time.Since(h.startedAt).String(),
	})
}
