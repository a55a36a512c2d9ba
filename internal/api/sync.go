package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/stwalsh4118/simulcast/internal/broadcast"
	"github.com/stwalsh4118/simulcast/internal/logger"
	"github.com/stwalsh4118/simulcast/internal/metrics"
)

const (
	// SyncPath is served outside gin: the upgrade needs to hijack the raw
	// connection, which gin's writer refuses once the 101 status is written.
	SyncPath = "/api/sync/ws"

	maxChannelNameLength = 128
)

// SyncHandler relays sync messages between viewing contexts that are not in the
// same process. Each websocket joins a named channel of the server's hub.
type SyncHandler struct {
	hub         *broadcast.Hub
	metrics     *metrics.Metrics
	defaultName string
}

// NewSyncHandler creates a new sync handler instance. m may be nil.
func NewSyncHandler(hub *broadcast.Hub, m *metrics.Metrics, defaultName string) *SyncHandler {
	return &SyncHandler{
		hub:         hub,
		metrics:     m,
		defaultName: defaultName,
	}
}

// ServeHTTP handles GET /api/sync/ws?channel=NAME
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.metrics != nil {
		h.metrics.IncRequests(SyncPath)
	}

	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, ErrorResponse{
			Error:   "method_not_allowed",
			Message: "sync connections must use GET",
		})
		return
	}

	name := h.defaultName
	if q := r.URL.Query(); q.Has("channel") {
		name = strings.TrimSpace(q.Get("channel"))
	}
	if name == "" || len(name) > maxChannelNameLength {
		h.writeError(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_channel",
			Message: "channel must be a non-empty name of at most 128 characters",
		})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		// Accept has already written the HTTP error
		if h.metrics != nil {
			h.metrics.IncErrors()
		}
		logger.Log.Warn().
			Err(err).
			Str("channel", name).
			Msg("Sync websocket upgrade failed")
		return
	}
	defer func() { _ = conn.CloseNow() }()

	endpoint := h.hub.Open(name)
	defer func() { _ = endpoint.Close() }()

	var obs broadcast.Observer
	if h.metrics != nil {
		obs = h.metrics
		h.metrics.SyncConnectionOpened()
		defer h.metrics.SyncConnectionClosed()
	}

	logger.Log.Info().
		Str("channel", name).
		Str("remote_addr", r.RemoteAddr).
		Int("members", h.hub.Count(name)).
		Msg("Sync peer connected")

	if err := broadcast.Bridge(r.Context(), conn, endpoint, obs); err != nil {
		logger.Log.Debug().
			Err(err).
			Str("channel", name).
			Msg("Sync peer connection ended with error")
	}

	logger.Log.Info().
		Str("channel", name).
		Msg("Sync peer disconnected")
}

func (h *SyncHandler) writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	if h.metrics != nil {
		h.metrics.IncErrors()
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// SetupSyncRoutes registers the sync websocket route on mux. Requests for any
// other path should fall through to the gin router mounted at "/".
func SetupSyncRoutes(mux *http.ServeMux, hub *broadcast.Hub, m *metrics.Metrics, defaultName string) {
	mux.Handle(SyncPath, NewSyncHandler(hub, m, defaultName))
}
