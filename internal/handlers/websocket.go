package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

const (
	statusPushInterval = time.Second
	writeWait          = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// StatusStreamHandler pushes a job's status over a websocket until the job is terminal
type StatusStreamHandler struct {
	jobs     JobService
	interval time.Duration
	logger   arbor.ILogger
}

func NewStatusStreamHandler(service JobService, logger arbor.ILogger) *StatusStreamHandler {
	return &StatusStreamHandler{
		jobs:     service,
		interval: statusPushInterval,
		logger:   logger,
	}
}

// WithInterval overrides the push interval
func (h *StatusStreamHandler) WithInterval(d time.Duration) *StatusStreamHandler {
	h.interval = d
	return h
}

// HandleWebSocket serves GET /ws/status/{jobId}
func (h *StatusStreamHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	jobID := PathID(r, "/ws/status/")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	// Unknown ids are rejected before the upgrade so the client sees a plain 404
	if _, err := h.jobs.Status(r.Context(), jobID); err != nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.logger.Debug().Str("job_id", jobID).Msg("Status stream connected")

	// Reader detects client disconnects
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn().Err(err).Str("job_id", jobID).Msg("WebSocket error")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		view, err := h.jobs.Status(r.Context(), jobID)
		if err != nil {
			h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Job vanished during status stream")
			h.close(conn, websocket.CloseGoingAway, "job not found")
			return
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(view); err != nil {
			h.logger.Debug().Err(err).Str("job_id", jobID).Msg("Status stream write failed")
			return
		}

		if view.Status.IsTerminal() {
			h.close(conn, websocket.CloseNormalClosure, string(view.Status))
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			h.logger.Debug().Str("job_id", jobID).Msg("Status stream disconnected")
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *StatusStreamHandler) close(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
