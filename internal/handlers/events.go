package handlers

import (
	"net/http"
	"slices"
	"time"

	"github.com/BerylCAtieno/legal-doc-analyzer/internal/models"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/services"
	"github.com/BerylCAtieno/legal-doc-analyzer/internal/utils"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Server -> client message types on the progress socket.
const (
	MsgTypeProgress = "progress"
	MsgTypeComplete = "complete"
	MsgTypeError    = "error"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ProgressMessage is one frame on the progress socket.
type ProgressMessage struct {
	Type      string      `json:"type"`
	Job       *models.Job `json:"job,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// EventsHandler streams job snapshots over WebSocket.
type EventsHandler struct {
	service  services.AnalysisService
	logger   *utils.Logger
	upgrader websocket.Upgrader
}

func NewEventsHandler(service services.AnalysisService, allowedOrigins []string, logger *utils.Logger) *EventsHandler {
	return &EventsHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// StreamJob sends every job snapshot until the job reaches a terminal state.
func (h *EventsHandler) StreamJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !utils.IsValidID(id) {
		respondError(w, h.logger, utils.NewBadRequestError("Invalid job ID"))
		return
	}

	// Resolve the job before upgrading so unknown ids get a plain 404.
	updates, stop, err := h.service.Subscribe(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	defer stop()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer ws.Close()

	// The client never sends data; reading surfaces its close frame.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		ws.SetReadLimit(512)
		ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("WebSocket read error", "job_id", id, "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case job, ok := <-updates:
			if !ok {
				h.close(ws, websocket.CloseNormalClosure, "job finished")
				return
			}
			if err := h.send(ws, messageFor(job)); err != nil {
				h.logger.Debug("WebSocket write failed", "job_id", id, "error", err)
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func messageFor(job *models.Job) *ProgressMessage {
	msg := &ProgressMessage{
		Type:      MsgTypeProgress,
		Job:       job,
		Timestamp: time.Now().UnixMilli(),
	}
	switch job.Status {
	case models.JobStatusComplete:
		msg.Type = MsgTypeComplete
	case models.JobStatusFailed, models.JobStatusCancelled:
		msg.Type = MsgTypeError
		msg.Message = job.Error
	}
	return msg
}

func (h *EventsHandler) send(ws *websocket.Conn, msg *ProgressMessage) error {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteJSON(msg)
}

func (h *EventsHandler) close(ws *websocket.Conn, code int, text string) {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}
