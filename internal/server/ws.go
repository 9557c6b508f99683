package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jwhan/csvlingo/internal/constants"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients connect from the upload page served elsewhere.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleJobEvents upgrades to a WebSocket and streams the job's progress
// events as JSON. The optional "since" query parameter replays buffered
// events after that sequence number, so reconnecting clients never lose the
// terminal event.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	job, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Subscribe before replaying so nothing published in between is lost;
	// duplicates are filtered by sequence number below.
	live, unsubscribe := job.Subscribe(constants.ServerConfig.JobEventBuffer)
	defer unsubscribe()

	lastSeq := since
	for _, e := range job.EventsSince(since) {
		if err := s.writeEvent(conn, e); err != nil {
			return
		}
		lastSeq = e.Seq
		if e.Terminal() {
			s.closeStream(conn)
			return
		}
	}

	// Discard read data but notice client disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for e := range live {
		if e.Seq <= lastSeq {
			continue
		}
		if err := s.writeEvent(conn, e); err != nil {
			return
		}
		lastSeq = e.Seq
		if e.Terminal() {
			s.closeStream(conn)
			return
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, e any) error {
	conn.SetWriteDeadline(time.Now().Add(constants.ServerConfig.WriteTimeout))
	if err := conn.WriteJSON(e); err != nil {
		s.logger.Debug("WebSocket write failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *Server) closeStream(conn *websocket.Conn) {
	deadline := time.Now().Add(constants.ServerConfig.WriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}
