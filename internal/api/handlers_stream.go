package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tax-ledger/internal/errors"
	"github.com/tax-ledger/internal/logging"
	"github.com/tax-ledger/internal/models"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// streamMessage is one event pushed to a stream client
type streamMessage struct {
	Type  string              `json:"type"`
	Event *models.LedgerEvent `json:"event"`
}

// handleStream handles GET /api/tax/stream?user= and pushes each newly
// recorded event for that subject over a websocket.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	subject := models.NormalizeSubject(subjectParam(r))
	if subject == "" {
		respondError(w, r, errors.NewMissingSubjectError())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		logging.FromContext(r.Context()).WithError(err).Warn("websocket upgrade failed")
		return
	}

	sub := s.broadcaster.Subscribe(subject)
	logger := logging.FromContext(r.Context()).WithField("subject", subject)
	logger.Debug("stream client connected")

	// read pump: detects disconnects and keeps the read deadline fresh
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		s.broadcaster.Unsubscribe(sub)
		_ = conn.Close()
		logger.Debug("stream client disconnected")
	}()

	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(streamMessage{Type: "event", Event: &ev}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
