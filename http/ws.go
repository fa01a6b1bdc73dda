package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"toolusage/ml"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = wsPongWait * 9 / 10
	wsMaxMessage   = 4096
)

// wsMessage answers one Case read from the socket. Exactly one of Result and
// Error is set.
type wsMessage struct {
	Result *ml.PredictionResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
	Field  string               `json:"field,omitempty"`
}

type wsSession struct {
	id   string
	conn *websocket.Conn
	send chan wsMessage
	done chan struct{}
}

// handleWSPredict streams predictions: every text frame holds one Case and is
// answered by one wsMessage, in order.
func (h *Handlers) handleWSPredict(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s := &wsSession{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan wsMessage, 16),
		done: make(chan struct{}),
	}
	h.logger.Debug("websocket connected", zap.String("session", s.id))

	go h.writePump(s)
	h.readPump(r.Context(), s)
}

func (h *Handlers) readPump(ctx context.Context, s *wsSession) {
	defer func() {
		close(s.send)
		h.logger.Debug("websocket disconnected", zap.String("session", s.id))
	}()

	s.conn.SetReadLimit(wsMaxMessage)
	s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read", zap.String("session", s.id), zap.Error(err))
			}
			return
		}

		var msg wsMessage
		var req caseRequest
		if err := json.Unmarshal(data, &req); err != nil {
			msg.Error = "invalid JSON: " + err.Error()
		} else if c, err := req.toCase(); err != nil {
			_, body := errorStatus(err)
			msg.Error, msg.Field = body.Error, body.Field
		} else if result, err := h.predictCase(ctx, c); err != nil {
			_, body := errorStatus(err)
			msg.Error, msg.Field = body.Error, body.Field
		} else {
			msg.Result = &result
		}

		select {
		case s.send <- msg:
		case <-s.done:
			return
		}
	}
}

func (h *Handlers) writePump(s *wsSession) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		close(s.done)
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				h.logger.Warn("websocket write", zap.String("session", s.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
