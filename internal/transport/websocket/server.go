package websocket

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/inspector/internal/transport"
	"github.com/OCAP2/inspector/pkg/streaming"
)

// Server answers chunk requests over WebSocket from a recording directory.
// Each connection is served by one goroutine: requests are answered in the
// order they arrive.
type Server struct {
	Source transport.FileSource
	Secret string
	Logger *slog.Logger

	upgrader ws.Upgrader
}

// NewServer creates a server for the recording rooted at src.
func NewServer(src transport.FileSource, secret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Source:   src,
		Secret:   secret,
		Logger:   logger.With("component", "chunk-server"),
		upgrader: ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	got := r.URL.Query().Get("secret")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.Secret)) != 1 {
		http.Error(w, "invalid secret", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.Logger.Info("Client connected", "remote", r.RemoteAddr)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				s.Logger.Debug("Client read ended", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		reply, err := s.handle(msg)
		if err != nil {
			s.Logger.Error("Failed to build reply", "error", err)
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := conn.WriteMessage(ws.TextMessage, reply); err != nil {
			s.Logger.Warn("WebSocket write error", "error", err)
			return
		}
	}
}

func (s *Server) handle(msg []byte) ([]byte, error) {
	var env streaming.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return streaming.MarshalEnvelope(streaming.TypeError, streaming.ErrorMessage{Message: "malformed envelope"})
	}
	if env.Type != streaming.TypeChunkRequest {
		return streaming.MarshalEnvelope(streaming.TypeError, streaming.ErrorMessage{For: env.Type, Message: "unsupported message type"})
	}

	var req streaming.ChunkRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return streaming.MarshalEnvelope(streaming.TypeError, streaming.ErrorMessage{For: env.Type, Message: err.Error()})
	}

	resp := s.Source.Fetch(req)
	if resp.Error != "" {
		s.Logger.Warn("Chunk request failed", "requestId", req.RequestID, "error", resp.Error)
	}
	return streaming.MarshalEnvelope(streaming.TypeChunkResponse, resp)
}
