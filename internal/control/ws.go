package control

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"rtaudio-pipeline/internal/auth"
)

// Server exposes a Handler on a websocket endpoint. Every binary message is
// one request frame and is answered by one response frame.
type Server struct {
	handler  *Handler
	verifier auth.Verifier
	role     string
	upgrader websocket.Upgrader
}

// NewServer creates the endpoint. A nil verifier disables authentication;
// role, when set, must be granted by the token.
func NewServer(h *Handler, v auth.Verifier, role string, checkOrigin func(*http.Request) bool) *Server {
	return &Server{
		handler:  h,
		verifier: v,
		role:     role,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := auth.Authenticate(s.verifier, s.role, r); err != nil {
		log.Printf("[control] rejected %s: %v", r.RemoteAddr, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[control] websocket upgrade error: %v", err)
		return
	}
	s.serveConn(r.Context(), conn)
}

func (s *Server) serveConn(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	log.Printf("[control] client connected from %s", conn.RemoteAddr())

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[control] client %s gone: %v", conn.RemoteAddr(), err)
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		var resp Response
		var req Request
		if err := req.UnmarshalBinary(data); err != nil {
			resp = Response{Status: StatusError, Payload: []byte(err.Error())}
		} else {
			resp = s.handler.Handle(ctx, req)
		}
		out, _ := resp.MarshalBinary()
		if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
			log.Printf("[control] write to %s failed: %v", conn.RemoteAddr(), err)
			return
		}
	}
}
