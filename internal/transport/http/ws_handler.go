package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"quiz-sync-service/internal/app"
)

// WSHandler streams sync notices to an owner's connected devices. When one
// device pushes progress, the others learn immediately that a pull is
// worthwhile instead of waiting for their next poll.
type WSHandler struct {
	hub        *app.Hub
	principals PrincipalResolver
	upgrader   websocket.Upgrader
}

func NewWSHandler(hub *app.Hub, principals PrincipalResolver) *WSHandler {
	return &WSHandler{
		hub:        hub,
		principals: principals,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundNotice struct {
	Type    string         `json:"type"`
	Payload app.SyncNotice `json:"payload"`
}

// ServeWS upgrades the request and pumps the owner's notices until the client
// disconnects. The stream is one-way; inbound frames are only read to detect
// the connection closing.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	owner, err := h.principals.ResolvePrincipal(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	notices, cancel := h.hub.Subscribe(owner)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for notice := range notices {
			if err := conn.WriteJSON(outboundNotice{Type: "sync_notice", Payload: notice}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	<-writerDone
}
