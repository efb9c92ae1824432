// Package ws implements the push-stream transport named in spec.md
// §6.3: a thin gorilla/websocket adapter that decodes/encodes the
// connected, trends_update, and request_update wire events and
// delegates everything else to internal/refresh.Controller. Not a
// direct teacher dependency — gorilla/websocket appears in the
// example pack's linkerd-linkerd2 module graph, see DESIGN.md.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"trendaggr/internal/refresh"
)

const (
	writeTimeout    = 10 * time.Second
	subscriberQueue = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// event is the envelope every server->client frame uses.
type event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// clientMessage is the envelope every client->server frame uses.
type clientMessage struct {
	Type string `json:"type"`
}

// Handler upgrades incoming requests to websocket connections and
// streams trends_update events from the Refresh Controller's
// broadcaster until the client disconnects.
type Handler struct {
	controller *refresh.Controller
}

func NewHandler(controller *refresh.Controller) *Handler {
	return &Handler{controller: controller}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.controller.Subscribe(subscriberQueue)
	defer unsubscribe()

	if err := writeEvent(conn, "connected", nil); err != nil {
		return
	}

	incoming := make(chan clientMessage, 1)
	go readLoop(conn, incoming)

	for {
		select {
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(conn, "trends_update", upd); err != nil {
				return
			}

		case msg, ok := <-incoming:
			if !ok {
				return
			}
			if msg.Type == "request_update" {
				if err := writeEvent(conn, "trends_update", h.controller.CurrentUpdate()); err != nil {
					return
				}
			}
		}
	}
}

func readLoop(conn *websocket.Conn, out chan<- clientMessage) {
	defer close(out)
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		out <- msg
	}
}

func writeEvent(conn *websocket.Conn, eventType string, data any) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	payload, err := json.Marshal(event{Type: eventType, Data: data})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
