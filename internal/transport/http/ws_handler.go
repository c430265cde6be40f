package http

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"buzzer-service/internal/app"
	"buzzer-service/internal/domain"
)

// WSHandler streams ranking updates to admin views over a websocket, pushing
// a fresh snapshot on every press, award, and reset. Participant clients use
// the polling API; this is the admin convenience surface.
type WSHandler struct {
	service  *app.BuzzerService
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(service *app.BuzzerService, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type orderMessage struct {
	Type    string              `json:"type"`
	Entries []domain.OrderEntry `json:"entries"`
}

// ServeWS upgrades the request and forwards order snapshots until the client
// disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	scopeID, err := parseID(r.URL.Query().Get("scopeId"), "scopeId")
	if err != nil {
		http.Error(w, "missing or malformed scopeId", http.StatusBadRequest)
		return
	}

	updates, cancel, err := h.service.WatchOrder(r.Context(), scopeID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for entries := range updates {
			if err := conn.WriteJSON(orderMessage{Type: "order", Entries: entries}); err != nil {
				h.log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	// The read loop only exists to notice the peer going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel() // closes updates, which stops the writer
	<-writerDone
}
