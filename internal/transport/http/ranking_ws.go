package http

import (
	"log"
	"net/http"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
	"github.com/gorilla/websocket"
)

// RankingWSHandler streams ranking snapshots for a trivia over a websocket.
// A snapshot is pushed whenever an attempt finalizes.
type RankingWSHandler struct {
	service  *app.AttemptService
	upgrader websocket.Upgrader
}

func NewRankingWSHandler(service *app.AttemptService) *RankingWSHandler {
	return &RankingWSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type rankingMessage struct {
	Type    string         `json:"type"`
	Payload domain.Ranking `json:"payload"`
}

func (h *RankingWSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	triviaID := r.URL.Query().Get("triviaId")
	if triviaID == "" {
		http.Error(w, "missing triviaId", http.StatusBadRequest)
		return
	}

	updates, cancel, err := h.service.SubscribeRanking(r.Context(), triviaID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	defer cancel()

	// Reader goroutine exists only to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ranking, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(rankingMessage{Type: "ranking", Payload: ranking}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-closed:
			return
		}
	}
}
