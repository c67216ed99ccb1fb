// Package monitor fans pipeline snapshots out to websocket subscribers.
package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"rtaudio-pipeline/internal/pipeline"
)

// Hub tracks subscribers per pipeline id.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int][]*websocket.Conn
	upgrader    websocket.Upgrader
}

func NewHub(checkOrigin func(*http.Request) bool) *Hub {
	return &Hub{
		subscribers: make(map[int][]*websocket.Conn),
		upgrader:    websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

// Subscribe adds conn to the receivers of pipeline id.
func (h *Hub) Subscribe(id int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[id] = append(h.subscribers[id], conn)
	log.Printf("[monitor] subscriber added for pipeline %d (total: %d)", id, len(h.subscribers[id]))
}

// Unsubscribe removes conn.
func (h *Hub) Unsubscribe(id int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[id]
	for i, sub := range subs {
		if sub == conn {
			h.subscribers[id] = append(subs[:i:i], subs[i+1:]...)
			log.Printf("[monitor] subscriber removed for pipeline %d", id)
			break
		}
	}
	if len(h.subscribers[id]) == 0 {
		delete(h.subscribers, id)
	}
}

// Subscribers returns the number of receivers of pipeline id.
func (h *Hub) Subscribers(id int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[id])
}

// Publish sends st to every subscriber of its pipeline. Connections that
// fail are dropped.
func (h *Hub) Publish(st pipeline.State) {
	h.mu.RLock()
	subs := make([]*websocket.Conn, len(h.subscribers[st.ID]))
	copy(subs, h.subscribers[st.ID])
	h.mu.RUnlock()

	if len(subs) == 0 {
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		log.Printf("[monitor] marshal snapshot: %v", err)
		return
	}
	for _, conn := range subs {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[monitor] send to %s failed: %v", conn.RemoteAddr(), err)
			h.Unsubscribe(st.ID, conn)
		}
	}
}

// ServeHTTP upgrades /ws/monitor/{id} requests and keeps the subscriber
// registered until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/ws/monitor/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid pipeline id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[monitor] websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.Subscribe(id, conn)
	defer h.Unsubscribe(id, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
