package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"climb/internal/engine"
)

const (
	wsWriteWait  = 5 * time.Second
	wsReadWait   = 60 * time.Second
	wsSendBuffer = 32
)

// EventHub fans committed game events out to websocket watchers of that game.
type EventHub struct {
	log      *log.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
}

type watcher struct {
	conn *websocket.Conn
	send chan []byte
}

func NewEventHub(logger *log.Logger) *EventHub {
	return &EventHub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		watchers: map[string]map[*watcher]struct{}{},
	}
}

// Publish implements engine.Publisher. Slow watchers miss events rather than
// stall the transition that produced them.
func (h *EventHub) Publish(ev engine.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Printf("ws: encode event game=%s kind=%s: %v", ev.GameID, ev.Kind, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers[ev.GameID] {
		select {
		case w.send <- b:
		default:
			h.log.Printf("ws: dropped event game=%s kind=%s", ev.GameID, ev.Kind)
		}
	}
}

// Watchers returns how many connections follow gameID.
func (h *EventHub) Watchers(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[gameID])
}

func (h *EventHub) add(gameID string, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.watchers[gameID]
	if !ok {
		set = map[*watcher]struct{}{}
		h.watchers[gameID] = set
	}
	set[w] = struct{}{}
}

func (h *EventHub) remove(gameID string, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.watchers[gameID]
	delete(set, w)
	if len(set) == 0 {
		delete(h.watchers, gameID)
	}
	close(w.send)
}

// ServeGame upgrades the request and streams gameID's events until the
// client goes away. Incoming messages are ignored.
func (h *EventHub) ServeGame(rw http.ResponseWriter, r *http.Request, gameID string) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	w := &watcher{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.add(gameID, w)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for b := range w.send {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(gameID, w)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

	select {
	case <-writeDone:
	case <-time.After(500 * time.Millisecond):
	}
}
