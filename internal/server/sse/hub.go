package sse

import (
	"encoding/json"
	"sync"

	"photo-indexer/internal/core/events"

	log "github.com/sirupsen/logrus"
)

// Client repräsentiert einen einzelnen verbundenen SSE-Client
type Client chan []byte

// Hub verwaltet die Menge der aktiven Clients und sendet Broadcasts an sie
type Hub struct {
	// Registrierte Clients
	clients map[Client]bool

	// Eingehende Nachrichten von der Anwendung
	broadcast chan []byte

	// Registrierungsanfragen von Clients
	register chan Client

	// Abmeldeanfragen von Clients
	unregister chan Client

	quit chan struct{}
	once sync.Once

	// Mutex zum Schutz des simultanen Zugriffs auf die Clients-Map
	mu sync.Mutex
}

var _ events.Notifier = (*Hub)(nil)

// NewHub erstellt eine neue Hub-Instanz
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 100), // Puffer für 100 Nachrichten
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
		clients:    make(map[Client]bool),
	}
}

// Run startet die Verarbeitungsschleife des Hubs.
// Dies sollte in einer separaten Goroutine ausgeführt werden.
func (h *Hub) Run() {
	log.Info("SSE Hub started and running")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Infof("SSE client registered. Total clients: %d", clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Infof("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			log.Debugf("Broadcasting message to %d SSE clients", len(h.clients))
			for client := range h.clients {
				select {
				case client <- message:
				default:
					// Client-Kanal ist voll, langsame Clients werden entfernt
					log.Warn("SSE client channel full, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			log.Info("SSE Hub stopped")
			return
		}
	}
}

// Stop beendet die Verarbeitungsschleife und schließt alle Client-Kanäle
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.quit) })
}

// Register registriert einen neuen Client am Hub
func (h *Hub) Register(client Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		close(client)
	}
}

// Unregister meldet einen Client vom Hub ab
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount gibt die Anzahl der verbundenen Clients zurück
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sendet eine Nachricht an alle registrierten Clients
func (h *Hub) Broadcast(message []byte) {
	// Blockieren vermeiden, wenn der Broadcast-Kanal voll ist
	select {
	case h.broadcast <- message:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// Notify implementiert events.Notifier und sendet das Ereignis als JSON
func (h *Hub) Notify(e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Errorf("Failed to marshal %s event for SSE: %v", e.Type, err)
		return
	}
	h.Broadcast(data)
}
