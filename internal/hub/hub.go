// Package hub fans queue events out to connected realtime sessions
// (display boards, staff dashboards, waiting patients).
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"hqms/queue-service/internal/models"
)

type Client struct {
	ID     string
	Send   chan []byte
	topics map[string]struct{}
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

type Envelope struct {
	Topic  string            `json:"topic"`
	Event  models.QueueEvent `json:"event"`
	SentAt time.Time         `json:"sent_at"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(id string) *Client {
	client := &Client{ID: id, Send: make(chan []byte, 16), topics: make(map[string]struct{})}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = client
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.topics[topic] = struct{}{}
}

func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(client.topics, topic)
}

// Publish satisfies events.Publisher: every registered session subscribed to
// the topic receives the event, slow sessions are skipped rather than letting
// them stall the queue.
func (h *Hub) Publish(_ context.Context, topic string, event models.QueueEvent) {
	payload, err := json.Marshal(Envelope{Topic: topic, Event: event, SentAt: time.Now().UTC()})
	if err != nil {
		log.Printf("hub publish: marshal failed: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if _, ok := client.topics[topic]; !ok {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	if msg.Topic == "" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
