package websocket

import (
	"context"
	"sync"

	"github.com/dreschagin/mainnet-dashboard/internal/application/dto"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
)

const (
	MessageTypeFreshnessUpdate     = "freshness_update"
	MessageTypeFreshnessTransition = "freshness_transition"
)

// Hub управляет WebSocket клиентами и рассылает сообщения
// Реализует интерфейс port.NotificationService
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	broadcast chan Message
	// сообщения одному клиенту (ответ на resync)
	direct chan directMessage

	register   chan *Client
	unregister chan *Client
	// закрывается при остановке Run
	done chan struct{}

	// Mutex для защиты clients map
	mu sync.RWMutex

	logger *logger.Logger
}

// NewHub создает новый WebSocket hub
func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		direct:     make(chan directMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run запускает hub до отмены ctx (должен быть запущен в отдельной goroutine)
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client registered", "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", "total_clients", total)

		case message := <-h.broadcast:
			h.fanOut(message)

		case d := <-h.direct:
			h.deliver(d.client, d.message)
		}
	}
}

func (h *Hub) fanOut(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// медленный клиент не должен тормозить остальных
			close(client.send)
			delete(h.clients, client)
			h.logger.Warn("Client channel full, disconnected", "type", message.Type)
		}
	}
}

// deliver отправляет сообщение одному клиенту, если он еще зарегистрирован
func (h *Hub) deliver(client *Client, message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.send <- message:
	default:
		close(client.send)
		delete(h.clients, client)
		h.logger.Warn("Client channel full, disconnected", "type", message.Type)
	}
}

// SendTo ставит сообщение в очередь одному клиенту.
// Запись идет через Run, поэтому не пересекается с закрытием канала клиента.
func (h *Hub) SendTo(client *Client, message Message) {
	select {
	case h.direct <- directMessage{client: client, message: message}:
	case <-h.done:
	default:
		h.logger.Warn("Direct channel full, dropping message", "type", message.Type)
	}
}

// Register регистрирует нового клиента
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister удаляет клиента
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast отправляет состояние свежести всем клиентам (реализация port.NotificationService)
func (h *Hub) Broadcast(state *dto.FreshnessStateDTO) {
	h.enqueue(Message{Type: MessageTypeFreshnessUpdate, Data: state})
}

// BroadcastTransition отправляет переход фида всем клиентам (реализация port.NotificationService)
func (h *Hub) BroadcastTransition(transition *dto.TransitionDTO) {
	h.enqueue(Message{Type: MessageTypeFreshnessTransition, Data: transition})
}

func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", message.Type)
	}
}

// ClientCount возвращает количество подключенных клиентов (реализация port.NotificationService)
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type directMessage struct {
	client  *Client
	message Message
}

// Message представляет сообщение для отправки клиенту
type Message struct {
	Type string      `json:"type"` // freshness_update или freshness_transition
	Data interface{} `json:"data"`
}
