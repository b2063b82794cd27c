package websocket

import (
	"encoding/json"
	"time"

	"github.com/dreschagin/mainnet-dashboard/internal/application/dto"
	"github.com/dreschagin/mainnet-dashboard/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// от клиента приходят только короткие команды вида {"type":"resync"}
	maxRequestSize = 256

	sendQueueSize = 64
)

// RequestTypeResync клиент просит прислать текущее состояние целиком,
// например после возврата вкладки из фона
const RequestTypeResync = "resync"

// StateFunc возвращает текущее состояние свежести для ответа на resync
type StateFunc func() *dto.FreshnessStateDTO

type clientRequest struct {
	Type string `json:"type"`
}

// Client одно WebSocket подключение дашборда.
// Канал send закрывает только Hub, после регистрации писать в него может только Hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	state  StateFunc
	send   chan Message
	logger *logger.Logger
}

// NewClient создает клиента. state может быть nil, тогда resync игнорируется.
func NewClient(hub *Hub, conn *websocket.Conn, state StateFunc, logger *logger.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		state:  state,
		send:   make(chan Message, sendQueueSize),
		logger: logger,
	}
}

// SendInitialState кладет текущее состояние в очередь клиента.
// Вызывается до Hub.Register, пока канал принадлежит только клиенту.
func (c *Client) SendInitialState() bool {
	if c.state == nil {
		return false
	}
	select {
	case c.send <- Message{Type: MessageTypeFreshnessUpdate, Data: c.state()}:
		return true
	default:
		return false
	}
}

// ReadPump разбирает команды клиента и следит за pong. Запускается в отдельной goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxRequestSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read failed", "error", err.Error())
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.handleRequest(raw)
	}
}

func (c *Client) handleRequest(raw []byte) {
	var req clientRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.logger.Debug("Ignoring malformed WebSocket request", "bytes", len(raw))
		return
	}

	switch req.Type {
	case RequestTypeResync:
		if c.state == nil {
			return
		}
		c.hub.SendTo(c, Message{Type: MessageTypeFreshnessUpdate, Data: c.state()})
	default:
		c.logger.Debug("Ignoring unknown WebSocket request", "type", req.Type)
	}
}

// WritePump пишет сообщения из очереди и ping. Запускается в отдельной goroutine.
func (c *Client) WritePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// hub отключил клиента
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeJSON(message); err != nil {
				c.logger.Warn("WebSocket write failed", "type", message.Type, "error", err.Error())
				return
			}
		case <-ping.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *Client) writeJSON(message Message) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(message)
}
