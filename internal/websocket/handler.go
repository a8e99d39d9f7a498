package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ammar1510/rideshare/internal/apperr"
	"github.com/ammar1510/rideshare/internal/logger"
	"github.com/ammar1510/rideshare/internal/messaging"
	"github.com/ammar1510/rideshare/internal/models"
	"github.com/ammar1510/rideshare/internal/notifications"
	"github.com/ammar1510/rideshare/internal/realtime"
)

// Frame types
const (
	// client -> server
	MessageTypeMessage     = "message"
	MessageTypeTyping      = "typing"
	MessageTypeOpenThread  = "open_thread"
	MessageTypeCloseThread = "close_thread"

	// server -> client
	MessageTypeMessageInsert      = "message.insert"
	MessageTypeMessageUpdate      = "message.update"
	MessageTypeNotificationInsert = "notification.insert"
	MessageTypeNotificationUpdate = "notification.update"
	MessageTypeBadgeMessages      = "badge.messages"
	MessageTypeBadgeNotifications = "badge.notifications"
	MessageTypeThread             = "thread"
	MessageTypeError              = "error"
)

const (
	sendBuffer     = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendTimeout    = 10 * time.Second
	loadTimeout    = 10 * time.Second

	maxMessagesPerMinute = 60
)

var log = logger.New("websocket")

// WebSocketMessage is one frame in either direction
type WebSocketMessage struct {
	Type         string               `json:"type"`
	SenderID     uuid.UUID            `json:"sender_id,omitempty"`
	ReceiverID   uuid.UUID            `json:"receiver_id,omitempty"`
	TripID       *uuid.UUID           `json:"trip_id,omitempty"`
	Content      string               `json:"content,omitempty"`
	IsTyping     bool                 `json:"is_typing,omitempty"`
	Message      *models.Message      `json:"message,omitempty"`
	Messages     []*models.Message    `json:"messages,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
	Count        *int                 `json:"count,omitempty"`
	Label        string               `json:"label,omitempty"`
	Code         apperr.Code          `json:"code,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}

// Client is one websocket connection. A user may hold several.
type Client struct {
	ID     uuid.UUID
	Socket *websocket.Conn
	Send   chan []byte

	mu     sync.Mutex
	closed bool
	subs   realtime.Group
	badges []*realtime.Counter
	// the conversation the user has on screen; its incoming messages are
	// marked read as they arrive
	thread *messaging.Thread
}

// enqueue hands a frame to the write pump without blocking the caller, which
// may be a hub publisher. A full buffer drops the connection.
func (c *Client) enqueue(b []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	select {
	case c.Send <- b:
		c.mu.Unlock()
		return true
	default:
	}
	c.mu.Unlock()

	log.Warn("Send buffer full for client %s, dropping connection", c.ID)
	c.close()
	return false
}

func (c *Client) sendFrame(f WebSocketMessage) {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	b, err := json.Marshal(f)
	if err != nil {
		log.Error("Failed to encode %s frame: %v", f.Type, err)
		return
	}
	c.enqueue(b)
}

func (c *Client) sendError(err error) {
	c.sendFrame(WebSocketMessage{
		Type:    MessageTypeError,
		Content: apperr.Message(err),
		Code:    apperr.CodeOf(err),
	})
}

// close ends the write pump and releases the subscriptions. Safe to call
// more than once.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.Send)
	subs, badges, thread := c.subs, c.badges, c.thread
	c.subs, c.badges, c.thread = nil, nil, nil
	c.mu.Unlock()

	subs.Unsubscribe()
	for _, b := range badges {
		b.Close()
	}
	if thread != nil {
		thread.Close()
	}
}

// swapThread makes t the open thread and closes the previous one. It reports
// false, closing t, when the client is already gone.
func (c *Client) swapThread(t *messaging.Thread) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if t != nil {
			t.Close()
		}
		return false
	}
	prev := c.thread
	c.thread = t
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return true
}

// Manager maintains the set of active clients and connects them to the
// change feed.
type Manager struct {
	hub           *realtime.Hub
	messages      *messaging.Service
	notifications *notifications.Store

	clients    map[uuid.UUID]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.Mutex

	// CheckOrigin decides which browser origins may connect. nil allows all.
	CheckOrigin func(r *http.Request) bool
}

func NewManager(hub *realtime.Hub, messages *messaging.Service, notes *notifications.Store) *Manager {
	return &Manager{
		hub:           hub,
		messages:      messages,
		notifications: notes,
		clients:       make(map[uuid.UUID]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
	}
}

// Run applies registrations until ctx is done, then drops every client
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			conns := m.clients[client.ID]
			if conns == nil {
				conns = make(map[*Client]bool)
				m.clients[client.ID] = conns
			}
			conns[client] = true
			log.Info("Client connected: %s (%d connections)", client.ID, len(conns))
			m.mutex.Unlock()
		case client := <-m.unregister:
			m.mutex.Lock()
			if conns, ok := m.clients[client.ID]; ok && conns[client] {
				delete(conns, client)
				if len(conns) == 0 {
					delete(m.clients, client.ID)
				}
				log.Info("Client disconnected: %s", client.ID)
			}
			m.mutex.Unlock()
			client.close()
		case <-ctx.Done():
			m.mutex.Lock()
			for _, conns := range m.clients {
				for c := range conns {
					c.close()
				}
			}
			m.clients = make(map[uuid.UUID]map[*Client]bool)
			m.mutex.Unlock()
			return
		}
	}
}

// SendToUser sends a frame to every connection of a user
func (m *Manager) SendToUser(userID uuid.UUID, message []byte) {
	m.mutex.Lock()
	conns := make([]*Client, 0, len(m.clients[userID]))
	for c := range m.clients[userID] {
		conns = append(conns, c)
	}
	m.mutex.Unlock()

	if len(conns) == 0 {
		log.Debug("User %s not connected", userID)
		return
	}
	for _, c := range conns {
		c.enqueue(message)
	}
}

// Connections returns the number of open connections of a user
func (m *Manager) Connections(userID uuid.UUID) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.clients[userID])
}

// subscribe wires the client to the user's message and notification events
// and to both badge counters
func (m *Manager) subscribe(ctx context.Context, c *Client) error {
	user := c.ID

	incoming, err := m.hub.Subscribe(realtime.MessagesTo(user), func(e realtime.Event) {
		c.sendFrame(messageFrame(e))
	})
	if err != nil {
		return err
	}
	// own messages to someone else; self-messages already came in above
	outgoing, err := m.hub.Subscribe(realtime.MessagesFrom(user), func(e realtime.Event) {
		if e.Message.ReceiverID != user {
			c.sendFrame(messageFrame(e))
		}
	})
	if err != nil {
		incoming.Unsubscribe()
		return err
	}
	notes, err := m.hub.Subscribe(realtime.NotificationsFor(user), func(e realtime.Event) {
		t := MessageTypeNotificationInsert
		if e.Kind == realtime.Update {
			t = MessageTypeNotificationUpdate
		}
		c.sendFrame(WebSocketMessage{Type: t, Notification: e.Notification})
	})
	if err != nil {
		realtime.Group{incoming, outgoing}.Unsubscribe()
		return err
	}
	subs := realtime.Group{incoming, outgoing, notes}

	msgBadge, err := m.messages.WatchUnread(ctx, m.hub, user)
	if err != nil {
		subs.Unsubscribe()
		return err
	}
	noteBadge, err := m.notifications.WatchUnread(ctx, m.hub, user)
	if err != nil {
		subs.Unsubscribe()
		msgBadge.Close()
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		subs.Unsubscribe()
		msgBadge.Close()
		noteBadge.Close()
		return nil
	}
	c.subs = subs
	c.badges = []*realtime.Counter{msgBadge.Counter, noteBadge.Counter}
	c.mu.Unlock()

	watchBadge(c, msgBadge.Counter, MessageTypeBadgeMessages)
	watchBadge(c, noteBadge.Counter, MessageTypeBadgeNotifications)
	return nil
}

// watchBadge sends the current count, then every change
func watchBadge(c *Client, counter *realtime.Counter, frameType string) {
	sent := counter.Value()
	c.sendFrame(badgeFrame(frameType, sent))
	counter.OnChange(func(n int) { c.sendFrame(badgeFrame(frameType, n)) })
	if n := counter.Value(); n != sent {
		c.sendFrame(badgeFrame(frameType, n))
	}
}

func messageFrame(e realtime.Event) WebSocketMessage {
	t := MessageTypeMessageInsert
	if e.Kind == realtime.Update {
		t = MessageTypeMessageUpdate
	}
	return WebSocketMessage{Type: t, Message: e.Message}
}

func badgeFrame(t string, n int) WebSocketMessage {
	return WebSocketMessage{Type: t, Count: &n, Label: models.BadgeLabel(n)}
}

// HandleWebSocket upgrades an authenticated request to a websocket
func (m *Manager) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		log.Warn("No userID in context, rejecting connection from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": apperr.CodeUnauthenticated})
		return
	}
	userUUID, ok := userID.(uuid.UUID)
	if !ok || userUUID == uuid.Nil {
		log.Error("Invalid UUID in context from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user identification", "code": apperr.CodeInternal})
		return
	}

	checkOrigin := m.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:     userUUID,
		Socket: conn,
		Send:   make(chan []byte, sendBuffer),
	}

	go client.writePump()

	if err := m.subscribe(c.Request.Context(), client); err != nil {
		log.Error("Failed to subscribe client %s: %v", userUUID, err)
		client.sendError(apperr.Transient("subscribe", err))
		client.close()
		return
	}

	m.register <- client
	go client.readPump(m)
	log.Debug("Client %s connected and ready", client.ID)
}

// readPump reads frames from the connection until it closes
func (c *Client) readPump(m *Manager) {
	defer func() {
		m.unregister <- c
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(maxMessageSize)
	c.Socket.SetReadDeadline(time.Now().Add(pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	messageCount := 0
	windowStart := time.Now()

	for {
		_, raw, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error("Error reading from client %s: %v", c.ID, err)
			} else {
				log.Debug("Client %s closed connection: %v", c.ID, err)
			}
			return
		}

		if time.Since(windowStart) >= time.Minute {
			messageCount, windowStart = 0, time.Now()
		}
		messageCount++
		if messageCount > maxMessagesPerMinute {
			log.Warn("Rate limit exceeded for client %s", c.ID)
			c.sendError(apperr.FailedPrecondition("too many messages, slow down"))
			continue
		}

		var frame WebSocketMessage
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Debug("Bad frame from client %s: %v", c.ID, err)
			c.sendError(apperr.InvalidArg("invalid message format"))
			continue
		}
		frame.SenderID = c.ID
		frame.Timestamp = time.Now()

		m.dispatch(c, frame)
	}
}

func (m *Manager) dispatch(c *Client, frame WebSocketMessage) {
	switch frame.Type {
	case MessageTypeMessage:
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		// the stored row reaches both sides through the change feed
		if _, err := m.messages.Send(ctx, c.ID, frame.ReceiverID, frame.Content, frame.TripID); err != nil {
			log.Debug("Message from %s rejected: %v", c.ID, err)
			c.sendError(err)
		}
	case MessageTypeTyping:
		if frame.ReceiverID == uuid.Nil {
			c.sendError(apperr.ErrMissingCounterparty)
			return
		}
		b, err := json.Marshal(WebSocketMessage{
			Type:       MessageTypeTyping,
			SenderID:   c.ID,
			ReceiverID: frame.ReceiverID,
			TripID:     frame.TripID,
			IsTyping:   frame.IsTyping,
			Timestamp:  frame.Timestamp,
		})
		if err != nil {
			return
		}
		m.SendToUser(frame.ReceiverID, b)
	case MessageTypeOpenThread:
		m.openThread(c, frame.ReceiverID, frame.TripID)
	case MessageTypeCloseThread:
		c.swapThread(nil)
	default:
		log.Warn("Unknown message type '%s' from client %s", frame.Type, c.ID)
		c.sendError(apperr.InvalidArg("unknown message type"))
	}
}

// openThread loads the conversation with counterparty and keeps pushing it as
// it changes. Loading marks the viewer's unread messages in it read.
func (m *Manager) openThread(c *Client, counterparty uuid.UUID, tripID *uuid.UUID) {
	t, err := messaging.OpenThread(m.hub, m.messages, c.ID, counterparty, tripID)
	if err != nil {
		c.sendError(err)
		return
	}
	t.OnChange(func(msgs []*models.Message) {
		c.sendFrame(WebSocketMessage{
			Type:       MessageTypeThread,
			ReceiverID: counterparty,
			TripID:     tripID,
			Messages:   msgs,
		})
	})
	if !c.swapThread(t) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	if err := t.Load(ctx); err != nil {
		log.Debug("Thread of %s with %s failed to load: %v", c.ID, counterparty, err)
		c.sendError(err)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
// Each queued frame is written as its own websocket message.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
