package pub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"escrow-service/internal/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Notifier pushes events to the websocket connections of affected users.
// The registry lock only guards the map; writes happen outside it, one at a
// time per connection.
type Notifier struct {
	clients map[string]map[*websocket.Conn]*wsClient
	mu      sync.Mutex
	logger  *zap.Logger
}

type wsClient struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *wsClient) write(payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func NewNotifier(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		clients: make(map[string]map[*websocket.Conn]*wsClient),
		logger:  logger,
	}
}

func (n *Notifier) RegisterConnection(userID string, conn *websocket.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.clients[userID] == nil {
		n.clients[userID] = make(map[*websocket.Conn]*wsClient)
	}
	n.clients[userID][conn] = &wsClient{conn: conn}
}

func (n *Notifier) UnregisterConnection(userID string, conn *websocket.Conn) {
	n.mu.Lock()
	conns, ok := n.clients[userID]
	if ok {
		if _, ok = conns[conn]; ok {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(n.clients, userID)
			}
		}
	}
	n.mu.Unlock()
	if ok {
		conn.Close()
	}
}

func (n *Notifier) Connections(userID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.clients[userID])
}

func (n *Notifier) snapshot(userID string) []*wsClient {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*wsClient, 0, len(n.clients[userID]))
	for _, c := range n.clients[userID] {
		out = append(out, c)
	}
	return out
}

// Send writes one message to every connection of userID. A connection that
// fails the write is dropped.
func (n *Notifier) Send(userID string, msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, c := range n.snapshot(userID) {
		if err := c.write(payload); err != nil {
			n.logger.Debug("websocket write failed", zap.String("user_id", userID), zap.Error(err))
			n.UnregisterConnection(userID, c.conn)
		}
	}
}

func (n *Notifier) Name() string { return "websocket" }

func (n *Notifier) Deliver(_ context.Context, ev domain.DomainEvent) error {
	for _, uid := range ev.UserIDs {
		n.Send(uid, WSMessage{Type: string(ev.Type), Data: ev})
	}
	return nil
}
