package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/panjf2000/ants/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"casino-engine/internal/metrics"
	"casino-engine/internal/models"
	"casino-engine/internal/services"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 1024
)

const (
	MsgPing         = "PING"
	MsgPong         = "PONG"
	MsgCrashState   = "CRASH_STATE"
	MsgRoundWaiting = "ROUND_WAITING"
	MsgRoundUpdate  = "ROUND_UPDATE"
	MsgRoundCrash   = "ROUND_CRASH"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// StateSource supplies the snapshot sent to a client when it connects.
type StateSource interface {
	State(ctx context.Context) (*models.CrashState, error)
}

type client struct {
	userID int64
	conn   *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func (cl *client) write(data []byte) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.closed {
		return websocket.ErrCloseSent
	}
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return cl.conn.WriteMessage(websocket.TextMessage, data)
}

func (cl *client) close() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if !cl.closed {
		cl.closed = true
		_ = cl.conn.Close()
	}
}

// Hub fans crash round events out to every connected socket. Writes run on
// an ants pool so a slow client never stalls the scheduler.
type Hub struct {
	pool  *ants.Pool
	state StateSource
	log   *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

var _ services.Broadcaster = (*Hub)(nil)

func NewHub(workers int, state StateSource, log *zap.Logger) (*Hub, error) {
	log = log.Named("ws")
	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			log.Error("broadcast worker panic", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Hub{
		pool:    pool,
		state:   state,
		log:     log,
		clients: make(map[*client]struct{}),
	}, nil
}

func (h *Hub) HandleWebSocket(c *gin.Context) {
	userID := c.GetInt64("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("failed to upgrade to websocket", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	cl := &client{userID: userID, conn: conn}
	h.register(cl)
	defer h.unregister(cl)

	h.sendState(c.Request.Context(), cl)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket read error", zap.Int64("user_id", userID), zap.Error(err))
			}
			return
		}
		h.handleMessage(c.Request.Context(), cl, &msg)
	}
}

func (h *Hub) handleMessage(ctx context.Context, cl *client, msg *Message) {
	switch msg.Type {
	case MsgPing:
		h.send(cl, Message{
			Type: MsgPong,
			Data: gin.H{"timestamp": time.Now().Unix()},
		})
	case MsgCrashState:
		h.sendState(ctx, cl)
	}
}

func (h *Hub) sendState(ctx context.Context, cl *client) {
	if h.state == nil {
		return
	}
	state, err := h.state.State(ctx)
	if err != nil {
		h.log.Warn("failed to load crash state for websocket", zap.Error(err))
		return
	}
	h.send(cl, Message{Type: MsgCrashState, Data: state})
}

func (h *Hub) send(cl *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to encode websocket message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	if err := cl.write(data); err != nil {
		h.log.Debug("websocket write failed", zap.Int64("user_id", cl.userID), zap.Error(err))
		cl.close()
	}
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	metrics.WSClients.Inc()
	h.log.Debug("client registered", zap.Int64("user_id", cl.userID))
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl]
	delete(h.clients, cl)
	h.mu.Unlock()
	cl.close()
	if ok {
		metrics.WSClients.Dec()
		h.log.Debug("client unregistered", zap.Int64("user_id", cl.userID))
	}
}

// ClientCount reports the connected sockets.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to encode broadcast", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		cl := cl
		err := h.pool.Submit(func() {
			if err := cl.write(data); err != nil {
				h.unregister(cl)
			}
		})
		if errors.Is(err, ants.ErrPoolOverload) {
			h.log.Debug("broadcast dropped, pool busy", zap.String("type", msg.Type), zap.Int64("user_id", cl.userID))
		} else if err != nil {
			h.log.Warn("broadcast submit failed", zap.Error(err))
			return
		}
	}
}

func (h *Hub) BroadcastRoundWaiting(state models.CrashState) {
	h.broadcast(Message{Type: MsgRoundWaiting, Data: state})
}

func (h *Hub) BroadcastRoundUpdate(roundID string, multiplier decimal.Decimal) {
	h.broadcast(Message{
		Type: MsgRoundUpdate,
		Data: gin.H{
			"round_id":   roundID,
			"multiplier": multiplier.StringFixed(2),
			"timestamp":  time.Now().UnixMilli(),
		},
	})
}

func (h *Hub) BroadcastRoundCrash(summary models.RoundSummary) {
	h.broadcast(Message{Type: MsgRoundCrash, Data: summary})
}

// Close disconnects every client and stops the worker pool.
func (h *Hub) Close() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		targets = append(targets, cl)
	}
	h.mu.Unlock()

	for _, cl := range targets {
		h.unregister(cl)
	}
	h.pool.Release()
}
