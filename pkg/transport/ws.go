package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message types exchanged with agents.
const (
	TypeReport    = "report"
	TypeReportAck = "report_ack"
)

// WSMessage is the envelope for agent<->receiver messages.
type WSMessage struct {
	Type    string          `json:"type"`
	NodeID  string          `json:"nodeId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// VerifyFunc checks a bearer token and returns the agent it was issued to.
type VerifyFunc func(token string) (agentID string, err error)

// WSHub accepts agent websocket connections and funnels their reports into a
// single bounded inbox. A full inbox stalls the agents' read loops.
type WSHub struct {
	upgrader websocket.Upgrader
	verify   VerifyFunc
	log      *zap.Logger

	mu     sync.RWMutex
	agents map[string]*agentConn

	inbox chan Message
	done  chan struct{}
	once  sync.Once
	err   error
	srv   *http.Server
}

type agentConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (a *agentConn) writeJSON(v interface{}) error {
	a.wmu.Lock()
	defer a.wmu.Unlock()
	_ = a.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return a.conn.WriteJSON(v)
}

// NewWSHub creates a hub. verify may be nil to accept unauthenticated agents.
func NewWSHub(inboxSize int, verify VerifyFunc, log *zap.Logger) *WSHub {
	if inboxSize <= 0 {
		inboxSize = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		verify: verify,
		log:    log,
		agents: map[string]*agentConn{},
		inbox:  make(chan Message, inboxSize),
		done:   make(chan struct{}),
	}
}

// Handler exposes the agent endpoint.
func (h *WSHub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/ws/agent", h.HandleAgentWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start listens on addr and serves the hub until Close. A serve failure
// closes the hub and is returned by the next Receive.
func (h *WSHub) Start(addr string, tlsCfg *tls.Config) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	h.srv = &http.Server{
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("websocket hub server failed", zap.Error(err))
			h.shutdown(err)
		}
	}()
	h.log.Info("websocket hub listening", zap.String("addr", ln.Addr().String()))
	return ln.Addr(), nil
}

// HandleAgentWS upgrades and registers the connection for a node; expects ?nodeId=xxx
func (h *WSHub) HandleAgentWS(w http.ResponseWriter, r *http.Request) {
	nodeID := r.URL.Query().Get("nodeId")
	if nodeID == "" {
		http.Error(w, "nodeId required", http.StatusBadRequest)
		return
	}
	if h.verify != nil {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		agentID, err := h.verify(token)
		if err != nil || agentID != nodeID {
			h.log.Warn("agent rejected", zap.String("node", nodeID), zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.String("node", nodeID), zap.Error(err))
		return
	}
	ac := &agentConn{conn: c}
	h.mu.Lock()
	if old, ok := h.agents[nodeID]; ok {
		_ = old.conn.Close()
	}
	h.agents[nodeID] = ac
	h.mu.Unlock()
	h.log.Info("agent connected", zap.String("node", nodeID))
	go h.readLoop(nodeID, ac)
}

func (h *WSHub) readLoop(nodeID string, ac *agentConn) {
	defer func() {
		_ = ac.conn.Close()
		h.mu.Lock()
		if h.agents[nodeID] == ac {
			delete(h.agents, nodeID)
		}
		h.mu.Unlock()
		h.log.Info("agent disconnected", zap.String("node", nodeID))
	}()
	for {
		var msg WSMessage
		if err := ac.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != TypeReport {
			h.log.Debug("ignoring agent message", zap.String("node", nodeID), zap.String("type", msg.Type))
			continue
		}
		if len(msg.Payload) == 0 {
			h.log.Warn("empty report from agent", zap.String("node", nodeID))
			continue
		}
		m := Message{ID: uuid.NewString(), Source: nodeID, Body: msg.Payload}
		select {
		case h.inbox <- m:
		case <-h.done:
			return
		}
	}
}

// Send writes a message to a connected agent.
func (h *WSHub) Send(nodeID string, msg WSMessage) error {
	h.mu.RLock()
	ac := h.agents[nodeID]
	h.mu.RUnlock()
	if ac == nil {
		return fmt.Errorf("agent %s not connected", nodeID)
	}
	return ac.writeJSON(msg)
}

// Connected reports whether nodeID currently holds a connection.
func (h *WSHub) Connected(nodeID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.agents[nodeID]
	return ok
}

func (h *WSHub) Receive(ctx context.Context) (Message, error) {
	select {
	case <-h.done:
		return Message{}, h.closeErr()
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case msg := <-h.inbox:
		return msg, nil
	}
}

// Ack tells the source agent its report has been committed.
func (h *WSHub) Ack(_ context.Context, msg Message) error {
	payload, _ := json.Marshal(map[string]string{"id": msg.ID})
	return h.Send(msg.Source, WSMessage{Type: TypeReportAck, NodeID: msg.Source, Payload: payload})
}

// Close stops the server and drops agent connections.
func (h *WSHub) Close() error {
	h.shutdown(nil)
	var err error
	if h.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = h.srv.Shutdown(ctx)
	}
	h.mu.Lock()
	for id, ac := range h.agents {
		_ = ac.conn.Close()
		delete(h.agents, id)
	}
	h.mu.Unlock()
	return err
}

func (h *WSHub) shutdown(cause error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.err = cause
		h.mu.Unlock()
		close(h.done)
	})
}

func (h *WSHub) closeErr() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.err != nil {
		return fmt.Errorf("websocket hub: %w", h.err)
	}
	return ErrClosed
}
