package server

import (
	"context"
	"fmt"
	"sync"

	"atc-sim/internal/log"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// HubConfig wires a Hub. DB may be nil, which disables accounts and the
// leaderboard; Analytics may be nil.
type HubConfig struct {
	Session   SessionConfig
	DB        *DB
	Analytics *Analytics
	Logger    *log.Logger
}

// Hub manages all connected clients and routes them to sessions
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	sessions   *SessionManager

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int

	db        *DB
	auth      *Auth
	analytics *Analytics
	lg        *log.Logger
}

// NewHub creates a new Hub
func NewHub(cfg HubConfig) (*Hub, error) {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		sessions:   NewSessionManager(cfg.Session, cfg.DB, cfg.Analytics, cfg.Logger),
		ipConns:    make(map[string]int),
		db:         cfg.DB,
		analytics:  cfg.Analytics,
		lg:         cfg.Logger,
	}
	if cfg.DB != nil {
		auth, err := NewAuth(cfg.DB, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		h.auth = auth
	}
	return h, nil
}

// Sessions returns the hub's session manager
func (h *Hub) Sessions() *SessionManager {
	return h.sessions
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.analytics.SetConnections(n)
			h.lg.Debug("client connected", "remote", client.remoteAddr)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.analytics.SetConnections(n)
			h.lg.Debug("client disconnected", "remote", client.remoteAddr, "sid", client.sessionID)

			// keep the session for a resume
			if client.sessionID != "" {
				if sess := h.sessions.GetSession(client.sessionID); sess != nil {
					h.sessions.Detach(sess, client)
				}
			}
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
