package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/gorilla/websocket"
)

const statsWindowDays = 7

var uuidPathRe = regexp.MustCompile(`^/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// StatsResponse is served by /api/stats
type StatsResponse struct {
	ActiveSessions int            `json:"active_sessions"`
	Connections    int            `json:"connections"`
	Events         map[string]int `json:"events"`
	DailySessions  []DayCount     `json:"daily_sessions"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub, clientDir string) *http.ServeMux {
	mux := http.NewServeMux()

	fs := http.FileServer(http.Dir(clientDir))
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		// SPA: root and session links both load the app
		if r.URL.Path == "/" || uuidPathRe.MatchString(r.URL.Path) {
			http.ServeFile(w, r, filepath.Join(clientDir, "index.html"))
			return
		}
		// FileServer strips Cache-Control from its own error responses
		name := filepath.Join(clientDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if _, err := os.Stat(name); err != nil {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	}))

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.lg.Warnf("upgrade error: %v", err)
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"sessions":    hub.sessions.Count(),
			"connections": hub.TotalConns(),
		})
	})

	mux.HandleFunc("/api/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorMsg{Msg: ErrNoDatabase.Error()})
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := hub.db.GetLeaderboard(clampLimit(limit))
		if err != nil {
			hub.lg.Errorf("leaderboard: %v", err)
			writeJSON(w, http.StatusInternalServerError, ErrorMsg{Msg: "internal error"})
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		sessions, conns := hub.analytics.LiveMetrics()
		resp := StatsResponse{ActiveSessions: sessions, Connections: conns}
		var err error
		if resp.Events, err = hub.analytics.EventCounts(statsWindowDays); err != nil {
			hub.lg.Errorf("stats: %v", err)
		}
		if resp.DailySessions, err = hub.analytics.DailySessions(statsWindowDays); err != nil {
			hub.lg.Errorf("stats: %v", err)
		}
		writeJSON(w, http.StatusOK, resp)
	})

	return mux
}
