package dashboard

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ferguskendall2k/devman/internal/agent"
	"github.com/ferguskendall2k/devman/internal/bot"
	"github.com/ferguskendall2k/devman/internal/config"
	"github.com/ferguskendall2k/devman/internal/contextstore"
	"github.com/ferguskendall2k/devman/internal/cost"
	"github.com/ferguskendall2k/devman/internal/manager"
	"github.com/ferguskendall2k/devman/internal/providers"
	"github.com/ferguskendall2k/devman/internal/storage"
	"github.com/ferguskendall2k/devman/internal/tools"
)

// Version is stamped by the build; "dev" outside a release build.
var Version = "dev"

// Server is the dashboard's HTTP+WS surface (§4.9).
type Server struct {
	Config      *config.Config
	Cost        *cost.Tracker
	Daemon      *bot.Daemon
	Manager     *manager.Manager
	TmpDir      string
	Broadcaster *Broadcaster
	startTime   time.Time

	upgrader websocket.Upgrader
}

func New(cfg *config.Config, c *cost.Tracker, d *bot.Daemon, m *manager.Manager, tmpDir string, b *Broadcaster) *Server {
	return &Server{
		Config:      cfg,
		Cost:        c,
		Daemon:      d,
		Manager:     m,
		TmpDir:      tmpDir,
		Broadcaster: b,
		startTime:   time.Now(),
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Mux builds the full route table (§4.9 endpoint list).
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/bots", s.handleBots)
	mux.HandleFunc("GET /api/bots/{name}/history", s.handleBotHistory)
	mux.HandleFunc("GET /api/cost", s.handleCost)
	mux.HandleFunc("GET /api/config", s.handleConfigGet)
	mux.HandleFunc("POST /api/config", s.handleConfigPost)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/tasks/{slug}/file", s.handleTaskFile)
	mux.HandleFunc("GET /api/org", s.handleOrg)
	mux.HandleFunc("GET /api/tmp", s.handleTmpStatus)
	mux.HandleFunc("POST /api/tmp/clear", s.handleTmpClear)
	mux.HandleFunc("GET /ws/chat", s.handleChatWS)
	mux.HandleFunc("GET /ws/logs", s.handleLogsWS)
	return mux
}

// ListenAndServe binds to cfg.Dashboard.Bind:Port, emitting the mandatory
// non-loopback warning before it does (§4.9: "binding anywhere else is a
// configurable error condition and must emit a warning on startup").
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Dashboard.Bind, s.Config.Dashboard.Port)
	if s.Config.Dashboard.Bind != "127.0.0.1" && s.Config.Dashboard.Bind != "localhost" {
		slog.Warn("dashboard bound to a non-loopback address; /ws/chat and /ws/logs are unauthenticated", "bind", s.Config.Dashboard.Bind)
	}
	slog.Info("dashboard listening", "addr", addr)
	return http.ListenAndServe(addr, s.Mux())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"cost_usd":       s.Cost.TotalUSD(),
		"version":        Version,
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	if s.Manager == nil {
		writeJSON(w, []string{})
		return
	}
	writeJSON(w, s.Manager.ListAgents())
}

func (s *Server) handleBots(w http.ResponseWriter, _ *http.Request) {
	if s.Daemon == nil {
		writeJSON(w, []string{})
		return
	}
	writeJSON(w, s.Daemon.BotNames())
}

func (s *Server) handleBotHistory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		http.Error(w, "chat_id is required", http.StatusBadRequest)
		return
	}
	path := filepath.Join("chats", name, chatID+".json")
	conv := contextstore.WithPersistence(path)
	writeJSON(w, conv.History())
}

func (s *Server) handleCost(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"entries":   s.Cost.Snapshot(),
		"total_usd": s.Cost.TotalUSD(),
	})
}

func (s *Server) handleConfigGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.Config)
}

func (s *Server) handleConfigPost(w http.ResponseWriter, r *http.Request) {
	var updates map[string]map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	for table := range updates {
		if table != "models" && table != "tools" && table != "agents" {
			http.Error(w, "config patch is restricted to models/tools/agents", http.StatusBadRequest)
			return
		}
	}
	if err := config.Patch(s.Config.Path(), updates); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	backlog, _, unsubscribe := s.Broadcaster.Subscribe()
	unsubscribe()
	writeJSON(w, backlog)
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	idx := storage.NewMemoryIndex(".devman/memory")
	results, err := idx.Search("")
	if err != nil {
		writeJSON(w, []string{})
		return
	}
	writeJSON(w, results)
}

func (s *Server) handleTaskFile(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}
	ts := storage.Scoped(".devman/memory", slug)
	content, err := ts.Read(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Write([]byte(content))
}

func (s *Server) handleOrg(w http.ResponseWriter, _ *http.Request) {
	type botNode struct {
		Name      string   `json:"name"`
		TaskScope []string `json:"task_scope,omitempty"`
	}
	manager := botNode{Name: "manager"}
	var scoped []botNode
	if s.Config.Telegram != nil {
		for _, b := range s.Config.Telegram.Bots {
			scoped = append(scoped, botNode{Name: b.Name, TaskScope: b.Tasks})
		}
	}
	writeJSON(w, map[string]any{"manager": manager, "bots": scoped})
}

func (s *Server) handleTmpStatus(w http.ResponseWriter, _ *http.Request) {
	entries, err := os.ReadDir(s.TmpDir)
	if err != nil {
		writeJSON(w, map[string]any{"files": 0, "bytes": 0})
		return
	}
	var count int
	var size int64
	for _, e := range entries {
		if info, err := e.Info(); err == nil {
			count++
			size += info.Size()
		}
	}
	writeJSON(w, map[string]any{"files": count, "bytes": size})
}

func (s *Server) handleTmpClear(w http.ResponseWriter, _ *http.Request) {
	entries, err := os.ReadDir(s.TmpDir)
	if err != nil {
		writeJSON(w, map[string]string{"status": "ok"})
		return
	}
	for _, e := range entries {
		_ = os.RemoveAll(filepath.Join(s.TmpDir, e.Name()))
	}
	writeJSON(w, map[string]string{"status": "cleared"})
}

// handleChatWS implements GET /ws/chat?bot=<name>: client sends {text},
// server replies {role, text}, running a fresh one-shot turn per message
// against a scratch conversation (no per-connection bot-instance Conversation
// ownership — the dashboard chat is a debugging surface, not a real channel).
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	botName := r.URL.Query().Get("bot")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conv := contextstore.New()
	for {
		var incoming struct {
			Text string `json:"text"`
		}
		if err := conn.ReadJSON(&incoming); err != nil {
			return
		}

		var loop *agent.Loop
		if s.Daemon != nil {
			for _, b := range s.Daemon.Bots {
				if b.Name == botName {
					loop = &agent.Loop{
						Client:   s.Daemon.Client,
						Registry: s.Daemon.Registry,
						Model:    b.Model,
						System:   b.SystemPrompt,
						MaxTurns: b.MaxTurns,
						Caps:     tools.Capabilities{TaskStorage: storage.GlobalStorage(s.Daemon.MemoryRoot), MemoryIndex: storage.NewMemoryIndex(s.Daemon.MemoryRoot)},
					}
					break
				}
			}
		}
		if loop == nil {
			conn.WriteJSON(map[string]string{"role": "system", "text": "unknown bot: " + botName})
			continue
		}

		res, err := loop.Run(r.Context(), conv, incoming.Text, nil)
		if err != nil {
			conn.WriteJSON(map[string]string{"role": "system", "text": "❌ Error: " + err.Error()})
			continue
		}
		_ = conn.WriteJSON(map[string]string{"role": string(providers.RoleAssistant), "text": res.Text})
	}
}

// handleLogsWS implements GET /ws/logs: streams backlog then live lines,
// with "[...skipped N...]" markers for a subscriber that falls behind.
func (s *Server) handleLogsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	backlog, ch, unsubscribe := s.Broadcaster.Subscribe()
	defer unsubscribe()

	for _, line := range backlog {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}

	for line := range ch {
		if skip := s.Broadcaster.DrainSkipped(ch); skip != "" {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(skip)); err != nil {
				return
			}
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}
}

const indexHTML = `<!doctype html>
<html><head><title>DevMan</title></head>
<body>
<h1>DevMan</h1>
<p>See /api/status, /api/bots, /api/agents, /api/cost, /ws/logs.</p>
</body></html>`
