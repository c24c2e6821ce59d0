// Package manager implements the manager BotInstance's reflective tools
// (§4.8): assign_bot, remove_bot, spawn_agent, list_agents, kill_agent,
// list_bots, and the SubAgentRecord table they maintain.
//
// Grounded on goclaw's conditional tool registration in cmd/gateway.go and
// internal/tools/subagent.go's detached-worker/result-table shape, trimmed
// of depth limits, deny lists, and announce-queue batching (no analogue in
// spec.md — the manager has no sub-agent nesting concept).
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ferguskendall2k/devman/internal/agent"
	"github.com/ferguskendall2k/devman/internal/config"
	"github.com/ferguskendall2k/devman/internal/contextstore"
	"github.com/ferguskendall2k/devman/internal/providers"
	"github.com/ferguskendall2k/devman/internal/storage"
	"github.com/ferguskendall2k/devman/internal/tools"
)

// SubAgentRecord is one spawned sub-agent's bookkeeping entry (§3).
type SubAgentRecord struct {
	ID          string
	Task        string
	Model       string
	Status      string // "running", "completed", "failed", "killed"
	Result      string
	CreatedAt   time.Time
	CompletedAt time.Time
}

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusKilled    = "killed"
)

// BotNamer is satisfied by internal/bot.Daemon: enough surface for list_bots
// without manager importing the concrete Instance type.
type BotNamer interface {
	BotNames() []string
}

// Manager owns the sub-agent table and mutates the on-disk config for the
// reflective bot-lifecycle tools (§4.8).
type Manager struct {
	Config     *config.Config
	Client     providers.Client
	MemoryRoot string
	Daemon     BotNamer

	mu               sync.Mutex
	agents           map[string]*SubAgentRecord
	cancels          map[string]context.CancelFunc
	restartRequested *bool
}

// New creates a Manager. restartRequested is a pointer into the daemon's
// restart latch so assign_bot/remove_bot can trip it (§4.8 step 3).
func New(cfg *config.Config, client providers.Client, memoryRoot string, daemon BotNamer, restartRequested *bool) *Manager {
	return &Manager{
		Config:           cfg,
		Client:           client,
		MemoryRoot:       memoryRoot,
		Daemon:           daemon,
		agents:           make(map[string]*SubAgentRecord),
		cancels:          make(map[string]context.CancelFunc),
		restartRequested: restartRequested,
	}
}

// assignBotArgs is the assign_bot tool's argument shape (§4.8): name,
// bot_token, tasks, allowed_users?, default_model?, memory_access?,
// system_prompt?.
type assignBotArgs struct {
	BotToken     string   `json:"bot_token"`
	Tasks        []string `json:"tasks"`
	AllowedUsers []int64  `json:"allowed_users,omitempty"`
	DefaultModel string   `json:"default_model,omitempty"`
	MemoryAccess string   `json:"memory_access,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

// AssignBot implements tools.ManagerCapability: §4.8 assign_bot steps 1-3.
func (m *Manager) AssignBot(name string, cfg json.RawMessage) error {
	var args assignBotArgs
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &args); err != nil {
			return fmt.Errorf("assign_bot: invalid arguments: %w", err)
		}
	}
	return m.assignBot(name, args)
}

func (m *Manager) assignBot(name string, args assignBotArgs) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Step 1: ensure a memory entry exists for every non-"*" task.
	idx := storage.NewMemoryIndex(m.MemoryRoot)
	for _, task := range args.Tasks {
		if task == "*" {
			continue
		}
		if _, err := idx.LoadTask(task); err != nil {
			if _, err := idx.CreateTask(task); err != nil {
				return fmt.Errorf("assign_bot: creating memory task %q: %w", task, err)
			}
		}
	}

	// Step 2: mutate the on-disk config.
	allowedUsers := args.AllowedUsers
	if allowedUsers == nil && m.Config.Telegram != nil {
		allowedUsers = m.Config.Telegram.AllowedUsers
	}
	memoryAccess := args.MemoryAccess
	if memoryAccess == "" {
		memoryAccess = "scoped"
	}
	systemPrompt := args.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = fmt.Sprintf("You are %s, a scoped DevMan assistant.", name)
	}

	entry := config.BotEntry{
		Name:         name,
		BotToken:     args.BotToken,
		AllowedUsers: allowedUsers,
		Tasks:        args.Tasks,
		SystemPrompt: systemPrompt,
		DefaultModel: args.DefaultModel,
		MemoryAccess: memoryAccess,
	}
	if err := m.Config.AddTelegramBot(entry); err != nil {
		return err
	}
	if err := m.Config.Save(); err != nil {
		return err
	}

	// Step 3: trip the restart latch; the daemon's main loop exits cleanly
	// and the supervisor relaunches with the new bot active.
	if m.restartRequested != nil {
		*m.restartRequested = true
	}
	return nil
}

// RemoveBot implements tools.ManagerCapability: mirrors assign_bot's
// "edit config → set restart_requested" pattern (§4.8).
func (m *Manager) RemoveBot(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.Config.RemoveTelegramBot(name); err != nil {
		return err
	}
	if err := m.Config.Save(); err != nil {
		return err
	}
	if m.restartRequested != nil {
		*m.restartRequested = true
	}
	return nil
}

// ListBots implements tools.ManagerCapability.
func (m *Manager) ListBots() []string {
	if m.Daemon == nil {
		return nil
	}
	return m.Daemon.BotNames()
}

// SpawnAgent implements tools.ManagerCapability: a detached worker running
// its own short-lived agent loop, reporting back through the SubAgentRecord
// table rather than a channel to a caller that has already returned.
func (m *Manager) SpawnAgent(name, task, model string) (string, error) {
	id := uuid.NewString()
	if model == "" {
		model = m.Client.DefaultModel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Second)
	rec := &SubAgentRecord{ID: id, Task: task, Model: model, Status: StatusRunning, CreatedAt: time.Now()}

	m.mu.Lock()
	m.agents[id] = rec
	m.cancels[id] = cancel
	m.mu.Unlock()

	go m.runSubAgent(ctx, id, task, model)

	return id, nil
}

func (m *Manager) runSubAgent(ctx context.Context, id, task, model string) {
	defer func() {
		m.mu.Lock()
		delete(m.cancels, id)
		m.mu.Unlock()
	}()

	loop := &agent.Loop{
		Client:   m.Client,
		Registry: tools.NewRegistry(),
		Caps: tools.Capabilities{
			TaskStorage: storage.GlobalStorage(m.MemoryRoot),
			MemoryIndex: storage.NewMemoryIndex(m.MemoryRoot),
			WorkingDir:  ".",
		},
		Model:    model,
		MaxTurns: 25,
	}
	conv := contextstore.New()
	res, err := loop.Run(ctx, conv, task, nil)

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.agents[id]
	if !ok {
		return
	}
	rec.CompletedAt = time.Now()
	if err != nil {
		rec.Status = StatusFailed
		rec.Result = err.Error()
		return
	}
	rec.Status = StatusCompleted
	rec.Result = res.Text
}

// ListAgents implements tools.ManagerCapability.
func (m *Manager) ListAgents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.agents))
	for _, rec := range m.agents {
		out = append(out, fmt.Sprintf("%s [%s] %s", rec.ID, rec.Status, truncate(rec.Task, 60)))
	}
	return out
}

// KillAgent implements tools.ManagerCapability: cancels a running sub-agent's
// context if still in flight.
func (m *Manager) KillAgent(id string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	rec := m.agents[id]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("no running agent %q", id)
	}
	cancel()

	m.mu.Lock()
	if rec != nil && rec.Status == StatusRunning {
		rec.Status = StatusKilled
		rec.CompletedAt = time.Now()
	}
	m.mu.Unlock()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
