package manager

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ferguskendall2k/devman/internal/config"
	"github.com/ferguskendall2k/devman/internal/providers"
)

type fakeClient struct{}

func (fakeClient) Send(req providers.Request, onEvent providers.OnEvent) (*providers.Reply, error) {
	return &providers.Reply{Content: []providers.ContentBlock{{Kind: providers.BlockText, Text: "done"}}}, nil
}
func (fakeClient) Name() string         { return "fake" }
func (fakeClient) DefaultModel() string { return "test-model" }

type fakeBotNamer struct{ names []string }

func (f fakeBotNamer) BotNames() []string { return f.names }

func newTestManager(t *testing.T) (*Manager, *bool) {
	t.Helper()
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	cfg.Telegram = &config.TelegramConfig{BotToken: "root-token", AllowedUsers: []int64{1}}
	restart := false
	m := New(cfg, fakeClient{}, t.TempDir(), fakeBotNamer{names: []string{"manager"}}, &restart)
	return m, &restart
}

func TestAssignBotCreatesMemoryTaskMutatesConfigAndTripsRestart(t *testing.T) {
	m, restart := newTestManager(t)

	args := assignBotArgs{BotToken: "sub-token", Tasks: []string{"billing-migration"}}
	raw, _ := json.Marshal(args)
	if err := m.AssignBot("billing-bot", raw); err != nil {
		t.Fatalf("AssignBot: %v", err)
	}

	// Step 1: a memory task file now exists for the new task.
	taskPath := filepath.Join(m.MemoryRoot, "tasks", "billing-migration.md")
	if _, err := os.Stat(taskPath); err != nil {
		t.Errorf("expected memory task file at %s: %v", taskPath, err)
	}

	// Step 2: config now carries the new bot entry.
	found := false
	for _, b := range m.Config.Telegram.Bots {
		if b.Name == "billing-bot" {
			found = true
			if b.BotToken != "sub-token" {
				t.Errorf("bot_token = %q, want sub-token", b.BotToken)
			}
			if len(b.AllowedUsers) != 1 || b.AllowedUsers[0] != 1 {
				t.Errorf("expected AllowedUsers to inherit from the root telegram config, got %v", b.AllowedUsers)
			}
		}
	}
	if !found {
		t.Fatalf("billing-bot not found in config.Telegram.Bots")
	}

	// Step 3: restart_requested is now set.
	if !*restart {
		t.Errorf("expected restart_requested to be true after assign_bot")
	}
}

func TestAssignBotRejectsDuplicateName(t *testing.T) {
	m, _ := newTestManager(t)
	args, _ := json.Marshal(assignBotArgs{BotToken: "tok", Tasks: []string{"*"}})
	if err := m.AssignBot("dup", args); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if err := m.AssignBot("dup", args); err == nil {
		t.Errorf("expected an error assigning a bot name that already exists")
	}
}

func TestAssignBotWildcardTaskSkipsMemoryTaskCreation(t *testing.T) {
	m, _ := newTestManager(t)
	args, _ := json.Marshal(assignBotArgs{BotToken: "tok", Tasks: []string{"*"}})
	if err := m.AssignBot("generalist", args); err != nil {
		t.Fatalf("AssignBot: %v", err)
	}
	if _, err := os.Stat(filepath.Join(m.MemoryRoot, "tasks", "*.md")); err == nil {
		t.Errorf("did not expect a memory task file for the wildcard scope")
	}
}

func TestRemoveBotTripsRestart(t *testing.T) {
	m, restart := newTestManager(t)
	args, _ := json.Marshal(assignBotArgs{BotToken: "tok", Tasks: []string{"*"}})
	if err := m.AssignBot("temp-bot", args); err != nil {
		t.Fatalf("AssignBot: %v", err)
	}
	*restart = false

	if err := m.RemoveBot("temp-bot"); err != nil {
		t.Fatalf("RemoveBot: %v", err)
	}
	if !*restart {
		t.Errorf("expected restart_requested to be set after remove_bot")
	}
	for _, b := range m.Config.Telegram.Bots {
		if b.Name == "temp-bot" {
			t.Errorf("temp-bot should have been removed from config")
		}
	}
}

func TestListBotsDelegatesToDaemon(t *testing.T) {
	m, _ := newTestManager(t)
	names := m.ListBots()
	if len(names) != 1 || names[0] != "manager" {
		t.Errorf("ListBots() = %v, want [manager]", names)
	}
}

func TestSpawnAgentRunsAndRecordsResult(t *testing.T) {
	m, _ := newTestManager(t)
	id, err := m.SpawnAgent("", "summarize the backlog", "")
	if err != nil {
		t.Fatalf("SpawnAgent: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		agents := m.ListAgents()
		if len(agents) == 1 && !containsRunning(agents) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	agents := m.ListAgents()
	if len(agents) != 1 {
		t.Fatalf("expected one sub-agent record, got %v", agents)
	}
	m.mu.Lock()
	status, result := m.agents[id].Status, m.agents[id].Result
	m.mu.Unlock()
	if status != StatusCompleted || result != "done" {
		t.Errorf("record status = %q, result = %q; want %q, %q", status, result, StatusCompleted, "done")
	}
}

func containsRunning(agents []string) bool {
	for _, a := range agents {
		if strings.Contains(a, "[running]") {
			return true
		}
	}
	return false
}
