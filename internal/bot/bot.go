// Package bot implements the multi-bot daemon (§4.7): BotInstance state, the
// single cooperative main loop (OS signal / 30s cron tick / 500ms poll tick),
// and handle_message's seven-step contract.
//
// Grounded on goclaw's cmd/gateway.go wiring order (config → stores → tool
// registry → agents → channels → signal handling), collapsed from its
// lane-scheduler/message-bus architecture into spec.md's literal
// single-select main loop.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ferguskendall2k/devman/internal/agent"
	"github.com/ferguskendall2k/devman/internal/channels"
	"github.com/ferguskendall2k/devman/internal/contextstore"
	"github.com/ferguskendall2k/devman/internal/cost"
	"github.com/ferguskendall2k/devman/internal/cron"
	"github.com/ferguskendall2k/devman/internal/devmanerr"
	"github.com/ferguskendall2k/devman/internal/providers"
	"github.com/ferguskendall2k/devman/internal/storage"
	"github.com/ferguskendall2k/devman/internal/tools"
)

const (
	pollInterval     = 500 * time.Millisecond
	cronInterval     = 30 * time.Second
	outgoingCharCap  = 4000
	truncatedMarker  = "…(truncated)"
	maxSendRetries   = 3
)

// Instance is one running chat bot (§3 BotInstance).
type Instance struct {
	Name         string
	Frontend     channels.Frontend
	LastUpdateID int64
	ChatsDir     string
	Model        string
	SystemPrompt string
	TaskScope    []string // slug set, or {"*"}
	MemoryAccess string   // "scoped" | "full"
	MaxTokens    int
	MaxTurns     int
	AllowedUsers map[string]bool // empty set = no filter

	// ManagerCapable grants this instance's turns the reflective
	// assign_bot/spawn_agent/... tool set (§4.8) — set only on the primary
	// manager bot instance.
	ManagerCapable bool

	mu         sync.Mutex
	chatStates map[string]*contextstore.Conversation
}

// NewInstance wires a fresh bot instance. chatsDir is created lazily on first save.
func NewInstance(name string, frontend channels.Frontend, chatsDir string) *Instance {
	return &Instance{
		Name:         name,
		Frontend:     frontend,
		ChatsDir:     chatsDir,
		chatStates:   make(map[string]*contextstore.Conversation),
		AllowedUsers: map[string]bool{},
	}
}

// isAllowed implements the empty-set-means-unfiltered authorization rule (§4.7 step 1).
func (b *Instance) isAllowed(userID string) bool {
	if len(b.AllowedUsers) == 0 {
		return true
	}
	return b.AllowedUsers[userID]
}

// takeConversation moves a chat's Conversation out of the bot's map, creating
// and persisting a fresh one if none exists, enforcing the single-writer
// ownership rule of §3/§5 (a chat's Conversation is exclusively owned by the
// in-flight turn).
func (b *Instance) takeConversation(chatID string) *contextstore.Conversation {
	b.mu.Lock()
	defer b.mu.Unlock()
	conv, ok := b.chatStates[chatID]
	if !ok {
		path := filepath.Join(b.ChatsDir, chatID+".json")
		conv = contextstore.WithPersistence(path)
	}
	delete(b.chatStates, chatID)
	return conv
}

func (b *Instance) returnConversation(chatID string, conv *contextstore.Conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatStates[chatID] = conv
}

// Daemon owns every running bot instance plus the process-wide shared state
// (§4.7): the cron scheduler, the cost tracker, and the restart latch.
type Daemon struct {
	Bots       []*Instance
	Cron       *cron.Scheduler
	Cost       *cost.Tracker
	Registry   *tools.Registry
	Client     providers.Client
	MemoryRoot string
	Logger     *slog.Logger

	// Manager backs the reflective tools for ManagerCapable instances; nil
	// disables them even if a bot is flagged ManagerCapable.
	Manager tools.ManagerCapability

	RestartRequested bool
	pollErrorStreak  int
}

// BotNames implements internal/manager's BotNamer, backing the list_bots tool.
func (d *Daemon) BotNames() []string {
	names := make([]string, len(d.Bots))
	for i, b := range d.Bots {
		names[i] = b.Name
	}
	return names
}

// Run races OS signal / cron tick / poll tick until a signal or a restart
// request ends the loop, per §4.7's main-loop contract.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cronTicker := time.NewTicker(cronInterval)
	defer cronTicker.Stop()
	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := d.Cron.Save(); err != nil {
				d.logger().Error("saving cron state on shutdown", "error", err)
			}
			return nil

		case <-cronTicker.C:
			d.runCronTick(ctx)

		case <-pollTicker.C:
			if d.pollErrorStreak > 0 {
				backoff := time.Duration(minInt(1<<uint(d.pollErrorStreak), 60)) * time.Second
				time.Sleep(backoff)
			}
			d.runPollTick(ctx)
		}

		if d.RestartRequested {
			if err := d.Cron.Save(); err != nil {
				d.logger().Error("saving cron state before restart", "error", err)
			}
			return errRestartRequested
		}
	}
}

// errRestartRequested signals cmd/serve.go to exit with the supervisor's
// distinguished restart exit code (§6).
var errRestartRequested = fmt.Errorf("restart requested")

// IsRestartRequested reports whether err is the sentinel Run returns when
// RestartRequested was set.
func IsRestartRequested(err error) bool { return err == errRestartRequested }

func (d *Daemon) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Daemon) runCronTick(ctx context.Context) {
	due := d.Cron.Tick(time.Now())
	for _, job := range due {
		job := job
		go d.runCronJob(ctx, job)
	}
}

func (d *Daemon) runCronJob(ctx context.Context, job cron.Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger().Error("cron job panicked", "job", job.Name, "panic", r)
		}
	}()

	if job.Action.Kind != cron.ActionAgentTask {
		d.logger().Info("cron system event fired", "job", job.Name)
		return
	}

	loop := &agent.Loop{
		Client:   d.Client,
		Registry: d.Registry,
		Caps: tools.Capabilities{
			TaskStorage: storage.GlobalStorage(d.MemoryRoot),
			MemoryIndex: storage.NewMemoryIndex(d.MemoryRoot),
			WorkingDir:  ".",
		},
		Model:    job.Action.Model,
		MaxTurns: 25,
	}
	conv := contextstore.New()
	runCtx, cancel := context.WithTimeout(ctx, 300*time.Second)
	defer cancel()

	res, err := loop.Run(runCtx, conv, job.Action.Message, nil)
	if err != nil {
		d.logger().Error("cron agent task failed", "job", job.Name, "error", err)
		return
	}
	d.Cost.Record(job.Action.Model, job.Name, res.Usage)
}

func (d *Daemon) runPollTick(ctx context.Context) {
	roundErr := false
	for _, b := range d.Bots {
		updates, err := b.Frontend.Poll(ctx, b.LastUpdateID)
		if err != nil {
			d.logger().Warn("poll error", "bot", b.Name, "error", err)
			roundErr = true
			continue
		}
		for _, u := range updates {
			if u.UpdateID > b.LastUpdateID {
				b.LastUpdateID = u.UpdateID
			}
			if u.Text == "" && len(u.Attachments) == 0 {
				continue
			}
			d.handleMessage(ctx, b, u)
		}
	}

	if roundErr {
		d.pollErrorStreak++
		if d.pollErrorStreak == 1 {
			d.logger().Warn("network issue: bot polling is failing")
		}
	} else if d.pollErrorStreak > 0 {
		d.pollErrorStreak = 0
		d.logger().Info("recovered: bot polling is healthy again")
	}
}

// handleMessage implements §4.7's seven-step contract.
func (d *Daemon) handleMessage(ctx context.Context, b *Instance, u channels.Update) {
	// Step 1: authorization.
	if !b.isAllowed(u.UserID) {
		d.logger().Debug("message dropped: unauthorized", "bot", b.Name, "user", u.UserID)
		return
	}

	// Step 2: assemble effective user text with attachment annotations.
	text := u.Text
	for _, a := range u.Attachments {
		text += fmt.Sprintf("\n[%s downloaded: %s]", a.Kind, a.Filename)
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	// Step 3: typing indicator.
	_ = b.Frontend.SendTyping(ctx, u.ChatID)

	// Step 4: move the chat's Conversation into the turn, pre-compacting.
	conv := b.takeConversation(u.ChatID)
	if conv.MessageCount() > 2*b.MaxTurns || conv.EstimatedTokens() > 80000 {
		conv.Compact(6)
	}

	// Step 5: attach scoped or global storage per task_scope.
	var taskStorage *storage.TaskStorage
	if len(b.TaskScope) == 1 && b.TaskScope[0] != "*" {
		taskStorage = storage.Scoped(d.MemoryRoot, b.TaskScope[0])
	} else {
		taskStorage = storage.GlobalStorage(d.MemoryRoot)
	}

	var mgrCap tools.ManagerCapability
	if b.ManagerCapable {
		mgrCap = d.Manager
	}

	loop := &agent.Loop{
		Client:   d.Client,
		Registry: d.Registry,
		Caps: tools.Capabilities{
			TaskStorage: taskStorage,
			MemoryIndex: storage.NewMemoryIndex(d.MemoryRoot),
			WorkingDir:  ".",
			Manager:     mgrCap,
		},
		Model:     b.Model,
		System:    b.SystemPrompt,
		MaxTurns:  b.MaxTurns,
		MaxTokens: b.MaxTokens,
	}

	// Step 6: run the turn, send the (possibly truncated) reply.
	res, err := loop.Run(ctx, conv, text, nil)
	if err != nil {
		d.logger().Error("turn failed", "bot", b.Name, "chat", u.ChatID, "error", err)
		_ = d.sendWithRetry(ctx, b, u.ChatID, "❌ Error: "+err.Error())
		b.returnConversation(u.ChatID, conv)
		return
	}

	reply := res.Text
	if len(reply) > outgoingCharCap {
		reply = reply[:outgoingCharCap-len(truncatedMarker)] + truncatedMarker
	}
	if err := d.sendWithRetry(ctx, b, u.ChatID, reply); err != nil {
		d.logger().Error("send failed after retries", "bot", b.Name, "chat", u.ChatID, "error", err)
	}

	// Step 7: record cost, return the Conversation.
	d.Cost.Record(b.Model, b.Name, res.Usage)
	b.returnConversation(u.ChatID, conv)
}

// sendWithRetry implements the retry-on-rate-limit half of step 6: up to
// maxSendRetries attempts, sleeping retry_after seconds on a RateLimited error.
func (d *Daemon) sendWithRetry(ctx context.Context, b *Instance, chatID, text string) error {
	var lastErr error
	for attempt := 0; attempt < maxSendRetries; attempt++ {
		err := b.Frontend.SendMessage(ctx, chatID, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if devmanerr.IsKind(err, devmanerr.RateLimited) {
			wait := 1
			if de, ok := err.(*devmanerr.Error); ok && de.RetryAfter > 0 {
				wait = de.RetryAfter
			}
			time.Sleep(time.Duration(wait) * time.Second)
			continue
		}
		break
	}
	return lastErr
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
