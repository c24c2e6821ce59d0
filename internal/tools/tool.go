// Package tools implements the tool dispatch table (§4.3): a name→function
// registry, the unified Result return type, and the mandatory tool set.
package tools

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ferguskendall2k/devman/internal/storage"
)

// Result is the unified return type from tool execution (§4.3), grounded on
// goclaw's internal/tools/result.go, trimmed of the teacher's tracing fields
// (Usage/Provider/Model) — spec.md's tool contract has no span/telemetry
// concept (see DESIGN.md, tracing dropped as a teacher dep).
type Result struct {
	ForLLM  string
	ForUser string
	Silent  bool
	IsError bool
	Async   bool
	Err     error
}

func NewResult(forLLM string) *Result           { return &Result{ForLLM: forLLM} }
func SilentResult(forLLM string) *Result        { return &Result{ForLLM: forLLM, Silent: true} }
func ErrorResult(message string) *Result        { return &Result{ForLLM: message, IsError: true} }
func UserResult(content string) *Result         { return &Result{ForLLM: content, ForUser: content} }
func AsyncResult(message string) *Result        { return &Result{ForLLM: message, Async: true} }
func (r *Result) WithError(err error) *Result    { r.Err = err; return r }

// Capabilities bundles the per-agent collaborators a tool call may need
// (§4.3: "capabilities = { brave_api_key?, github_token?, task_storage? }").
type Capabilities struct {
	BraveAPIKey    string
	GitHubToken    string
	ElevenLabsKey  string
	TaskStorage    *storage.TaskStorage
	MemoryIndex    *storage.MemoryIndex
	WorkingDir     string
	RestrictToRoot bool

	// Manager-only capabilities; nil for scoped sub-agents.
	Manager ManagerCapability
}

// ManagerCapability is implemented by internal/manager so the reflective
// tools (spawn_agent, list_agents, ...) can be registered without internal/tools
// importing internal/manager (which itself needs internal/tools).
type ManagerCapability interface {
	SpawnAgent(name, task, model string) (string, error)
	ListAgents() []string
	KillAgent(id string) error
	AssignBot(name string, cfg json.RawMessage) error
	ListBots() []string
	RemoveBot(name string) error
}

// Definition is forwarded to the LLM verbatim (§4.3).
type Definition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Tool is one named, schema-described, executable capability.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result
}

// Registry is the name→function table (§4.3). A missing tool name is an
// error result, never a panic. Each tool gets its own token-bucket limiter
// (10 calls/sec, burst 10) so a runaway turn loop can't hammer an external
// API or the host shell — grounded on goclaw's per-tool rate limiting wired
// in cmd/gateway.go.
type Registry struct {
	mu       sync.Mutex
	tools    map[string]Tool
	order    []string
	limiters map[string]*rate.Limiter
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), limiters: make(map[string]*rate.Limiter)}
}

// Register adds or overwrites tool t, gated by the caller deciding whether
// to call Register at all (boolean config gating lives in the daemon's
// registry-build step, not here).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
		r.limiters[t.Name()] = rate.NewLimiter(rate.Limit(10), 10)
	}
	r.tools[t.Name()] = t
}

// Dispatch runs the named tool, or returns an error Result for an unknown
// name — a missing tool is never fatal to the turn loop (§4.3). A call that
// exceeds the tool's rate limit is folded back as an error Result rather
// than blocking the turn loop.
func (r *Registry) Dispatch(ctx context.Context, caps Capabilities, name string, args map[string]any) *Result {
	r.mu.Lock()
	t, ok := r.tools[name]
	limiter := r.limiters[name]
	r.mu.Unlock()
	if !ok {
		return ErrorResult("unknown tool: " + name)
	}
	if limiter != nil && !limiter.Allow() {
		return ErrorResult("rate limit exceeded for tool: " + name)
	}
	return t.Execute(ctx, caps, args)
}

// Definitions returns every registered tool's Definition, in registration
// order, ready to forward to the LLM.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		schema, _ := json.Marshal(t.Parameters())
		out = append(out, Definition{Name: t.Name(), Description: t.Description(), InputSchema: schema})
	}
	return out
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func boolArg(args map[string]any, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}
