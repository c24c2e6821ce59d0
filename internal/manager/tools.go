package manager

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ferguskendall2k/devman/internal/tools"
)

// RegisterManagerTools adds the manager-only reflective tools (§4.8) to reg,
// bound against caps.Manager (which callers must populate with m).
func RegisterManagerTools(reg *tools.Registry) {
	reg.Register(assignBotTool{})
	reg.Register(removeBotTool{})
	reg.Register(spawnAgentTool{})
	reg.Register(listAgentsTool{})
	reg.Register(killAgentTool{})
	reg.Register(listBotsTool{})
}

type assignBotTool struct{}

func (assignBotTool) Name() string        { return "assign_bot" }
func (assignBotTool) Description() string { return "Assign a new scoped bot instance and restart to activate it." }
func (assignBotTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":          map[string]any{"type": "string"},
			"bot_token":     map[string]any{"type": "string"},
			"tasks":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"allowed_users": map[string]any{"type": "array"},
			"default_model": map[string]any{"type": "string"},
			"memory_access": map[string]any{"type": "string"},
			"system_prompt": map[string]any{"type": "string"},
		},
		"required": []string{"name", "bot_token"},
	}
}
func (assignBotTool) Execute(_ context.Context, caps tools.Capabilities, args map[string]any) *tools.Result {
	if caps.Manager == nil {
		return tools.ErrorResult("assign_bot is only available to the manager bot")
	}
	name, _ := args["name"].(string)
	if name == "" {
		return tools.ErrorResult("assign_bot: name is required")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return tools.ErrorResult("assign_bot: " + err.Error())
	}
	if err := caps.Manager.AssignBot(name, raw); err != nil {
		return tools.ErrorResult("assign_bot: " + err.Error())
	}
	return tools.NewResult("bot " + name + " assigned; restarting to activate")
}

type removeBotTool struct{}

func (removeBotTool) Name() string               { return "remove_bot" }
func (removeBotTool) Description() string        { return "Remove a scoped bot instance and restart." }
func (removeBotTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{"name": map[string]any{"type": "string"}}, "required": []string{"name"}}
}
func (removeBotTool) Execute(_ context.Context, caps tools.Capabilities, args map[string]any) *tools.Result {
	if caps.Manager == nil {
		return tools.ErrorResult("remove_bot is only available to the manager bot")
	}
	name, _ := args["name"].(string)
	if name == "" {
		return tools.ErrorResult("remove_bot: name is required")
	}
	if err := caps.Manager.RemoveBot(name); err != nil {
		return tools.ErrorResult("remove_bot: " + err.Error())
	}
	return tools.NewResult("bot " + name + " removed; restarting to apply")
}

type listBotsTool struct{}

func (listBotsTool) Name() string               { return "list_bots" }
func (listBotsTool) Description() string        { return "List every currently running bot instance." }
func (listBotsTool) Parameters() map[string]any { return map[string]any{"type": "object", "properties": map[string]any{}} }
func (listBotsTool) Execute(_ context.Context, caps tools.Capabilities, _ map[string]any) *tools.Result {
	if caps.Manager == nil {
		return tools.ErrorResult("list_bots is only available to the manager bot")
	}
	names := caps.Manager.ListBots()
	if len(names) == 0 {
		return tools.NewResult("no bots running")
	}
	return tools.NewResult(strings.Join(names, "\n"))
}

type spawnAgentTool struct{}

func (spawnAgentTool) Name() string        { return "spawn_agent" }
func (spawnAgentTool) Description() string { return "Spawn a detached sub-agent to work on a task in the background." }
func (spawnAgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task":  map[string]any{"type": "string"},
			"model": map[string]any{"type": "string"},
			"name":  map[string]any{"type": "string"},
		},
		"required": []string{"task"},
	}
}
func (spawnAgentTool) Execute(_ context.Context, caps tools.Capabilities, args map[string]any) *tools.Result {
	if caps.Manager == nil {
		return tools.ErrorResult("spawn_agent is only available to the manager bot")
	}
	task, _ := args["task"].(string)
	if task == "" {
		return tools.ErrorResult("spawn_agent: task is required")
	}
	model, _ := args["model"].(string)
	name, _ := args["name"].(string)
	id, err := caps.Manager.SpawnAgent(name, task, model)
	if err != nil {
		return tools.ErrorResult("spawn_agent: " + err.Error())
	}
	return tools.NewResult("spawned sub-agent " + id)
}

type listAgentsTool struct{}

func (listAgentsTool) Name() string               { return "list_agents" }
func (listAgentsTool) Description() string        { return "List every sub-agent and its status." }
func (listAgentsTool) Parameters() map[string]any { return map[string]any{"type": "object", "properties": map[string]any{}} }
func (listAgentsTool) Execute(_ context.Context, caps tools.Capabilities, _ map[string]any) *tools.Result {
	if caps.Manager == nil {
		return tools.ErrorResult("list_agents is only available to the manager bot")
	}
	agents := caps.Manager.ListAgents()
	if len(agents) == 0 {
		return tools.NewResult("no sub-agents")
	}
	return tools.NewResult(strings.Join(agents, "\n"))
}

type killAgentTool struct{}

func (killAgentTool) Name() string        { return "kill_agent" }
func (killAgentTool) Description() string { return "Cancel a running sub-agent by id." }
func (killAgentTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{"id": map[string]any{"type": "string"}}, "required": []string{"id"}}
}
func (killAgentTool) Execute(_ context.Context, caps tools.Capabilities, args map[string]any) *tools.Result {
	if caps.Manager == nil {
		return tools.ErrorResult("kill_agent is only available to the manager bot")
	}
	id, _ := args["id"].(string)
	if id == "" {
		return tools.ErrorResult("kill_agent: id is required")
	}
	if err := caps.Manager.KillAgent(id); err != nil {
		return tools.ErrorResult("kill_agent: " + err.Error())
	}
	return tools.NewResult("sub-agent " + id + " killed")
}
