package tools

import "github.com/ferguskendall2k/devman/internal/config"

// BuildRegistry assembles the name→function table per §4.3: the filesystem,
// memory, and storage tools are always present; web/VCS/TTS tools are gated
// by the boolean switches config carries (web_enabled, and the presence of
// the corresponding credential blocks). The reflective manager tools
// (spawn_agent, list_agents, ...) are registered separately by
// internal/manager, which needs a ManagerCapability it alone can supply.
func BuildRegistry(cfg *config.Config) *Registry {
	r := NewRegistry()

	r.Register(NewShellTool())
	r.Register(ReadFileTool{})
	r.Register(WriteFileTool{})
	r.Register(EditFileTool{})
	r.Register(NewApplyPatchTool())

	r.Register(MemorySearchTool{})
	r.Register(MemoryCreateTaskTool{})
	r.Register(MemoryLoadTaskTool{})
	r.Register(MemoryUpdateIndexTool{})

	r.Register(StorageReadTool{})
	r.Register(StorageWriteTool{})
	r.Register(StorageListTool{})
	r.Register(StorageDeleteTool{})
	r.Register(StorageUsageTool{})

	r.Register(GitStatusTool{})
	r.Register(GitDiffTool{})
	r.Register(GitCommitTool{})
	r.Register(GitLogTool{})

	if cfg.Tools.WebEnabled {
		r.Register(NewWebSearchTool())
		r.Register(NewWebFetchTool())
		r.Register(NewDeepResearchTool())
	}

	if cfg.GitHub != nil && cfg.GitHub.Token != "" {
		r.Register(VCSHostCreateIssueTool{})
		r.Register(VCSHostListIssuesTool{})
	}

	if cfg.ElevenLabs != nil && cfg.ElevenLabs.APIKey != "" {
		r.Register(NewTTSTool(cfg.ElevenLabs.VoiceID))
	}

	return r
}
