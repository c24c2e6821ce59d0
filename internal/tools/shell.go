package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"
)

// denyPatterns blocks the highest-risk command shapes before they ever run,
// grounded on goclaw's internal/tools/shell.go defaultDenyPatterns (a
// trimmed subset: the sandbox/Docker defense-in-depth layer it complements
// has no analogue here, so the host-side deny list has to carry more
// weight on its own).
var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb
	regexp.MustCompile(`\bcurl\b.*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\b(nc|ncat|netcat)\b.*-[el]\b`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`/var/run/docker\.sock`),
	regexp.MustCompile(`\bmkfs\b|\bshutdown\b|\breboot\b`),
}

// ShellTool executes a shell command on the host and returns its combined
// stdout/stderr, grounded on goclaw's ExecTool.executeOnHost path.
type ShellTool struct {
	Timeout time.Duration
}

func NewShellTool() *ShellTool {
	return &ShellTool{Timeout: 60 * time.Second}
}

func (t *ShellTool) Name() string        { return "shell" }
func (t *ShellTool) Description() string { return "Execute a shell command and return its output" }
func (t *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":     map[string]any{"type": "string", "description": "The shell command to execute"},
			"working_dir": map[string]any{"type": "string", "description": "Optional working directory for the command"},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	command := stringArg(args, "command")
	if command == "" {
		return ErrorResult("command is required")
	}
	for _, p := range denyPatterns {
		if p.MatchString(command) {
			return ErrorResult(fmt.Sprintf("command denied by safety policy: matches pattern %s", p.String()))
		}
	}

	cwd := caps.WorkingDir
	if wd := stringArg(args, "working_dir"); wd != "" {
		resolved, err := resolvePath(wd, caps.WorkingDir, caps.RestrictToRoot)
		if err != nil {
			return ErrorResult(err.Error())
		}
		cwd = resolved
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	var out string
	if stdout.Len() > 0 {
		out = stdout.String()
	}
	if stderr.Len() > 0 {
		if out != "" {
			out += "\n"
		}
		out += "STDERR:\n" + stderr.String()
	}

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return ErrorResult(fmt.Sprintf("command timed out after %s", timeout))
		}
		if out == "" {
			out = err.Error()
		}
		return ErrorResult(out)
	}
	if out == "" {
		out = "(command completed with no output)"
	}
	return SilentResult(out)
}
