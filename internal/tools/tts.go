package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TTSTool is the optional voice synthesis tool (§4.3), a minimal real
// wrapper over the ElevenLabs REST API (plain net/http, matching goclaw's
// own external-API-call idiom in internal/tools/create_image.go rather than
// pulling in an SDK — no ElevenLabs Go SDK appears anywhere in the example
// pack). The generated audio is written into the agent's scoped storage and
// its path is returned to the LLM.
type TTSTool struct {
	client  *http.Client
	voiceID string
}

func NewTTSTool(voiceID string) *TTSTool {
	if voiceID == "" {
		voiceID = "21m00Tcm4TlvDq8ikWAM" // ElevenLabs' default "Rachel" voice
	}
	return &TTSTool{client: &http.Client{Timeout: 30 * time.Second}, voiceID: voiceID}
}

func (t *TTSTool) Name() string        { return "tts" }
func (t *TTSTool) Description() string { return "Synthesize speech from text and save it to storage as an MP3" }
func (t *TTSTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":          map[string]any{"type": "string"},
			"storage_path":  map[string]any{"type": "string", "description": "Where to write the MP3, relative to scoped storage"},
		},
		"required": []string{"text", "storage_path"},
	}
}

func (t *TTSTool) Execute(ctx context.Context, caps Capabilities, args map[string]any) *Result {
	if caps.ElevenLabsKey == "" {
		return ErrorResult("tts is not configured (no elevenlabs api key)")
	}
	if caps.TaskStorage == nil {
		return ErrorResult("storage is not available to this agent")
	}
	text := stringArg(args, "text")
	path := stringArg(args, "storage_path")
	if text == "" || path == "" {
		return ErrorResult("text and storage_path are required")
	}

	url := "https://api.elevenlabs.io/v1/text-to-speech/" + t.voiceID
	body := bytes.NewBufferString(fmt.Sprintf(`{"text":%q,"model_id":"eleven_multilingual_v2"}`, text))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return ErrorResult(err.Error())
	}
	req.Header.Set("xi-api-key", caps.ElevenLabsKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("tts request failed: %v", err))
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return ErrorResult(fmt.Sprintf("reading audio: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return ErrorResult(fmt.Sprintf("elevenlabs returned %d: %s", resp.StatusCode, truncate(string(audio), 300)))
	}

	encoded := base64.StdEncoding.EncodeToString(audio)
	if err := caps.TaskStorage.Write(path, encoded, true); err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult("wrote audio to " + path)
}
