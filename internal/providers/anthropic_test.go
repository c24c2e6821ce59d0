package providers

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ferguskendall2k/devman/internal/creds"
)

// rotatingSource hands out "token-1" on its first Resolve call and
// "token-2" on every call after, modeling a credential that changes
// between the initial attempt and a post-401 refresh.
type rotatingSource struct {
	calls atomic.Int64
}

func (s *rotatingSource) Resolve() (creds.Credential, bool) {
	n := s.calls.Add(1)
	if n == 1 {
		return creds.Credential{Kind: creds.KindAPIKey, Value: "token-1"}, true
	}
	return creds.Credential{Kind: creds.KindAPIKey, Value: "token-2"}, true
}

const minimalSSEBody = "event: message_start\n" +
	"data: {\"message\":{\"usage\":{\"input_tokens\":5}}}\n\n" +
	"event: content_block_start\n" +
	"data: {\"index\":0,\"content_block\":{\"type\":\"text\"}}\n\n" +
	"event: content_block_delta\n" +
	"data: {\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"hi\"}}\n\n" +
	"event: content_block_stop\n" +
	"data: {}\n\n" +
	"event: message_delta\n" +
	"data: {\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":2}}\n\n" +
	"event: message_stop\n" +
	"data: {}\n\n"

// TestSendRetriesOnceAfter401WithRefreshedCredential exercises §4.1's
// response-handling contract: a 401 triggers exactly one re-resolve of the
// credential source, and the retried request carries the new credential value.
func TestSendRetriesOnceAfter401WithRefreshedCredential(t *testing.T) {
	var seenAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = append(seenAuth, r.Header.Get("x-api-key"))
		if len(seenAuth) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"expired"}}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(minimalSSEBody))
	}))
	defer srv.Close()

	resolver := &creds.Resolver{Sources: []creds.Source{&rotatingSource{}}}
	client := NewAnthropicClient(resolver, srv.URL, "claude-test")

	reply, err := client.Send(Request{Messages: []Message{{Role: RoleUser, Content: []ContentBlock{{Kind: BlockText, Text: "hi"}}}}}, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(seenAuth) != 2 {
		t.Fatalf("expected exactly 2 requests (initial + retry), got %d", len(seenAuth))
	}
	if seenAuth[0] != "token-1" {
		t.Errorf("first request auth = %q, want token-1", seenAuth[0])
	}
	if seenAuth[1] != "token-2" {
		t.Errorf("retried request auth = %q, want token-2", seenAuth[1])
	}

	if len(reply.Content) != 1 || reply.Content[0].Text != "hi" {
		t.Errorf("reply content = %+v", reply.Content)
	}
	if reply.Usage.InputTokens != 5 || reply.Usage.OutputTokens != 2 {
		t.Errorf("reply usage = %+v", reply.Usage)
	}
}

// TestSendFailsWhenCredentialUnchangedAfter401 covers the case where the
// resolver hands back the same (stale) value on refresh: no point retrying
// a second time, so Send must surface an Unauthorized error.
func TestSendFailsWhenCredentialUnchangedAfter401(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"expired"}}`))
	}))
	defer srv.Close()

	resolver := &creds.Resolver{Sources: []creds.Source{creds.ConfigValue{Value: "static-token"}}}
	client := NewAnthropicClient(resolver, srv.URL, "claude-test")

	_, err := client.Send(Request{Messages: []Message{{Role: RoleUser}}}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if requests != 1 {
		t.Errorf("expected the retry to be skipped, got %d requests", requests)
	}
}
