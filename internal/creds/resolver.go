// Package creds resolves LLM API credentials from an ordered list of
// sources, per spec.md §6: environment variable, then vendor-CLI OAuth file,
// then an optional third-party OAuth profile, then the on-disk config TOML.
// First hit wins. Token files are re-read on demand so the streaming client
// can retry once after a 401 with a freshly-read credential (§4.1).
package creds

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Kind distinguishes an API-key credential from an OAuth bearer credential;
// the streaming client classifies on this to choose its header shape (§4.1).
type Kind string

const (
	KindAPIKey Kind = "api_key"
	KindOAuth  Kind = "oauth"
)

// Credential is a resolved secret plus enough metadata for the caller to
// build the right request headers.
type Credential struct {
	Kind  Kind
	Value string
}

// oauthFile is the on-disk shape of a vendor CLI's stored OAuth token.
type oauthFile struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // milliseconds since epoch; 0 = no expiry
}

// Source is one ordered credential provider. EnvVar, VendorOAuthFile, and
// ConfigValue below are the concrete sources; callers assemble a Resolver
// from whichever apply.
type Source interface {
	Resolve() (Credential, bool)
}

// EnvVar resolves a credential straight from an environment variable as an
// API key.
type EnvVar struct{ Name string }

func (e EnvVar) Resolve() (Credential, bool) {
	v := os.Getenv(e.Name)
	if v == "" {
		return Credential{}, false
	}
	return Credential{Kind: KindAPIKey, Value: v}, true
}

// VendorOAuthFile resolves a Bearer credential from a vendor CLI's own
// on-disk OAuth token file (e.g. ~/.config/<vendor>/oauth.json), ignoring
// tokens whose expires_at (ms since epoch) is in the past.
type VendorOAuthFile struct{ Path string }

func (v VendorOAuthFile) Resolve() (Credential, bool) {
	data, err := os.ReadFile(v.Path)
	if err != nil {
		return Credential{}, false
	}
	var f oauthFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Credential{}, false
	}
	if f.AccessToken == "" {
		return Credential{}, false
	}
	if f.ExpiresAt > 0 && f.ExpiresAt < time.Now().UnixMilli() {
		return Credential{}, false
	}
	return Credential{Kind: KindOAuth, Value: f.AccessToken}, true
}

// ConfigValue resolves a static API key straight out of the loaded config
// document (the last-resort source).
type ConfigValue struct{ Value string }

func (c ConfigValue) Resolve() (Credential, bool) {
	if c.Value == "" {
		return Credential{}, false
	}
	return Credential{Kind: KindAPIKey, Value: c.Value}, true
}

// Resolver tries each Source in order and returns the first hit.
type Resolver struct {
	Sources []Source
}

// NewAnthropicResolver builds the standard four-source chain for the
// Anthropic provider: env var, vendor CLI OAuth file, third-party OAuth
// profile, on-disk config value.
func NewAnthropicResolver(configAPIKey string) *Resolver {
	home, _ := os.UserHomeDir()
	return &Resolver{Sources: []Source{
		EnvVar{Name: "ANTHROPIC_API_KEY"},
		VendorOAuthFile{Path: filepath.Join(home, ".config", "claude", "oauth.json")},
		VendorOAuthFile{Path: filepath.Join(home, ".config", "devman", "anthropic-oauth.json")},
		ConfigValue{Value: configAPIKey},
	}}
}

// Resolve re-reads every source in order and returns the first credential
// found. Calling this again (e.g. after a 401) re-reads files from disk, so
// a refreshed OAuth token is picked up without restarting the daemon.
func (r *Resolver) Resolve() (Credential, bool) {
	for _, s := range r.Sources {
		if c, ok := s.Resolve(); ok {
			return c, true
		}
	}
	return Credential{}, false
}
