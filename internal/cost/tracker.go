// Package cost implements the per-(model, bot) token/dollar cost meter
// (§2/§6), persisted to cost-tracker.json with the same atomic
// temp-file+fsync+rename pattern used by internal/contextstore and
// internal/cron.
package cost

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/ferguskendall2k/devman/internal/devmanerr"
	"github.com/ferguskendall2k/devman/internal/providers"
)

// ModelPrice is dollars per million tokens, input and output priced
// separately. No vendor price table is hardcoded (Non-goal: pricing
// tables); callers supply their own via PriceTable.
type ModelPrice struct {
	InputPerMTok  float64 `json:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok"`
}

// PriceTable maps a model name to its price. A model absent from the table
// accrues tokens but no dollar cost.
type PriceTable map[string]ModelPrice

// Entry is one (model, bot) accumulator.
type Entry struct {
	Model        string  `json:"model"`
	Bot          string  `json:"bot"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Calls        int64   `json:"calls"`
}

func key(model, bot string) string { return model + "\x00" + bot }

// Tracker accumulates usage across calls and persists atomically.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*Entry
	prices  PriceTable
	path    string
}

// NewTracker loads existing state from path if present; a missing or
// corrupt file starts empty (state-file recovery policy: start empty, the
// caller's logger records the loud warning if it wants one).
func NewTracker(path string, prices PriceTable) *Tracker {
	t := &Tracker{entries: make(map[string]*Entry), prices: prices, path: path}
	if path == "" {
		return t
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t
	}
	var list []Entry
	if err := json.Unmarshal(data, &list); err != nil {
		return t
	}
	for i := range list {
		e := list[i]
		t.entries[key(e.Model, e.Bot)] = &e
	}
	return t
}

// Record folds one LLM call's usage into the (model, bot) entry, computing
// dollar cost from the price table if the model is known.
func (t *Tracker) Record(model, bot string, usage providers.Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(model, bot)
	e, ok := t.entries[k]
	if !ok {
		e = &Entry{Model: model, Bot: bot}
		t.entries[k] = e
	}
	e.InputTokens += int64(usage.InputTokens)
	e.OutputTokens += int64(usage.OutputTokens)
	e.Calls++

	if price, ok := t.prices[model]; ok {
		e.CostUSD += float64(usage.InputTokens) / 1_000_000 * price.InputPerMTok
		e.CostUSD += float64(usage.OutputTokens) / 1_000_000 * price.OutputPerMTok
	}
}

// Snapshot returns a sorted-by-(model,bot) copy of every entry.
func (t *Tracker) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	sortEntries(out)
	return out
}

func sortEntries(es []Entry) {
	for i := 1; i < len(es); i++ {
		for j := i; j > 0; j-- {
			a, b := es[j-1], es[j]
			if a.Model < b.Model || (a.Model == b.Model && a.Bot <= b.Bot) {
				break
			}
			es[j-1], es[j] = es[j], es[j-1]
		}
	}
}

// TotalUSD sums cost across every tracked entry.
func (t *Tracker) TotalUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for _, e := range t.entries {
		total += e.CostUSD
	}
	return total
}

// Save persists the tracker atomically (JSON, pretty-printed) to path.
func (t *Tracker) Save() error {
	t.mu.Lock()
	list := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		list = append(list, *e)
	}
	path := t.path
	t.mu.Unlock()
	sortEntries(list)

	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return devmanerr.Wrap(devmanerr.StateCorrupt, "creating cost tracker dir", err)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return devmanerr.Wrap(devmanerr.StateCorrupt, "encoding cost tracker", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "cost-*.tmp")
	if err != nil {
		return devmanerr.Wrap(devmanerr.StateCorrupt, "creating temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return devmanerr.Wrap(devmanerr.StateCorrupt, "writing cost tracker", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return devmanerr.Wrap(devmanerr.StateCorrupt, "syncing cost tracker", err)
	}
	if err := tmp.Close(); err != nil {
		return devmanerr.Wrap(devmanerr.StateCorrupt, "closing temp file", err)
	}
	return os.Rename(tmpPath, path)
}
