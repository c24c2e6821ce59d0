package cost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ferguskendall2k/devman/internal/providers"
)

func TestRecordAccumulatesAndPrices(t *testing.T) {
	prices := PriceTable{
		"claude-sonnet-4-20250514": {InputPerMTok: 3, OutputPerMTok: 15},
	}
	tr := NewTracker("", prices)
	tr.Record("claude-sonnet-4-20250514", "alpha", providers.Usage{InputTokens: 1_000_000, OutputTokens: 500_000})
	tr.Record("claude-sonnet-4-20250514", "alpha", providers.Usage{InputTokens: 1_000_000, OutputTokens: 0})

	snap := tr.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snap))
	}
	e := snap[0]
	if e.InputTokens != 2_000_000 || e.OutputTokens != 500_000 || e.Calls != 2 {
		t.Errorf("unexpected accumulation: %+v", e)
	}
	wantCost := 2*3.0 + 0.5*15.0
	if e.CostUSD != wantCost {
		t.Errorf("cost = %v, want %v", e.CostUSD, wantCost)
	}
}

func TestRecordUnknownModelAccruesTokensNoCost(t *testing.T) {
	tr := NewTracker("", PriceTable{})
	tr.Record("mystery-model", "bot1", providers.Usage{InputTokens: 100, OutputTokens: 50})
	snap := tr.Snapshot()
	if len(snap) != 1 || snap[0].CostUSD != 0 {
		t.Errorf("expected zero cost for unpriced model, got %+v", snap)
	}
}

func TestSeparateEntriesPerBot(t *testing.T) {
	tr := NewTracker("", PriceTable{})
	tr.Record("m", "bot-a", providers.Usage{InputTokens: 10})
	tr.Record("m", "bot-b", providers.Usage{InputTokens: 20})
	snap := tr.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cost-tracker.json")

	tr := NewTracker(path, PriceTable{"m": {InputPerMTok: 1, OutputPerMTok: 2}})
	tr.Record("m", "bot1", providers.Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000})
	if err := tr.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}

	reloaded := NewTracker(path, nil)
	snap := reloaded.Snapshot()
	if len(snap) != 1 || snap[0].InputTokens != 1_000_000 {
		t.Fatalf("reloaded tracker mismatch: %+v", snap)
	}
	if total := reloaded.TotalUSD(); total != 3 {
		t.Errorf("reloaded total = %v, want 3", total)
	}
}

func TestNewTrackerMissingFileStartsEmpty(t *testing.T) {
	tr := NewTracker(filepath.Join(t.TempDir(), "missing.json"), nil)
	if len(tr.Snapshot()) != 0 {
		t.Errorf("expected empty tracker for missing file")
	}
}
