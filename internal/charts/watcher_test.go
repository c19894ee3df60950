package charts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dangphuc2470/TrafficControlModel/internal/logger"
)

func writeChart(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("png"), 0644); err != nil {
		t.Fatalf("Failed to write chart file: %v", err)
	}
}

func TestWatcher_ScansExisting(t *testing.T) {
	dir := t.TempDir()
	writeChart(t, dir, "rewards_comparison.png")
	writeChart(t, dir, "queue_comparison.png")
	writeChart(t, dir, "notes.txt")

	w, err := NewWatcher(dir, logger.New("Charts", ""))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	info, ok := w.Latest()
	if !ok {
		t.Fatal("Existing charts must be picked up at startup")
	}
	if info.RewardsChart != "rewards_comparison.png" {
		t.Errorf("Expected rewards_comparison.png, got %s", info.RewardsChart)
	}
	if info.QueueChart != "queue_comparison.png" {
		t.Errorf("Expected queue_comparison.png, got %s", info.QueueChart)
	}
}

func TestWatcher_Empty(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), logger.New("Charts", ""))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	if _, ok := w.Latest(); ok {
		t.Error("Latest must report nothing before any chart exists")
	}
}

func TestWatcher_PicksUpNewCharts(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher(dir, logger.New("Charts", ""))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	writeChart(t, dir, "rewards_comparison.png")

	// The watcher debounces writes; give the event loop time to land
	deadline := time.Now().Add(3 * time.Second)
	for {
		if info, ok := w.Latest(); ok && info.RewardsChart == "rewards_comparison.png" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Watcher did not pick up the new chart in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestWatcher_IgnoresNonPNG(t *testing.T) {
	dir := t.TempDir()
	writeChart(t, dir, "rewards_comparison.tmp")

	w, err := NewWatcher(dir, logger.New("Charts", ""))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if _, ok := w.Latest(); ok {
		t.Error("Non-PNG files must not register as charts")
	}
}
