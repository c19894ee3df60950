package charts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dangphuc2470/TrafficControlModel/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Info describes the most recently generated comparison chart images.
// Chart rendering happens out of process; the server only reports where
// the latest images live and when they were produced.
type Info struct {
	RewardsChart string    `json:"rewards_chart"`
	QueueChart   string    `json:"queue_chart"`
	Timestamp    time.Time `json:"timestamp"`
}

// Watcher monitors the charts directory for newly rendered comparison
// images
type Watcher struct {
	chartsDir string
	fsWatcher *fsnotify.Watcher
	log       *logger.Logger

	mu        sync.RWMutex
	rewards   string
	rewardsAt time.Time
	queue     string
	queueAt   time.Time
}

// NewWatcher creates a watcher over the charts directory
func NewWatcher(chartsDir string, log *logger.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Ensure directory exists
	if err := os.MkdirAll(chartsDir, 0755); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	if err := fsWatcher.Add(chartsDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		chartsDir: chartsDir,
		fsWatcher: fsWatcher,
		log:       log,
	}, nil
}

// Start begins watching for chart images. Existing images are picked up
// first so a restart does not lose the current charts.
func (w *Watcher) Start(ctx context.Context) {
	w.scanExisting()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fsWatcher.Events:
				if !ok {
					return
				}
				w.handleEvent(event)
			case err, ok := <-w.fsWatcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("Charts watcher error: %v", err)
			}
		}
	}()
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// Latest returns the newest chart images seen so far. The boolean is
// false until at least one chart exists.
func (w *Watcher) Latest() (Info, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.rewards == "" && w.queue == "" {
		return Info{}, false
	}

	ts := w.rewardsAt
	if w.queueAt.After(ts) {
		ts = w.queueAt
	}
	return Info{
		RewardsChart: w.rewards,
		QueueChart:   w.queue,
		Timestamp:    ts,
	}, true
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, ".png") {
		return
	}

	if event.Op&fsnotify.Create == fsnotify.Create || event.Op&fsnotify.Write == fsnotify.Write {
		// Small delay to ensure the image is fully written
		time.Sleep(100 * time.Millisecond)
		w.record(event.Name, time.Now())
	}
}

func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.chartsDir)
	if err != nil {
		w.log.Warn("Error reading charts directory: %v", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".png") {
			continue
		}
		modTime := time.Now()
		if info, err := entry.Info(); err == nil {
			modTime = info.ModTime()
		}
		w.record(filepath.Join(w.chartsDir, entry.Name()), modTime)
	}
}

// record classifies a chart image by filename. The renderer writes
// rewards_comparison.png and queue_comparison.png.
func (w *Watcher) record(path string, at time.Time) {
	name := filepath.Base(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case strings.HasPrefix(name, "rewards"):
		if at.After(w.rewardsAt) || w.rewards == "" {
			w.rewards = name
			w.rewardsAt = at
			w.log.Debug("New rewards chart: %s", name)
		}
	case strings.HasPrefix(name, "queue"):
		if at.After(w.queueAt) || w.queue == "" {
			w.queue = name
			w.queueAt = at
			w.log.Debug("New queue chart: %s", name)
		}
	}
}
