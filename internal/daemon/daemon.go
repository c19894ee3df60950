package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dangphuc2470/TrafficControlModel/internal/charts"
	"github.com/dangphuc2470/TrafficControlModel/internal/config"
	"github.com/dangphuc2470/TrafficControlModel/internal/logger"
	"github.com/dangphuc2470/TrafficControlModel/internal/metrics"
	"github.com/dangphuc2470/TrafficControlModel/internal/monitor"
	"github.com/dangphuc2470/TrafficControlModel/internal/registry"
	"github.com/dangphuc2470/TrafficControlModel/internal/server"
	"github.com/dangphuc2470/TrafficControlModel/internal/storage"
	"github.com/dangphuc2470/TrafficControlModel/internal/storage/snapshot"
	"github.com/dangphuc2470/TrafficControlModel/internal/storage/sqlite"
	"github.com/dangphuc2470/TrafficControlModel/internal/topology"
	"github.com/dangphuc2470/TrafficControlModel/pkg/types"
)

// Daemon is the coordination server process: HTTP broker, liveness
// monitor, charts watcher and periodic snapshot over one shared registry
type Daemon struct {
	projectDir string
	cfg        *types.Config
	store      storage.Store
	agg        *metrics.Aggregator
	reg        *registry.Registry
	graph      *topology.Graph
	mon        *monitor.Monitor
	watcher    *charts.Watcher
	srv        *server.Server
	signals    *SignalHandler
	pidFile    string
	verbose    bool
	log        *logger.Logger
}

// SetVerbose enables verbose logging
func (d *Daemon) SetVerbose(v bool) {
	d.verbose = v
	if d.log != nil {
		d.log.SetVerbose(v)
	}
}

// New creates a new daemon instance. Failures here are the only fatal
// errors in the system: a server that cannot bind, persist or register
// agents must abort rather than run degraded.
func New(projectDir string) (*Daemon, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.EnsureDirectories(projectDir, cfg); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	// Initialize logging
	logsDir := filepath.Join(projectDir, cfg.Paths.Logs)
	if err := logger.Setup(logsDir, false); err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}

	log := logger.New("Daemon", logsDir)

	store, err := sqlite.New(filepath.Join(projectDir, cfg.Storage.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	agg := metrics.New(cfg.Metrics.HistoryLimit)
	reg := registry.New(agg, store, logger.New("Registry", logsDir))
	graph := topology.New(reg, cfg.Coordination)
	mon := monitor.New(reg, cfg.Liveness, logger.New("Monitor", logsDir))

	chartsDir := filepath.Join(projectDir, cfg.Paths.Charts)
	watcher, err := charts.NewWatcher(chartsDir, logger.New("Charts", logsDir))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create charts watcher: %w", err)
	}

	srv := server.New(reg, graph, agg, watcher, chartsDir, logger.New("Server", logsDir))

	return &Daemon{
		projectDir: projectDir,
		cfg:        cfg,
		store:      store,
		agg:        agg,
		reg:        reg,
		graph:      graph,
		mon:        mon,
		watcher:    watcher,
		srv:        srv,
		signals:    NewSignalHandler(),
		pidFile:    filepath.Join(projectDir, config.DefaultConfigDir, "daemon.pid"),
		log:        log,
	}, nil
}

// Run starts the daemon and blocks until shutdown
func (d *Daemon) Run(ctx context.Context) error {
	// Write PID file
	if err := d.writePIDFile(); err != nil {
		d.log.Warn("Failed to write PID file: %v", err)
	}
	defer d.removePIDFile()

	// Setup signal handling
	ctx = d.signals.Setup(ctx)
	defer d.signals.Stop()

	d.log.Info("Starting in %s", d.projectDir)
	d.log.Info("Config: listen=%s, stale_after=%ds, speed=%.0fkm/h",
		d.cfg.Server.ListenAddr, d.cfg.Liveness.StaleAfterSecs, d.cfg.Coordination.AssumedSpeedKmh)

	// Restore agents and metrics history from previous runs
	d.log.Info("Restoring registry from storage...")
	if err := d.reg.LoadFrom(ctx, d.store, d.cfg.Metrics.HistoryLimit); err != nil {
		d.log.Warn("Failed to restore registry: %v", err)
	}
	defer d.store.Close()

	// Start the liveness sweep
	d.log.Info("Starting liveness monitor (threshold %ds, sweep every %ds)",
		d.cfg.Liveness.StaleAfterSecs, d.cfg.Liveness.SweepIntervalSecs)
	d.mon.Start(ctx)

	// Start the charts watcher
	d.log.Info("Watching charts directory %s", d.cfg.Paths.Charts)
	d.watcher.Start(ctx)
	defer d.watcher.Stop()

	// Start the HTTP server. A failed bind aborts startup.
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.srv.Start(d.cfg.Server.ListenAddr)
	}()

	d.log.Success("Ready. Accepting agent reports on %s", d.cfg.Server.ListenAddr)

	snapshotTicker := time.NewTicker(d.cfg.Storage.SnapshotInterval())
	defer snapshotTicker.Stop()

	statusTicker := time.NewTicker(1 * time.Minute)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("Shutting down...")
			d.writeSnapshot()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := d.srv.Shutdown(shutdownCtx)
			cancel()
			return err

		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil

		case <-snapshotTicker.C:
			d.writeSnapshot()

		case <-statusTicker.C:
			d.printStatus()
		}
	}
}

// writeSnapshot dumps the full registry state to the snapshot file so
// the dashboard (and a restarted server) can read it without the API
func (d *Daemon) writeSnapshot() {
	agents := d.reg.List()
	if len(agents) == 0 {
		return
	}

	data := make(map[string]*snapshot.AgentData, len(agents))
	for _, a := range agents {
		data[a.ID] = &snapshot.AgentData{
			Agent:   a,
			Samples: d.agg.Series(a.ID, 0),
		}
	}

	path := filepath.Join(d.projectDir, d.cfg.Storage.SnapshotPath)
	if err := snapshot.Write(path, data); err != nil {
		d.log.LogError(err, "writing snapshot")
		return
	}
	d.log.Debug("Snapshot written: %d agents", len(agents))
}

func (d *Daemon) printStatus() {
	agents := d.reg.List()
	online := 0
	for _, a := range agents {
		if a.Status.Online() {
			online++
		}
	}
	d.log.Debug("Status: %d agents, %d online", len(agents), online)
}

func (d *Daemon) writePIDFile() error {
	pid := os.Getpid()
	return os.WriteFile(d.pidFile, []byte(fmt.Sprintf("%d", pid)), 0644)
}

func (d *Daemon) removePIDFile() {
	os.Remove(d.pidFile)
}
