package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/roman-kulish/radio-telemetry/internal/source"
	"github.com/roman-kulish/radio-telemetry/internal/storage"
	"github.com/roman-kulish/radio-telemetry/internal/telemetry"
)

const (
	// per10msPeriod drives consumption integration.
	per10msPeriod = 10 * time.Millisecond

	readingsBufferSize = 256
)

// dirtyFlag records that the sensor model changed since the last flush.
type dirtyFlag struct {
	atomic.Bool
}

func (d *dirtyFlag) MarkDirty() {
	d.Store(true)
}

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	src, name, err := createSource(&config.Source, logger)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	d, err := newDaemon(ctx, config, store, src, logger)
	if err != nil {
		return err
	}

	if d.session, err = store.CreateSession(ctx, name, config.Source.Protocol.String(), config); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	logger.Info("session started", slog.String("session", d.session.String()), slog.String("source", name))

	return d.run(ctx)
}

func createSource(config *SourceConfig, logger *slog.Logger) (*source.Source, string, error) {
	var h source.Handler
	if config.File != "" {
		h = source.NewFile(config.File)
	} else {
		var err error
		if h, err = source.NewCommand(config.Command, config.Args...); err != nil {
			return nil, "", err
		}
	}

	src := source.New(h,
		source.WithLogger(logger),
		source.WithParseErrorsThreshold(config.ParseErrorsThreshold))
	return src, h.Name(), nil
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, fmt.Errorf("checking storage directory: %w", err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return storage.NewSqliteStore(filepath.Join(dir, config.Database)), nil
}

// modelStore is the part of the store the control loop needs.
type modelStore interface {
	LoadModel(ctx context.Context) (telemetry.Model, error)
	SaveModel(ctx context.Context, m telemetry.Model) error
	StoreReadings(ctx context.Context, sessionID uuid.UUID, timestamp time.Time, readings []telemetry.Reading) error
}

// daemon owns the engine and is its only writer: readings, ticks and
// evaluation all run on the control loop goroutine.
type daemon struct {
	config  *Config
	store   modelStore
	source  *source.Source
	engine  *telemetry.Engine
	dirty   *dirtyFlag
	session uuid.UUID
	logger  *slog.Logger

	staleTicks telemetry.Tick

	// integratedSince and integrated count the 10 ms periods already fed to
	// Tick10ms, so ticks dropped by a busy loop are caught up.
	integratedSince time.Time
	integrated      int64

	received  uint64
	dropped   uint64
	snapshots uint64
}

func newDaemon(ctx context.Context, config *Config, store modelStore, src *source.Source, logger *slog.Logger) (*daemon, error) {
	dirty := new(dirtyFlag)
	engine := telemetry.NewEngine(newTickClock(time.Duration(config.Loop.Tick)),
		telemetry.WithLogger(logger),
		telemetry.WithWallClock(systemClock{}),
		telemetry.WithPersister(dirty),
		telemetry.WithTimezone(config.Settings.Timezone),
		telemetry.WithClockAdjust(config.Settings.AdjustRTC))

	model, err := store.LoadModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stored model: %w", err)
	}
	if len(model) == 0 {
		if model, err = config.Model(); err != nil {
			return nil, fmt.Errorf("building configured model: %w", err)
		}
		if len(model) > 0 {
			dirty.MarkDirty()
		}
		logger.Info("using configured sensor model", slog.Int("sensors", len(model)))
	} else {
		logger.Info("restored sensor model", slog.Int("sensors", len(model)))
	}
	if err = engine.LoadModel(model); err != nil {
		return nil, err
	}

	return &daemon{
		config:     config,
		store:      store,
		source:     src,
		engine:     engine,
		dirty:      dirty,
		logger:     logger,
		staleTicks: config.StaleTicks(),
	}, nil
}

func (d *daemon) run(ctx context.Context) error {
	readings := make(chan source.Reading, readingsBufferSize)
	stopped, err := d.source.Start(ctx, readings)
	if err != nil {
		return fmt.Errorf("starting source: %w", err)
	}
	defer d.source.Stop()

	per10ms := time.NewTicker(per10msPeriod)
	defer per10ms.Stop()
	cycle := time.NewTicker(time.Duration(d.config.Loop.Cycle))
	defer cycle.Stop()
	snapshot := time.NewTicker(time.Duration(d.config.Loop.SnapshotInterval))
	defer snapshot.Stop()
	flush := time.NewTicker(time.Duration(d.config.Loop.FlushInterval))
	defer flush.Stop()

	start := time.Now()
	d.integratedSince = start
	defer func() {
		d.logger.Info("session finished",
			slog.String("received", humanize.Comma(int64(d.received))),
			slog.String("dropped", humanize.Comma(int64(d.dropped))),
			slog.String("snapshots", humanize.Comma(int64(d.snapshots))),
			slog.String("started", humanize.Time(start)))
	}()

	for {
		select {
		case <-ctx.Done():
			return d.shutdown(context.WithoutCancel(ctx))

		case r := <-readings:
			d.ingest(r)

		case <-per10ms.C:
			d.integrate(time.Now())

		case <-cycle.C:
			d.cycle(readings, time.Now())

		case <-snapshot.C:
			if err = d.snapshot(ctx); err != nil {
				return err
			}

		case <-flush.C:
			if err = d.flushModel(ctx); err != nil {
				return err
			}

		case err = <-stopped:
			// the source sent everything it read before stopping
			d.drain(readings)
			d.integrate(time.Now())
			d.engine.Evaluate()

			if shutdownErr := d.shutdown(ctx); shutdownErr != nil {
				err = errors.Join(err, shutdownErr)
			}
			if err != nil {
				return fmt.Errorf("source stopped: %w", err)
			}
			return nil
		}
	}
}

// cycle evaluates calculated sensors on top of every reading already queued,
// whichever channel the loop happened to pick first.
func (d *daemon) cycle(readings <-chan source.Reading, now time.Time) {
	d.drain(readings)
	d.integrate(now)
	d.engine.Evaluate()
	d.engine.ExpireStale(d.staleTicks)
}

func (d *daemon) drain(readings <-chan source.Reading) {
	for {
		select {
		case r := <-readings:
			d.ingest(r)
		default:
			return
		}
	}
}

// integrate runs Tick10ms once for every 10 ms period elapsed up to now.
func (d *daemon) integrate(now time.Time) {
	due := int64(now.Sub(d.integratedSince) / per10msPeriod)
	for ; d.integrated < due; d.integrated++ {
		d.engine.Tick10ms()
	}
}

func (d *daemon) ingest(r source.Reading) {
	d.received++

	err := d.engine.SetTelemetryValue(r.Protocol, r.ID, r.Instance, r.Value, r.Unit, r.Precision)
	if errors.Is(err, telemetry.ErrTableFull) {
		d.dropped++
	}
}

func (d *daemon) snapshot(ctx context.Context) error {
	if err := d.store.StoreReadings(ctx, d.session, time.Now(), d.engine.Readings()); err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}
	d.snapshots++
	return nil
}

func (d *daemon) flushModel(ctx context.Context) error {
	if !d.dirty.Swap(false) {
		return nil
	}

	m := d.engine.Model()
	if err := d.store.SaveModel(ctx, m); err != nil {
		d.dirty.MarkDirty()
		return fmt.Errorf("saving model: %w", err)
	}
	d.logger.Debug("sensor model saved", slog.Int("sensors", len(m)))
	return nil
}

// shutdown stores the final snapshot and any unsaved model change.
func (d *daemon) shutdown(ctx context.Context) error {
	return errors.Join(d.snapshot(ctx), d.flushModel(ctx))
}
