// Package app wires the store, the sync coordinator, the subscriber registry
// and the POS services of one device into the surface the UI and the HTTP API
// talk to.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/metrics"
	"github.com/frankstormy/pincafe/internal/notify"
	"github.com/frankstormy/pincafe/internal/pos"
	"github.com/frankstormy/pincafe/internal/schema"
	"github.com/frankstormy/pincafe/internal/store"
	pcsync "github.com/frankstormy/pincafe/internal/sync"
	"github.com/frankstormy/pincafe/internal/transport"
)

// Options configures Open.
type Options struct {
	// DBPath is the SQLite database file.
	DBPath string

	// Transport carries the shared document. Required. The app closes it.
	Transport transport.Transport

	// DeviceID overrides the id stored in the database.
	DeviceID string

	// Interval between publishes (default 3s).
	Interval time.Duration

	// Clock overrides the sync clock (milliseconds).
	Clock func() int64

	// SyncEnabled and AutoSync are used until the user changes the flags;
	// after that the stored values win.
	SyncEnabled bool
	AutoSync    bool

	Logger  *zap.Logger
	Metrics *metrics.Sync
}

// App is one running device.
type App struct {
	store       *store.Store
	transport   transport.Transport
	registry    *notify.Registry
	coordinator *pcsync.Coordinator
	pos         *pos.Service
	logger      *zap.Logger
	deviceID    string
	autoSync    atomic.Bool
}

// Open opens the database, resolves the device id and builds the
// coordinator. Sync does not run until Start.
func Open(ctx context.Context, opts *Options) (*App, error) {
	if opts == nil || opts.Transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := store.Open(opts.DBPath, &store.Options{Logger: logger})
	if err != nil {
		return nil, err
	}

	a := &App{
		store:     st,
		transport: opts.Transport,
		registry:  notify.NewRegistry(),
		logger:    logger,
	}
	if err := a.init(ctx, opts); err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts *Options) error {
	deviceID, err := a.resolveDeviceID(ctx, opts.DeviceID)
	if err != nil {
		return err
	}
	a.deviceID = deviceID
	if err := a.store.SetNode(store.NodeForDevice(deviceID)); err != nil {
		return err
	}

	enabled, err := a.flag(ctx, schema.SettingSyncEnabled, opts.SyncEnabled)
	if err != nil {
		return err
	}
	autoSync, err := a.flag(ctx, schema.SettingAutoSync, opts.AutoSync)
	if err != nil {
		return err
	}
	a.autoSync.Store(autoSync)

	a.coordinator, err = pcsync.New(a.store, a.transport, a.registry, &pcsync.Config{
		Interval:      opts.Interval,
		DeviceID:      deviceID,
		Clock:         opts.Clock,
		StartDisabled: !enabled,
		Logger:        a.logger,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create sync coordinator: %w", err)
	}
	a.store.SetCommitHook(func(uint64) { a.coordinator.LocalChanged() })
	a.pos = pos.New(a.store, a.logger)

	a.logger.Info("device ready",
		zap.String("device_id", deviceID),
		zap.String("db", a.store.Path()),
		zap.Bool("sync_enabled", enabled),
		zap.Bool("auto_sync", autoSync))
	return nil
}

func (a *App) resolveDeviceID(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	var id string
	found, err := a.store.GetSetting(ctx, schema.SettingDeviceID, &id)
	if err != nil {
		return "", err
	}
	if found && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := a.store.PutSetting(ctx, schema.SettingDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

func (a *App) flag(ctx context.Context, key string, def bool) (bool, error) {
	v := def
	if _, err := a.store.GetSetting(ctx, key, &v); err != nil {
		return false, err
	}
	return v, nil
}

// Start arms the coordinator when sync and auto-start are both enabled.
func (a *App) Start(ctx context.Context) error {
	if !a.autoSync.Load() {
		a.logger.Debug("auto sync disabled, not starting")
		return nil
	}
	err := a.coordinator.Start(ctx)
	if errors.Is(err, pcsync.ErrSyncDisabled) {
		return nil
	}
	return err
}

// Close stops syncing and releases the transport and the database.
func (a *App) Close() error {
	a.coordinator.Stop()
	a.store.SetCommitHook(nil)
	return errors.Join(a.transport.Close(), a.store.Close())
}

// DeviceID returns the id this device publishes under.
func (a *App) DeviceID() string { return a.deviceID }

// POS returns the point-of-sale operations.
func (a *App) POS() *pos.Service { return a.pos }

// Store returns the local store.
func (a *App) Store() *store.Store { return a.store }

// Coordinator returns the sync coordinator.
func (a *App) Coordinator() *pcsync.Coordinator { return a.coordinator }
