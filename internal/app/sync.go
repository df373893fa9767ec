package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/notify"
	"github.com/frankstormy/pincafe/internal/schema"
	pcsync "github.com/frankstormy/pincafe/internal/sync"
)

// ExportSnapshot returns a consistent copy of the four collections.
func (a *App) ExportSnapshot(ctx context.Context) (*schema.Snapshot, error) {
	return a.store.ExportSnapshot(ctx)
}

// ImportSnapshot replaces the local collections with snap. Other devices
// receive the result with the next publish.
func (a *App) ImportSnapshot(ctx context.Context, snap *schema.Snapshot) error {
	if _, err := a.store.ImportSnapshot(ctx, snap); err != nil {
		return err
	}
	a.logger.Info("snapshot imported",
		zap.Int("products", len(snap.Products)),
		zap.Int("tables", len(snap.Tables)),
		zap.Int("transactions", len(snap.Transactions)))
	a.coordinator.LocalChanged()
	return nil
}

// OnSyncStatusChange calls fn with every status change until the returned
// function is called.
func (a *App) OnSyncStatusChange(fn func(pcsync.Status)) (unsubscribe func()) {
	return a.registry.AddListener(func(ev notify.Event) error {
		if ev.Kind != notify.KindStatus {
			return nil
		}
		if s, ok := ev.Payload.(pcsync.Status); ok {
			fn(s)
		}
		return nil
	})
}

// OnRemoteImport calls fn after a remote document replaced the local data.
func (a *App) OnRemoteImport(fn func()) (unsubscribe func()) {
	return a.registry.AddListener(func(ev notify.Event) error {
		if ev.Kind == notify.KindImported {
			fn()
		}
		return nil
	})
}

// GetSyncStatus returns the current sync status.
func (a *App) GetSyncStatus() pcsync.Status {
	return a.coordinator.Status()
}

// SyncEnabled reports the stored sync flag.
func (a *App) SyncEnabled() bool {
	return a.coordinator.Status().Enabled
}

// AutoSyncEnabled reports whether Start arms the coordinator.
func (a *App) AutoSyncEnabled() bool {
	return a.autoSync.Load()
}

// SetSyncEnabled stores the sync flag and applies it right away. Disabling
// leaves local data untouched.
func (a *App) SetSyncEnabled(ctx context.Context, enabled bool) error {
	if err := a.store.PutSetting(ctx, schema.SettingSyncEnabled, enabled); err != nil {
		return err
	}
	return a.coordinator.SetEnabled(ctx, enabled)
}

// SetAutoSyncEnabled stores whether sync starts at launch. Turning it on
// while sync is enabled also starts the coordinator.
func (a *App) SetAutoSyncEnabled(ctx context.Context, enabled bool) error {
	if err := a.store.PutSetting(ctx, schema.SettingAutoSync, enabled); err != nil {
		return err
	}
	a.autoSync.Store(enabled)
	if !enabled {
		return nil
	}
	err := a.coordinator.Start(context.WithoutCancel(ctx))
	if errors.Is(err, pcsync.ErrSyncDisabled) {
		return nil
	}
	return err
}

// StartSync starts the coordinator without consulting the auto-start flag.
// It returns pcsync.ErrSyncDisabled while sync is off and does nothing when
// sync is already running.
func (a *App) StartSync(ctx context.Context) error {
	return a.coordinator.Start(context.WithoutCancel(ctx))
}

// StopSync stops the coordinator. The stored flags are unchanged, so the
// next launch follows them again.
func (a *App) StopSync() {
	a.coordinator.Stop()
}

// ForceSyncNow publishes the local snapshot immediately.
func (a *App) ForceSyncNow(ctx context.Context) error {
	return a.coordinator.SyncNow(ctx)
}
