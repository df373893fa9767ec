package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/metrics"
	"github.com/frankstormy/pincafe/internal/notify"
	"github.com/frankstormy/pincafe/internal/schema"
	"github.com/frankstormy/pincafe/internal/store"
	"github.com/frankstormy/pincafe/internal/transport"
)

// ErrSyncDisabled is returned by operations that need sync to be enabled.
var ErrSyncDisabled = errors.New("sync is disabled")

// Store is the part of the local store the coordinator needs.
type Store interface {
	ExportSnapshot(ctx context.Context) (*schema.Snapshot, error)
	ImportSnapshot(ctx context.Context, snap *schema.Snapshot) (uint64, error)
	Revision() uint64
}

// Notifier receives status and import events.
type Notifier interface {
	Notify(ev notify.Event) error
}

// Config holds coordinator configuration.
type Config struct {
	// Interval between publishes (default 3s).
	Interval time.Duration

	// DeviceID is written into published documents for diagnostics.
	DeviceID string

	// Clock returns the current time in milliseconds (default wall clock).
	Clock func() int64

	// StartDisabled creates the coordinator with sync turned off.
	StartDisabled bool

	Logger  *zap.Logger
	Metrics *metrics.Sync
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: 3 * time.Second,
		Clock:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Status is the observable state of the coordinator.
type Status struct {
	IsOnline            bool       `json:"isOnline"`
	IsSyncing           bool       `json:"isSyncing"`
	LastSyncTime        *time.Time `json:"lastSyncTime"`
	PendingChangesCount int        `json:"pendingChangesCount"`
	Enabled             bool       `json:"enabled"`
	Running             bool       `json:"running"`
	LastSyncClock       int64      `json:"lastSyncClock"`
	DeviceID            string     `json:"deviceId"`
	LastError           string     `json:"lastError,omitempty"`
}

// Coordinator publishes the local snapshot on an interval and applies newer
// remote documents. See the package documentation for the protocol.
type Coordinator struct {
	store     Store
	transport transport.Transport
	notifier  Notifier
	clock     func() int64
	deviceID  string
	logger    *zap.Logger
	metrics   *metrics.Sync

	// runMu serializes publishes and imports.
	runMu gosync.Mutex

	mu                gosync.Mutex
	interval          time.Duration
	enabled           bool
	running           bool
	syncing           bool
	online            bool
	lastSyncClock     int64
	lastSyncTime      *time.Time
	lastErr           error
	publishedRevision uint64

	// generation changes whenever the coordinator starts or stops. Work
	// started under an older generation does not touch state.
	generation  uint64
	cancel      context.CancelFunc
	unsubscribe func()
	reset       chan struct{}
}

// New creates a coordinator. Call Start to begin syncing.
func New(st Store, tr transport.Transport, notifier Notifier, config *Config) (*Coordinator, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if tr == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}

	c := &Coordinator{
		store:     st,
		transport: tr,
		notifier:  notifier,
		clock:     config.Clock,
		deviceID:  config.DeviceID,
		logger:    config.Logger,
		metrics:   config.Metrics,
		interval:  config.Interval,
		enabled:   !config.StartDisabled,
		reset:     make(chan struct{}, 1),
	}
	if c.clock == nil {
		c.clock = defaults.Clock
	}
	if c.interval <= 0 {
		c.interval = defaults.Interval
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("sync")
	return c, nil
}

// Start subscribes to remote documents and starts the publish timer. The
// coordinator keeps running until Stop, SetEnabled(false) or until ctx is
// done. Starting a running coordinator is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return ErrSyncDisabled
	}
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.startLocked(ctx)
	c.mu.Unlock()

	c.logger.Info("sync started", zap.Duration("interval", c.Interval()), zap.String("device_id", c.deviceID))
	c.emitStatus()
	return nil
}

// startLocked requires c.mu.
func (c *Coordinator) startLocked(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.generation++
	gen := c.generation
	c.cancel = cancel
	c.running = true
	c.syncing = false

	unsubscribe, err := c.transport.Subscribe(runCtx, func(doc *schema.Document) {
		if err := c.handleRemote(runCtx, gen, doc); err != nil {
			c.logger.Warn("remote document not applied", zap.Error(err))
		}
	})
	if err != nil {
		c.logger.Warn("failed to subscribe to remote document", zap.Error(err))
		c.online = false
		c.lastErr = err
		unsubscribe = func() {}
	}
	c.unsubscribe = unsubscribe

	go c.loop(runCtx, gen)
}

// Stop cancels the timer and the remote subscription. It does not wait for a
// publish or import in progress; their results are discarded.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.mu.Unlock()

	c.logger.Info("sync stopped")
	c.emitStatus()
}

// stopLocked requires c.mu.
func (c *Coordinator) stopLocked() {
	c.generation++
	c.running = false
	c.syncing = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// SetEnabled turns sync on or off. Disabling stops the coordinator without
// touching local data; enabling starts it. The run outlives ctx's deadline
// and cancellation.
func (c *Coordinator) SetEnabled(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	if c.enabled == enabled {
		c.mu.Unlock()
		return nil
	}
	c.enabled = enabled
	if !enabled {
		if c.running {
			c.stopLocked()
		} else {
			c.generation++
			c.syncing = false
		}
		c.mu.Unlock()
		c.logger.Info("sync disabled")
		c.emitStatus()
		return nil
	}
	c.mu.Unlock()

	c.logger.Info("sync enabled")
	return c.Start(context.WithoutCancel(ctx))
}

// SetInterval changes the publish interval, taking effect immediately.
func (c *Coordinator) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.interval = d
	c.mu.Unlock()

	select {
	case c.reset <- struct{}{}:
	default:
	}
}

// Interval returns the publish interval.
func (c *Coordinator) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

func (c *Coordinator) loop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(c.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if c.generation == gen && c.running {
				// The parent context ended the run.
				c.stopLocked()
				c.mu.Unlock()
				c.emitStatus()
				return
			}
			c.mu.Unlock()
			return
		case <-c.reset:
			ticker.Reset(c.Interval())
		case <-ticker.C:
			if err := c.publish(ctx, gen); err != nil && !errors.Is(err, errStale) {
				c.logger.Debug("publish failed", zap.Error(err))
			}
		}
	}
}

// errStale marks work discarded because the coordinator stopped meanwhile.
var errStale = errors.New("sync stopped during operation")

// SyncNow publishes the local snapshot immediately.
func (c *Coordinator) SyncNow(ctx context.Context) error {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return ErrSyncDisabled
	}
	gen := c.generation
	c.mu.Unlock()

	err := c.publish(ctx, gen)
	if errors.Is(err, errStale) {
		return ErrSyncDisabled
	}
	return err
}

// current reports whether work of generation gen may still change state.
// Requires c.mu.
func (c *Coordinator) currentLocked(gen uint64) bool {
	return c.enabled && c.generation == gen
}

// publish exports, stamps and publishes the local snapshot. Listeners are
// notified after runMu is released so they may call back into the
// coordinator.
func (c *Coordinator) publish(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return errStale
	}
	c.syncing = true
	c.mu.Unlock()
	c.emitStatus()

	now, err := c.runPublish(ctx, gen)
	if errors.Is(err, errStale) {
		return err
	}

	if err != nil {
		c.logger.Warn("failed to publish snapshot", zap.Error(err))
	} else {
		c.logger.Debug("snapshot published", zap.Int64("clock", now))
	}
	c.emitStatus()
	if err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// runPublish does the serialized part of publish and returns the clock
// stamped on the document.
func (c *Coordinator) runPublish(ctx context.Context, gen uint64) (int64, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return 0, errStale
	}
	now := max(c.clock(), c.lastSyncClock+1)
	c.mu.Unlock()

	snap, err := c.store.ExportSnapshot(ctx)
	if err == nil {
		doc := &schema.Document{Snapshot: *snap, LastUpdate: now, DeviceID: c.deviceID}
		err = c.transport.Publish(ctx, doc)
	}
	if err == nil || !errors.Is(err, store.ErrStorageUnavailable) {
		c.metrics.ObservePublish(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(gen) {
		return 0, errStale
	}
	c.syncing = false
	if err != nil {
		c.lastErr = err
		if !errors.Is(err, store.ErrStorageUnavailable) {
			c.online = false
		}
		return now, err
	}
	t := time.Now()
	c.lastSyncClock = now
	c.lastSyncTime = &t
	c.online = true
	c.lastErr = nil
	c.publishedRevision = snap.Revision
	return now, nil
}

// HandleRemote applies a remote document if it is newer than the last one
// published or imported. The transport subscription calls it for every
// received version; it is exported for callers that receive documents by
// other means.
func (c *Coordinator) HandleRemote(ctx context.Context, doc *schema.Document) error {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	err := c.handleRemote(ctx, gen, doc)
	if errors.Is(err, errStale) {
		return nil
	}
	return err
}

func (c *Coordinator) handleRemote(ctx context.Context, gen uint64, doc *schema.Document) error {
	if doc == nil {
		return nil
	}

	imported, err := c.runImport(ctx, gen, doc)
	switch {
	case errors.Is(err, errStale):
		return err
	case err != nil:
		c.logger.Warn("remote document rejected",
			zap.Int64("remote_clock", doc.LastUpdate),
			zap.String("remote_device", doc.DeviceID),
			zap.Error(err))
		c.emitStatus()
		return fmt.Errorf("failed to import remote document: %w", err)
	case !imported:
		return nil
	}

	c.logger.Info("remote document imported",
		zap.Int64("remote_clock", doc.LastUpdate),
		zap.String("remote_device", doc.DeviceID))

	status := c.Status()
	c.notifyEvent(notify.Event{Kind: notify.KindImported, Payload: status})
	c.emitStatus()
	return nil
}

// runImport does the serialized part of handleRemote. It reports false for
// documents no newer than the last sync.
func (c *Coordinator) runImport(ctx context.Context, gen uint64, doc *schema.Document) (bool, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return false, errStale
	}
	if doc.LastUpdate <= c.lastSyncClock {
		c.online = true
		c.mu.Unlock()
		c.metrics.ObserveImport(metrics.ImportStale)
		return false, nil
	}
	c.mu.Unlock()

	rev, err := c.store.ImportSnapshot(ctx, &doc.Snapshot)
	if err != nil {
		result := metrics.ImportFailed
		if errors.Is(err, schema.ErrImportRejected) {
			result = metrics.ImportRejected
		}
		c.metrics.ObserveImport(result)
	} else {
		c.metrics.ObserveImport(metrics.ImportApplied)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(gen) {
		return false, errStale
	}
	if err != nil {
		c.lastErr = err
		return false, err
	}
	t := time.Now()
	c.lastSyncClock = doc.LastUpdate
	c.lastSyncTime = &t
	c.online = true
	c.lastErr = nil
	c.publishedRevision = rev
	return true, nil
}

// LocalChanged re-announces the status after a local write so listeners see
// the new pending change count.
func (c *Coordinator) LocalChanged() {
	c.emitStatus()
}

// Status returns a copy of the current state.
func (c *Coordinator) Status() Status {
	rev := c.store.Revision()

	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		IsOnline:      c.online,
		IsSyncing:     c.syncing,
		Enabled:       c.enabled,
		Running:       c.running,
		LastSyncClock: c.lastSyncClock,
		DeviceID:      c.deviceID,
	}
	if c.lastSyncTime != nil {
		t := *c.lastSyncTime
		s.LastSyncTime = &t
	}
	if rev > c.publishedRevision {
		s.PendingChangesCount = int(rev - c.publishedRevision)
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

func (c *Coordinator) emitStatus() {
	status := c.Status()
	c.metrics.SetStatus(status.IsOnline, status.PendingChangesCount, status.LastSyncTime)
	c.notifyEvent(notify.Event{Kind: notify.KindStatus, Payload: status})
}

func (c *Coordinator) notifyEvent(ev notify.Event) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ev); err != nil {
		c.logger.Warn("sync listener failed", zap.String("event", string(ev.Kind)), zap.Error(err))
	}
}
