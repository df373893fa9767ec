package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/frankstormy/pincafe/internal/schema"
)

const (
	backupPrefix = "pincafe-"
	backupSuffix = ".json"
	backupLayout = "20060102-150405"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Source supplies the snapshot to back up.
type Source interface {
	ExportSnapshot(ctx context.Context) (*schema.Snapshot, error)
}

// SchedulerConfig configures periodic backups.
type SchedulerConfig struct {
	// Dir receives the backup files.
	Dir string

	// Spec is a cron expression or descriptor, e.g. "@daily" or "0 */6 * * *".
	Spec string

	// Keep is how many backups to retain. Zero keeps everything.
	Keep int

	DeviceID string
	Logger   *zap.Logger

	// Now is used for file names. Defaults to time.Now.
	Now func() time.Time
}

// Scheduler writes timestamped snapshot backups on a cron schedule.
type Scheduler struct {
	source Source
	config SchedulerConfig
	logger *zap.Logger
	sched  *cron.Cron

	mu sync.Mutex
}

// NewScheduler validates the schedule and returns a stopped scheduler.
func NewScheduler(source Source, config SchedulerConfig) (*Scheduler, error) {
	if source == nil {
		return nil, fmt.Errorf("backup source cannot be nil")
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("backup directory cannot be empty")
	}
	if config.Spec == "" {
		config.Spec = "@daily"
	}
	if config.Keep < 0 {
		return nil, fmt.Errorf("backup keep count cannot be negative: %d", config.Keep)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		source: source,
		config: config,
		logger: logger.Named("archive"),
		sched:  cron.New(cron.WithParser(cronParser)),
	}
	if _, err := s.sched.AddFunc(config.Spec, s.runScheduled); err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", config.Spec, err)
	}
	return s, nil
}

// Start begins running backups in the background.
func (s *Scheduler) Start() {
	s.logger.Info("backup scheduler started",
		zap.String("dir", s.config.Dir),
		zap.String("schedule", s.config.Spec),
		zap.Int("keep", s.config.Keep))
	s.sched.Start()
}

// Stop halts the schedule and waits for a running backup to finish.
func (s *Scheduler) Stop() {
	<-s.sched.Stop().Done()
}

func (s *Scheduler) runScheduled() {
	if _, err := s.Backup(context.Background()); err != nil {
		s.logger.Error("scheduled backup failed", zap.Error(err))
	}
}

// Backup writes one backup now and prunes old ones. It returns the path
// of the new file.
func (s *Scheduler) Backup(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.source.ExportSnapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to export snapshot: %w", err)
	}

	name := backupPrefix + s.config.Now().UTC().Format(backupLayout) + backupSuffix
	path := filepath.Join(s.config.Dir, name)
	if err := WriteSnapshotFile(path, snap, s.config.DeviceID); err != nil {
		return "", err
	}
	s.logger.Info("backup written", zap.String("path", path),
		zap.Int("products", len(snap.Products)),
		zap.Int("transactions", len(snap.Transactions)))

	if err := s.prune(); err != nil {
		s.logger.Warn("failed to prune backups", zap.Error(err))
	}
	return path, nil
}

// Backups lists backup files in Dir, oldest first.
func (s *Scheduler) Backups() ([]string, error) {
	return listBackups(s.config.Dir)
}

func (s *Scheduler) prune() error {
	if s.config.Keep == 0 {
		return nil
	}
	files, err := listBackups(s.config.Dir)
	if err != nil {
		return err
	}
	for len(files) > s.config.Keep {
		if err := os.Remove(files[0]); err != nil {
			return fmt.Errorf("failed to remove %s: %w", files[0], err)
		}
		s.logger.Debug("backup pruned", zap.String("path", files[0]))
		files = files[1:]
	}
	return nil
}

// listBackups relies on the timestamp layout sorting lexically.
func listBackups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}
