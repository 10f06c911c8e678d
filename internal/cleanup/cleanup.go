// Package cleanup prunes old daily log files and orphaned temporary files
// left by interrupted project saves.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/flowptr/painter-bridge/internal/logger"
)

// Cleaner performs periodic cleanup.
type Cleaner struct {
	logDir       string
	tmpDirs      []string
	interval     time.Duration
	logRetention time.Duration
	tmpRetention time.Duration
	diskWarn     float64
	diskError    float64
	now          func() time.Time
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// Config holds cleanup configuration.
type Config struct {
	LogDir           string
	TmpDirs          []string      // Directories searched for orphaned .tmp files
	Interval         time.Duration // How often to run cleanup
	LogRetention     time.Duration // How long to keep daily log files
	TmpRetention     time.Duration // Minimum age of a .tmp file before removal
	DiskWarnPercent  float64       // Warn at this disk usage percentage
	DiskErrorPercent float64       // Error at this disk usage percentage
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(logDir string, retentionDays int) Config {
	if retentionDays <= 0 {
		retentionDays = 14
	}
	return Config{
		LogDir:           logDir,
		Interval:         time.Hour,
		LogRetention:     time.Duration(retentionDays) * 24 * time.Hour,
		TmpRetention:     time.Hour,
		DiskWarnPercent:  80.0,
		DiskErrorPercent: 90.0,
	}
}

// New creates a new Cleaner with the given configuration.
func New(cfg Config) *Cleaner {
	return &Cleaner{
		logDir:       cfg.LogDir,
		tmpDirs:      cfg.TmpDirs,
		interval:     cfg.Interval,
		logRetention: cfg.LogRetention,
		tmpRetention: cfg.TmpRetention,
		diskWarn:     cfg.DiskWarnPercent,
		diskError:    cfg.DiskErrorPercent,
		now:          time.Now,
	}
}

// Start begins the periodic cleanup loop.
func (c *Cleaner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		// Run immediately on start
		c.runCleanup()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.runCleanup()
			}
		}
	}()

	logger.Printf("Cleanup started (interval=%v, log retention=%v)", c.interval, c.logRetention)
}

// Stop halts the cleanup loop.
func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
		logger.Println("Cleanup stopped")
	}
}

// runCleanup performs all cleanup tasks.
func (c *Cleaner) runCleanup() {
	c.pruneLogs()
	c.cleanupTmpFiles()
	c.checkDiskUsage()
}

// logDate extracts the day from painter-bridge-[structured-]YYYY-MM-DD.log
func logDate(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, logger.FilePrefix) || !strings.HasSuffix(name, ".log") {
		return time.Time{}, false
	}
	stem := strings.TrimSuffix(name, ".log")
	if len(stem) < len("2006-01-02") {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation("2006-01-02", stem[len(stem)-len("2006-01-02"):], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// pruneLogs removes daily log files whose day is older than the retention.
// Files not named by the logger are left alone.
func (c *Cleaner) pruneLogs() int {
	if c.logDir == "" || c.logRetention <= 0 {
		return 0
	}
	entries, err := os.ReadDir(c.logDir)
	if err != nil {
		return 0
	}

	cutoff := c.now().Add(-c.logRetention)
	var removed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		day, ok := logDate(entry.Name())
		if !ok {
			continue
		}
		// A day's file is complete at the end of that day.
		if day.AddDate(0, 0, 1).Before(cutoff) {
			if err := os.Remove(filepath.Join(c.logDir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		logger.Printf("Removed %d expired log files", removed)
	}
	return removed
}

// cleanupTmpFiles removes orphaned .tmp files older than the tmp retention.
func (c *Cleaner) cleanupTmpFiles() int {
	cutoff := c.now().Add(-c.tmpRetention)
	var removed int

	for _, dir := range c.tmpDirs {
		if dir == "" {
			continue
		}
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // Skip errors
			}
			if !info.IsDir() && strings.HasSuffix(info.Name(), ".tmp") && info.ModTime().Before(cutoff) {
				if err := os.Remove(path); err == nil {
					removed++
				}
			}
			return nil
		})
		if err != nil {
			logger.Warn("Cleanup walk error in %s: %v", dir, err)
		}
	}

	if removed > 0 {
		logger.Printf("Removed %d orphaned .tmp files", removed)
	}
	return removed
}

// checkDiskUsage monitors disk usage of the log directory.
func (c *Cleaner) checkDiskUsage() {
	_, _, usedPercent, err := c.DiskUsage()
	if err != nil {
		return
	}

	if usedPercent >= c.diskError {
		logger.Error("Disk usage at %.1f%% (log dir)", usedPercent)
	} else if usedPercent >= c.diskWarn {
		logger.Warn("Disk usage at %.1f%% (log dir)", usedPercent)
	}
}

// DiskUsage returns current disk usage stats for the log directory.
func (c *Cleaner) DiskUsage() (usedBytes, totalBytes uint64, usedPercent float64, err error) {
	var stat syscall.Statfs_t
	if err = syscall.Statfs(c.logDir, &stat); err != nil {
		return
	}

	totalBytes = stat.Blocks * uint64(stat.Bsize)
	freeBytes := stat.Bfree * uint64(stat.Bsize)
	usedBytes = totalBytes - freeBytes
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}
	return
}
