// Package staleness periodically checks imported resources against their
// source files and tells the engine about the ones that changed or vanished.
package staleness

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/flowptr/painter-bridge/internal/logger"
	"github.com/flowptr/painter-bridge/internal/metrics"
	"github.com/flowptr/painter-bridge/internal/settings"
)

// EventResourcesOutOfDate is pushed with the stale resource list
const EventResourcesOutOfDate = "RESOURCES_OUT_OF_DATE"

// Stale resource statuses
const (
	StatusModified = "modified"
	StatusMissing  = "missing"
)

// scheduleParser accepts 5-field cron plus descriptors such as "@every 1m"
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule checks a sweep schedule expression
func ValidateSchedule(expr string) error {
	if _, err := scheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid staleness schedule %q: %w", expr, err)
	}
	return nil
}

// RecordSource lists a project's imported resources
type RecordSource interface {
	Records(projectID string) ([]settings.ResourceRecord, error)
}

// StaleResource is one entry of a RESOURCES_OUT_OF_DATE push
type StaleResource struct {
	URL    string `json:"url"`
	Path   string `json:"path"`
	Status string `json:"status"`
}

// Options configures a Sweeper
type Options struct {
	Records RecordSource
	// Project returns the open project's id, or "" when none is open
	Project func() string
	// Notify pushes a command to the engine
	Notify   func(method string, params any)
	Schedule string
}

// Sweeper runs staleness checks on a cron schedule
type Sweeper struct {
	opts Options
	cron *cron.Cron

	mu       sync.Mutex
	project  string
	reported map[string]string // url -> status last pushed
}

// New creates a sweeper. The schedule is validated here.
func New(opts Options) (*Sweeper, error) {
	if opts.Records == nil || opts.Project == nil || opts.Notify == nil {
		return nil, errors.New("staleness: records, project and notify are required")
	}
	if opts.Schedule == "" {
		opts.Schedule = "@every 1m"
	}
	if err := ValidateSchedule(opts.Schedule); err != nil {
		return nil, err
	}
	return &Sweeper{
		opts:     opts,
		reported: make(map[string]string),
	}, nil
}

// Start schedules the sweep
func (s *Sweeper) Start() error {
	s.cron = cron.New(
		cron.WithParser(scheduleParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := s.cron.AddFunc(s.opts.Schedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("staleness: %w", err)
	}
	s.cron.Start()
	logger.Info("staleness: sweep scheduled %s", s.opts.Schedule)
	return nil
}

// Stop waits for a running sweep and stops the schedule
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	logger.Info("staleness: sweep stopped")
}

// Sweep checks the open project's resources once. It returns every stale
// resource and pushes RESOURCES_OUT_OF_DATE when the set gained an entry
// or an entry changed status since the last push.
func (s *Sweeper) Sweep() []StaleResource {
	projectID := s.opts.Project()

	s.mu.Lock()
	defer s.mu.Unlock()

	if projectID != s.project {
		s.project = projectID
		s.reported = make(map[string]string)
	}
	if projectID == "" {
		metrics.SetStaleResources(0)
		return nil
	}

	records, err := s.opts.Records.Records(projectID)
	if err != nil {
		logger.Error("staleness: failed to list resource records: %v", err)
		return nil
	}

	var stale []StaleResource
	current := make(map[string]string)
	changed := false
	for i := range records {
		status := check(&records[i])
		if status == "" {
			continue
		}
		stale = append(stale, StaleResource{URL: records[i].URL, Path: records[i].Path, Status: status})
		current[records[i].URL] = status
		if s.reported[records[i].URL] != status {
			changed = true
		}
	}
	s.reported = current
	metrics.SetStaleResources(len(stale))

	if changed {
		logger.Info("staleness: %d imported resource(s) out of date", len(stale))
		s.opts.Notify(EventResourcesOutOfDate, map[string]any{"resources": stale})
	}
	return stale
}

// check returns the stale status of a record, or "" when it is current
func check(r *settings.ResourceRecord) string {
	info, err := os.Stat(r.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return StatusMissing
		}
		logger.Warn("staleness: cannot stat %s: %v", r.Path, err)
		return ""
	}
	if r.Fingerprint == "" {
		return ""
	}
	if info.Size() == r.Size && info.ModTime().Equal(r.ModTime) {
		return ""
	}

	state, err := Fingerprint(r.Path)
	if err != nil {
		logger.Warn("staleness: cannot fingerprint %s: %v", r.Path, err)
		return ""
	}
	if state.Fingerprint != r.Fingerprint {
		return StatusModified
	}
	return ""
}
