// Package retention sweeps records whose retention window has passed.
// Activities are archived in place through the service, so every archive is
// audited and nothing is ever deleted. Cases past their deadline are only
// reported: disposition of an evidence-bearing case is an operator decision.
// A sweep holds a file lock for its duration, so two sweeps never run at
// once even across processes.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vigilops/vigil/internal/lockfile"
	"github.com/vigilops/vigil/internal/types"
)

// LockFileName is the sweep lock file under the data directory.
const LockFileName = "retention.lock"

const defaultWorkers = 4

// Engine is the slice of the service the sweeper drives.
type Engine interface {
	ListActivities(ctx context.Context, filter types.ActivityFilter, opts types.ListOptions) ([]*types.Activity, error)
	ListCases(ctx context.Context, filter types.CaseFilter, opts types.ListOptions) ([]*types.Case, error)
	GetIncident(ctx context.Context, id string) (*types.Incident, error)
	ArchiveActivity(ctx context.Context, id, summary string, actor types.ActorContext) (*types.Activity, error)
}

// Summarizer produces a closing paragraph for an activity about to be
// archived. Summarizer failures degrade to archiving without a summary.
type Summarizer interface {
	Summarize(ctx context.Context, act *types.Activity) (string, error)
}

// Options configures a Sweeper. Engine and LockPath are required.
type Options struct {
	Engine   Engine
	LockPath string

	// Workers bounds concurrent archive writes. Zero means defaultWorkers.
	Workers int

	// DryRun reports what a sweep would do without writing anything.
	DryRun bool

	// Summarizer, when set, is consulted for expired activities that fed a
	// resolved incident. Nil archives everything without summaries.
	Summarizer Summarizer

	// Logger defaults to a nop logger.
	Logger *zap.Logger

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Sweeper archives expired activities and reports expired cases.
type Sweeper struct {
	engine     Engine
	lockPath   string
	workers    int
	dryRun     bool
	summarizer Summarizer
	logger     *zap.Logger
	clock      func() time.Time
}

// NewSweeper builds a Sweeper.
func NewSweeper(opts Options) (*Sweeper, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("retention: engine is required")
	}
	if opts.LockPath == "" {
		return nil, fmt.Errorf("retention: lock path is required")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Sweeper{
		engine:     opts.Engine,
		lockPath:   opts.LockPath,
		workers:    workers,
		dryRun:     opts.DryRun,
		summarizer: opts.Summarizer,
		logger:     logger,
		clock:      clock,
	}, nil
}

// Report sums up one sweep.
type Report struct {
	Scanned      int // expired, un-archived activities found
	Archived     int
	Summarized   int
	Failed       int
	DryRun       bool
	ExpiredCases []CaseExpiry
}

// CaseExpiry flags a case held past its retention deadline.
type CaseExpiry struct {
	ID             string
	CaseNumber     string
	Type           types.CaseType
	Status         types.CaseStatus
	RetentionUntil time.Time
}

func sweepActor() types.ActorContext {
	return types.SystemActor("sweeper", "retention deadline passed")
}

// Run executes one sweep. A concurrent sweep, in this process or another,
// surfaces as lockfile.ErrLockBusy.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	lock, err := lockfile.Acquire(s.lockPath)
	if err != nil {
		if errors.Is(err, lockfile.ErrLockBusy) {
			return nil, fmt.Errorf("another sweep is already running: %w", err)
		}
		return nil, fmt.Errorf("acquire sweep lock: %w", err)
	}
	defer lock.Release()

	now := s.clock()
	notArchived := false
	expired, err := s.engine.ListActivities(ctx, types.ActivityFilter{
		ExpiredAsOf: &now,
		Archived:    &notArchived,
	}, types.ListOptions{SortBy: types.SortByCreatedAt})
	if err != nil {
		return nil, fmt.Errorf("list expired activities: %w", err)
	}

	report := &Report{Scanned: len(expired), DryRun: s.dryRun}
	if s.dryRun {
		s.logger.Info("dry run, nothing written",
			zap.Int("expired_activities", len(expired)))
	} else if len(expired) > 0 {
		if err := s.archiveAll(ctx, expired, report); err != nil {
			return report, err
		}
	}

	if err := s.reportCaseExpiry(ctx, now, report); err != nil {
		return report, err
	}

	s.logger.Info("sweep complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("archived", report.Archived),
		zap.Int("summarized", report.Summarized),
		zap.Int("failed", report.Failed),
		zap.Int("expired_cases", len(report.ExpiredCases)))
	return report, nil
}

// archiveAll fans archive writes across a bounded worker group. A failed
// record is counted and logged, never fatal: the rest of the sweep still
// runs. Only context cancellation aborts.
func (s *Sweeper) archiveAll(ctx context.Context, expired []*types.Activity, report *Report) error {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, act := range expired {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			summary := s.summaryFor(gctx, act)
			if _, err := s.engine.ArchiveActivity(gctx, act.ID, summary, sweepActor()); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Warn("archive failed",
					zap.String("activity", act.ID),
					zap.Error(err))
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			report.Archived++
			if summary != "" {
				report.Summarized++
			}
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// summaryFor asks the summarizer for a closing paragraph when the activity
// fed at least one resolved incident. Everything else archives bare.
func (s *Sweeper) summaryFor(ctx context.Context, act *types.Activity) string {
	if s.summarizer == nil || len(act.IncidentIDs) == 0 {
		return ""
	}
	resolved := false
	for _, id := range act.IncidentIDs {
		inc, err := s.engine.GetIncident(ctx, id)
		if err != nil {
			s.logger.Warn("incident lookup failed during sweep",
				zap.String("activity", act.ID),
				zap.String("incident", id),
				zap.Error(err))
			continue
		}
		if inc.Status == types.IncidentResolved {
			resolved = true
			break
		}
	}
	if !resolved {
		return ""
	}
	summary, err := s.summarizer.Summarize(ctx, act)
	if err != nil {
		s.logger.Warn("archival summary failed",
			zap.String("activity", act.ID),
			zap.Error(err))
		return ""
	}
	return summary
}

// reportCaseExpiry collects cases past their retention deadline. The same
// strict-after rule as activity expiry applies; a zero deadline never
// expires.
func (s *Sweeper) reportCaseExpiry(ctx context.Context, now time.Time, report *Report) error {
	cases, err := s.engine.ListCases(ctx, types.CaseFilter{}, types.ListOptions{SortBy: types.SortByCreatedAt})
	if err != nil {
		return fmt.Errorf("list cases: %w", err)
	}
	for _, c := range cases {
		if c.RetentionUntil.IsZero() || !now.After(c.RetentionUntil) {
			continue
		}
		report.ExpiredCases = append(report.ExpiredCases, CaseExpiry{
			ID:             c.ID,
			CaseNumber:     c.CaseNumber,
			Type:           c.Type,
			Status:         c.Status,
			RetentionUntil: c.RetentionUntil,
		})
	}
	return nil
}
