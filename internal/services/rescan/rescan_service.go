package rescan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"photo-indexer/internal/core/indexer"
	"photo-indexer/internal/util/timezone"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

// Scanner ist der Teil der Pipeline, den der Service braucht
type Scanner interface {
	Index(ctx context.Context, root string) (*indexer.Report, error)
	Running() bool
}

// Schedule legt fest, wann automatisch gescannt wird. Cron hat Vorrang vor Every.
type Schedule struct {
	Every time.Duration
	Cron  string
}

// Enabled meldet, ob überhaupt ein Zeitplan gesetzt ist
func (s Schedule) Enabled() bool {
	return s.Cron != "" || s.Every > 0
}

// RescanService startet Scans nach Zeitplan oder auf Anforderung (API, MQTT)
type RescanService struct {
	scanner   Scanner
	root      string
	schedule  Schedule
	scheduler *gocron.Scheduler
	job       *gocron.Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending bool
	lastRun time.Time
	lastErr error
}

// NewRescanService erstellt einen neuen Service für das Wurzelverzeichnis root
func NewRescanService(scanner Scanner, root string, schedule Schedule) *RescanService {
	scheduler := gocron.NewScheduler(timezone.Location())
	scheduler.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &RescanService{
		scanner:   scanner,
		root:      root,
		schedule:  schedule,
		scheduler: scheduler,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start plant die periodischen Scans ein. Der erste Lauf startet sofort.
func (s *RescanService) Start() error {
	if !s.schedule.Enabled() {
		log.Info("Periodic rescans disabled")
		return nil
	}

	var job *gocron.Job
	var err error
	if s.schedule.Cron != "" {
		job, err = s.scheduler.Cron(s.schedule.Cron).Do(s.runScheduled)
	} else {
		job, err = s.scheduler.Every(s.schedule.Every).Do(s.runScheduled)
	}
	if err != nil {
		return fmt.Errorf("failed to schedule rescan: %w", err)
	}
	s.job = job

	s.scheduler.StartAsync()
	log.Infof("Rescan service started for %s, next run at %s", s.root, timezone.RFC3339(job.NextRun()))
	return nil
}

// Stop hält den Scheduler an, bricht laufende Scans zwischen zwei Dateien ab
// und wartet auf ihr Ende
func (s *RescanService) Stop() {
	s.scheduler.Stop()
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	log.Info("Rescan service stopped")
}

// Trigger startet einen Scan im Hintergrund. Solange ein angeforderter Scan
// noch nicht beendet ist, liefert jeder weitere Aufruf ErrScanInProgress.
func (s *RescanService) Trigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return fmt.Errorf("rescan service is stopped")
	}
	if s.pending || s.scanner.Running() {
		return indexer.ErrScanInProgress
	}
	s.pending = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release()
		s.run("manual")
	}()
	return nil
}

// claim reserviert den nächsten Lauf für einen geplanten Scan
func (s *RescanService) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending || s.ctx.Err() != nil {
		return false
	}
	s.pending = true
	s.wg.Add(1)
	return true
}

func (s *RescanService) release() {
	s.mu.Lock()
	s.pending = false
	s.mu.Unlock()
}

// NextRun gibt den nächsten geplanten Lauf zurück (Nullwert ohne Zeitplan)
func (s *RescanService) NextRun() time.Time {
	if s.job == nil {
		return time.Time{}
	}
	return s.job.NextRun()
}

// LastRun gibt Zeitpunkt und Fehler des letzten Laufs zurück
func (s *RescanService) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

func (s *RescanService) runScheduled() {
	if !s.claim() {
		log.Info("Rescan already pending, skipping scheduled run")
		return
	}
	defer s.wg.Done()
	defer s.release()
	s.run("scheduled")
}

func (s *RescanService) run(trigger string) {
	if s.ctx.Err() != nil {
		return
	}

	logger := log.WithFields(log.Fields{"trigger": trigger, "root": s.root})
	logger.Info("Running rescan")

	report, err := s.scanner.Index(s.ctx, s.root)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.mu.Unlock()

	switch {
	case errors.Is(err, indexer.ErrScanInProgress):
		logger.Info("Scan already running, skipping")
	case errors.Is(err, context.Canceled):
		logger.Info("Rescan cancelled")
	case err != nil:
		logger.Errorf("Rescan failed: %v", err)
	default:
		logger.Infof("Rescan finished: %d indexed, %d skipped, %d failed",
			report.Indexed, report.Skipped, len(report.Failed))
	}
}
