// Package indexer durchläuft ein Verzeichnis, dedupliziert Bilder über ihren Inhalts-Hash
// und speichert Tags und Gesichter pro neuer Datei atomar.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"photo-indexer/config"
	"photo-indexer/internal/core/events"
	"photo-indexer/internal/core/models"
	"photo-indexer/internal/core/resolver"
	"photo-indexer/internal/db/repository"
	"photo-indexer/internal/hasher"
	"photo-indexer/internal/integrations/detection"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ErrScanInProgress wird zurückgegeben, wenn bereits ein Scan läuft
var ErrScanInProgress = errors.New("scan already in progress")

// DefaultExtensions sind die akzeptierten Dateiendungen
var DefaultExtensions = []string{"jpg", "jpeg", "png", "webp"}

// Options steuern den Scan
type Options struct {
	Extensions  []string
	Workers     int     // 1 = streng sequentiell
	PersonLabel string  // Label, das die Gesichtserkennung auslöst
	Threshold   float64 // maximaler Abstand für dieselbe Identität
}

// OptionsFromConfig übernimmt die Scanner- und Resolver-Einstellungen
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Extensions:  cfg.Scanner.Extensions,
		Workers:     cfg.Scanner.Workers,
		PersonLabel: cfg.Scanner.PersonLabel,
		Threshold:   cfg.Resolver.Threshold,
	}
}

// ProgressFunc wird nach jeder verarbeiteten Datei aufgerufen
type ProgressFunc func(processed, total int)

// Indexer ist die Indexierungs-Pipeline
type Indexer struct {
	store    repository.Store
	tagger   detection.ObjectTagger
	faces    detection.FaceExtractor
	resolver *resolver.Resolver
	notifier events.Notifier
	opts     Options
	exts     map[string]struct{}

	running  atomic.Bool
	writeMu  sync.Mutex
	progress ProgressFunc

	statusMu sync.RWMutex
	status   Status
	pool     *WorkerPool
}

// analysis ist das Ergebnis der lesenden Phase einer Datei
type analysis struct {
	path        string
	hash        string
	duplicateOf uint
	tags        []detection.Tag
	faces       []detection.Face
	err         error
}

// persisted ist das Ergebnis der schreibenden Phase einer Datei
type persisted struct {
	imageID     uint
	created     bool
	newProfiles []uint
}

// New erstellt eine neue Pipeline. faces darf nil sein, Bilder mit Personen schlagen dann fehl.
func New(store repository.Store, tagger detection.ObjectTagger, faces detection.FaceExtractor,
	res *resolver.Resolver, notifier events.Notifier, opts Options) *Indexer {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PersonLabel == "" {
		opts.PersonLabel = "person"
	}
	if opts.Threshold <= 0 {
		opts.Threshold = resolver.DefaultThreshold
	}
	if notifier == nil {
		notifier = events.Nop{}
	}
	if res == nil {
		res = resolver.New(nil)
	}

	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		exts[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}

	return &Indexer{
		store:    store,
		tagger:   tagger,
		faces:    faces,
		resolver: res,
		notifier: notifier,
		opts:     opts,
		exts:     exts,
		status: Status{
			Workers:  opts.Workers,
			Strategy: res.StrategyName(),
		},
	}
}

// SetProgressFunc registriert einen Fortschritts-Callback
func (ix *Indexer) SetProgressFunc(fn ProgressFunc) {
	ix.progress = fn
}

// Running meldet, ob gerade ein Scan läuft
func (ix *Indexer) Running() bool {
	return ix.running.Load()
}

// Status liefert eine Momentaufnahme des Zustands
func (ix *Indexer) Status() Status {
	ix.statusMu.RLock()
	defer ix.statusMu.RUnlock()

	s := ix.status
	s.Running = ix.running.Load()
	if ix.pool != nil {
		s.Workers = ix.pool.GetWorkerCount()
		s.ActiveJobs = ix.pool.ActiveJobCount()
	}
	return s
}

// Index durchläuft root rekursiv und indexiert alle neuen Bilder.
// Fehler einzelner Dateien landen im Report, nur Fehler beim Wurzelverzeichnis
// oder ein abgebrochener Kontext werden zurückgegeben.
func (ix *Indexer) Index(ctx context.Context, root string) (*Report, error) {
	if !ix.running.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	defer ix.running.Store(false)

	report := &Report{
		RunID:     uuid.NewString(),
		Root:      root,
		StartedAt: time.Now(),
	}

	paths, err := ix.discover(root, report)
	if err != nil {
		return nil, err
	}
	report.Discovered = len(paths)

	ix.beginRun(report)
	ix.emit(events.Event{Type: events.ScanStarted, RunID: report.RunID, Path: root})
	log.WithFields(log.Fields{"run_id": report.RunID, "root": root}).
		Infof("Starting scan: %d candidate files, %d workers", len(paths), ix.opts.Workers)

	if ix.opts.Workers > 1 {
		err = ix.runParallel(ctx, paths, report)
	} else {
		err = ix.runSequential(ctx, paths, report)
	}

	report.FinishedAt = time.Now()
	ix.endRun(report)
	ix.emit(events.Event{Type: events.ScanFinished, RunID: report.RunID, Path: root, Data: report})

	log.WithFields(log.Fields{"run_id": report.RunID}).Infof(
		"Scan complete in %v: %d indexed, %d skipped, %d failed, %d new profiles",
		report.Duration().Round(time.Millisecond), report.Indexed, report.Skipped, len(report.Failed), report.ProfilesCreated)

	return report, err
}

// discover sammelt alle Dateien mit akzeptierter Endung
func (ix *Indexer) discover(root string, report *Report) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Warnf("Cannot read %s: %v", path, err)
			report.fail(path, err)
			return nil
		}
		if !d.IsDir() && ix.accepts(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return paths, nil
}

func (ix *Indexer) accepts(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	_, ok := ix.exts[ext]
	return ok
}

func (ix *Indexer) runSequential(ctx context.Context, paths []string, report *Report) error {
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		ix.commit(ctx, ix.analyze(ctx, path), report)
		ix.advance(i+1, len(paths))
	}
	return ctx.Err()
}

// runParallel analysiert Dateien im Worker-Pool, übernimmt die Ergebnisse aber in
// Fundreihenfolge. Dadurch bleibt die Profilzuordnung deterministisch.
func (ix *Indexer) runParallel(ctx context.Context, paths []string, report *Report) error {
	pool := NewWorkerPool(ix.opts.Workers, ix.analyze)
	ix.setPool(pool)
	defer func() {
		pool.Shutdown()
		ix.setPool(nil)
	}()

	pending := make(chan (<-chan analysis), ix.opts.Workers*2)
	go func() {
		defer close(pending)
		for _, path := range paths {
			ch, err := pool.Submit(ctx, path)
			if err != nil {
				return
			}
			pending <- ch
		}
	}()

	processed := 0
	for ch := range pending {
		result := <-ch
		if ctx.Err() != nil {
			// Datei bleibt unangetastet und wird beim nächsten Scan erneut versucht
			continue
		}
		ix.commit(ctx, result, report)
		processed++
		ix.advance(processed, len(paths))
	}
	return ctx.Err()
}

// analyze ist die lesende Phase: Hash, Dedup-Prüfung und Detektion. Es wird nichts geschrieben.
func (ix *Indexer) analyze(ctx context.Context, path string) analysis {
	a := analysis{path: path}

	hash, err := hasher.Fingerprint(path)
	if err != nil {
		a.err = fmt.Errorf("fingerprint: %w", err)
		return a
	}
	a.hash = hash

	existing, err := ix.store.FindImageByHash(ctx, hash)
	if err != nil {
		a.err = fmt.Errorf("lookup fingerprint: %w", err)
		return a
	}
	if existing != nil {
		a.duplicateOf = existing.ID
		return a
	}

	tags, err := ix.tagger.DetectObjects(ctx, path)
	if err != nil {
		a.err = fmt.Errorf("object detection: %w", err)
		return a
	}
	a.tags = tags

	if detection.HasLabel(tags, ix.opts.PersonLabel) {
		if ix.faces == nil {
			a.err = fmt.Errorf("face extraction: %w", detection.ErrUnavailable)
			return a
		}
		faces, err := ix.faces.ExtractFaces(ctx, path)
		if err != nil {
			a.err = fmt.Errorf("face extraction: %w", err)
			return a
		}
		a.faces = faces
	}

	return a
}

// commit übernimmt das Analyseergebnis in den Store und aktualisiert den Report
func (ix *Indexer) commit(ctx context.Context, a analysis, report *Report) {
	logger := log.WithFields(log.Fields{"run_id": report.RunID, "path": a.path})

	if a.err != nil {
		ix.failed(logger, report, a.path, a.err)
		return
	}
	if a.duplicateOf != 0 {
		ix.skipped(logger, report, a.path, a.duplicateOf)
		return
	}

	out, err := ix.persist(ctx, a)
	if err != nil {
		ix.failed(logger, report, a.path, err)
		return
	}
	if !out.created {
		// ein anderer Schreiber hat denselben Inhalt zuerst eingefügt
		ix.skipped(logger, report, a.path, out.imageID)
		return
	}

	report.Indexed++
	report.TagsWritten += len(a.tags)
	report.FacesWritten += len(a.faces)
	report.ProfilesCreated += len(out.newProfiles)

	for _, id := range out.newProfiles {
		ix.emit(events.Event{Type: events.ProfileCreated, RunID: report.RunID, Path: a.path, ImageID: out.imageID, ProfileID: id})
	}

	labels := make([]string, len(a.tags))
	for i, t := range a.tags {
		labels[i] = t.Label
	}
	ix.emit(events.Event{
		Type:    events.ImageIndexed,
		RunID:   report.RunID,
		Path:    a.path,
		ImageID: out.imageID,
		Tags:    labels,
		Faces:   len(a.faces),
	})

	logger.Infof("Indexed image %d (%d tags, %d faces)", out.imageID, len(a.tags), len(a.faces))
}

// persist schreibt Bild, Tags und Gesichter in einer Transaktion. Schlägt ein Schritt
// fehl, wird alles zurückgerollt, auch die für diese Datei angelegten Profile.
func (ix *Indexer) persist(ctx context.Context, a analysis) (persisted, error) {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	var out persisted
	err := ix.store.Transaction(ctx, func(tx repository.Store) error {
		out = persisted{}

		id, created, err := tx.InsertImageIfAbsent(ctx, &models.Image{Path: a.path, ContentHash: a.hash})
		if err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
		out.imageID, out.created = id, created
		if !created {
			return nil
		}

		tags := make([]models.Tag, len(a.tags))
		for i, t := range a.tags {
			tags[i] = models.Tag{ImageID: id, Label: t.Label, Confidence: t.Confidence}
		}
		if err := tx.CreateTags(ctx, tags); err != nil {
			return err
		}

		for i, face := range a.faces {
			embedding := models.Embedding(face.Embedding)
			res, err := ix.resolver.Resolve(ctx, tx, embedding, ix.opts.Threshold)
			if err != nil {
				return fmt.Errorf("resolve face %d: %w", i, err)
			}
			if res.Created {
				out.newProfiles = append(out.newProfiles, res.ProfileID)
			}

			loc := face.Location
			detectionRow := &models.FaceDetection{
				ImageID:   id,
				ProfileID: res.ProfileID,
				BoundingBox: datatypes.NewJSONType(models.BoundingBox{
					Top: loc.Top, Right: loc.Right, Bottom: loc.Bottom, Left: loc.Left,
				}),
				Embedding: embedding,
			}
			if err := tx.CreateFaceDetection(ctx, detectionRow); err != nil {
				return fmt.Errorf("insert face %d: %w", i, err)
			}
		}
		return nil
	})
	return out, err
}

func (ix *Indexer) failed(logger *log.Entry, report *Report, path string, err error) {
	report.fail(path, err)
	logger.Warnf("Failed to index: %v", err)
	ix.emit(events.Event{Type: events.ImageFailed, RunID: report.RunID, Path: path, Error: err.Error()})
}

func (ix *Indexer) skipped(logger *log.Entry, report *Report, path string, imageID uint) {
	report.Skipped++
	logger.Debugf("Content already indexed as image %d, skipping", imageID)
	ix.emit(events.Event{Type: events.ImageSkipped, RunID: report.RunID, Path: path, ImageID: imageID})
}

func (ix *Indexer) emit(e events.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	ix.notifier.Notify(e)
}

func (ix *Indexer) beginRun(report *Report) {
	ix.statusMu.Lock()
	ix.status.RunID = report.RunID
	ix.status.Processed = 0
	ix.status.Total = report.Discovered
	ix.statusMu.Unlock()
}

func (ix *Indexer) endRun(report *Report) {
	ix.statusMu.Lock()
	ix.status.LastReport = report
	ix.statusMu.Unlock()
}

func (ix *Indexer) advance(processed, total int) {
	ix.statusMu.Lock()
	ix.status.Processed = processed
	ix.statusMu.Unlock()

	if ix.progress != nil {
		ix.progress(processed, total)
	}
}

func (ix *Indexer) setPool(pool *WorkerPool) {
	ix.statusMu.Lock()
	ix.pool = pool
	ix.statusMu.Unlock()
}
