package indexer

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// WorkerPool verteilt die Analyse (Hash + Detektion) auf mehrere Goroutinen.
// Die Persistenz bleibt beim Aufrufer.
type WorkerPool struct {
	analyze         func(context.Context, string) analysis
	jobs            chan *analyzeJob
	workerCount     int
	activeJobs      int
	activeJobsMutex sync.Mutex
	shutdown        chan struct{}
	wg              sync.WaitGroup
}

// analyzeJob ist ein Analyseauftrag mit eigenem Ergebniskanal
type analyzeJob struct {
	ctx      context.Context
	path     string
	resultCh chan analysis
}

// NewWorkerPool erstellt einen Pool mit workerCount Goroutinen
func NewWorkerPool(workerCount int, analyze func(context.Context, string) analysis) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}

	log.Infof("Initializing analysis worker pool with %d workers", workerCount)

	pool := &WorkerPool{
		analyze:     analyze,
		jobs:        make(chan *analyzeJob, workerCount*2),
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}
	pool.startWorkers()
	return pool
}

func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			log.Debugf("Worker %d started", workerID)

			for {
				select {
				case job, ok := <-p.jobs:
					if !ok {
						log.Debugf("Worker %d shutting down (job channel closed)", workerID)
						return
					}

					p.activeJobsMutex.Lock()
					p.activeJobs++
					p.activeJobsMutex.Unlock()

					startTime := time.Now()
					result := p.analyze(job.ctx, job.path)

					p.activeJobsMutex.Lock()
					p.activeJobs--
					p.activeJobsMutex.Unlock()

					// resultCh ist gepuffert, das Senden blockiert nie
					job.resultCh <- result

					log.Debugf("Worker %d analyzed %s in %v", workerID, job.path, time.Since(startTime))

				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

// Submit stellt eine Datei in die Queue und liefert den Kanal, auf dem das Ergebnis ankommt
func (p *WorkerPool) Submit(ctx context.Context, path string) (<-chan analysis, error) {
	resultCh := make(chan analysis, 1)
	job := &analyzeJob{ctx: ctx, path: path, resultCh: resultCh}

	select {
	case p.jobs <- job:
		return resultCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActiveJobCount gibt die Anzahl der aktuell aktiven Jobs zurück
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// GetWorkerCount gibt die Anzahl der Worker im Pool zurück
func (p *WorkerPool) GetWorkerCount() int {
	return p.workerCount
}

// Shutdown beendet alle Worker und wartet auf laufende Jobs
func (p *WorkerPool) Shutdown() {
	close(p.shutdown)
	p.wg.Wait()
}
