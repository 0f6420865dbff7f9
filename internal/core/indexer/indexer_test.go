package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"photo-indexer/config"
	"photo-indexer/internal/core/events"
	"photo-indexer/internal/core/models"
	"photo-indexer/internal/core/resolver"
	"photo-indexer/internal/db"
	"photo-indexer/internal/db/repository"
	"photo-indexer/internal/hasher"
	"photo-indexer/internal/integrations/detection"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTagger liefert Tags anhand des Dateiinhalts
type fakeTagger struct {
	mu        sync.Mutex
	byContent map[string][]detection.Tag
	calls     int
	entered   chan struct{}
	release   chan struct{}
}

func (f *fakeTagger) Name() string { return "fake" }

func (f *fakeTagger) DetectObjects(ctx context.Context, path string) ([]detection.Tag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if strings.HasPrefix(string(data), "broken") {
		return nil, errors.New("corrupt image")
	}
	return f.byContent[string(data)], nil
}

func (f *fakeTagger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeFaces liefert Gesichter anhand des Dateiinhalts
type fakeFaces struct {
	byContent map[string][]detection.Face
}

func (f *fakeFaces) Name() string                       { return "fake" }
func (f *fakeFaces) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeFaces) ExtractFaces(ctx context.Context, path string) ([]detection.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(data), "no-faces-service") {
		return nil, errors.New("face service timeout")
	}
	return f.byContent[string(data)], nil
}

func person(conf float64) detection.Tag { return detection.Tag{Label: "person", Confidence: conf} }

func face(embedding ...float64) detection.Face {
	return detection.Face{Location: detection.Location{Top: 1, Right: 20, Bottom: 30, Left: 2}, Embedding: embedding}
}

func newTestStore(t *testing.T) *repository.SQLiteRepository {
	t.Helper()
	database, err := db.Open(config.DBConfig{File: filepath.Join(t.TempDir(), "index.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(database) })
	return repository.NewSQLiteRepository(database)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newIndexer(store repository.Store, tagger *fakeTagger, faces detection.FaceExtractor, notifier events.Notifier, workers int) *Indexer {
	return New(store, tagger, faces, resolver.New(resolver.FirstMatch{}), notifier, Options{Workers: workers})
}

func TestIndexIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	root := t.TempDir()

	writeFile(t, root, "cat.jpg", "cat-photo")
	writeFile(t, root, "nested/dog.PNG", "dog-photo")
	writeFile(t, root, "nested/deeper/bird.webp", "bird-photo")
	writeFile(t, root, "notes.txt", "not an image")

	tagger := &fakeTagger{byContent: map[string][]detection.Tag{
		"cat-photo":  {{Label: "cat", Confidence: 0.93}},
		"dog-photo":  {{Label: "dog", Confidence: 0.81}, {Label: "dog", Confidence: 0.64}},
		"bird-photo": nil,
	}}
	ix := newIndexer(store, tagger, &fakeFaces{}, nil, 1)

	first, err := ix.Index(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Discovered)
	assert.Equal(t, 3, first.Indexed)
	assert.Equal(t, 3, first.TagsWritten)
	assert.Empty(t, first.Failed)

	before, err := store.GetStatistics(ctx)
	require.NoError(t, err)

	second, err := ix.Index(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Indexed)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, 3, tagger.callCount(), "no re-detection for known content")

	after, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.TotalImages, after.TotalImages)
	assert.Equal(t, before.TotalTags, after.TotalTags)
	assert.Equal(t, before.TotalFaces, after.TotalFaces)
	assert.Equal(t, int64(3), after.TotalImages)
}

func TestIndexContentIdentityOverPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	root := t.TempDir()

	original := writeFile(t, root, "2023/beach.jpg", "beach")
	tagger := &fakeTagger{byContent: map[string][]detection.Tag{"beach": {{Label: "umbrella", Confidence: 0.7}}}}
	ix := newIndexer(store, tagger, &fakeFaces{}, nil, 1)

	_, err := ix.Index(ctx, root)
	require.NoError(t, err)

	writeFile(t, root, "backup/copy-of-beach.jpeg", "beach")
	report, err := ix.Index(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Indexed)
	assert.Equal(t, 2, report.Skipped)

	images, total, err := store.ListImages(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, images, 1)
	assert.Equal(t, original, images[0].Path)
}

func TestIndexEndToEndIdenticalFiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	root := t.TempDir()

	first := writeFile(t, root, "a.jpg", "family")
	writeFile(t, root, "sub/b.jpeg", "family")

	tagger := &fakeTagger{byContent: map[string][]detection.Tag{
		"family": {person(0.91), {Label: "dog", Confidence: 0.66}},
	}}
	faces := &fakeFaces{byContent: map[string][]detection.Face{
		"family": {face(0, 0, 0), face(0.3, 0.1, 0)},
	}}

	var mu sync.Mutex
	var seen []events.Type
	notifier := events.NotifierFunc(func(e events.Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	report, err := newIndexer(store, tagger, faces, notifier, 1).Index(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Discovered)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.TagsWritten)
	assert.Equal(t, 2, report.FacesWritten)
	assert.Equal(t, 1, report.ProfilesCreated)
	assert.Equal(t, 1, tagger.callCount())

	images, _, err := store.ListImages(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, first, images[0].Path, "first path wins")

	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalImages)
	assert.Equal(t, int64(2), stats.TotalTags)
	assert.Equal(t, int64(2), stats.TotalFaces)
	assert.Equal(t, int64(1), stats.ProfileCount)

	detections, err := store.FacesForImage(ctx, images[0].ID)
	require.NoError(t, err)
	require.Len(t, detections, 2)
	assert.Equal(t, models.Embedding{0.3, 0.1, 0}, detections[1].Embedding, "each face keeps its own embedding")
	assert.Equal(t, models.BoundingBox{Top: 1, Right: 20, Bottom: 30, Left: 2}, detections[0].BoundingBox.Data())

	profiles, err := store.ListProfileEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, models.Embedding{0, 0, 0}, profiles[0].Embedding)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, events.ScanStarted, seen[0])
	assert.Equal(t, events.ScanFinished, seen[len(seen)-1])
	assert.Contains(t, seen, events.ProfileCreated)
	assert.Contains(t, seen, events.ImageIndexed)
	assert.Contains(t, seen, events.ImageSkipped)
}

func TestIndexFailuresLeaveNoRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	root := t.TempDir()

	writeFile(t, root, "1-broken.jpg", "broken bytes")
	writeFile(t, root, "2-person.jpg", "person no-faces-service")
	writeFile(t, root, "3-ok.jpg", "fine")
	require.NoError(t, os.Symlink(filepath.Join(root, "missing.jpg"), filepath.Join(root, "4-ghost.jpg")))

	tagger := &fakeTagger{byContent: map[string][]detection.Tag{
		"person no-faces-service": {person(0.8)},
		"fine":                    {{Label: "cup", Confidence: 0.7}},
	}}

	report, err := newIndexer(store, tagger, &fakeFaces{}, nil, 1).Index(ctx, root)
	require.NoError(t, err, "per-file failures never abort the scan")
	assert.Equal(t, 4, report.Discovered)
	assert.Equal(t, 1, report.Indexed)
	require.Len(t, report.Failed, 3)

	failedPaths := make([]string, len(report.Failed))
	for i, f := range report.Failed {
		failedPaths[i] = filepath.Base(f.Path)
		assert.NotEmpty(t, f.Error)
	}
	assert.ElementsMatch(t, []string{"1-broken.jpg", "2-person.jpg", "4-ghost.jpg"}, failedPaths)

	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalImages)
	assert.Equal(t, int64(1), stats.TotalTags)
	assert.Zero(t, stats.ProfileCount)

	// der fehlgeschlagene Person-Scan wird beim nächsten Lauf erneut versucht
	retry, err := newIndexer(store, tagger, &fakeFaces{}, nil, 1).Index(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Skipped)
	assert.Len(t, retry.Failed, 3)
}

// failingStore lässt das n-te Schreiben einer Gesichtserkennung scheitern,
// auch innerhalb von Transaktionen
type failingStore struct {
	repository.Store
	calls  *atomic.Int32
	failAt int32
}

func (s *failingStore) Transaction(ctx context.Context, fn func(repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(&failingStore{Store: tx, calls: s.calls, failAt: s.failAt})
	})
}

func (s *failingStore) CreateFaceDetection(ctx context.Context, face *models.FaceDetection) error {
	if s.calls.Add(1) == s.failAt {
		return errors.New("disk I/O error")
	}
	return s.Store.CreateFaceDetection(ctx, face)
}

func TestIndexStoreWriteFailureRollsBackFile(t *testing.T) {
	base := newTestStore(t)
	store := &failingStore{Store: base, calls: new(atomic.Int32), failAt: 2}
	ctx := context.Background()
	root := t.TempDir()

	writeFile(t, root, "a-group.jpg", "group")
	writeFile(t, root, "b-single.jpg", "single")

	tagger := &fakeTagger{byContent: map[string][]detection.Tag{
		"group":  {person(0.9), {Label: "dog", Confidence: 0.6}},
		"single": {person(0.8)},
	}}
	faces := &fakeFaces{byContent: map[string][]detection.Face{
		// zwei weit entfernte Gesichter: das zweite legt mitten in der Datei ein neues Profil an
		"group":  {face(0, 0), face(10, 10)},
		"single": {face(5, 5)},
	}}

	report, err := newIndexer(store, tagger, faces, nil, 1).Index(ctx, root)
	require.NoError(t, err, "a failed write only fails the file")
	assert.Equal(t, 1, report.Indexed)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "a-group.jpg", filepath.Base(report.Failed[0].Path))
	assert.Contains(t, report.Failed[0].Error, "disk I/O error")

	stats, err := base.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalImages)
	assert.Equal(t, int64(1), stats.TotalTags, "only the person tag of the later file remains")
	assert.Equal(t, int64(1), stats.TotalFaces)
	assert.Equal(t, int64(1), stats.ProfileCount)

	profiles, err := base.ListProfileEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, models.Embedding{5, 5}, profiles[0].Embedding)

	hash, err := hasher.Fingerprint(filepath.Join(root, "a-group.jpg"))
	require.NoError(t, err)
	existing, err := base.FindImageByHash(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, existing, "the failed file is retried on the next scan")
}

func TestIndexPersonWithoutFaceExtractor(t *testing.T) {
	store := newTestStore(t)
	root := t.TempDir()
	writeFile(t, root, "p.jpg", "someone")

	tagger := &fakeTagger{byContent: map[string][]detection.Tag{"someone": {person(0.9)}}}
	ix := New(store, tagger, nil, nil, nil, Options{})

	report, err := ix.Index(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, report.Failed, 1)
	assert.Contains(t, report.Failed[0].Error, detection.ErrUnavailable.Error())
}

func TestIndexRootErrors(t *testing.T) {
	store := newTestStore(t)
	ix := newIndexer(store, &fakeTagger{}, &fakeFaces{}, nil, 1)

	_, err := ix.Index(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := writeFile(t, t.TempDir(), "single.jpg", "x")
	_, err = ix.Index(context.Background(), file)
	assert.Error(t, err)
	assert.False(t, ix.Running())
}

func TestIndexRejectsConcurrentScan(t *testing.T) {
	store := newTestStore(t)
	root := t.TempDir()
	writeFile(t, root, "slow.jpg", "slow")

	tagger := &fakeTagger{entered: make(chan struct{}), release: make(chan struct{})}
	ix := newIndexer(store, tagger, &fakeFaces{}, nil, 1)

	done := make(chan error, 1)
	go func() {
		_, err := ix.Index(context.Background(), root)
		done <- err
	}()

	select {
	case <-tagger.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not start")
	}

	assert.True(t, ix.Status().Running)
	_, err := ix.Index(context.Background(), root)
	assert.ErrorIs(t, err, ErrScanInProgress)

	close(tagger.release)
	require.NoError(t, <-done)

	status := ix.Status()
	assert.False(t, status.Running)
	require.NotNil(t, status.LastReport)
	assert.Equal(t, 1, status.LastReport.Indexed)
	assert.Equal(t, 1, status.Processed)
}

func TestStatusReportsPoolDuringParallelScan(t *testing.T) {
	store := newTestStore(t)
	root := t.TempDir()
	writeFile(t, root, "slow.jpg", "slow")

	tagger := &fakeTagger{entered: make(chan struct{}), release: make(chan struct{})}
	ix := newIndexer(store, tagger, &fakeFaces{}, nil, 3)

	done := make(chan error, 1)
	go func() {
		_, err := ix.Index(context.Background(), root)
		done <- err
	}()

	select {
	case <-tagger.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not start")
	}

	status := ix.Status()
	assert.True(t, status.Running)
	assert.Equal(t, 3, status.Workers)
	assert.Equal(t, 1, status.ActiveJobs)

	close(tagger.release)
	require.NoError(t, <-done)
	assert.Zero(t, ix.Status().ActiveJobs)
}

func TestIndexCancelledBetweenFiles(t *testing.T) {
	store := newTestStore(t)
	root := t.TempDir()
	writeFile(t, root, "a.jpg", "a")
	writeFile(t, root, "b.jpg", "b")

	ctx, cancel := context.WithCancel(context.Background())
	ix := newIndexer(store, &fakeTagger{}, &fakeFaces{}, nil, 1)
	ix.SetProgressFunc(func(processed, total int) {
		if processed == 1 {
			cancel()
		}
	})

	report, err := ix.Index(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Indexed)

	// Neustart setzt dort fort, wo der Scan unterbrochen wurde
	ix.SetProgressFunc(nil)
	report, err = ix.Index(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, 1, report.Skipped)
}

func TestIndexParallelMatchesSequential(t *testing.T) {
	contents := map[string][]detection.Face{
		"p1": {face(0, 0)},
		"p2": {face(5, 5)},
		"p3": {face(0.1, 0)},
		"p4": {face(5.2, 5)},
		"p5": {face(10, 10)},
		"p6": {face(0.2, 0.1), face(5, 5.1)},
	}
	tags := make(map[string][]detection.Tag, len(contents))
	for k := range contents {
		tags[k] = []detection.Tag{person(0.9)}
	}

	run := func(workers int) []models.ProfileSummary {
		store := newTestStore(t)
		root := t.TempDir()
		for name := range contents {
			writeFile(t, root, name+".jpg", name)
		}
		ix := newIndexer(store, &fakeTagger{byContent: tags}, &fakeFaces{byContent: contents}, nil, workers)
		report, err := ix.Index(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, 6, report.Indexed)
		assert.Equal(t, 7, report.FacesWritten)

		roster, err := store.ProfilesWithCounts(context.Background())
		require.NoError(t, err)
		return roster
	}

	sequential := run(1)
	require.Len(t, sequential, 3)
	assert.Equal(t, int64(3), sequential[0].DetectionCount)
	assert.Equal(t, int64(3), sequential[1].DetectionCount)
	assert.Equal(t, int64(1), sequential[2].DetectionCount)

	assert.Equal(t, sequential, run(4))
}

func TestAcceptsExtensions(t *testing.T) {
	ix := New(nil, nil, nil, nil, nil, Options{Extensions: []string{".JPG", "png"}})
	assert.True(t, ix.accepts("/x/a.jpg"))
	assert.True(t, ix.accepts("/x/a.JpG"))
	assert.True(t, ix.accepts("/x/b.PNG"))
	assert.False(t, ix.accepts("/x/c.webp"))
	assert.False(t, ix.accepts("/x/noext"))
}
