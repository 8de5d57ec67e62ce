package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/batch"
	"github.com/aliskhannn/imgbatch/internal/export"
	"github.com/aliskhannn/imgbatch/internal/model"
	"github.com/aliskhannn/imgbatch/internal/progress"
	"github.com/aliskhannn/imgbatch/internal/quota"
	"github.com/aliskhannn/imgbatch/internal/uploader"
	"github.com/aliskhannn/imgbatch/internal/usage"
)

var (
	ErrBusy     = errors.New("session is busy")
	ErrNotFound = errors.New("item not found")
)

// engine defines the interface for ingesting and transforming images.
type engine interface {
	Ingest(ctx context.Context, name string, modTime time.Time, r io.Reader) (model.Item, error)
	Transform(ctx context.Context, item model.Item, opts model.Options) (model.Artifact, error)
}

// File is one source offered to Add.
type File struct {
	Name    string
	ModTime time.Time
	Open    func() (io.ReadCloser, error)
}

// LocalFile describes a file on disk as a File.
func LocalFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	return File{
		Name:    filepath.Base(path),
		ModTime: info.ModTime(),
		Open:    func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// Result is what a finished processing run produced.
type Result struct {
	Summary progress.Summary
	Uploads []uploader.Result
}

// Deps groups the collaborators of a Session. Uploader and Reporter may be nil.
type Deps struct {
	Engine   engine
	Gate     *quota.Gate
	Uploader *uploader.Uploader
	Reporter *usage.Reporter
	Exporter *export.Exporter
	Now      func() time.Time
}

// Session is one actor's working session: it owns the batch store and wires
// admission, processing, persistence, usage reporting and export around it.
type Session struct {
	actor   model.Actor
	persist bool

	store    *batch.Store
	engine   engine
	gate     *quota.Gate
	coord    *progress.Coordinator
	uploader *uploader.Uploader
	reporter *usage.Reporter
	exporter *export.Exporter
	now      func() time.Time

	mu        sync.Mutex
	busy      bool
	uploaded  map[string]string // "id|result ref" -> remote key
	listeners []func(Result)
}

// New creates a Session for actor. persist opts a registered actor into
// uploading results to durable storage after each run.
func New(actor model.Actor, persist bool, store *batch.Store, deps Deps) *Session {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Session{
		actor:    actor,
		persist:  persist,
		store:    store,
		engine:   deps.Engine,
		gate:     deps.Gate,
		coord:    progress.New(deps.Engine, now),
		uploader: deps.Uploader,
		reporter: deps.Reporter,
		exporter: deps.Exporter,
		now:      now,
		uploaded: make(map[string]string),
	}
}

// Actor returns the session's actor.
func (s *Session) Actor() model.Actor {
	return s.actor
}

// Store exposes the batch store for reading and subscriptions.
func (s *Session) Store() *batch.Store {
	return s.store
}

// OnFinished registers fn to be called after every processing run.
func (s *Session) OnFinished(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, fn)
}

// Quota returns the actor's current allowance.
func (s *Session) Quota(ctx context.Context) (quota.Quota, error) {
	return s.gate.Status(ctx, s.actor)
}

// Add admits files against the daily quota and ingests them into the batch.
// The whole request is admitted or refused; a refused request leaves the batch untouched.
// A file that cannot be read still becomes an item, in the error state.
func (s *Session) Add(ctx context.Context, files []File) ([]model.Item, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	if _, err := s.gate.Check(ctx, s.actor, len(files)); err != nil {
		return nil, err
	}

	items := make([]model.Item, 0, len(files))
	for _, f := range files {
		items = append(items, s.ingest(ctx, f))
	}

	s.store.Snapshot()
	s.store.AddItems(items...)

	return items, nil
}

func (s *Session) ingest(ctx context.Context, f File) model.Item {
	failed := model.Item{ID: model.ItemID(f.Name, f.ModTime), Name: f.Name, ModTime: f.ModTime}

	rc, err := f.Open()
	if err != nil {
		return failed.Fail(err.Error())
	}
	defer rc.Close()

	it, err := s.engine.Ingest(ctx, f.Name, f.ModTime, rc)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("file", f.Name).Msg("failed to ingest file")
		return failed.Fail(err.Error())
	}

	return it
}

// Remove drops one item.
func (s *Session) Remove(id string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	if _, ok := s.store.Item(id); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.store.Snapshot()
	s.store.RemoveItem(id)

	return nil
}

// Clear empties the batch.
func (s *Session) Clear() error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	if s.store.Len() == 0 {
		return nil
	}

	s.store.Snapshot()
	s.store.Clear()

	return nil
}

// Undo reverts the last batch edit. It reports whether anything changed.
func (s *Session) Undo() (bool, error) {
	if err := s.acquire(); err != nil {
		return false, err
	}
	defer s.release()

	return s.store.Undo(), nil
}

// Redo re-applies the last undone edit. It reports whether anything changed.
func (s *Session) Redo() (bool, error) {
	if err := s.acquire(); err != nil {
		return false, err
	}
	defer s.release()

	return s.store.Redo(), nil
}

// SetOptions validates and applies processing options for the next run.
func (s *Session) SetOptions(o model.Options) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	s.store.SetOptions(o)

	return nil
}

// Process runs every unprocessed item, then persists results for opted-in
// registered actors, reports usage and notifies OnFinished listeners.
// onEvent, when set, receives every progress event.
func (s *Session) Process(ctx context.Context, onEvent func(progress.Event)) (Result, error) {
	if err := s.acquire(); err != nil {
		return Result{}, err
	}
	defer s.release()

	var res Result
	for ev := range s.coord.Run(ctx, s.store, s.store.Options()) {
		if onEvent != nil {
			onEvent(ev)
		}
		if ev.Done {
			res.Summary = ev.Summary
		}
	}

	if s.persist && s.actor.Registered() && s.uploader != nil {
		res.Uploads = s.upload(ctx)
	}

	if res.Summary.Items > 0 && s.reporter != nil {
		s.reporter.Report(model.UsageReport{
			ActorID:         s.actor.ID,
			Anonymous:       !s.actor.Registered(),
			ItemCount:       res.Summary.Items,
			TotalDurationMs: res.Summary.Duration.Milliseconds(),
			TotalBytes:      res.Summary.Bytes,
			Timestamp:       s.now().UnixMilli(),
		})
	}

	s.mu.Lock()
	listeners := append(([]func(Result))(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(res)
	}

	return res, nil
}

func (s *Session) upload(ctx context.Context) []uploader.Result {
	q, err := s.gate.Status(ctx, s.actor)
	if err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to fetch storage usage, skipping upload")
		return nil
	}
	if !q.HasStorage() {
		return nil
	}

	pending := make([]model.Item, 0)
	for _, it := range s.store.Items() {
		if _, done := s.uploaded[it.ID+"|"+it.ResultRef]; !done {
			pending = append(pending, it)
		}
	}

	results, usage := s.uploader.UploadAll(ctx, pending, uploader.Storage{
		Used:  q.StorageUsedBytes,
		Quota: q.StorageQuotaBytes,
	})

	for _, r := range results {
		if r.Success {
			if it, ok := s.store.Item(r.ItemID); ok {
				s.uploaded[it.ID+"|"+it.ResultRef] = r.RemoteKey
			}
		}
	}

	zlog.Logger.Info().
		Int("uploaded", len(results)).
		Int64("storage_used", usage.Used).
		Msg("results persisted")

	return results
}

// ExportItem writes one completed item into dir.
func (s *Session) ExportItem(ctx context.Context, id, dir string) (string, error) {
	it, ok := s.store.Item(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return s.exporter.WriteFile(ctx, it, dir)
}

// ExportAll bundles every completed item into a zip archive in dir.
func (s *Session) ExportAll(ctx context.Context, dir string) (string, int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create export dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("imgbatch-%s.zip", s.now().Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create archive: %w", err)
	}

	n, err := s.exporter.WriteArchive(ctx, s.actor, s.store.Items(), f)
	closeErr := f.Close()
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	if closeErr != nil {
		return "", 0, fmt.Errorf("failed to write archive: %w", closeErr)
	}

	return path, n, nil
}

func (s *Session) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return ErrBusy
	}
	s.busy = true

	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}
