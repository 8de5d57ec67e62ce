package session

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/imgbatch/internal/batch"
	"github.com/aliskhannn/imgbatch/internal/export"
	"github.com/aliskhannn/imgbatch/internal/model"
	"github.com/aliskhannn/imgbatch/internal/processor"
	"github.com/aliskhannn/imgbatch/internal/progress"
	"github.com/aliskhannn/imgbatch/internal/quota"
	"github.com/aliskhannn/imgbatch/internal/storage/local"
	"github.com/aliskhannn/imgbatch/internal/uploader"
	"github.com/aliskhannn/imgbatch/internal/usage"
)

type fakeBackend struct {
	mu      sync.Mutex
	q       quota.Quota
	uploads []string
	reports []model.UsageReport
}

func (b *fakeBackend) Admit(_ context.Context, _ model.Actor, n int, today string) (quota.Decision, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ok := b.q.Admit(n, today)
	return quota.Decision{Allowed: ok, Quota: b.q}, nil
}

func (b *fakeBackend) Get(_ context.Context, _ model.Actor, today string) (quota.Quota, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.q.Rollover(today)
	return b.q, nil
}

func (b *fakeBackend) Upload(_ context.Context, req model.UploadRequest) (model.UploadResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, req.Filename)
	b.q.StorageUsedBytes += req.Size
	return model.UploadResult{Success: true, RemoteKey: "users/u1/" + req.Filename}, nil
}

func (b *fakeBackend) ReportUsage(_ context.Context, r model.UsageReport) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reports = append(b.reports, r)
	return nil
}

type fixture struct {
	session  *Session
	backend  *fakeBackend
	reporter *usage.Reporter
	gate     *quota.Gate
}

func newFixture(t *testing.T, actor model.Actor, persist bool) fixture {
	t.Helper()

	fs, err := local.NewStorage(t.TempDir())
	require.NoError(t, err)

	now := func() time.Time { return time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC) }
	backend := &fakeBackend{q: quota.Quota{
		Kind: model.ActorRegistered, DailyLimit: 100, StorageQuotaBytes: 1 << 30,
	}}
	gate := quota.NewGate(quota.NewLocalCounter(filepath.Join(t.TempDir(), "state.json"), 5), backend, time.UTC, now)
	reporter := usage.New(backend, time.Second)

	s := New(actor, persist, batch.New(model.DefaultOptions(), 0), Deps{
		Engine:   processor.New(fs),
		Gate:     gate,
		Uploader: uploader.New(backend, fs),
		Reporter: reporter,
		Exporter: export.New(fs, 10),
		Now:      now,
	})

	return fixture{session: s, backend: backend, reporter: reporter, gate: gate}
}

func jpegFile(t *testing.T, name string, w, h int) File {
	t.Helper()

	buf := bytes.NewBuffer(nil)
	require.NoError(t, imaging.Encode(buf, imaging.New(w, h, color.NRGBA{G: 180, A: 255}), imaging.JPEG))
	data := buf.Bytes()

	return File{
		Name:    name,
		ModTime: time.UnixMilli(1_700_000_000_000),
		Open:    func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

func brokenFile(name string) File {
	return File{
		Name:    name,
		ModTime: time.UnixMilli(1),
		Open:    func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader([]byte("garbage"))), nil },
	}
}

func TestAnonymousEndToEnd(t *testing.T) {
	f := newFixture(t, model.Actor{Kind: model.ActorAnonymous, ID: "anon-1"}, true)
	ctx := context.Background()

	opts := model.Options{
		TargetWidth: 800, TargetHeight: 600, KeepAspectRatio: true,
		Format: model.FormatWebP, Quality: 0.9, Compression: 0.8,
	}
	require.NoError(t, f.session.SetOptions(opts))
	assert.InDelta(t, 0.72, f.session.Store().Options().EffectiveQuality(), 1e-9)

	_, err := f.session.Add(ctx, []File{
		jpegFile(t, "one.jpg", 1600, 1200),
		jpegFile(t, "two.jpg", 1200, 1600),
		jpegFile(t, "three.jpg", 1000, 500),
	})
	require.NoError(t, err)

	var finished []Result
	f.session.OnFinished(func(r Result) { finished = append(finished, r) })

	res, err := f.session.Process(ctx, nil)
	require.NoError(t, err)
	f.reporter.Wait()

	assert.Equal(t, 3, res.Summary.Succeeded)
	for _, it := range f.session.Store().Items() {
		assert.Equal(t, model.StateCompleted, it.State)
		assert.Equal(t, "image/webp", it.ResultContentType)
	}

	q, err := f.session.Quota(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, q.UsedToday)

	assert.Empty(t, res.Uploads)
	assert.Empty(t, f.backend.uploads)

	require.Len(t, f.backend.reports, 1)
	assert.True(t, f.backend.reports[0].Anonymous)
	assert.Equal(t, "anon-1", f.backend.reports[0].ActorID)
	assert.Equal(t, 3, f.backend.reports[0].ItemCount)
	require.Len(t, finished, 1)
}

func TestAdd_QuotaExceededLeavesBatchUntouched(t *testing.T) {
	f := newFixture(t, model.Actor{Kind: model.ActorAnonymous}, false)
	ctx := context.Background()

	_, err := f.session.Add(ctx, []File{jpegFile(t, "a.jpg", 10, 10), jpegFile(t, "b.jpg", 10, 10), jpegFile(t, "c.jpg", 10, 10)})
	require.NoError(t, err)

	_, err = f.session.Add(ctx, []File{jpegFile(t, "d.jpg", 10, 10), jpegFile(t, "e.jpg", 10, 10), jpegFile(t, "f.jpg", 10, 10)})
	require.ErrorIs(t, err, quota.ErrQuotaExceeded)

	assert.Equal(t, 3, f.session.Store().Len())
	q, err := f.session.Quota(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, q.UsedToday)
}

func TestProcess_IsolatesBrokenItems(t *testing.T) {
	f := newFixture(t, model.Actor{Kind: model.ActorAnonymous}, false)
	ctx := context.Background()

	_, err := f.session.Add(ctx, []File{
		jpegFile(t, "a.jpg", 40, 30),
		brokenFile("b.jpg"),
		jpegFile(t, "c.jpg", 40, 30),
	})
	require.NoError(t, err)

	var last progress.Event
	res, err := f.session.Process(ctx, func(ev progress.Event) { last = ev })
	require.NoError(t, err)

	assert.True(t, last.Done)
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, 2, res.Summary.Succeeded)
	assert.Equal(t, 1, res.Summary.Failed)

	items := f.session.Store().Items()
	assert.Equal(t, model.StateError, items[1].State)
	assert.Contains(t, items[1].Error, "decode")
}

func TestRegisteredPersistsOnce(t *testing.T) {
	f := newFixture(t, model.Actor{Kind: model.ActorRegistered, ID: "u1"}, true)
	ctx := context.Background()

	_, err := f.session.Add(ctx, []File{jpegFile(t, "a.jpg", 64, 48), jpegFile(t, "b.jpg", 64, 48)})
	require.NoError(t, err)

	res, err := f.session.Process(ctx, nil)
	require.NoError(t, err)
	require.Len(t, res.Uploads, 2)
	assert.True(t, res.Uploads[0].Success)

	res, err = f.session.Process(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Uploads)
	assert.Len(t, f.backend.uploads, 2)

	f.reporter.Wait()
	assert.Len(t, f.backend.reports, 1)
}

func TestUndoAfterAddAndRemove(t *testing.T) {
	f := newFixture(t, model.Actor{Kind: model.ActorAnonymous}, false)
	ctx := context.Background()

	added, err := f.session.Add(ctx, []File{jpegFile(t, "a.jpg", 10, 10), jpegFile(t, "b.jpg", 10, 10)})
	require.NoError(t, err)

	require.NoError(t, f.session.Remove(added[0].ID))
	require.ErrorIs(t, f.session.Remove("nope"), ErrNotFound)
	assert.Equal(t, 1, f.session.Store().Len())

	ok, err := f.session.Undo()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, f.session.Store().Len())

	ok, err = f.session.Undo()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, f.session.Store().Len())

	ok, err = f.session.Redo()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, f.session.Store().Len())
}

func TestUndoRedoAfterProcessKeepsResults(t *testing.T) {
	f := newFixture(t, model.Actor{Kind: model.ActorAnonymous}, false)
	ctx := context.Background()

	_, err := f.session.Add(ctx, []File{jpegFile(t, "a.jpg", 10, 10)})
	require.NoError(t, err)
	_, err = f.session.Add(ctx, []File{jpegFile(t, "b.jpg", 12, 12)})
	require.NoError(t, err)

	ok, err := f.session.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.session.Redo()
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.session.Process(ctx, nil)
	require.NoError(t, err)
	before := f.session.Store().Items()
	require.Len(t, before, 2)

	ok, err = f.session.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.session.Redo()
	require.NoError(t, err)
	require.True(t, ok)

	items := f.session.Store().Items()
	assert.Equal(t, before, items)
	for _, it := range items {
		assert.Equal(t, model.StateCompleted, it.State)
		assert.NotEmpty(t, it.ResultRef)
	}
}

func TestBusySessionRefusesEdits(t *testing.T) {
	f := newFixture(t, model.Actor{Kind: model.ActorAnonymous}, false)
	require.NoError(t, f.session.acquire())

	err := f.session.Clear()
	assert.True(t, errors.Is(err, ErrBusy))

	f.session.release()
	assert.NoError(t, f.session.Clear())
}

func TestExportAll_AnonymousRefused(t *testing.T) {
	f := newFixture(t, model.Actor{Kind: model.ActorAnonymous}, false)
	ctx := context.Background()

	_, err := f.session.Add(ctx, []File{jpegFile(t, "a.jpg", 10, 10), jpegFile(t, "b.jpg", 10, 10)})
	require.NoError(t, err)
	_, err = f.session.Process(ctx, nil)
	require.NoError(t, err)

	_, _, err = f.session.ExportAll(ctx, t.TempDir())
	require.ErrorIs(t, err, export.ErrArchiveNotAllowed)

	items := f.session.Store().Items()
	path, err := f.session.ExportItem(ctx, items[0].ID, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "a_1080x1080.jpg", filepath.Base(path))
}

func TestExportAll_Registered(t *testing.T) {
	f := newFixture(t, model.Actor{Kind: model.ActorRegistered, ID: "u1"}, false)
	ctx := context.Background()

	_, err := f.session.Add(ctx, []File{jpegFile(t, "a.jpg", 10, 10), jpegFile(t, "b.jpg", 10, 10)})
	require.NoError(t, err)
	_, err = f.session.Process(ctx, nil)
	require.NoError(t, err)

	path, n, err := f.session.ExportAll(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "imgbatch-20261017-120000.zip", filepath.Base(path))
}
