package account

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/imgbatch/internal/model"
	"github.com/aliskhannn/imgbatch/internal/quota"
)

type memRepo struct {
	mu sync.Mutex
	q  map[string]*quota.Quota
}

func newMemRepo(limit int, storage int64) *memRepo {
	return &memRepo{q: map[string]*quota.Quota{
		"u1": {Kind: model.ActorRegistered, DailyLimit: limit, StorageQuotaBytes: storage},
	}}
}

func (r *memRepo) Admit(_ context.Context, id string, n int, today string) (quota.Quota, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.q[id]
	ok := q.Admit(n, today)
	return *q, ok, nil
}

func (r *memRepo) Get(_ context.Context, id string, today string) (quota.Quota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := *r.q[id]
	q.Rollover(today)
	return q, nil
}

func (r *memRepo) ReserveStorage(_ context.Context, id string, size int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.q[id]
	if q.StorageUsedBytes+size > q.StorageQuotaBytes {
		return 0, model.ErrStorageFull
	}
	q.StorageUsedBytes += size
	return q.StorageUsedBytes, nil
}

func (r *memRepo) ReleaseStorage(_ context.Context, id string, size int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.q[id].StorageUsedBytes -= size
	return nil
}

type memStorage struct {
	objects map[string]string
	putErr  error
}

func (s *memStorage) Put(_ context.Context, key string, src io.Reader, _ int64, _ string) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	data, _ := io.ReadAll(src)
	s.objects[key] = string(data)
	return key, nil
}

func (s *memStorage) URL(_ context.Context, key string) (string, error) {
	return "https://minio.local/imgbatch/" + key, nil
}

type countingObserver struct {
	decisions map[bool]int
	uploads   map[string]int
}

func (o *countingObserver) QuotaDecision(allowed bool)   { o.decisions[allowed]++ }
func (o *countingObserver) Upload(outcome string, _ int64) { o.uploads[outcome]++ }

func newService(repo *memRepo, st *memStorage) (*Service, *countingObserver) {
	obs := &countingObserver{decisions: map[bool]int{}, uploads: map[string]int{}}
	s := NewService(repo, st, obs, time.UTC)
	s.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
	return s, obs
}

func TestAdmit(t *testing.T) {
	s, obs := newService(newMemRepo(5, 0), &memStorage{})
	ctx := context.Background()

	res, err := s.Admit(ctx, "u1", 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.UsedToday)
	assert.Equal(t, "2026-10-17", res.ResetDate)

	res, err = s.Admit(ctx, "u1", 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.UsedToday)

	res, err = s.Admit(ctx, "u1", 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.UsedToday)

	assert.Equal(t, 2, obs.decisions[true])
	assert.Equal(t, 1, obs.decisions[false])

	_, err = s.Admit(ctx, "u1", 0)
	require.ErrorIs(t, err, ErrInvalidCount)
}

func TestAccount_RollsOver(t *testing.T) {
	repo := newMemRepo(5, 100)
	repo.q["u1"].UsedToday = 4
	repo.q["u1"].ResetDate = "2026-10-16"
	s, _ := newService(repo, &memStorage{})

	q, err := s.Account(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, q.UsedToday)
	assert.Equal(t, int64(100), q.StorageQuotaBytes)
}

func TestUpload_StoresUnderActorPrefix(t *testing.T) {
	repo := newMemRepo(5, 100)
	st := &memStorage{objects: map[string]string{}}
	s, obs := newService(repo, st)

	res, err := s.Upload(context.Background(), "u1", model.UploadRequest{
		Filename: "../photo_800x600.webp", Body: strings.NewReader("0123456789"), Size: 10, ContentType: "image/webp",
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "users/u1/photo_800x600.webp", res.RemoteKey)
	assert.Equal(t, "https://minio.local/imgbatch/users/u1/photo_800x600.webp", res.RemoteURL)
	assert.Equal(t, "0123456789", st.objects["users/u1/photo_800x600.webp"])
	assert.Equal(t, int64(10), repo.q["u1"].StorageUsedBytes)
	assert.Equal(t, 1, obs.uploads["ok"])
}

func TestUpload_StorageFull(t *testing.T) {
	repo := newMemRepo(5, 100)
	repo.q["u1"].StorageUsedBytes = 95
	st := &memStorage{objects: map[string]string{}}
	s, obs := newService(repo, st)

	res, err := s.Upload(context.Background(), "u1", model.UploadRequest{
		Filename: "a.jpg", Body: strings.NewReader("0123456789"), Size: 10,
	})
	require.ErrorIs(t, err, model.ErrStorageFull)
	assert.False(t, res.Success)
	assert.Empty(t, st.objects)
	assert.Equal(t, int64(95), repo.q["u1"].StorageUsedBytes)
	assert.Equal(t, 1, obs.uploads["storage_full"])
}

func TestUpload_ReleasesOnStoreFailure(t *testing.T) {
	repo := newMemRepo(5, 100)
	s, obs := newService(repo, &memStorage{putErr: errors.New("minio unavailable")})

	res, err := s.Upload(context.Background(), "u1", model.UploadRequest{
		Filename: "a.jpg", Body: strings.NewReader("x"), Size: 40,
	})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "minio unavailable")
	assert.Zero(t, repo.q["u1"].StorageUsedBytes)
	assert.Equal(t, 1, obs.uploads["failed"])
}
