package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/model"
	"github.com/aliskhannn/imgbatch/internal/quota"
	"github.com/aliskhannn/imgbatch/internal/storage/file"
)

var ErrInvalidCount = errors.New("requested count must be positive")

// repository defines the interface for registered quota accounting.
type repository interface {
	Admit(ctx context.Context, actorID string, n int, today string) (quota.Quota, bool, error)
	Get(ctx context.Context, actorID string, today string) (quota.Quota, error)
	ReserveStorage(ctx context.Context, actorID string, size int64) (int64, error)
	ReleaseStorage(ctx context.Context, actorID string, size int64) error
}

// objectStorage defines the interface for durable artifact storage (e.g., MinIO).
type objectStorage interface {
	Put(ctx context.Context, key string, src io.Reader, size int64, contentType string) (string, error)
	URL(ctx context.Context, key string) (string, error)
}

// observer receives per-decision counters.
type observer interface {
	QuotaDecision(allowed bool)
	Upload(outcome string, size int64)
}

// Service holds the server-authoritative rules for registered accounts:
// daily admission and storage capacity.
type Service struct {
	repo     repository
	storage  objectStorage
	observer observer
	loc      *time.Location
	now      func() time.Time
}

// NewService creates a new Service. loc is the timezone in which quota days roll over.
func NewService(repo repository, storage objectStorage, obs observer, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}

	return &Service{repo: repo, storage: storage, observer: obs, loc: loc, now: time.Now}
}

func (s *Service) today() string {
	return quota.Day(s.now(), s.loc)
}

// Admit evaluates and, when allowed, records n items against the actor's daily limit.
func (s *Service) Admit(ctx context.Context, actorID string, n int) (model.AdmitResponse, error) {
	if n <= 0 {
		return model.AdmitResponse{}, ErrInvalidCount
	}

	q, allowed, err := s.repo.Admit(ctx, actorID, n, s.today())
	if err != nil {
		return model.AdmitResponse{}, fmt.Errorf("admit: %w", err)
	}

	if s.observer != nil {
		s.observer.QuotaDecision(allowed)
	}

	zlog.Logger.Info().
		Str("actor_id", actorID).
		Int("requested", n).
		Bool("allowed", allowed).
		Int("used_today", q.UsedToday).
		Msg("quota decision")

	return model.AdmitResponse{
		Allowed:    allowed,
		UsedToday:  q.UsedToday,
		DailyLimit: q.DailyLimit,
		ResetDate:  q.ResetDate,
	}, nil
}

// Account returns the actor's quota including storage usage.
func (s *Service) Account(ctx context.Context, actorID string) (quota.Quota, error) {
	q, err := s.repo.Get(ctx, actorID, s.today())
	if err != nil {
		return quota.Quota{}, fmt.Errorf("account: %w", err)
	}

	return q, nil
}

// Upload reserves capacity for req, stores it under the actor's prefix and
// returns where it landed. The reservation is released if the store fails.
func (s *Service) Upload(ctx context.Context, actorID string, req model.UploadRequest) (model.UploadResult, error) {
	if _, err := s.repo.ReserveStorage(ctx, actorID, req.Size); err != nil {
		s.count("storage_full", 0, err)
		return model.UploadResult{Error: err.Error()}, err
	}

	key, err := s.storage.Put(ctx, file.ObjectKey(actorID, req.Filename), req.Body, req.Size, req.ContentType)
	if err != nil {
		if relErr := s.repo.ReleaseStorage(context.WithoutCancel(ctx), actorID, req.Size); relErr != nil {
			zlog.Logger.Error().Err(relErr).Str("actor_id", actorID).Msg("failed to release storage reservation")
		}
		s.count("failed", 0, err)

		return model.UploadResult{Error: err.Error()}, fmt.Errorf("upload: %w", err)
	}

	res := model.UploadResult{Success: true, RemoteKey: key}

	url, err := s.storage.URL(ctx, key)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("key", key).Msg("failed to presign download url")
	} else {
		res.RemoteURL = url
	}

	s.count("ok", req.Size, nil)

	zlog.Logger.Info().
		Str("actor_id", actorID).
		Str("key", key).
		Int64("size", req.Size).
		Msg("artifact persisted")

	return res, nil
}

func (s *Service) count(outcome string, size int64, err error) {
	if errors.Is(err, model.ErrStorageFull) {
		outcome = "storage_full"
	}
	if s.observer != nil {
		s.observer.Upload(outcome, size)
	}
}
