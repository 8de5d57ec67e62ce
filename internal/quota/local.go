package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/aliskhannn/imgbatch/internal/model"
)

// localState is the client-side persisted record.
type localState struct {
	AnonymousID string `json:"anonymous_id"`
	Quota       Quota  `json:"quota"`
}

// LocalCounter keeps the anonymous daily counter in a JSON file on the client.
//
// The counter is advisory: anyone with access to the file can reset it.
// Two processes sharing the file can race on the read-modify-write; only
// callers within one process are serialized.
type LocalCounter struct {
	mu         sync.Mutex
	path       string
	dailyLimit int
}

// NewLocalCounter creates a counter persisted at path with the anonymous tier limit.
func NewLocalCounter(path string, dailyLimit int) *LocalCounter {
	return &LocalCounter{path: path, dailyLimit: dailyLimit}
}

// Admit implements the anonymous admission rule against the local file.
func (c *LocalCounter) Admit(ctx context.Context, _ model.Actor, n int, today string) (Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.load()
	if err != nil {
		return Decision{}, err
	}

	allowed := st.Quota.Admit(n, today)

	if err := c.save(st); err != nil {
		return Decision{}, err
	}

	return Decision{Allowed: allowed, Quota: st.Quota}, nil
}

// Get returns today's record, applying the daily reset.
func (c *LocalCounter) Get(ctx context.Context, _ model.Actor, today string) (Quota, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.load()
	if err != nil {
		return Quota{}, err
	}

	st.Quota.Rollover(today)

	return st.Quota, nil
}

// AnonymousID returns the pseudo-anonymous identity, minting and persisting it on first use.
func (c *LocalCounter) AnonymousID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.load()
	if err != nil {
		return "", err
	}

	if st.AnonymousID != "" {
		return st.AnonymousID, nil
	}

	st.AnonymousID = uuid.NewString()
	if err := c.save(st); err != nil {
		return "", err
	}

	return st.AnonymousID, nil
}

func (c *LocalCounter) load() (localState, error) {
	var st localState

	data, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return st, fmt.Errorf("failed to read quota state: %w", err)
	default:
		if err := json.Unmarshal(data, &st); err != nil {
			return st, fmt.Errorf("failed to decode quota state: %w", err)
		}
	}

	st.Quota.Kind = model.ActorAnonymous
	st.Quota.DailyLimit = c.dailyLimit
	st.Quota.StorageQuotaBytes = 0
	st.Quota.StorageUsedBytes = 0

	return st, nil
}

func (c *LocalCounter) save(st localState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode quota state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write quota state: %w", err)
	}

	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to write quota state: %w", err)
	}

	return nil
}
