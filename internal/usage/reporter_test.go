package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/imgbatch/internal/model"
)

type recordingSender struct {
	mu      sync.Mutex
	reports []model.UsageReport
	err     error
	panics  bool
	block   chan struct{}
}

func (s *recordingSender) ReportUsage(ctx context.Context, r model.UsageReport) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.panics {
		panic("collector exploded")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)

	return s.err
}

func TestReport_Delivers(t *testing.T) {
	s := &recordingSender{}
	r := New(s, time.Second)

	r.Report(model.UsageReport{ActorID: "anon-1", Anonymous: true, ItemCount: 3, TotalBytes: 42})
	r.Wait()

	require.Len(t, s.reports, 1)
	assert.Equal(t, 3, s.reports[0].ItemCount)
	assert.True(t, s.reports[0].Anonymous)
}

func TestReport_DoesNotBlockCaller(t *testing.T) {
	s := &recordingSender{block: make(chan struct{})}
	r := New(s, time.Second)

	returned := make(chan struct{})
	go func() {
		r.Report(model.UsageReport{ActorID: "u1"})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Report blocked on the sender")
	}

	close(s.block)
	r.Wait()
	assert.Len(t, s.reports, 1)
}

func TestReport_SwallowsFailures(t *testing.T) {
	r := New(&recordingSender{err: errors.New("collector down")}, time.Second)
	r.Report(model.UsageReport{ActorID: "u1"})

	p := New(&recordingSender{panics: true}, time.Second)
	p.Report(model.UsageReport{ActorID: "u1"})

	assert.NotPanics(t, func() {
		r.Wait()
		p.Wait()
	})
}

func TestReport_Timeout(t *testing.T) {
	s := &recordingSender{block: make(chan struct{})}
	r := New(s, 20*time.Millisecond)

	r.Report(model.UsageReport{ActorID: "u1"})
	r.Wait()

	assert.Empty(t, s.reports)
}

func TestReport_NilSender(t *testing.T) {
	r := New(nil, 0)
	r.Report(model.UsageReport{})
	r.Wait()
}
