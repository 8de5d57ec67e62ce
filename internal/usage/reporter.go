package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/model"
)

const defaultTimeout = 10 * time.Second

// sender defines the interface for the usage collector.
type sender interface {
	ReportUsage(ctx context.Context, report model.UsageReport) error
}

// Reporter sends one usage record per finished run without ever blocking
// or failing the caller. Errors are logged and dropped.
type Reporter struct {
	sender  sender
	timeout time.Duration
	wg      sync.WaitGroup
}

// New creates a new Reporter. A nil sender turns reporting off.
func New(s sender, timeout time.Duration) *Reporter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Reporter{sender: s, timeout: timeout}
}

// Report sends report in the background.
func (r *Reporter) Report(report model.UsageReport) {
	if r.sender == nil {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				zlog.Logger.Error().Str("panic", fmt.Sprint(rec)).Msg("usage report panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.sender.ReportUsage(ctx, report); err != nil {
			zlog.Logger.Warn().Err(err).
				Str("actor_id", report.ActorID).
				Int("items", report.ItemCount).
				Msg("failed to report usage")
			return
		}

		zlog.Logger.Debug().Str("actor_id", report.ActorID).Msg("usage reported")
	}()
}

// Wait blocks until every in-flight report has finished.
func (r *Reporter) Wait() {
	r.wg.Wait()
}
