package progress

import (
	"context"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/imgbatch/internal/model"
)

// transformer defines the interface for the transform engine.
type transformer interface {
	Transform(ctx context.Context, item model.Item, opts model.Options) (model.Artifact, error)
}

// batchStore defines the part of the batch store the coordinator drives.
type batchStore interface {
	Items() []model.Item
	AddItems(items ...model.Item)
}

// Event reports progress after one item finished, or the end of a run when Done is set.
type Event struct {
	Item      model.Item
	Completed int
	Total     int
	Percent   float64
	Elapsed   time.Duration
	Remaining time.Duration

	Done    bool
	Summary Summary
}

// Summary describes a finished run.
type Summary struct {
	Items     int           `json:"items"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Pending   int           `json:"pending"` // left unprocessed because the run was cancelled
	Duration  time.Duration `json:"duration"`
	Bytes     int64         `json:"bytes"`
	Cancelled bool          `json:"cancelled"`
}

// Coordinator runs the transform engine over every unprocessed item of a batch,
// one item at a time and in batch order.
type Coordinator struct {
	engine transformer
	now    func() time.Time
}

// New creates a new Coordinator. A nil now uses time.Now.
func New(engine transformer, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}

	return &Coordinator{engine: engine, now: now}
}

// Run starts processing and returns the event stream. The channel receives one
// event per processed item followed by a final Done event, then is closed.
//
// ctx is only checked between items: a transform that has started always
// finishes and is recorded, and items not yet started stay pending.
func (c *Coordinator) Run(ctx context.Context, store batchStore, opts model.Options) <-chan Event {
	eligible := make([]model.Item, 0)
	for _, it := range store.Items() {
		if it.Eligible() {
			eligible = append(eligible, it)
		}
	}

	events := make(chan Event, len(eligible)+1)

	go func() {
		defer close(events)
		events <- c.run(ctx, store, opts, eligible, events)
	}()

	return events
}

func (c *Coordinator) run(ctx context.Context, store batchStore, opts model.Options, eligible []model.Item, events chan<- Event) Event {
	total := len(eligible)
	start := c.now()
	sum := Summary{Items: total}

	zlog.Logger.Info().Int("items", total).Msg("processing run started")

	for i, it := range eligible {
		if ctx.Err() != nil {
			sum.Cancelled = true
			sum.Pending = total - i
			zlog.Logger.Warn().Int("pending", sum.Pending).Msg("processing run cancelled")
			break
		}

		store.AddItems(it.Start())

		art, err := c.engine.Transform(context.WithoutCancel(ctx), it, opts)
		if err != nil {
			it = it.Fail(err.Error())
			sum.Failed++
			zlog.Logger.Warn().Err(err).Str("item", it.ID).Msg("item failed")
		} else {
			it = it.Complete(art)
			sum.Succeeded++
			sum.Bytes += art.Size
		}
		store.AddItems(it)

		done := i + 1
		elapsed := c.now().Sub(start)
		events <- Event{
			Item:      it,
			Completed: done,
			Total:     total,
			Percent:   Percent(done, total),
			Elapsed:   elapsed,
			Remaining: ETA(elapsed, done, total),
		}
	}

	sum.Duration = c.now().Sub(start)

	zlog.Logger.Info().
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Dur("duration", sum.Duration).
		Msg("processing run finished")

	return Event{
		Completed: sum.Succeeded + sum.Failed,
		Total:     total,
		Percent:   Percent(sum.Succeeded+sum.Failed, total),
		Elapsed:   sum.Duration,
		Done:      true,
		Summary:   sum,
	}
}

// Percent returns completed/total as a percentage. An empty run is complete.
func Percent(completed, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(completed) / float64(total) * 100
}

// ETA extrapolates the remaining time linearly from the elapsed time.
func ETA(elapsed time.Duration, completed, total int) time.Duration {
	if completed <= 0 || total <= 0 {
		return 0
	}

	estimated := time.Duration(float64(elapsed) / (float64(completed) / float64(total)))

	return max(0, estimated-elapsed)
}
