package quota

import (
	"time"

	"github.com/aliskhannn/imgbatch/internal/model"
)

// DateLayout is the calendar-day format used for ResetDate.
const DateLayout = "2006-01-02"

// Quota is an actor's daily allowance together with, for registered actors,
// their durable storage allowance.
type Quota struct {
	Kind       model.ActorKind `json:"kind"`
	DailyLimit int             `json:"daily_limit"`
	UsedToday  int             `json:"used_today"`
	ResetDate  string          `json:"reset_date"` // YYYY-MM-DD in the reporting timezone

	StorageQuotaBytes int64 `json:"storage_quota_bytes,omitempty"`
	StorageUsedBytes  int64 `json:"storage_used_bytes,omitempty"`
}

// Day formats t as a calendar day in loc.
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// Rollover zeroes the counter the first time it is touched on a new day.
func (q *Quota) Rollover(today string) {
	if q.ResetDate != today {
		q.UsedToday = 0
		q.ResetDate = today
	}
}

// Admit runs the reset-check-increment sequence for n items.
// UsedToday changes only when the request is allowed.
func (q *Quota) Admit(n int, today string) bool {
	q.Rollover(today)

	if n < 0 || q.UsedToday+n > q.DailyLimit {
		return false
	}

	q.UsedToday += n
	return true
}

// Remaining returns how many items can still be admitted today.
func (q Quota) Remaining() int {
	return max(q.DailyLimit-q.UsedToday, 0)
}

// HasStorage reports whether the actor can persist results remotely.
func (q Quota) HasStorage() bool {
	return q.Kind == model.ActorRegistered && q.StorageQuotaBytes > 0
}

// StorageFree returns the unused part of the storage allowance.
func (q Quota) StorageFree() int64 {
	return max(q.StorageQuotaBytes-q.StorageUsedBytes, 0)
}
