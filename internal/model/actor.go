package model

// ActorKind distinguishes anonymous visitors from registered accounts.
type ActorKind string

const (
	ActorAnonymous  ActorKind = "anonymous"
	ActorRegistered ActorKind = "registered"
)

// Actor is whoever submits a batch. For anonymous actors ID is the
// pseudo-anonymous id minted once and kept in the local state file.
type Actor struct {
	Kind  ActorKind `json:"kind"`
	ID    string    `json:"id"`
	Token string    `json:"-"` // bearer token, registered actors only
}

// Registered reports whether the actor has a durable account.
func (a Actor) Registered() bool {
	return a.Kind == ActorRegistered
}

// UsageReport is the telemetry record sent once per completed run.
type UsageReport struct {
	ID              string `json:"id,omitempty"`
	ActorID         string `json:"actor_id"`
	Anonymous       bool   `json:"anonymous"`
	ItemCount       int    `json:"item_count"`
	TotalDurationMs int64  `json:"total_duration_ms"`
	TotalBytes      int64  `json:"total_bytes"`
	Timestamp       int64  `json:"timestamp"` // unix milliseconds
}
