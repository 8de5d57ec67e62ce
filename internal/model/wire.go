package model

import (
	"errors"
	"io"
)

var (
	ErrStorageFull  = errors.New("storage quota exhausted")
	ErrUnauthorized = errors.New("unauthorized")
)

// AdmitRequest asks the backend to admit items for a registered actor.
type AdmitRequest struct {
	ActorID        string `json:"actor_id"`
	RequestedCount int    `json:"requested_count"`
}

// AdmitResponse is the backend's authoritative quota decision.
type AdmitResponse struct {
	Allowed    bool   `json:"allowed"`
	UsedToday  int    `json:"used_today"`
	DailyLimit int    `json:"daily_limit"`
	ResetDate  string `json:"reset_date"`
}

// UploadRequest carries one artifact to durable storage.
type UploadRequest struct {
	Filename    string
	Body        io.Reader
	Size        int64
	Width       int
	Height      int
	ContentType string
}

// UploadResult is the outcome of persisting one artifact.
type UploadResult struct {
	Success   bool   `json:"success"`
	RemoteKey string `json:"remote_key,omitempty"`
	RemoteURL string `json:"remote_url,omitempty"`
	Error     string `json:"error,omitempty"`
}
