package model

import (
	"fmt"
	"time"
)

// State is the processing state of a single item.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// Item represents one image in a batch.
//
// SourceRef and PreviewRef are handles into the workspace storage and are never
// rewritten after ingestion. ResultRef is set only while the item is completed.
type Item struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	ModTime time.Time `json:"mod_time"`

	SourceRef      string `json:"source_ref"`
	PreviewRef     string `json:"preview_ref"`
	OriginalSize   int64  `json:"original_size"`
	OriginalWidth  int    `json:"original_width"`
	OriginalHeight int    `json:"original_height"`

	ResultRef         string `json:"result_ref,omitempty"`
	ResultSize        int64  `json:"result_size,omitempty"`
	ResultWidth       int    `json:"result_width,omitempty"`
	ResultHeight      int    `json:"result_height,omitempty"`
	ResultContentType string `json:"result_content_type,omitempty"`

	State State  `json:"state"` // pending / processing / completed / error
	Error string `json:"error,omitempty"`
}

// ItemID derives a stable item identifier from the source name and its
// modification time, so the same file added twice maps to the same item.
func ItemID(name string, modTime time.Time) string {
	return fmt.Sprintf("%s-%d", name, modTime.UnixMilli())
}

// Eligible reports whether the item still needs a transform run.
func (i Item) Eligible() bool {
	return i.ResultRef == ""
}

// Start returns a copy of the item in the processing state.
func (i Item) Start() Item {
	i.State = StateProcessing
	i.Error = ""
	return i
}

// Complete returns a copy of the item carrying the given artifact.
func (i Item) Complete(a Artifact) Item {
	i.ResultRef = a.Ref
	i.ResultSize = a.Size
	i.ResultWidth = a.Width
	i.ResultHeight = a.Height
	i.ResultContentType = a.ContentType
	if i.OriginalWidth == 0 && i.OriginalHeight == 0 {
		i.OriginalWidth, i.OriginalHeight = a.SourceWidth, a.SourceHeight
	}
	i.State = StateCompleted
	i.Error = ""
	return i
}

// Fail returns a copy of the item in the error state with all result fields cleared.
func (i Item) Fail(reason string) Item {
	i.ResultRef = ""
	i.ResultSize = 0
	i.ResultWidth = 0
	i.ResultHeight = 0
	i.ResultContentType = ""
	i.State = StateError
	i.Error = reason
	return i
}

// Artifact is the output of a single transform.
type Artifact struct {
	Ref         string `json:"ref"`
	Size        int64  `json:"size"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ContentType string `json:"content_type"`

	SourceWidth  int `json:"source_width"`
	SourceHeight int `json:"source_height"`
}
