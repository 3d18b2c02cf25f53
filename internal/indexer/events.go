package indexer

import "time"

// Action is the kind of an index request.
type Action string

const (
	ActionUpdate  Action = "update"
	ActionRebuild Action = "rebuild"
)

// IndexRequest is the message a control service sends on the index request
// topic to trigger indexing.
type IndexRequest struct {
	Action Action `json:"action"`
	BookID uint32 `json:"book_id,omitempty"`
}

// SnapshotPublished announces that a snapshot file has been persisted.
type SnapshotPublished struct {
	Version     uint64    `json:"version"`
	Documents   int       `json:"documents"`
	Terms       int       `json:"terms"`
	File        string    `json:"file"`
	PublishedAt time.Time `json:"published_at"`
}
