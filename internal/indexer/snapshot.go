package indexer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/index"
)

// Cause records why a snapshot was published.
type Cause string

const (
	CauseEmpty   Cause = "empty"
	CauseRestore Cause = "restore"
	CauseUpdate  Cause = "update"
	CauseRebuild Cause = "rebuild"
)

// Snapshot is an immutable published version of the index. Readers load the
// current *Snapshot once per request and use it for the whole request.
type Snapshot struct {
	Version     uint64
	PublishedAt time.Time
	Cause       Cause
	Index       *index.Index
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Version:     0,
		PublishedAt: time.Now().UTC(),
		Cause:       CauseEmpty,
		Index:       index.Empty(),
	}
}

// StateKind is the phase of the indexer's writer.
type StateKind int

const (
	Idle StateKind = iota
	Updating
	Rebuilding
)

func (k StateKind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Updating:
		return "updating"
	case Rebuilding:
		return "rebuilding"
	default:
		return fmt.Sprintf("state(%d)", int(k))
	}
}

func (k StateKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// State is the writer phase. BookID is set only while Updating.
type State struct {
	Kind   StateKind `json:"kind"`
	BookID uint32    `json:"book_id,omitempty"`
}

func (s State) String() string {
	if s.Kind == Updating {
		return fmt.Sprintf("updating(%d)", s.BookID)
	}
	return s.Kind.String()
}

// Status summarises the published snapshot.
type Status struct {
	Documents  int       `json:"documents"`
	Terms      int       `json:"terms"`
	Version    uint64    `json:"version"`
	Cause      Cause     `json:"cause"`
	State      State     `json:"state"`
	LastUpdate time.Time `json:"last_update"`
}

// RebuildResult reports a completed rebuild.
type RebuildResult struct {
	BooksProcessed int           `json:"books_processed"`
	Elapsed        time.Duration `json:"-"`
	ElapsedTime    string        `json:"elapsed_time"`
	Version        uint64        `json:"version"`
}
