// Package ingestion defines the request/response types of the book
// acquisition service, which fills the datalake the indexer reads.
package ingestion

// Ingest statuses.
const (
	StatusStored    = "stored"
	StatusExisting  = "existing"
	StatusAvailable = "available"
	StatusNotFound  = "not_found"
)

// IngestResponse is returned after a book was written to the datalake.
// IndexRequested is false when no indexer could be notified.
type IngestResponse struct {
	BookID         uint32 `json:"book_id"`
	Status         string `json:"status"`
	Path           string `json:"path"`
	Title          string `json:"title,omitempty"`
	IndexRequested bool   `json:"index_requested"`
}

type StatusResponse struct {
	BookID uint32 `json:"book_id"`
	Status string `json:"status"`
}

type ListResponse struct {
	Count int      `json:"count"`
	Books []uint32 `json:"books"`
}
