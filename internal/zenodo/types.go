package zenodo

import (
	"fmt"
	"net/http"
	"time"

	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
)

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the connection settings for the deposition API.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Deposition is the subset of the remote deposition resource the pipeline reads.
type Deposition struct {
	ID        int64            `json:"id"`
	State     string           `json:"state,omitempty"`
	Submitted bool             `json:"submitted"`
	Links     DepositionLinks  `json:"links"`
	Metadata  *domain.Metadata `json:"metadata,omitempty"`
}

type DepositionLinks struct {
	Bucket  string `json:"bucket"`
	Self    string `json:"self,omitempty"`
	Publish string `json:"publish,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// FileInfo is returned by a bucket upload.
type FileInfo struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

type metadataEnvelope struct {
	Metadata domain.Metadata `json:"metadata"`
}

// RemoteError is returned when the service answers with a non-success status.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Op, e.StatusCode, e.Body)
}

// TransportError is returned when a call cannot complete: connection
// failures, unreadable bodies and malformed JSON.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
