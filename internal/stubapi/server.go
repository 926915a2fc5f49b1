// Package stubapi is an in-memory stand-in for the deposition API, used to
// rehearse a batch locally and to drive end-to-end tests.
package stubapi

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Op names an endpoint for failure injection and call counting.
type Op string

const (
	OpList      Op = "list"
	OpCreate    Op = "create"
	OpUpload    Op = "upload"
	OpMetadata  Op = "metadata"
	OpPublish   Op = "publish"
	OpCommunity Op = "community"
)

const (
	stateDraft = "unsubmitted"
	stateDone  = "done"
)

type File struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

type Links struct {
	Bucket  string `json:"bucket"`
	Self    string `json:"self"`
	Publish string `json:"publish"`
}

// Deposition is the stub's view of one remote record.
type Deposition struct {
	ID          int64            `json:"id"`
	State       string           `json:"state"`
	Submitted   bool             `json:"submitted"`
	Links       Links            `json:"links"`
	Metadata    *domain.Metadata `json:"metadata,omitempty"`
	Files       []File           `json:"files"`
	Communities []string         `json:"-"`

	bucket string
}

type failureKey struct {
	op    Op
	match string
}

// Server holds the in-memory deposition store.
type Server struct {
	mu       sync.Mutex
	token    string
	nextID   int64
	deps     map[int64]*Deposition
	buckets  map[string]int64
	failures map[failureKey]int
	calls    map[Op]int
}

// NewServer creates an empty stub that accepts the given access token.
func NewServer(token string) *Server {
	return &Server{
		token:    token,
		nextID:   1000,
		deps:     make(map[int64]*Deposition),
		buckets:  make(map[string]int64),
		failures: make(map[failureKey]int),
		calls:    make(map[Op]int),
	}
}

// FailCreate makes every create call answer with status.
func (s *Server) FailCreate(status int) { s.setFailure(OpCreate, "", status) }

// FailUpload makes uploads of filename answer with status.
func (s *Server) FailUpload(filename string, status int) { s.setFailure(OpUpload, filename, status) }

// FailMetadata makes metadata updates with the given title answer with status.
func (s *Server) FailMetadata(title string, status int) { s.setFailure(OpMetadata, title, status) }

// FailPublish makes publish and community calls for depositions titled
// title answer with status.
func (s *Server) FailPublish(title string, status int) { s.setFailure(OpPublish, title, status) }

// ClearFailures removes all injected failures.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[failureKey]int)
}

func (s *Server) setFailure(op Op, match string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[failureKey{op: op, match: match}] = status
}

func (s *Server) failure(op Op, match string) (int, bool) {
	status, ok := s.failures[failureKey{op: op, match: match}]
	return status, ok
}

// Calls returns how many requests reached op.
func (s *Server) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Depositions returns a snapshot of every deposition ordered by id.
func (s *Server) Depositions() []Deposition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Deposition, 0, len(s.deps))
	for id := int64(1001); id <= s.nextID; id++ {
		if dep, ok := s.deps[id]; ok {
			out = append(out, *dep)
		}
	}
	return out
}

// Router builds the gin engine serving the stub.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(Logger(), Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", RequireToken(s.token))
	{
		api.GET("/deposit/depositions", s.list)
		api.POST("/deposit/depositions", s.create)
		api.PUT("/deposit/depositions/:id", s.updateMetadata)
		api.POST("/deposit/depositions/:id/actions/publish", s.publish)
		api.POST("/deposit/depositions/:id/communities/:community", s.submitToCommunity)
		api.PUT("/files/:bucket/:filename", s.upload)
	}

	return router
}

func (s *Server) list(c *gin.Context) {
	s.mu.Lock()
	s.calls[OpList]++
	s.mu.Unlock()

	c.JSON(http.StatusOK, s.Depositions())
}

func (s *Server) create(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[OpCreate]++

	if status, ok := s.failure(OpCreate, ""); ok {
		c.JSON(status, gin.H{"status": status, "message": "injected create failure"})
		return
	}

	s.nextID++
	id := s.nextID
	bucket := uuid.NewString()
	base := baseURL(c)

	dep := &Deposition{
		ID:    id,
		State: stateDraft,
		Links: Links{
			Bucket:  fmt.Sprintf("%s/api/files/%s", base, bucket),
			Self:    fmt.Sprintf("%s/api/deposit/depositions/%d", base, id),
			Publish: fmt.Sprintf("%s/api/deposit/depositions/%d/actions/publish", base, id),
		},
		Files:  []File{},
		bucket: bucket,
	}
	s.deps[id] = dep
	s.buckets[bucket] = id

	c.JSON(http.StatusCreated, dep)
}

func (s *Server) upload(c *gin.Context) {
	filename := c.Param("filename")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[OpUpload]++

	if status, ok := s.failure(OpUpload, filename); ok {
		c.JSON(status, gin.H{"status": status, "message": "injected upload failure"})
		return
	}

	id, ok := s.buckets[c.Param("bucket")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "bucket not found"})
		return
	}
	dep := s.deps[id]
	if dep.State == stateDone {
		c.JSON(http.StatusForbidden, gin.H{"message": "deposition is published"})
		return
	}

	sum := md5.Sum(body)
	file := File{Key: filename, Size: int64(len(body)), Checksum: "md5:" + hex.EncodeToString(sum[:])}
	dep.Files = append(dep.Files, file)

	c.JSON(http.StatusCreated, file)
}

func (s *Server) updateMetadata(c *gin.Context) {
	var payload struct {
		Metadata domain.Metadata `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[OpMetadata]++

	if status, ok := s.failure(OpMetadata, payload.Metadata.Title); ok {
		c.JSON(status, gin.H{"status": status, "message": "injected metadata failure"})
		return
	}

	dep, ok := s.lookup(c)
	if !ok {
		return
	}

	if msg := validateMetadata(payload.Metadata); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": http.StatusBadRequest, "message": msg})
		return
	}

	md := payload.Metadata
	dep.Metadata = &md
	c.JSON(http.StatusOK, dep)
}

func (s *Server) publish(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[OpPublish]++

	dep, ok := s.lookup(c)
	if !ok {
		return
	}
	if status, ok := s.failure(OpPublish, titleOf(dep)); ok {
		c.JSON(status, gin.H{"status": status, "message": "injected publish failure"})
		return
	}
	if len(dep.Files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Minimum one file must be provided."})
		return
	}
	if dep.Metadata == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Validation error."})
		return
	}

	dep.State = stateDone
	dep.Submitted = true
	c.JSON(http.StatusAccepted, dep)
}

func (s *Server) submitToCommunity(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[OpCommunity]++

	dep, ok := s.lookup(c)
	if !ok {
		return
	}
	if status, ok := s.failure(OpPublish, titleOf(dep)); ok {
		c.JSON(status, gin.H{"status": status, "message": "injected community failure"})
		return
	}

	community := c.Param("community")
	dep.Communities = append(dep.Communities, community)
	c.JSON(http.StatusCreated, gin.H{"id": dep.ID, "community": community, "status": "pending"})
}

// lookup resolves the :id path parameter; on failure it has already written
// the response.
func (s *Server) lookup(c *gin.Context) (*Deposition, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid deposition id"})
		return nil, false
	}
	dep, ok := s.deps[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": http.StatusNotFound, "message": "PID does not exist."})
		return nil, false
	}
	return dep, true
}

func validateMetadata(md domain.Metadata) string {
	switch {
	case md.Title == "":
		return "title: Missing data for required field."
	case md.UploadType == "":
		return "upload_type: Missing data for required field."
	case len(md.Creators) == 0:
		return "creators: Missing data for required field."
	}
	return ""
}

func titleOf(dep *Deposition) string {
	if dep.Metadata == nil {
		return ""
	}
	return dep.Metadata.Title
}

func baseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}
