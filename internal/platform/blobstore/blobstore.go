// Package blobstore stores referral documents (scans, lab results, consent
// forms) and serves them back by URL. It defines the Store interface, an
// in-memory implementation for development and testing, and Echo HTTP
// handlers for upload, download, metadata retrieval and deletion.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/refermed/refermed/internal/platform/auth"
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed document size in bytes (25 MB).
const MaxFileSize = 25 * 1024 * 1024

// AllowedContentTypes lists the file types accepted as referral documents.
var AllowedContentTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"application/pdf": true,
	"text/plain":      true,
}

// Document describes a stored referral document.
type Document struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ReferralID  string    `json:"referral_id,omitempty"`
	Hash        string    `json:"hash"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
}

// Store is the contract for document storage backends.
type Store interface {
	Upload(ctx context.Context, doc Document, content io.Reader) (*Document, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *Document, error)
	GetMetadata(ctx context.Context, id string) (*Document, error)
	Delete(ctx context.Context, id string) error
	ListByReferral(ctx context.Context, referralID string) ([]*Document, error)
}

type storedDocument struct {
	meta    Document
	content []byte
}

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]*storedDocument
	baseURL string
}

// NewMemoryStore returns a MemoryStore. baseURL is prepended to generated
// document URLs, e.g. "https://api.refermed.example/api/v1".
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]*storedDocument),
		baseURL: baseURL,
	}
}

// Upload validates the document, reads the content, computes a SHA-256 hash
// and stores it, assigning an id and a download URL.
func (s *MemoryStore) Upload(_ context.Context, doc Document, content io.Reader) (*Document, error) {
	if doc.FileName == "" {
		return nil, ErrMissingFileName
	}
	if doc.ContentType != "" && !AllowedContentTypes[doc.ContentType] {
		return nil, ErrInvalidContentType
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)

	doc.ID = uuid.New().String()
	doc.Size = int64(len(data))
	doc.Hash = fmt.Sprintf("%x", h)
	doc.URL = fmt.Sprintf("%s/documents/%s", s.baseURL, doc.ID)
	doc.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.docs[doc.ID] = &storedDocument{meta: doc, content: data}
	s.mu.Unlock()

	out := doc // copy
	return &out, nil
}

func (s *MemoryStore) Download(_ context.Context, id string) (io.ReadCloser, *Document, error) {
	s.mu.RLock()
	d, ok := s.docs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrDocumentNotFound
	}

	meta := d.meta // copy
	return io.NopCloser(bytes.NewReader(d.content)), &meta, nil
}

func (s *MemoryStore) GetMetadata(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	d, ok := s.docs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrDocumentNotFound
	}

	meta := d.meta // copy
	return &meta, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return ErrDocumentNotFound
	}
	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) ListByReferral(_ context.Context, referralID string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Document
	for _, d := range s.docs {
		if d.meta.ReferralID != referralID {
			continue
		}
		m := d.meta // copy
		matched = append(matched, &m)
	}
	return matched, nil
}

// Handler provides Echo HTTP handlers for document operations.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts document routes on the supplied Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/documents", h.handleUpload)
	g.GET("/documents/:id", h.handleDownload)
	g.GET("/documents/:id/metadata", h.handleGetMetadata)
	g.DELETE("/documents/:id", h.handleDelete)
	g.GET("/referrals/:referralId/documents", h.handleListByReferral)
}

func (h *Handler) handleUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
	}

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open uploaded file"})
	}
	defer src.Close()

	doc := Document{
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		ReferralID:  c.FormValue("referral_id"),
		CreatedBy:   auth.UserIDFromContext(c.Request().Context()),
	}

	result, err := h.store.Upload(c.Request().Context(), doc, src)
	if err != nil {
		switch {
		case errors.Is(err, ErrFileTooLarge):
			return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrMissingFileName):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrInvalidContentType):
			return c.JSON(http.StatusUnsupportedMediaType, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}

	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) handleDownload(c echo.Context) error {
	rc, meta, err := h.store.Download(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) handleGetMetadata(c echo.Context) error {
	meta, err := h.store.GetMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *Handler) handleDelete(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) handleListByReferral(c echo.Context) error {
	docs, err := h.store.ListByReferral(c.Request().Context(), c.Param("referralId"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if docs == nil {
		docs = []*Document{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": docs, "total": len(docs)})
}
