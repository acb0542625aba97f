package uploads

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pmsystem/pmdash/internal/logger"
	"github.com/pmsystem/pmdash/internal/projects/repository"
)

const maxUploadBytes = 20 << 20

// Recorder remembers stored objects for the orphan sweeper.
type Recorder interface {
	Record(ctx context.Context, o repository.StoredObject) error
}

type Handler struct {
	store ObjectStore
	repo  Recorder
	now   func() time.Time
}

func NewHandler(store ObjectStore, repo Recorder) *Handler {
	return &Handler{store: store, repo: repo, now: time.Now}
}

// Upload handles POST /upload with a multipart "file" field.
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "file is required"})
		return
	}
	if fh.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": "file too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "cannot read file"})
		return
	}
	defer f.Close()

	filename := filepath.Base(fh.Filename)
	contentType := detectType(fh.Header.Get("Content-Type"), filename, f)

	key := NewKey(h.now(), filename)
	url, err := h.store.Put(c.Request.Context(), key, f, contentType)
	if err != nil {
		logger.Zlog.Error("store upload", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "storage unavailable"})
		return
	}

	if err := h.repo.Record(c.Request.Context(), repository.StoredObject{
		Key:         key,
		URL:         url,
		Filename:    filename,
		ContentType: contentType,
	}); err != nil {
		// the object is stored; without a record the sweeper will not see it
		logger.Zlog.Warn("record upload", zap.String("key", key), zap.Error(err))
	}

	c.JSON(http.StatusCreated, gin.H{
		"ok":       true,
		"filename": filename,
		"url":      url,
		"type":     contentType,
	})
}

// detectType trusts an explicit part header, then the extension, then sniffs.
func detectType(header, filename string, f io.ReadSeeker) string {
	if header != "" && header != "application/octet-stream" {
		return header
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); t != "" {
		return t
	}
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	_, _ = f.Seek(0, io.SeekStart)
	return http.DetectContentType(buf[:n])
}

// Register attaches the upload route behind protect.
func (h *Handler) Register(r gin.IRouter, protect gin.HandlerFunc) {
	r.POST("/upload", protect, h.Upload)
}
