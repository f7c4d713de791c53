package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/whome/internal/storage"
)

const timeLayout = "2006-01-02T15:04:05Z"

// maxUploadSize bounds image uploads.
const maxUploadSize = 10 << 20

var errNoUpload = errors.New("no file uploaded")

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return uuid.Nil, false
	}
	return id, true
}

// readUpload returns the bytes of a multipart file field. errNoUpload means
// the field is absent.
func readUpload(c *gin.Context, field string) ([]byte, *multipart.FileHeader, error) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil, errNoUpload
		}
		return nil, nil, err
	}
	defer file.Close()

	if header.Size > maxUploadSize {
		return nil, nil, fmt.Errorf("%s exceeds %d bytes", field, maxUploadSize)
	}
	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", field, err)
	}
	return data, header, nil
}

func contentTypeOf(header *multipart.FileHeader, data []byte) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

// serveObject proxies an image from blob storage.
func serveObject(c *gin.Context, store storage.ObjectStore, key, what string) {
	if key == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
		return
	}
	data, err := store.GetObject(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
