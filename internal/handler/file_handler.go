package handler

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/college-portal-api/pkg/response"
)

type signedFileOpener interface {
	OpenSigned(ctx context.Context, token string) (*os.File, string, error)
}

// FileHandler serves stored files behind signed links.
type FileHandler struct {
	files signedFileOpener
}

// NewFileHandler constructs FileHandler.
func NewFileHandler(files signedFileOpener) *FileHandler {
	return &FileHandler{files: files}
}

// Download godoc
// @Summary Download a file by signed token
// @Tags Files
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/{token} [get]
func (h *FileHandler) Download(c *gin.Context) {
	file, contentType, err := h.files.OpenSigned(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=60")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
