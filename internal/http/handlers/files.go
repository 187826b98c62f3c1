package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docchat-backend/internal/http/response"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
)

// FilesHandler serves source documents from the local docs root so the UI
// can open a cited file.
type FilesHandler struct {
	root string
}

func NewFilesHandler(root string) *FilesHandler {
	return &FilesHandler{root: root}
}

// GET /files?path=
func (h *FilesHandler) Get(c *gin.Context) {
	full, err := h.resolve(c.Query("path"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			response.RespondErr(c, fmt.Errorf("file %q: %w", c.Query("path"), apierr.ErrNotFound))
			return
		}
		response.RespondErr(c, err)
		return
	}
	if info.IsDir() {
		response.RespondErr(c, fmt.Errorf("file %q: %w", c.Query("path"), apierr.ErrNotFound))
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": filepath.Base(full)}))
	c.File(full)
}

// resolve maps a slash-separated relative path onto the docs root and
// rejects anything that escapes it.
func (h *FilesHandler) resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", fmt.Errorf("%w: path is required", apierr.ErrInvalidArgument)
	}
	if strings.TrimSpace(h.root) == "" {
		return "", fmt.Errorf("%w: documents directory is not configured", apierr.ErrNotFound)
	}
	root, err := filepath.Abs(h.root)
	if err != nil {
		return "", err
	}
	if strings.Contains(rel, "\\") || path.IsAbs(rel) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q is outside the documents directory", apierr.ErrAccessDenied, rel)
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	inside, err := filepath.Rel(root, full)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside the documents directory", apierr.ErrAccessDenied, rel)
	}
	// symlinks pointing out of the root are rejected too
	if resolved, err := filepath.EvalSymlinks(full); err == nil {
		realRoot, rerr := filepath.EvalSymlinks(root)
		if rerr != nil {
			realRoot = root
		}
		inside, err := filepath.Rel(realRoot, resolved)
		if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %q is outside the documents directory", apierr.ErrAccessDenied, rel)
		}
	}
	return full, nil
}
