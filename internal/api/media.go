package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mverteuil/BirdNET-Pi-sub000/internal/datastore"
)

// ServeAudioClip streams the clip backing a detection. A database row
// whose file has since been removed responds 404, same as an unknown
// detection.
func (c *Controller) ServeAudioClip(ctx echo.Context) error {
	id := ctx.Param("id")
	relPath, err := c.deps.Store.GetClipPath(id)
	if err != nil {
		if datastore.IsRecordNotFound(err) {
			return ctx.JSON(http.StatusNotFound, errorResponse{Error: fmt.Sprintf("no clip for detection %s", id)})
		}
		return c.handleError(ctx, err, http.StatusInternalServerError)
	}

	root := c.settings.ClipExportPath()
	fullPath := filepath.Join(root, filepath.FromSlash(relPath))

	// Stored paths are relative; reject anything that escapes the
	// export root.
	rootAbs, err := filepath.Abs(root)
	if err == nil {
		pathAbs, aerr := filepath.Abs(fullPath)
		if aerr != nil || !strings.HasPrefix(pathAbs, rootAbs+string(os.PathSeparator)) {
			return ctx.JSON(http.StatusNotFound, errorResponse{Error: fmt.Sprintf("no clip for detection %s", id)})
		}
	}

	if _, err := os.Stat(fullPath); err != nil {
		return ctx.JSON(http.StatusNotFound, errorResponse{Error: fmt.Sprintf("clip file missing for detection %s", id)})
	}
	return ctx.File(fullPath)
}
