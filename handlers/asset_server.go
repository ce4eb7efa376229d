package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// AssetServer creates a handler to serve static files from a specific base directory.
// it expects the request path to contain the relative path within that base directory.
// example Usage:
//
//	r.Get("/uploads/*", AssetServer(cfg.MediaStoragePath, cfg.UploadsSubDir, "/uploads/"))
//	r.Get("/thumbnails/*", AssetServer(cfg.MediaStoragePath, cfg.ThumbnailsSubDir, "/thumbnails/"))
//
// routePrefix is the URL prefix stripped from the request path; it need not
// match the subDir on disk.
func AssetServer(baseStoragePath, subDir, routePrefix string) (http.HandlerFunc, error) {
	fullAssetDirPath := filepath.Clean(filepath.Join(baseStoragePath, subDir))
	if !strings.HasPrefix(fullAssetDirPath, filepath.Clean(baseStoragePath)) {
		return nil, fmt.Errorf("asset subdirectory '%s' resolved outside base storage path '%s'", subDir, baseStoragePath)
	}
	log.Infof("Serving assets for '%s*' from directory: %s", routePrefix, fullAssetDirPath)

	return func(w http.ResponseWriter, r *http.Request) {
		// e.g., for route /uploads/* and request /uploads/image.jpg, extract "image.jpg"
		relativePath := strings.TrimPrefix(r.URL.Path, routePrefix)
		if relativePath == "" || strings.Contains(relativePath, "..") {
			http.Error(w, "Invalid asset path", http.StatusBadRequest)
			return
		}

		cleanedAssetPath := filepath.Clean(filepath.Join(fullAssetDirPath, relativePath))
		if !strings.HasPrefix(cleanedAssetPath, fullAssetDirPath+string(filepath.Separator)) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			log.Warnf("SECURITY: Attempted asset access outside designated directory: Request='%s', Resolved='%s', Allowed Base='%s'",
				r.URL.Path, cleanedAssetPath, fullAssetDirPath)
			return
		}

		info, err := os.Stat(cleanedAssetPath)
		if os.IsNotExist(err) || (err == nil && info.IsDir()) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			log.Errorf("Error stating asset file %s: %v", cleanedAssetPath, err)
			return
		}

		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))

		http.ServeFile(w, r, cleanedAssetPath)
	}, nil
}
