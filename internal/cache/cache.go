// Package cache stores computed responses and staged remote recordings on
// local disk, keyed by the request URL, with a size-capped purge loop.
package cache

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// ResponseDir holds cached request outputs; StagingDir holds
	// recordings fetched from remote object storage.
	ResponseDir = "responses"
	StagingDir  = "staging"

	// cachePrefix guards the purge loop against deleting files that were
	// not written by this cache.
	cachePrefix = "nsx"
)

type Cache struct {
	Location string
	Logger   *zap.Logger
}

// UrlToCacheFileName flattens a request URL and query string into a cache
// file name.
func UrlToCacheFileName(url string) string {
	flat := strings.Replace(url, "?", "_", 1)
	replacer := strings.NewReplacer("&", "", "=", "", ".", "", "/", "", ",", "")
	return cachePrefix + replacer.Replace(flat)
}

// GetDataFromCache returns the cached bytes for cacheFileName in subDir.
func (c *Cache) GetDataFromCache(cacheFileName, subDir string) ([]byte, error) {
	return os.ReadFile(filepath.Join(c.Location, subDir, cacheFileName))
}

// GetItemFromCache opens a cached file as a seekable reader.
func (c *Cache) GetItemFromCache(cacheFileName, subDir string) (io.ReadSeekCloser, error) {
	return os.Open(filepath.Join(c.Location, subDir, cacheFileName))
}

// PutItemInCache writes data under cacheFileName in subDir.
func (c *Cache) PutItemInCache(cacheFileName, subDir string, data []byte) error {
	dir := filepath.Join(c.Location, subDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, cacheFileName), data, 0o644)
}

// CheckCache polls cachePath every checkInterval seconds and removes the
// oldest cache files while the directory exceeds maxBytes. It runs until
// the process exits.
func (c *Cache) CheckCache(cachePath string, checkInterval int, maxBytes int64) {
	for {
		if !c.purgeOnce(cachePath, maxBytes) {
			time.Sleep(time.Duration(checkInterval) * time.Second)
		}
	}
}

// purgeOnce removes the oldest cache file if the directory is over budget,
// reporting whether it removed anything.
func (c *Cache) purgeOnce(cachePath string, maxBytes int64) bool {
	entries, err := os.ReadDir(cachePath)
	if err != nil {
		c.Logger.Error("cache scan failed", zap.String("path", cachePath), zap.Error(err))
		time.Sleep(5 * time.Second)
		return false
	}

	var currentBytes int64
	var oldest os.FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		currentBytes += info.Size()
		if oldest == nil || info.ModTime().Before(oldest.ModTime()) {
			oldest = info
		}
	}
	if currentBytes <= maxBytes || oldest == nil {
		return false
	}

	if !strings.HasPrefix(oldest.Name(), cachePrefix) {
		c.Logger.Warn("cache over budget but oldest file is not a cache file, skipping",
			zap.String("file", oldest.Name()),
		)
		return false
	}
	c.Logger.Info("cache over budget, removing oldest file",
		zap.String("file", oldest.Name()),
		zap.Int64("current_bytes", currentBytes),
		zap.Int64("max_bytes", maxBytes),
	)
	if err := os.Remove(filepath.Join(cachePath, oldest.Name())); err != nil {
		c.Logger.Error("removing cache file failed", zap.Error(err))
		return false
	}
	return true
}
