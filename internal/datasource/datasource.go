// Package datasource opens recordings from configured locations: local
// directories directly, minio buckets by staging the object through the
// file cache so the parser gets a seekable local file.
package datasource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/edmerix/NSxFile/internal/cache"
	"github.com/edmerix/NSxFile/internal/config"
)

// Open resolves locationName against the configured locations and returns
// a seekable reader over the named recording. The caller closes it.
func Open(cfg *config.Config, fileCache *cache.Cache, logger *zap.Logger, locationName, filePath string) (io.ReadSeekCloser, error) {
	location, ok := cfg.FindLocation(locationName)
	if !ok {
		return nil, fmt.Errorf("datasource: unknown location %q", locationName)
	}

	switch location.LocationType {
	case "localFile":
		fullPath := path.Join(location.Path, filePath)
		logger.Info("opening local recording",
			zap.String("location", locationName),
			zap.String("path", fullPath),
		)
		f, err := os.Open(fullPath)
		if err != nil {
			return nil, fmt.Errorf("datasource: %w", err)
		}
		return f, nil

	case "minio":
		return openMinio(cfg, fileCache, logger, location, filePath)

	default:
		return nil, fmt.Errorf("datasource: unsupported location type %q in %q", location.LocationType, locationName)
	}
}

// openMinio fetches the object into the staging cache on first use and
// serves the staged copy afterwards.
func openMinio(cfg *config.Config, fileCache *cache.Cache, logger *zap.Logger, location config.Location, filePath string) (io.ReadSeekCloser, error) {
	objectPath := path.Join(location.Path, filePath)
	cacheFileName := cache.UrlToCacheFileName(fmt.Sprintf("%s_%s", location.MinioBucket, objectPath))

	if staged, err := fileCache.GetItemFromCache(cacheFileName, cache.StagingDir); err == nil {
		return staged, nil
	}

	start := time.Now()
	client, err := minio.New(location.Location, &minio.Options{
		Creds:  credentials.NewStaticV4(location.MinioAccessKey, location.MinioSecretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, fmt.Errorf("datasource: connecting to minio: %w", err)
	}

	object, err := client.GetObject(context.Background(), location.MinioBucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("datasource: fetching %s: %w", objectPath, err)
	}
	defer object.Close()

	info, err := object.Stat()
	if err != nil {
		return nil, fmt.Errorf("datasource: stat %s: %w", objectPath, err)
	}
	data, err := io.ReadAll(object)
	if err != nil || int64(len(data)) != info.Size {
		return nil, fmt.Errorf("datasource: read %s: got %d of %d bytes: %w", objectPath, len(data), info.Size, err)
	}
	logger.Info("fetched remote recording",
		zap.String("bucket", location.MinioBucket),
		zap.String("object", objectPath),
		zap.Int64("bytes", info.Size),
		zap.Duration("elapsed", time.Since(start)),
	)

	if err := fileCache.PutItemInCache(cacheFileName, cache.StagingDir, data); err != nil {
		return nil, fmt.Errorf("datasource: staging %s: %w", objectPath, err)
	}
	return fileCache.GetItemFromCache(cacheFileName, cache.StagingDir)
}
