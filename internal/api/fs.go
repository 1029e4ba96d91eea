package api

import (
	"context"
	"net/http"
	"os"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// locationInfo is one browsable location, with credentials withheld.
type locationInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// GetFileLocations lists the configured recording locations.
func (a *API) GetFileLocations(c echo.Context) error {
	locations := make([]locationInfo, 0, len(a.Cfg.LocationDetails))
	for _, loc := range a.Cfg.LocationDetails {
		locations = append(locations, locationInfo{Name: loc.LocationName, Type: loc.LocationType})
	}
	return c.JSON(http.StatusOK, locations)
}

type fsEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// GetFileOrDirectory lists the contents of a directory within a location.
func (a *API) GetFileOrDirectory(c echo.Context) error {
	locationName := c.Param("location")
	subPath := c.Param("*")

	location, ok := a.Cfg.FindLocation(locationName)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown location "+locationName)
	}

	switch location.LocationType {
	case "localFile":
		return a.listLocalDirectory(c, path.Join(location.Path, subPath))
	case "minio":
		return a.listMinioPrefix(c, location.Location, location.MinioAccessKey,
			location.MinioSecretKey, location.MinioBucket, path.Join(location.Path, subPath))
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unsupported location type "+location.LocationType)
	}
}

func (a *API) listLocalDirectory(c echo.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	listing := make([]fsEntry, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			a.Logger.Warn("skipping unreadable entry", zap.String("name", entry.Name()), zap.Error(err))
			continue
		}
		entryType := "file"
		if entry.IsDir() {
			entryType = "directory"
		}
		listing = append(listing, fsEntry{Name: entry.Name(), Type: entryType, Size: info.Size()})
	}
	return c.JSON(http.StatusOK, listing)
}

func (a *API) listMinioPrefix(c echo.Context, endpoint, accessKey, secretKey, bucket, prefix string) error {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var listing []fsEntry
	for object := range client.ListObjects(context.Background(), bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if object.Err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, object.Err.Error())
		}
		listing = append(listing, fsEntry{Name: object.Key, Type: "file", Size: object.Size})
	}
	return c.JSON(http.StatusOK, listing)
}
