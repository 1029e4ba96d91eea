// Package api exposes recordings over HTTP: location discovery, directory
// browsing, header metadata, sample data, and spike detection results.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	nsxfile "github.com/edmerix/NSxFile"
	"github.com/edmerix/NSxFile/internal/cache"
	"github.com/edmerix/NSxFile/internal/config"
	"github.com/edmerix/NSxFile/internal/datasource"
)

type API struct {
	Cfg    *config.Config
	Cache  *cache.Cache
	Logger *zap.Logger
}

// SetupRoutes registers every recording endpoint on e.
func (a *API) SetupRoutes(e *echo.Echo) {
	e.GET("/nsx/fs", a.GetFileLocations)
	e.GET("/nsx/fs/:location", a.GetFileOrDirectory)
	e.GET("/nsx/fs/:location/*", a.GetFileOrDirectory)
	e.GET("/nsx/hdr/:location/*", a.GetHeader)
	e.GET("/nsx/data/:location/*", a.GetData)
	e.GET("/nsx/spikes/:location/*", a.GetSpikes)
}

// openSession stages the named recording and parses it. The caller closes
// the returned session.
func (a *API) openSession(c echo.Context) (*nsxfile.Session, error) {
	location := c.Param("location")
	filePath := c.Param("*")

	src, err := datasource.Open(a.Cfg, a.Cache, a.Logger, location, filePath)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	session, err := nsxfile.OpenReader(src, nsxfile.WithLogger(a.Logger))
	if err != nil {
		src.Close()
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return session, nil
}

// headerResponse is the JSON body of the header endpoint.
type headerResponse struct {
	Metadata        *nsxfile.FileMetadata         `json:"metadata"`
	Electrodes      []nsxfile.ElectrodeDescriptor `json:"electrodes,omitempty"`
	Segments        []nsxfile.Segment             `json:"segments"`
	Paused          bool                          `json:"paused"`
	TotalDatapoints int64                         `json:"total_datapoints"`
	Duration        float64                       `json:"duration"`
}

// GetHeader returns the parsed header, electrode table, and segment index
// of one recording.
func (a *API) GetHeader(c echo.Context) error {
	session, err := a.openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	return c.JSON(http.StatusOK, headerResponse{
		Metadata:        session.Metadata(),
		Electrodes:      session.Electrodes(),
		Segments:        session.Segments(),
		Paused:          session.Paused(),
		TotalDatapoints: session.TotalDatapoints(),
		Duration:        session.Duration(),
	})
}
