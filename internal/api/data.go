package api

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	nsxfile "github.com/edmerix/NSxFile"
	"github.com/edmerix/NSxFile/internal/cache"
)

// GetData reads a channel/time range from a recording and returns the
// samples as little-endian float64, one channel after another in request
// order. Responses are cached keyed by the request URL.
func (a *API) GetData(c echo.Context) error {
	opts, err := parseReadOptions(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cacheFileName := cache.UrlToCacheFileName(c.Request().URL.String())
	if a.Cfg.UseCache {
		if payload, err := a.Cache.GetDataFromCache(cacheFileName, cache.ResponseDir); err == nil {
			if channels, body, err := decodeDataPayload(payload); err == nil {
				a.Logger.Info("data response served from cache", zap.String("key", cacheFileName))
				return a.sendData(c, body, channels)
			}
			a.Logger.Warn("discarding malformed cached response", zap.String("key", cacheFileName))
		}
	}

	session, err := a.openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Read(opts); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	channels := session.Data().Channels
	body := flattenData(session.Data())
	if a.Cfg.UseCache {
		if err := a.Cache.PutItemInCache(cacheFileName, cache.ResponseDir, encodeDataPayload(channels, body)); err != nil {
			a.Logger.Warn("caching data response failed", zap.Error(err))
		}
	}
	return a.sendData(c, body, channels)
}

func (a *API) sendData(c echo.Context, body []byte, channels []int) error {
	labels := make([]string, len(channels))
	for i, ch := range channels {
		labels[i] = strconv.Itoa(ch)
	}
	c.Response().Header().Set("X-Nsx-Channels", strings.Join(labels, ","))
	if len(channels) > 0 {
		c.Response().Header().Set("X-Nsx-Samples",
			strconv.Itoa(len(body)/8/len(channels)))
	}
	return c.Blob(http.StatusOK, "application/octet-stream", body)
}

// Cached responses carry the resolved channel list ahead of the sample
// bytes, so cache hits answer with the same layout headers as fresh reads
// even when the request left the channel selection implicit.

func encodeDataPayload(channels []int, body []byte) []byte {
	le := binary.LittleEndian
	out := make([]byte, 0, 4+4*len(channels)+len(body))
	out = le.AppendUint32(out, uint32(len(channels)))
	for _, ch := range channels {
		out = le.AppendUint32(out, uint32(ch))
	}
	return append(out, body...)
}

func decodeDataPayload(payload []byte) ([]int, []byte, error) {
	le := binary.LittleEndian
	if len(payload) < 4 {
		return nil, nil, fmt.Errorf("payload too short")
	}
	n := int(le.Uint32(payload))
	if len(payload) < 4+4*n {
		return nil, nil, fmt.Errorf("truncated channel list")
	}
	channels := make([]int, n)
	for i := range channels {
		channels[i] = int(le.Uint32(payload[4+4*i:]))
	}
	return channels, payload[4+4*n:], nil
}

// flattenData serializes the loaded matrices channel by channel, each
// channel's segments concatenated in order.
func flattenData(data *nsxfile.LoadedData) []byte {
	out := make([]byte, 0, len(data.Channels)*data.NumSamples()*8)
	le := binary.LittleEndian
	for row := range data.Channels {
		for _, m := range data.Segments {
			for _, v := range m.RawRowView(row) {
				out = le.AppendUint64(out, math.Float64bits(v))
			}
		}
	}
	return out
}

func parseReadOptions(c echo.Context) (nsxfile.ReadOptions, error) {
	var opts nsxfile.ReadOptions

	if raw := c.QueryParam("channels"); raw != "" {
		for _, field := range strings.Split(raw, ",") {
			ch, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return opts, fmt.Errorf("bad channel %q", field)
			}
			opts.Channels = append(opts.Channels, ch)
		}
	}

	var err error
	if raw := c.QueryParam("start"); raw != "" {
		if opts.Start, err = strconv.ParseFloat(raw, 64); err != nil {
			return opts, fmt.Errorf("bad start %q", raw)
		}
	}
	if raw := c.QueryParam("end"); raw != "" {
		if opts.End, err = strconv.ParseFloat(raw, 64); err != nil {
			return opts, fmt.Errorf("bad end %q", raw)
		}
	}
	if raw := c.QueryParam("stride"); raw != "" {
		if opts.Stride, err = strconv.Atoi(raw); err != nil || opts.Stride < 1 {
			return opts, fmt.Errorf("bad stride %q", raw)
		}
	}

	switch c.QueryParam("units") {
	case "", "seconds":
		opts.Units = nsxfile.UnitsSeconds
	case "datapoints":
		opts.Units = nsxfile.UnitsDatapoints
	default:
		return opts, fmt.Errorf("bad units %q", c.QueryParam("units"))
	}

	switch c.QueryParam("mode") {
	case "", "buffered":
		opts.Policy = nsxfile.PolicyBuffered
	case "streaming":
		opts.Policy = nsxfile.PolicyStreaming
	default:
		return opts, fmt.Errorf("bad mode %q", c.QueryParam("mode"))
	}

	return opts, nil
}
