package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	nsxfile "github.com/edmerix/NSxFile"
)

// GetSpikes loads the requested range, runs spike detection, and returns
// one record per channel as JSON. Waveforms and covariance stay server-side;
// the body carries times, thresholds, and counts.
func (a *API) GetSpikes(c echo.Context) error {
	readOpts, err := parseReadOptions(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	detectOpts, err := parseDetectOptions(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	session, err := a.openSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Read(readOpts); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := session.DetectSpikes(detectOpts); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	records := make(map[int]*nsxfile.SpikeRecord, len(session.Data().Channels))
	for _, ch := range session.Data().Channels {
		if rec := session.Spikes(ch); rec != nil {
			records[ch] = rec
		}
	}
	return c.JSON(http.StatusOK, records)
}

func parseDetectOptions(c echo.Context) (nsxfile.DetectOptions, error) {
	var opts nsxfile.DetectOptions
	var err error

	if raw := c.QueryParam("threshold"); raw != "" {
		if opts.Threshold, err = strconv.ParseFloat(raw, 64); err != nil {
			return opts, fmt.Errorf("bad threshold %q", raw)
		}
	}
	if raw := c.QueryParam("low"); raw != "" {
		if opts.Passband[0], err = strconv.ParseFloat(raw, 64); err != nil {
			return opts, fmt.Errorf("bad low %q", raw)
		}
	}
	if raw := c.QueryParam("high"); raw != "" {
		if opts.Passband[1], err = strconv.ParseFloat(raw, 64); err != nil {
			return opts, fmt.Errorf("bad high %q", raw)
		}
	}
	if (opts.Passband[0] == 0) != (opts.Passband[1] == 0) {
		return opts, fmt.Errorf("low and high must be given together")
	}

	switch c.QueryParam("filter") {
	case "", "fir":
		opts.Filter = nsxfile.FamilyFIR
	case "butterworth":
		opts.Filter = nsxfile.FamilyButterworth
	default:
		return opts, fmt.Errorf("bad filter %q", c.QueryParam("filter"))
	}
	if raw := c.QueryParam("order"); raw != "" {
		if opts.FilterOrder, err = strconv.Atoi(raw); err != nil || opts.FilterOrder < 1 {
			return opts, fmt.Errorf("bad order %q", raw)
		}
	}
	if raw := c.QueryParam("max_amplitude"); raw != "" {
		if opts.MaxAmplitude, err = strconv.ParseFloat(raw, 64); err != nil {
			return opts, fmt.Errorf("bad max_amplitude %q", raw)
		}
	}
	return opts, nil
}
