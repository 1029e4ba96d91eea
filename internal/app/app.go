// Package app wires configuration, logging, the cache, and the HTTP server
// into a runnable daemon.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"
	"github.com/tkanos/gonfig"
	"go.elastic.co/apm/module/apmechov4"
	"go.uber.org/zap"

	"github.com/edmerix/NSxFile/internal/api"
	"github.com/edmerix/NSxFile/internal/cache"
	"github.com/edmerix/NSxFile/internal/config"
)

// ParseCLI fills cfg from flags, then overlays the JSON config file when
// one is given. Flags win for the listener settings; the file is the only
// source of location details.
func ParseCLI(cfg *config.Config, args []string) error {
	flags := pflag.NewFlagSet("nsxd", pflag.ContinueOnError)
	flags.StringVar(&cfg.ConfigFile, "config", "", "path to JSON config file")
	flags.StringVar(&cfg.Host, "host", "0.0.0.0", "listen host")
	flags.IntVar(&cfg.Port, "port", 5055, "listen port")
	flags.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	flags.BoolVar(&cfg.UseCache, "use-cache", true, "cache data responses on disk")
	flags.StringVar(&cfg.CacheLocation, "cache-location", "./nsxcache", "cache directory")
	flags.IntVar(&cfg.CachePollingInterval, "cache-polling-interval", 60, "seconds between cache size checks")
	flags.Int64Var(&cfg.CacheMaxBytes, "cache-max-bytes", 1<<30, "cache size budget in bytes")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if cfg.ConfigFile != "" {
		fileCfg := config.Config{}
		if err := gonfig.GetConf(cfg.ConfigFile, &fileCfg); err != nil {
			return fmt.Errorf("app: reading config %s: %w", cfg.ConfigFile, err)
		}
		cfg.LocationDetails = fileCfg.LocationDetails
		if fileCfg.CacheLocation != "" {
			cfg.CacheLocation = fileCfg.CacheLocation
		}
		if fileCfg.CacheMaxBytes > 0 {
			cfg.CacheMaxBytes = fileCfg.CacheMaxBytes
		}
	}
	return nil
}

// SetupServer builds the echo instance with middleware, metrics, tracing,
// and every recording route registered.
func SetupServer(cfg *config.Config, fileCache *cache.Cache, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(apmechov4.Middleware())

	p := prometheus.NewPrometheus("nsxd", nil)
	p.Use(e)

	handlers := &api.API{Cfg: cfg, Cache: fileCache, Logger: logger}
	handlers.SetupRoutes(e)
	return e
}

// SetupCache prepares the cache directories and starts the purge loops.
func SetupCache(cfg *config.Config, logger *zap.Logger) (*cache.Cache, error) {
	fileCache := &cache.Cache{Location: cfg.CacheLocation, Logger: logger}
	for _, subDir := range []string{cache.ResponseDir, cache.StagingDir} {
		dir := filepath.Join(cfg.CacheLocation, subDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("app: creating cache dir %s: %w", dir, err)
		}
		go fileCache.CheckCache(dir, cfg.CachePollingInterval, cfg.CacheMaxBytes)
	}
	return fileCache, nil
}

// Run is the daemon entry point. It blocks until an interrupt, then shuts
// the server down gracefully.
func Run(args []string) error {
	cfg := &config.Config{}
	if err := ParseCLI(cfg, args); err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var fileCache *cache.Cache
	if cfg.UseCache {
		if fileCache, err = SetupCache(cfg, logger); err != nil {
			return err
		}
	} else {
		fileCache = &cache.Cache{Location: os.TempDir(), Logger: logger}
	}

	e := SetupServer(cfg, fileCache, logger)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		logger.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
