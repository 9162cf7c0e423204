package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"

	"github.com/rendis/geodir/internal/config"
	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/engine/search"
	"github.com/rendis/geodir/internal/engine/session"
	"github.com/rendis/geodir/internal/engine/transport"
	"github.com/rendis/geodir/internal/logging"
	"github.com/rendis/geodir/internal/model"
)

// app holds the long-lived collaborators every command shares.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	backend    search.Backend
	categories *session.CategoryResolver
	places     geo.Places

	closers []func() error
}

// newApp opens the logger, the search backend and, when enabled, the places
// service. fileLog sends logs to the user cache dir unless a file is
// configured, which keeps them off a TUI screen.
func newApp(cfg config.Config, fileLog bool) (*app, error) {
	logOpts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}
	if fileLog && logOpts.File == "" {
		logOpts.File = defaultLogFile()
	}
	logger, closeLog, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, closers: []func() error{closeLog}}

	netOpts := transport.Options{
		Timeout:     cfg.Network.Timeout,
		ProxyURL:    cfg.Network.ProxyURL,
		Fingerprint: cfg.Network.Fingerprint,
	}
	backend, err := search.Open(search.Options{
		Kind:        cfg.Search.Backend,
		Index:       cfg.Search.Index,
		Concurrency: cfg.Search.Concurrency,
		Path:        cfg.Search.DBPath,
		BaseURL:     cfg.Search.BaseURL,
		AppID:       cfg.Search.AppID,
		APIKey:      cfg.Search.APIKey,
		Transport:   netOpts,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.backend = backend
	a.closers = append(a.closers, backend.Close)
	a.categories = session.NewCategoryResolver(backend, 0)

	if cfg.Places.Enabled {
		a.places = geo.NewNominatim(transport.NewClient(netOpts), geo.NominatimOptions{
			BaseURL:       cfg.Places.BaseURL,
			UserAgent:     cfg.Places.UserAgent,
			CountryCodes:  cfg.Places.CountryCodes,
			RatePerSecond: cfg.Places.RatePerSecond,
		})
	}

	logger.Debug("geodir started", "version", version, "backend", backend.Capabilities().Name)
	return a, nil
}

// newSession builds a browsing session with the configured geo defaults.
func (a *app) newSession(id string) *session.Session {
	return session.New(id, session.Options{
		IndexName:   a.cfg.Search.Index,
		HitsPerPage: a.cfg.Search.HitsPerPage,
		Geo:         resolverOptions(a.cfg.Geo),
	}, session.Deps{
		Backend:    a.backend,
		Categories: a.categories,
		Places:     a.places,
		Logger:     a.logger,
	})
}

func resolverOptions(g config.GeoConfig) geo.ResolverOptions {
	opts := geo.ResolverOptions{
		Precision:     g.Precision,
		MinimumRadius: g.MinimumRadius,
		DefaultZoom:   g.DefaultZoom,
		MaxZoom:       g.MaxZoom,
		ZoomDelta:     g.ZoomDelta,
		DefaultRadius: model.DistanceAll,
	}
	if g.DefaultRadiusMiles > 0 {
		opts.DefaultRadius = model.Miles(g.DefaultRadiusMiles)
	}
	if g.HasDefaultLocation() {
		opts.DefaultLocation = &orb.Point{g.DefaultLng, g.DefaultLat}
	}
	return opts
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "geodir", "geodir.log")
}
