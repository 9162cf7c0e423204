package main

import (
	"context"
	"io"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/engine/search"
	"github.com/rendis/geodir/internal/tui"
	"github.com/rendis/geodir/internal/tui/views"
)

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var area orb.MultiPolygon
	if path := cfg.Geo.ServiceArea; path != "" {
		rs, err := geo.LoadRegions(path)
		if err != nil {
			a.logger.Warn("service area not loaded", "path", path, "error", err)
		} else {
			area = rs.All()
		}
	}

	var importer views.Importer
	if db, ok := a.backend.(*search.SQLite); ok {
		importer = func(ctx context.Context, r io.Reader, stats *search.ImportStats) error {
			_, err := search.Import(ctx, db, r, search.ImportOptions{
				BatchSize: 500,
				Within:    area,
				Stats:     stats,
			}, a.logger)
			return err
		}
	}

	return tui.Run(tui.Deps{
		Version:     version,
		Backend:     a.backend.Capabilities().Name,
		NewSession:  a.newSession,
		Categories:  a.categories,
		Importer:    importer,
		ServiceArea: area,
		Logger:      a.logger,
	})
}
