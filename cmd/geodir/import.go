package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/engine/search"
	"github.com/rendis/geodir/internal/logging"
)

var (
	importBatch   int
	importRegions string
	importRegion  string
	importQuiet   bool
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Load listings into the local SQLite index",
	Long: `Read listings from FILE (a JSON array or one JSON object per line, - for
stdin) and store them in the SQLite index named by search.db_path.

Listings are upserted by objectID. Opening hours in "schedule" are expanded
into the 30-minute slots the hours filter matches.

Examples:
  geodir import listings.json
  geodir import listings.jsonl --regions bay_area.geojson --region oakland
  cat dump.jsonl | geodir import -`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().IntVar(&importBatch, "batch", 500, "Listings per transaction")
	importCmd.Flags().StringVar(&importRegions, "regions", "",
		"GeoJSON file to clip to (default geo.service_area)")
	importCmd.Flags().StringVar(&importRegion, "region", "",
		"Keep only listings inside this region of the GeoJSON file")
	importCmd.Flags().BoolVar(&importQuiet, "quiet", false, "No progress output")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	logger, closeLog, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer closeLog()

	within, err := clipArea()
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}

	db, err := search.OpenSQLite(cfg.Search.DBPath, cfg.Search.Concurrency, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	stats := &search.ImportStats{}
	done := make(chan struct{})
	if !importQuiet {
		go func() {
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					fmt.Fprintf(os.Stderr, "\r  read %d  stored %d  skipped %d",
						stats.Read.Load(), stats.Stored.Load(), stats.Skipped.Load())
				}
			}
		}()
	}

	start := time.Now()
	_, err = search.Import(ctx, db, r, search.ImportOptions{
		BatchSize: importBatch,
		Within:    within,
		Stats:     stats,
	}, logger)
	close(done)
	if err != nil {
		return err
	}

	total, err := db.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\rImported %d listings (%d skipped) in %s, %d in %s\n",
		stats.Stored.Load(), stats.Skipped.Load(), time.Since(start).Truncate(time.Millisecond),
		total, cfg.Search.DBPath)
	return nil
}

// clipArea returns the polygon imports are restricted to, or nil.
func clipArea() (orb.MultiPolygon, error) {
	path := importRegions
	if path == "" {
		path = cfg.Geo.ServiceArea
	}
	if path == "" {
		if importRegion != "" {
			return nil, fmt.Errorf("--region needs --regions or geo.service_area")
		}
		return nil, nil
	}
	rs, err := geo.LoadRegions(path)
	if err != nil {
		return nil, err
	}
	if importRegion == "" {
		return rs.All(), nil
	}
	return rs.Polygon(importRegion)
}
