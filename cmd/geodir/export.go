package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/geodir/internal/engine/search"
	"github.com/rendis/geodir/internal/logging"
	"github.com/rendis/geodir/internal/model"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the local index to CSV",
	Long: `Write every listing of the SQLite index to a CSV file.

Examples:
  geodir export
  geodir export --output listings.csv`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "Output file path (default: same dir as db)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	dbPath := cfg.Search.DBPath
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("index %s: %w", dbPath, err)
	}
	if exportOutput == "" {
		dir := filepath.Dir(dbPath)
		base := strings.TrimSuffix(filepath.Base(dbPath), ".db")
		exportOutput = filepath.Join(dir, base+".csv")
	}

	db, err := search.OpenSQLite(dbPath, 1, logging.Discard())
	if err != nil {
		return err
	}
	defer db.Close()

	listings, err := db.Listings(cmd.Context())
	if err != nil {
		return fmt.Errorf("loading listings: %w", err)
	}
	if len(listings) == 0 {
		return fmt.Errorf("no listings found in %s", dbPath)
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer f.Close()

	if err := writeCSV(f, listings); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %d listings to %s\n", len(listings), exportOutput)
	return nil
}

var csvHeader = []string{
	"object_id", "name", "description", "address", "city", "postal_code",
	"phone", "website", "lat", "lng", "categories", "eligibilities", "schedule",
}

func writeCSV(f *os.File, listings []model.Listing) error {
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, l := range listings {
		w.Write([]string{
			l.ObjectID,
			l.Name,
			l.Description,
			l.Address,
			l.City,
			l.PostalCode,
			l.Phone,
			l.Website,
			fmt.Sprintf("%.6f", l.Lat),
			fmt.Sprintf("%.6f", l.Lng),
			strings.Join(l.Categories, ";"),
			strings.Join(l.Eligibilities, ";"),
			strings.Join(l.Schedule, ";"),
		})
	}
	w.Flush()
	return w.Error()
}
