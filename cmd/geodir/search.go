package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/rendis/geodir/internal/engine/filters"
	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/engine/session"
	"github.com/rendis/geodir/internal/model"
	"github.com/rendis/geodir/internal/tui/styles"
)

var (
	searchCategory      string
	searchQuery         string
	searchPage          int
	searchEligibilities []string
	searchHours         string
	searchLocation      string
	searchLat           float64
	searchLng           float64
	searchRadius        string
	searchArea          string
	searchJSON          bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run one search without the TUI",
	Long: `Run a single search through a browsing session and print the results.

The flags go through the same steps the TUI does: pick the category, stage
the filters, apply them, then dispatch.

Examples:
  geodir search shelter --category housing
  geodir search --category food --hours openNow --eligibility Seniors
  geodir search --location "Mission District" --radius 1
  geodir search --lat 37.77 --lng -122.41 --radius all --json
  geodir search --area 37.80,-122.39,37.75,-122.45`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchCategory, "category", "", "Category slug (empty means all)")
	f.StringVar(&searchQuery, "query", "", "Text query (same as the positional argument)")
	f.IntVar(&searchPage, "page", 0, "Zero-based result page")
	f.StringSliceVar(&searchEligibilities, "eligibility", nil, "Eligibility to require (repeatable)")
	f.StringVar(&searchHours, "hours", "", "Opening hours: any, openNow, openLate")
	f.StringVar(&searchLocation, "location", "", "Place name resolved through the places service")
	f.Float64Var(&searchLat, "lat", 0, "Location latitude")
	f.Float64Var(&searchLng, "lng", 0, "Location longitude")
	f.StringVar(&searchRadius, "radius", "all", "Radius in miles around the location, or all")
	f.StringVar(&searchArea, "area", "", "Bounding box neLat,neLng,swLat,swLng")
	f.BoolVar(&searchJSON, "json", false, "Print the raw response as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		searchQuery = args[0]
	}
	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	s := a.newSession(uuid.NewString())
	if _, err := s.ChangeCategory(ctx, searchCategory); err != nil {
		return err
	}

	if err := stageFilters(ctx, cmd, s); err != nil {
		return err
	}
	s.ApplyFilters()

	if searchArea != "" {
		corners, err := parseArea(searchArea)
		if err != nil {
			return err
		}
		s.SearchThisArea(corners)
	}
	if searchQuery != "" {
		s.SetQuery(searchQuery)
	}
	if searchPage > 0 {
		s.SetPage(searchPage)
	}

	f, _ := s.Config().Filters()
	a.logger.Debug("dispatching", "filters", f, "geo", s.Config().Params().AroundLatLng)

	res, err := s.Search(ctx)
	if err != nil {
		return err
	}
	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(res.Results[0])
	return nil
}

// stageFilters makes the pending edits the flags describe.
func stageFilters(ctx context.Context, cmd *cobra.Command, s *session.Session) error {
	m := s.Filters()
	if searchHours != "" {
		h := filters.Hours(searchHours)
		if !h.Valid() {
			return fmt.Errorf("invalid --hours %q", searchHours)
		}
		m.SetPendingHours(h)
	}
	selectEligibilities(m, searchEligibilities)
	d, err := parseDistance(searchRadius)
	if err != nil {
		return err
	}
	m.SetPendingDistance(d)

	latSet, lngSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lng")
	switch {
	case latSet != lngSet:
		return fmt.Errorf("--lat and --lng go together")
	case latSet:
		pt := orb.Point{searchLng, searchLat}
		m.SetPendingLocation(geo.FormatLatLng(pt), &pt)
	case searchLocation != "":
		preds, _ := s.Predict(ctx, searchLocation)
		if len(preds) == 0 {
			return fmt.Errorf("no place matches %q", searchLocation)
		}
		if s.SelectPlace(ctx, preds[0].ID, preds[0].Description) == nil {
			return fmt.Errorf("resolving place %q failed", preds[0].Description)
		}
	}
	return nil
}

// selectEligibilities marks every value as selected. Repeated or already
// selected values stay selected.
func selectEligibilities(m *filters.Machine, values []string) {
	for _, e := range values {
		if e = strings.TrimSpace(e); e != "" && !m.Pending().HasEligibility(e) {
			m.TogglePendingEligibility(e)
		}
	}
}

func parseDistance(s string) (model.Distance, error) {
	if s == "" || strings.EqualFold(s, "all") {
		return model.DistanceAll, nil
	}
	miles, err := strconv.ParseFloat(s, 64)
	if err != nil || miles <= 0 {
		return model.Distance{}, fmt.Errorf("invalid --radius %q: want miles or all", s)
	}
	return model.Miles(miles), nil
}

func parseArea(s string) (geo.Corners, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.Corners{}, fmt.Errorf("invalid --area %q: want neLat,neLng,swLat,swLng", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.Corners{}, fmt.Errorf("invalid --area %q: %w", s, err)
		}
		v[i] = f
	}
	return geo.Corners{NE: orb.Point{v[1], v[0]}, SW: orb.Point{v[3], v[2]}}, nil
}

func printResult(r model.Result) {
	header := lipgloss.NewStyle().Bold(true).Foreground(styles.Primary)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.Muted)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("NAME", "CITY", "CATEGORIES", "DISTANCE")
	for _, h := range r.Hits {
		dist := ""
		if h.RankingInfo != nil && h.RankingInfo.GeoDistance > 0 {
			dist = fmt.Sprintf("%.1f mi", float64(h.RankingInfo.GeoDistance)/model.MetersPerMile)
		}
		t.Row(h.Name, h.City, strings.Join(h.Categories, ", "), dist)
	}
	fmt.Println(t.Render())
	fmt.Fprintf(os.Stderr, "%d hits, page %d of %d\n", r.NbHits, r.Page+1, max(r.NbPages, 1))
}
