package search

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/rendis/geodir/internal/engine/filters"
	"github.com/rendis/geodir/internal/engine/geo"
	"github.com/rendis/geodir/internal/model"
)

const (
	defaultHitsPerPage = 20
	maxHitsPerPage     = 1000
)

// SQLite is a Backend over a local listings table.
type SQLite struct {
	db          *sql.DB
	mu          sync.Mutex // serialises writers
	concurrency int
	logger      *slog.Logger
}

func OpenSQLite(dbPath string, concurrency int, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db, concurrency: concurrency, logger: logger}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		object_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		address TEXT,
		city TEXT,
		postal_code TEXT,
		phone TEXT,
		website TEXT,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		categories TEXT,
		eligibilities TEXT,
		schedule TEXT,
		open_times TEXT,
		search_text TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_listings_coords ON listings(lat, lng);
	CREATE INDEX IF NOT EXISTS idx_listings_city ON listings(city);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// InsertBatch upserts listings and returns how many rows changed. Listings
// without an object id or with an invalid schedule are skipped.
func (s *SQLite) InsertBatch(ctx context.Context, listings []model.Listing) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO listings
		(object_id, name, description, address, city, postal_code, phone, website,
		 lat, lng, categories, eligibilities, schedule, open_times, search_text)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("preparing stmt: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, l := range listings {
		if l.ObjectID == "" {
			continue
		}
		if len(l.OpenTimes) == 0 && len(l.Schedule) > 0 {
			slots, err := filters.ExpandSchedule(l.Schedule)
			if err != nil {
				s.logger.Warn("skipping listing with bad schedule", "objectID", l.ObjectID, "error", err)
				continue
			}
			l.OpenTimes = slots
		}
		res, err := stmt.ExecContext(ctx,
			l.ObjectID, l.Name, l.Description, l.Address, l.City, l.PostalCode, l.Phone, l.Website,
			l.Lat, l.Lng,
			encodeList(l.Categories), encodeList(l.Eligibilities), encodeList(l.Schedule), encodeList(l.OpenTimes),
			searchText(l),
		)
		if err != nil {
			s.logger.Warn("insert failed", "objectID", l.ObjectID, "error", err)
			continue
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing tx: %w", err)
	}
	return inserted, nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings").Scan(&count)
	return count, err
}

// Listings returns every stored listing ordered by name.
func (s *SQLite) Listings(ctx context.Context) ([]model.Listing, error) {
	return s.query(ctx, "SELECT "+listingColumns+" FROM listings ORDER BY name")
}

func (s *SQLite) Capabilities() Capabilities {
	return Capabilities{
		Name:         KindSQLite,
		GeoSearch:    true,
		Facets:       true,
		MultiQuery:   true,
		MaxHitsPage:  maxHitsPerPage,
		FilterSyntax: "attr:'value' AND OR NOT ( )",
	}
}

func (s *SQLite) Document(ctx context.Context, id string) (*model.Listing, error) {
	ls, err := s.query(ctx, "SELECT "+listingColumns+" FROM listings WHERE object_id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(ls) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &ls[0], nil
}

// Search runs every request concurrently and returns results in request
// order.
func (s *SQLite) Search(ctx context.Context, reqs []model.Request) (*model.Response, error) {
	results := make([]model.Result, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			r, err := s.searchOne(ctx, req.Params)
			if err != nil {
				return fmt.Errorf("request %d (%s): %w", i, req.IndexName, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &model.Response{Results: results}, nil
}

func (s *SQLite) Facets(ctx context.Context, attribute, filter string) ([]model.FacetValue, error) {
	r, err := s.searchOne(ctx, model.Params{Filters: filter, HitsPerPage: 0, Facets: []string{attribute}})
	if err != nil {
		return nil, err
	}
	return FacetValues(r.Facets[attribute]), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scored struct {
	listing  model.Listing
	distance float64 // meters, -1 when unknown
}

func (s *SQLite) searchOne(ctx context.Context, p model.Params) (model.Result, error) {
	start := time.Now()

	expr, err := ParseFilter(p.Filters)
	if err != nil {
		return model.Result{}, err
	}
	constraint, err := geo.FromParams(p)
	if err != nil {
		return model.Result{}, err
	}

	where, args := []string{"1=1"}, []any{}
	if b, ok := constraint.Bound(); ok {
		where = append(where, "lat BETWEEN ? AND ?", "lng BETWEEN ? AND ?")
		args = append(args, b.Min.Lat(), b.Max.Lat(), b.Min.Lon(), b.Max.Lon())
	}
	for _, word := range strings.Fields(Normalize(p.Query)) {
		where = append(where, "search_text LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(word)+"%")
	}

	candidates, err := s.query(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE "+strings.Join(where, " AND "), args...)
	if err != nil {
		return model.Result{}, err
	}

	var matched []scored
	for _, l := range candidates {
		pt := orb.Point{l.Lng, l.Lat}
		if !constraint.Contains(pt) {
			continue
		}
		if !expr.Match(l.Attributes()) {
			continue
		}
		d := -1.0
		if constraint.Kind == geo.KindRadius {
			d = orbgeo.DistanceHaversine(constraint.Center, pt)
		}
		matched = append(matched, scored{listing: l, distance: d})
	}

	slices.SortStableFunc(matched, func(a, b scored) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.listing.Name, b.listing.Name)
	})

	res := model.Result{
		NbHits:      len(matched),
		Page:        max(p.Page, 0),
		HitsPerPage: p.HitsPerPage,
		Hits:        []model.Hit{},
	}
	if res.HitsPerPage < 0 {
		res.HitsPerPage = defaultHitsPerPage
	}
	res.HitsPerPage = min(res.HitsPerPage, maxHitsPerPage)
	if res.HitsPerPage > 0 {
		res.NbPages = int(math.Ceil(float64(res.NbHits) / float64(res.HitsPerPage)))
		from := min(res.Page*res.HitsPerPage, len(matched))
		to := min(from+res.HitsPerPage, len(matched))
		for _, m := range matched[from:to] {
			res.Hits = append(res.Hits, toHit(m))
		}
	}

	if len(p.Facets) > 0 {
		res.Facets = make(map[string]map[string]int, len(p.Facets))
		for _, attr := range p.Facets {
			counts := map[string]int{}
			for _, m := range matched {
				for _, v := range m.listing.Attributes()[attr] {
					if v != "" {
						counts[v]++
					}
				}
			}
			res.Facets[attr] = counts
		}
	}

	res.ProcessingTimeMS = int(time.Since(start).Milliseconds())
	return res, nil
}

func toHit(m scored) model.Hit {
	h := model.Hit{
		Listing: m.listing,
		GeoLoc:  model.GeoLoc{Lat: m.listing.Lat, Lng: m.listing.Lng},
	}
	if m.distance >= 0 {
		h.RankingInfo = &model.RankingInfo{GeoDistance: int(math.Round(m.distance))}
	}
	return h
}

// FacetValues turns a facet count map into values sorted by descending count
// then name.
func FacetValues(counts map[string]int) []model.FacetValue {
	out := make([]model.FacetValue, 0, len(counts))
	for v, n := range counts {
		out = append(out, model.FacetValue{Value: v, Slug: Slug(v), Count: n})
	}
	slices.SortFunc(out, func(a, b model.FacetValue) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	return out
}

const listingColumns = `object_id, name, description, address, city, postal_code, phone, website,
	lat, lng, categories, eligibilities, schedule, open_times`

func (s *SQLite) query(ctx context.Context, q string, args ...any) ([]model.Listing, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying listings: %w", err)
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		var (
			l                                 model.Listing
			desc, addr, city, postal, ph, web sql.NullString
			cats, elig, sched, slots          sql.NullString
		)
		if err := rows.Scan(&l.ObjectID, &l.Name, &desc, &addr, &city, &postal, &ph, &web,
			&l.Lat, &l.Lng, &cats, &elig, &sched, &slots); err != nil {
			return nil, fmt.Errorf("scanning listing: %w", err)
		}
		l.Description, l.Address, l.City = desc.String, addr.String, city.String
		l.PostalCode, l.Phone, l.Website = postal.String, ph.String, web.String
		l.Categories = decodeList(cats.String)
		l.Eligibilities = decodeList(elig.String)
		l.Schedule = decodeList(sched.String)
		l.OpenTimes = decodeList(slots.String)
		out = append(out, l)
	}
	return out, rows.Err()
}

func encodeList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func decodeList(s string) []string {
	if s == "" {
		return nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil || len(v) == 0 {
		return nil
	}
	return v
}

func searchText(l model.Listing) string {
	parts := []string{l.Name, l.Description, l.City}
	parts = append(parts, l.Categories...)
	return Normalize(strings.Join(parts, " "))
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var _ Backend = (*SQLite)(nil)

