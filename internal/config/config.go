// Package config loads geodir's YAML configuration, applies GEODIR_*
// environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Search  SearchConfig  `yaml:"search" json:"search" validate:"required"`
	Geo     GeoConfig     `yaml:"geo" json:"geo"`
	Places  PlacesConfig  `yaml:"places" json:"places"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Network NetworkConfig `yaml:"network" json:"network"`
}

type SearchConfig struct {
	Backend     string `yaml:"backend" json:"backend" validate:"oneof=sqlite algolia"`
	Index       string `yaml:"index" json:"index" validate:"required"`
	DBPath      string `yaml:"db_path" json:"db_path" validate:"required_if=Backend sqlite"`
	AppID       string `yaml:"app_id" json:"app_id" validate:"required_if=Backend algolia"`
	APIKey      string `yaml:"api_key" json:"-" validate:"required_if=Backend algolia"`
	BaseURL     string `yaml:"base_url" json:"base_url" validate:"omitempty,url"`
	HitsPerPage int    `yaml:"hits_per_page" json:"hits_per_page" validate:"gte=1,lte=1000"`
	Concurrency int    `yaml:"concurrency" json:"concurrency" validate:"gte=1,lte=64"`
}

type GeoConfig struct {
	// DefaultLat/DefaultLng are the user location a page starts from. Both
	// zero means no default location.
	DefaultLat         float64 `yaml:"default_lat" json:"default_lat" validate:"gte=-90,lte=90"`
	DefaultLng         float64 `yaml:"default_lng" json:"default_lng" validate:"gte=-180,lte=180"`
	DefaultRadiusMiles float64 `yaml:"default_radius_miles" json:"default_radius_miles" validate:"gte=0"`
	Precision          int     `yaml:"precision" json:"precision" validate:"gte=1"`
	MinimumRadius      int     `yaml:"minimum_radius" json:"minimum_radius" validate:"gte=1"`
	DefaultZoom        int     `yaml:"default_zoom" json:"default_zoom" validate:"gte=1,lte=20"`
	MaxZoom            int     `yaml:"max_zoom" json:"max_zoom" validate:"gte=1,lte=20,gtefield=DefaultZoom"`
	ZoomDelta          int     `yaml:"zoom_delta" json:"zoom_delta" validate:"gte=1"`
	// ServiceArea is an optional GeoJSON file with the regions the
	// directory covers. The TUI map draws it; import can clip to it.
	ServiceArea string `yaml:"service_area" json:"service_area"`
}

type PlacesConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	BaseURL       string  `yaml:"base_url" json:"base_url" validate:"omitempty,url"`
	UserAgent     string  `yaml:"user_agent" json:"user_agent"`
	CountryCodes  string  `yaml:"country_codes" json:"country_codes"`
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second" validate:"gte=0"`
}

type ServerConfig struct {
	Addr       string        `yaml:"addr" json:"addr" validate:"required"`
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl" validate:"gte=0"`
	Metrics    bool          `yaml:"metrics" json:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`
	// File, when set, receives logs instead of stderr.
	File string `yaml:"file" json:"file"`
}

type NetworkConfig struct {
	Timeout     time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
	ProxyURL    string        `yaml:"proxy_url" json:"proxy_url" validate:"omitempty,url"`
	Fingerprint bool          `yaml:"fingerprint" json:"fingerprint"`
}

// HasDefaultLocation reports whether a default user location is configured.
func (g GeoConfig) HasDefaultLocation() bool {
	return g.DefaultLat != 0 || g.DefaultLng != 0
}

func Default() Config {
	return Config{
		Search: SearchConfig{
			Backend:     "sqlite",
			Index:       "listings",
			DBPath:      "geodir.db",
			HitsPerPage: 20,
			Concurrency: 4,
		},
		Geo: GeoConfig{
			Precision:     1600,
			MinimumRadius: 1600,
			DefaultZoom:   13,
			MaxZoom:       17,
			ZoomDelta:     1,
		},
		Places: PlacesConfig{
			Enabled:       true,
			BaseURL:       "https://nominatim.openstreetmap.org",
			UserAgent:     "geodir/0.1",
			RatePerSecond: 1,
		},
		Server: ServerConfig{
			Addr:       ":8080",
			SessionTTL: 30 * time.Minute,
			Metrics:    true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Network: NetworkConfig{
			Timeout:     15 * time.Second,
			Fingerprint: true,
		},
	}
}

var validate = validator.New()

// Load reads path over the defaults, then applies .env and GEODIR_*
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Write stores cfg as YAML at path.
func Write(path string, cfg Config) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Encode(f, cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes cfg as YAML with two-space indentation.
func Encode(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	strs := map[string]*string{
		"GEODIR_SEARCH_BACKEND": &cfg.Search.Backend,
		"GEODIR_SEARCH_INDEX":   &cfg.Search.Index,
		"GEODIR_DB_PATH":        &cfg.Search.DBPath,
		"GEODIR_ALGOLIA_APP_ID": &cfg.Search.AppID,
		"GEODIR_ALGOLIA_KEY":    &cfg.Search.APIKey,
		"GEODIR_ALGOLIA_URL":    &cfg.Search.BaseURL,
		"GEODIR_PLACES_URL":     &cfg.Places.BaseURL,
		"GEODIR_ADDR":           &cfg.Server.Addr,
		"GEODIR_LOG_LEVEL":      &cfg.Log.Level,
		"GEODIR_LOG_FORMAT":     &cfg.Log.Format,
		"GEODIR_LOG_FILE":       &cfg.Log.File,
		"GEODIR_PROXY":          &cfg.Network.ProxyURL,
		"GEODIR_SERVICE_AREA":   &cfg.Geo.ServiceArea,
	}
	for k, dst := range strs {
		if v, ok := lookup(k); ok {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"GEODIR_DEFAULT_LAT":    &cfg.Geo.DefaultLat,
		"GEODIR_DEFAULT_LNG":    &cfg.Geo.DefaultLng,
		"GEODIR_DEFAULT_RADIUS": &cfg.Geo.DefaultRadiusMiles,
	}
	for k, dst := range floats {
		if v, ok := lookup(k); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			*dst = f
		}
	}

	if v, ok := lookup("GEODIR_SESSION_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GEODIR_SESSION_TTL: %w", err)
		}
		cfg.Server.SessionTTL = d
	}
	if v, ok := lookup("GEODIR_PLACES_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GEODIR_PLACES_ENABLED: %w", err)
		}
		cfg.Places.Enabled = b
	}
	return nil
}
