package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/hijabist/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed palettes.yaml
var palettesYAML []byte

// DefaultBackendURL is the prediction/auth backend used when HIJABIST_API_URL is unset.
const DefaultBackendURL = "https://back-end-production-f224.up.railway.app/api"

type Config struct {
	Backend  BackendConfig
	Camera   CameraConfig
	Storage  StorageConfig
	Database DatabaseConfig
	MariaDB  MariaDBConfig
	Web      WebConfig
	Log      LogConfig
	Catalog  Catalog
}

type BackendConfig struct {
	URL     string
	Timeout time.Duration // bounds a combined analysis, 0 disables
}

type CameraConfig struct {
	SnapshotURL string // network camera snapshot endpoint; empty means no camera
	FacingMode  string
}

// Storage drivers for saved analyses.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageMariaDB  = "mariadb"
)

type StorageConfig struct {
	Driver    string // file, postgres or mariadb
	StateFile string // versioned JSON state (session, remembered email, analyses for the file driver)
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type MariaDBConfig struct {
	DSN string // e.g. hijabist:hijabist@tcp(mariadb:3306)/hijabist?parseTime=true
}

type WebConfig struct {
	Port          int
	Host          string
	SessionSecret string
	PublicURL      string   // base URL put into shared links
	AllowedOrigins []string // extra CORS origins besides PublicURL
	RateLimit      float64  // requests per second per visitor on remote-calling endpoints
	RateBurst      int
}

type LogConfig struct {
	Level  string
	Format string
}

// PaletteGroup is a curated season group with an ordered list of hex colors.
type PaletteGroup struct {
	Group  string   `yaml:"group" json:"group"`
	Colors []string `yaml:"colors" json:"colors"`
}

// FaceShapeInfo describes one of the known face shapes.
type FaceShapeInfo struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

// Catalog is the static reference data shipped with the binary.
type Catalog struct {
	GroupNames map[string]string         `yaml:"group_names"`
	Tones      map[string][]PaletteGroup `yaml:"tones"`
	FaceShapes map[string]FaceShapeInfo  `yaml:"face_shapes"`
}

var toneOrder = []string{"light", "medium", "dark"}

// GroupName returns the curated display name of a color group key.
func (c *Catalog) GroupName(key string) (string, bool) {
	name, ok := c.GroupNames[key]
	return name, ok
}

// ToneNames returns tone keys light, medium, dark first, then any others sorted.
func (c *Catalog) ToneNames() []string {
	var names []string
	for _, t := range toneOrder {
		if _, ok := c.Tones[t]; ok {
			names = append(names, t)
		}
	}
	var rest []string
	for t := range c.Tones {
		if !slices.Contains(toneOrder, t) {
			rest = append(rest, t)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

// Palette returns the groups for a tone key (case-insensitive).
func (c *Catalog) Palette(tone string) ([]PaletteGroup, bool) {
	groups, ok := c.Tones[strings.ToLower(strings.TrimSpace(tone))]
	return groups, ok
}

// FaceShapeInfo returns the description of a face shape (case-insensitive).
func (c *Catalog) FaceShapeInfo(shape string) (FaceShapeInfo, bool) {
	info, ok := c.FaceShapes[strings.ToLower(strings.TrimSpace(shape))]
	return info, ok
}

// FaceShapeNames returns the known face shape labels sorted.
func (c *Catalog) FaceShapeNames() []string {
	names := make([]string, 0, len(c.FaceShapes))
	for name := range c.FaceShapes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a Go duration ("90s", "2m"). "0" is accepted and disables
// whatever the duration bounds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if s == "0" {
		return 0
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var items []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// defaultStateFile returns $XDG_CONFIG_HOME/hijabist/state.json (or the OS equivalent).
func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "hijabist-state.json"
	}
	return filepath.Join(dir, "hijabist", "state.json")
}

// LoadCatalog parses the embedded reference data.
func LoadCatalog() Catalog {
	var catalog Catalog
	if err := yaml.Unmarshal(palettesYAML, &catalog); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded palettes.yaml: " + err.Error())
	}
	return catalog
}

func Load() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:     envString("HIJABIST_API_URL", DefaultBackendURL),
			Timeout: envDuration("ANALYSIS_TIMEOUT", constants.DefaultAnalysisTimeout),
		},
		Camera: CameraConfig{
			SnapshotURL: os.Getenv("CAMERA_SNAPSHOT_URL"),
			FacingMode:  envString("CAMERA_FACING_MODE", constants.DefaultFacingMode),
		},
		Storage: StorageConfig{
			Driver:    strings.ToLower(envString("STORAGE_DRIVER", StorageFile)),
			StateFile: envString("HIJABIST_STATE_FILE", defaultStateFile()),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		MariaDB: MariaDBConfig{
			DSN: os.Getenv("MARIADB_DSN"),
		},
		Web: WebConfig{
			Port:           envInt("WEB_PORT", 8080),
			Host:           envString("WEB_HOST", "0.0.0.0"),
			SessionSecret:  os.Getenv("WEB_SESSION_SECRET"),
			PublicURL:      strings.TrimRight(envString("WEB_PUBLIC_URL", "http://localhost:8080"), "/"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			RateLimit:      envFloat("WEB_RATE_LIMIT", 0.5),
			RateBurst:      envInt("WEB_RATE_BURST", 5),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Catalog: LoadCatalog(),
	}
}
