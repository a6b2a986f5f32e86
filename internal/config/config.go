// Package config declares the env-var-loaded Config for the EDF data access
// service: a DefaultConfig()/Load()/Validate() split producing a flat
// struct, parsed once at startup and threaded through Core.
package config

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config bundles every knob the EDF core and its ambient stack need. Values
// are parsed once at startup; no component reads the environment directly.
type Config struct {
	DataRoot      string
	AllowedRoots  []string
	DDABinaryPath string

	MetadataCacheSize  int
	MetadataTTLSeconds int
	ChunkCacheBytes    int64
	ChunkCacheEntries  int
	HandlePoolSize     int
	HandleTTLSeconds   int

	PreloadEnabled bool
	PreloadWorkers int

	ListenAddr string
	AuthSecret string

	TLSCertFile string
	TLSKeyFile  string

	LogLevel  string
	LogFormat string

	SyntheticMode bool
}

// DefaultConfig returns the bootstrap configuration used when no
// environment overrides are present. It reads real EDF files (SyntheticMode
// off), listens on every interface at :8080, and leaves DDABinaryPath empty,
// so Validate rejects it until a binary path is set or SyntheticMode is on.
func DefaultConfig() *Config {
	return &Config{
		DataRoot:           ".",
		AllowedRoots:       []string{"."},
		DDABinaryPath:      "",
		MetadataCacheSize:  100,
		MetadataTTLSeconds: 3600,
		ChunkCacheBytes:    50 * 1024 * 1024,
		ChunkCacheEntries:  200,
		HandlePoolSize:     5,
		HandleTTLSeconds:   180,
		PreloadEnabled:     true,
		PreloadWorkers:     4,
		ListenAddr:         ":8080",
		AuthSecret:         "",
		TLSCertFile:        "",
		TLSKeyFile:         "",
		LogLevel:           "info",
		LogFormat:          "json",
		SyntheticMode:      false,
	}
}

// Load builds a Config from environment variables, defaulting every unset
// value via DefaultConfig.
func Load() (*Config, error) {
	def := DefaultConfig()

	cfg := &Config{
		DataRoot:           cmp.Or(os.Getenv("EDFHUB_DATA_ROOT"), def.DataRoot),
		DDABinaryPath:      cmp.Or(os.Getenv("EDFHUB_DDA_BINARY_PATH"), def.DDABinaryPath),
		ListenAddr:         cmp.Or(os.Getenv("EDFHUB_LISTEN_ADDR"), def.ListenAddr),
		AuthSecret:         cmp.Or(os.Getenv("EDFHUB_AUTH_SECRET"), def.AuthSecret),
		TLSCertFile:        cmp.Or(os.Getenv("EDFHUB_TLS_CERT_FILE"), def.TLSCertFile),
		TLSKeyFile:         cmp.Or(os.Getenv("EDFHUB_TLS_KEY_FILE"), def.TLSKeyFile),
		LogLevel:           cmp.Or(os.Getenv("EDFHUB_LOG_LEVEL"), def.LogLevel),
		LogFormat:          cmp.Or(os.Getenv("EDFHUB_LOG_FORMAT"), def.LogFormat),
		MetadataCacheSize:  intOr("EDFHUB_METADATA_CACHE_SIZE", def.MetadataCacheSize),
		MetadataTTLSeconds: intOr("EDFHUB_METADATA_TTL_SECONDS", def.MetadataTTLSeconds),
		ChunkCacheBytes:    int64Or("EDFHUB_CHUNK_CACHE_BYTES", def.ChunkCacheBytes),
		ChunkCacheEntries:  intOr("EDFHUB_CHUNK_CACHE_ENTRIES", def.ChunkCacheEntries),
		HandlePoolSize:     intOr("EDFHUB_HANDLE_POOL_SIZE", def.HandlePoolSize),
		HandleTTLSeconds:   intOr("EDFHUB_HANDLE_TTL_SECONDS", def.HandleTTLSeconds),
		PreloadEnabled:     boolOr("EDFHUB_PRELOAD_ENABLED", def.PreloadEnabled),
		PreloadWorkers:     intOr("EDFHUB_PRELOAD_WORKERS", def.PreloadWorkers),
		SyntheticMode:      boolOr("EDFHUB_SYNTHETIC_MODE", def.SyntheticMode),
	}

	if roots := os.Getenv("EDFHUB_ALLOWED_ROOTS"); roots != "" {
		cfg.AllowedRoots = strings.Split(roots, ",")
	} else {
		cfg.AllowedRoots = def.AllowedRoots
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects a Config that would leave the core unable to start.
func (c *Config) Validate() error {
	if c.DataRoot == "" {
		return fmt.Errorf("config: DataRoot must not be empty")
	}
	if len(c.AllowedRoots) == 0 {
		return fmt.Errorf("config: AllowedRoots must contain at least one path")
	}
	if !c.SyntheticMode && c.DDABinaryPath == "" {
		return fmt.Errorf("config: DDABinaryPath must be set unless SyntheticMode is enabled")
	}
	if c.MetadataCacheSize <= 0 || c.ChunkCacheEntries <= 0 || c.HandlePoolSize <= 0 {
		return fmt.Errorf("config: cache sizes must be positive")
	}
	if c.PreloadWorkers <= 0 {
		return fmt.Errorf("config: PreloadWorkers must be positive")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("config: TLSCertFile and TLSKeyFile must both be set or both be empty")
	}
	return nil
}

// TLSEnabled reports whether the server should terminate TLS itself.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// MetadataTTL returns the metadata cache TTL as a time.Duration.
func (c *Config) MetadataTTL() time.Duration {
	return time.Duration(c.MetadataTTLSeconds) * time.Second
}

// HandleTTL returns the handle pool TTL as a time.Duration.
func (c *Config) HandleTTL() time.Duration {
	return time.Duration(c.HandleTTLSeconds) * time.Second
}

// IsAllowedPath reports whether path resolves under one of AllowedRoots.
// This is the hard precondition enforced before any cache or DDA operation.
// Comparison is by clean path segment, not raw string prefix, so
// "/data-evil" is never mistaken for a child of allowed root "/data".
func (c *Config) IsAllowedPath(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range c.AllowedRoots {
		cleanRoot := filepath.Clean(root)
		if clean == cleanRoot || strings.HasPrefix(clean, cleanRoot+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func intOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func int64Or(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func boolOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
