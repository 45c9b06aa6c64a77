package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config is the process-wide configuration for the download engine.
type Config struct {
	Core  CoreConfig
	HTTP  HTTPConfig
	Store StoreConfig
	Muxer MuxerConfig
	Paths PathsConfig
}

// CoreConfig holds the settings-record defaults: the thread count new jobs
// are created with and the engine-level concurrent-job cap the outer layer
// may enforce. The core itself enforces no such cap (spec.md §4.5/§9).
type CoreConfig struct {
	DefaultThreads         int
	MaxConcurrentDownloads int
}

// HTTPConfig holds request header settings. UserAgent is sent on playlist
// and segment requests; Referer is loaded but not read by either fetcher,
// which each send the request URL itself as the referer.
type HTTPConfig struct {
	UserAgent string
	Referer   string
}

// StoreConfig selects and configures the job/settings metadata store.
type StoreConfig struct {
	Driver string // "memory" or "sqlite"
	DSN    string // sqlite file path, ignored for "memory"
}

// MuxerConfig lists where to look for the external muxer binary.
type MuxerConfig struct {
	SearchPaths []string
	BundledPath string
	BinaryName  string
}

// PathsConfig holds the root directories the engine writes under.
type PathsConfig struct {
	BaseDir    string
	OutputRoot string
}

var defaultConfig = Config{
	Core: CoreConfig{
		DefaultThreads:         4,
		MaxConcurrentDownloads: 3,
	},
	HTTP: HTTPConfig{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36",
		Referer:   "",
	},
	Store: StoreConfig{
		Driver: "memory",
		DSN:    "jobs.db",
	},
	Muxer: MuxerConfig{
		SearchPaths: []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/opt/homebrew/bin/ffmpeg",
		},
		BundledPath: "bin/ffmpeg",
		BinaryName:  "ffmpeg",
	},
	Paths: PathsConfig{
		BaseDir:    "data",
		OutputRoot: "data/downloads",
	},
}

// Load assembles configuration from built-in defaults overridden by
// environment variables, then resolves and validates paths.
func Load() (*Config, error) {
	cfg := defaultConfig
	cfg.Muxer.SearchPaths = append([]string(nil), defaultConfig.Muxer.SearchPaths...)

	if err := cfg.loadFromEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	if err := cfg.resolveAndValidatePaths(); err != nil {
		return nil, fmt.Errorf("path validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) loadFromEnvironment() error {
	if val := os.Getenv("ENGINE_DEFAULT_THREADS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			c.Core.DefaultThreads = parsed
		}
	}

	if val := os.Getenv("ENGINE_MAX_CONCURRENT_DOWNLOADS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			c.Core.MaxConcurrentDownloads = parsed
		}
	}

	if val := os.Getenv("ENGINE_OUTPUT_ROOT"); val != "" {
		c.Paths.OutputRoot = val
	}

	if val := os.Getenv("ENGINE_STORE_DRIVER"); val != "" {
		c.Store.Driver = val
	}

	if val := os.Getenv("ENGINE_STORE_DSN"); val != "" {
		c.Store.DSN = val
	}

	if val := os.Getenv("ENGINE_FFMPEG_PATH"); val != "" {
		c.Muxer.BinaryName = val
	}

	if val := os.Getenv("ENGINE_HTTP_REFERER"); val != "" {
		c.HTTP.Referer = val
	}

	return nil
}

func (c *Config) resolveAndValidatePaths() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	// Only join with cwd if path is not already absolute
	if !filepath.IsAbs(c.Paths.BaseDir) {
		c.Paths.BaseDir = filepath.Join(cwd, c.Paths.BaseDir)
	}
	if !filepath.IsAbs(c.Paths.OutputRoot) {
		c.Paths.OutputRoot = filepath.Join(cwd, c.Paths.OutputRoot)
	}
	if c.Store.Driver == "sqlite" && !filepath.IsAbs(c.Store.DSN) {
		c.Store.DSN = filepath.Join(c.Paths.BaseDir, filepath.Base(c.Store.DSN))
	}

	requiredDirs := []string{c.Paths.BaseDir, c.Paths.OutputRoot}
	for _, dir := range requiredDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if c.Core.DefaultThreads < 1 {
		return fmt.Errorf("default thread count must be >= 1")
	}

	if c.Store.Driver != "memory" && c.Store.Driver != "sqlite" {
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	return nil
}

// JobOutputDir returns the directory a job's segment and output files live under.
func (c *Config) JobOutputDir(jobID string) string {
	return filepath.Join(c.Paths.OutputRoot, jobID)
}
