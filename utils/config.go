package utils

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strconv"
)

var EtcDir = "."
var DataDir = "."

// ServiceConfig holds process-level settings shared by the tile
// binaries.
type ServiceConfig struct {
	TempDir        string `json:"temp_dir"`
	MaxOpenHandles int    `json:"max_open_handles"`
	Verbose        bool   `json:"verbose"`
}

// ReaderConfig holds defaults for the read operations.
type ReaderConfig struct {
	TileSize       int    `json:"tile_size"`
	PreviewMaxSize int    `json:"preview_max_size"`
	TileMatrixSet  string `json:"tile_matrix_set"`
	// MaxConcurrency bounds the per-request variable read fan-out.
	MaxConcurrency int `json:"max_concurrency"`
}

// CacheConfig describes the optional result cache.
type CacheConfig struct {
	MemcacheURI string `json:"memcache_uri"`
	// LocalSize is the in-process cache capacity in bytes. Zero
	// disables the local tier.
	LocalSize     int    `json:"local_size"`
	TTLSeconds    int    `json:"ttl_seconds"`
	JitterSeconds int    `json:"jitter_seconds"`
	Secret        string `json:"secret"`
	Namespace     string `json:"namespace"`
}

// Config is the struct representing the configuration of the tile
// service: process settings, reader defaults and the optional result
// cache.
type Config struct {
	Service ServiceConfig `json:"service"`
	Reader  ReaderConfig  `json:"reader"`
	Cache   CacheConfig   `json:"cache"`
}

// DefaultConfig returns the settings used when no config file is
// supplied.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			MaxOpenHandles: 16,
		},
		Reader: ReaderConfig{
			TileSize:       256,
			PreviewMaxSize: 1024,
			TileMatrixSet:  "WebMercatorQuad",
			MaxConcurrency: 4,
		},
		Cache: CacheConfig{
			TTLSeconds:    3600,
			JitterSeconds: 300,
			Namespace:     "geozarr",
		},
	}
}

// LoadConfig reads settings from a JSON file, then applies environment
// overrides (GEOZARR_MEMCACHE_URI, GEOZARR_CACHE_SECRET,
// GEOZARR_VERBOSE).
func (config *Config) LoadConfig(configFile string, verbose bool) error {
	cfg, err := ioutil.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error while reading config file: %s. Error: %v", configFile, err)
	}

	if err := json.Unmarshal(cfg, config); err != nil {
		return fmt.Errorf("error at JSON parsing config document: %s. Error: %v", configFile, err)
	}

	config.applyEnv()

	if verbose {
		log.Printf("config: loaded %s", configFile)
	}
	return nil
}

func (config *Config) applyEnv() {
	if v := os.Getenv("GEOZARR_MEMCACHE_URI"); v != "" {
		config.Cache.MemcacheURI = v
	}
	if v := os.Getenv("GEOZARR_CACHE_SECRET"); v != "" {
		config.Cache.Secret = v
	}
	if v := os.Getenv("GEOZARR_VERBOSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Service.Verbose = b
		}
	}
}
