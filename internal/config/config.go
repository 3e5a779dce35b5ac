// Package config provides configuration management for the vidcat server.
// Values are resolved from environment variables first, then an optional
// JSON config file, then built-in defaults. A .env file in the working
// directory is honored if present.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort          = 3000
	DefaultLogLevel      = "info"
	DefaultDataDir       = ".vidcat"
	DefaultBlobContainer = "videos"
	DefaultBlobPartition = "video"
	DefaultSearchIndex   = "videos"
	DefaultPollInterval  = 6 * time.Second

	// Environment variable names
	EnvPort           = "VIDCAT_PORT"
	EnvLogLevel       = "VIDCAT_LOG_LEVEL"
	EnvDataDir        = "VIDCAT_DATA_DIR"
	EnvConfigFile     = "VIDCAT_CONFIG_FILE"
	EnvBlobContainer  = "VIDCAT_BLOB_CONTAINER"
	EnvBlobPartition  = "VIDCAT_BLOB_PARTITION"
	EnvStorageBaseURI = "VIDCAT_STORAGE_BASE_URI"
	EnvSearchURL      = "VIDCAT_SEARCH_URL"
	EnvSearchKey      = "VIDCAT_SEARCH_KEY"
	EnvSearchIndex    = "VIDCAT_SEARCH_INDEX"
	EnvIndexerURL     = "VIDCAT_INDEXER_URL"
	EnvIndexerLoc     = "VIDCAT_INDEXER_LOCATION"
	EnvIndexerSubKey  = "VIDCAT_INDEXER_SUBSCRIPTION_KEY"
	EnvIndexerAccount = "VIDCAT_INDEXER_ACCOUNT_ID"
	EnvPollInterval   = "VIDCAT_POLL_INTERVAL_SECONDS"
	EnvPollMaxAttempt = "VIDCAT_POLL_MAX_ATTEMPTS"

	// Database filename
	DBFilename = "vidcat.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	BlobDir() string
	BlobContainer() string
	BlobPartition() string
	StorageBaseURI() string
	SearchURL() string
	SearchKey() string
	SearchIndex() string
	IndexerURL() string
	IndexerLocation() string
	IndexerSubscriptionKey() string
	IndexerAccountID() string
	PollInterval() time.Duration
	PollMaxAttempts() int
}

// fileConfig mirrors the optional JSON config file. Every field is a
// fallback for the matching environment variable.
type fileConfig struct {
	Port           int    `json:"port"`
	LogLevel       string `json:"logLevel"`
	DataDir        string `json:"dataDir"`
	BlobContainer  string `json:"blobContainer"`
	BlobPartition  string `json:"blobPart"`
	StorageBaseURI string `json:"blobUri"`
	SearchURL      string `json:"searchUrl"`
	SearchKey      string `json:"searchKey"`
	SearchIndex    string `json:"searchIndex"`
	IndexerURL     string `json:"vindexerUrl"`
	IndexerLoc     string `json:"vindexerLocation"`
	IndexerSubKey  string `json:"videoSub"`
	IndexerAccount string `json:"accountId"`
	PollIntervalS  int    `json:"pollIntervalSeconds"`
	PollMaxAttempt int    `json:"pollMaxAttempts"`
}

// EnvConfig resolves configuration from the environment with file fallback
type EnvConfig struct {
	port            int
	logLevel        string
	dataDir         string
	blobContainer   string
	blobPartition   string
	storageBaseURI  string
	searchURL       string
	searchKey       string
	searchIndex     string
	indexerURL      string
	indexerLoc      string
	indexerSubKey   string
	indexerAccount  string
	pollInterval    time.Duration
	pollMaxAttempts int
}

// New creates a new EnvConfig with defaults, config-file fallback and
// environment variable overrides
func New() (*EnvConfig, error) {
	// Best effort; absence of a .env file is the normal case.
	_ = godotenv.Load()

	var file fileConfig
	path := os.Getenv(EnvConfigFile)
	if path == "" {
		path = "config.json"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg := &EnvConfig{
		port:            firstInt(file.Port, DefaultPort),
		logLevel:        firstString(file.LogLevel, DefaultLogLevel),
		dataDir:         firstString(file.DataDir, defaultDataDir()),
		blobContainer:   firstString(file.BlobContainer, DefaultBlobContainer),
		blobPartition:   firstString(file.BlobPartition, DefaultBlobPartition),
		storageBaseURI:  file.StorageBaseURI,
		searchURL:       file.SearchURL,
		searchKey:       file.SearchKey,
		searchIndex:     firstString(file.SearchIndex, DefaultSearchIndex),
		indexerURL:      file.IndexerURL,
		indexerLoc:      file.IndexerLoc,
		indexerSubKey:   file.IndexerSubKey,
		indexerAccount:  file.IndexerAccount,
		pollInterval:    DefaultPollInterval,
		pollMaxAttempts: file.PollMaxAttempt,
	}
	if file.PollIntervalS > 0 {
		cfg.pollInterval = time.Duration(file.PollIntervalS) * time.Second
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	overrideString(&cfg.logLevel, EnvLogLevel)
	overrideString(&cfg.dataDir, EnvDataDir)
	overrideString(&cfg.blobContainer, EnvBlobContainer)
	overrideString(&cfg.blobPartition, EnvBlobPartition)
	overrideString(&cfg.storageBaseURI, EnvStorageBaseURI)
	overrideString(&cfg.searchURL, EnvSearchURL)
	overrideString(&cfg.searchKey, EnvSearchKey)
	overrideString(&cfg.searchIndex, EnvSearchIndex)
	overrideString(&cfg.indexerURL, EnvIndexerURL)
	overrideString(&cfg.indexerLoc, EnvIndexerLoc)
	overrideString(&cfg.indexerSubKey, EnvIndexerSubKey)
	overrideString(&cfg.indexerAccount, EnvIndexerAccount)

	if v := os.Getenv(EnvPollInterval); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 1 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvPollInterval)
		}
		cfg.pollInterval = time.Duration(secs) * time.Second
	}

	if v := os.Getenv(EnvPollMaxAttempt); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %s: must be a non-negative integer", EnvPollMaxAttempt)
		}
		cfg.pollMaxAttempts = n
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// BlobDir returns the root directory of the filesystem blob store
func (c *EnvConfig) BlobDir() string {
	return filepath.Join(c.dataDir, "blobs")
}

// BlobContainer returns the container name that holds all video objects
func (c *EnvConfig) BlobContainer() string {
	return c.blobContainer
}

// BlobPartition returns the partition key shared by all catalogue records
func (c *EnvConfig) BlobPartition() string {
	return c.blobPartition
}

// StorageBaseURI returns the public base URI of the blob store. When empty,
// URLs are served relative to the blob store root.
func (c *EnvConfig) StorageBaseURI() string {
	return c.storageBaseURI
}

func (c *EnvConfig) SearchURL() string {
	return c.searchURL
}

func (c *EnvConfig) SearchKey() string {
	return c.searchKey
}

func (c *EnvConfig) SearchIndex() string {
	return c.searchIndex
}

func (c *EnvConfig) IndexerURL() string {
	return c.indexerURL
}

func (c *EnvConfig) IndexerLocation() string {
	return c.indexerLoc
}

func (c *EnvConfig) IndexerSubscriptionKey() string {
	return c.indexerSubKey
}

func (c *EnvConfig) IndexerAccountID() string {
	return c.indexerAccount
}

// PollInterval returns the delay between indexing status checks
func (c *EnvConfig) PollInterval() time.Duration {
	return c.pollInterval
}

// PollMaxAttempts returns the poll ceiling per job; zero means unbounded
func (c *EnvConfig) PollMaxAttempts() int {
	return c.pollMaxAttempts
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func firstString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func firstInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
