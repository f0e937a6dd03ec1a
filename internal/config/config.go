// Package config loads importer settings from, in decreasing precedence,
// command flags, environment variables, .env files, an optional
// .crmimport.yaml file and built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"crmimport/internal/dedup"
	pipelineerrors "crmimport/internal/errors"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultDBURI       = "mongodb://localhost:27017"
	DefaultDBName      = "crm"
	DefaultCollection  = "contacts"
	DefaultChunkSize   = 50
	DefaultServerAddr  = ":8080"
	DefaultHTTPTimeout = 30 * time.Second
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "auto"
	MaxChunkSize       = 1000
	configFileBaseName = ".crmimport"
)

// Config holds every setting the commands need.
type Config struct {
	DBURI      string
	DBName     string
	Collection string

	// Endpoint, when set, sends chunks over HTTP instead of writing to
	// MongoDB directly.
	Endpoint    string
	HTTPTimeout time.Duration
	ChunkSize   int
	// DedupTie settles duplicates of equal completeness.
	DedupTie dedup.TieRule

	ServerAddr string
	// CORSOrigins lists browser origins allowed to call the server.
	CORSOrigins []string

	LogLevel  string
	LogFormat string

	ConfigFile string
}

// Load reads configuration into a fresh viper instance so repeated calls
// (and tests) do not share state. configFile may be empty.
func Load(configFile string) (*Config, error) {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db_uri", DefaultDBURI)
	v.SetDefault("db_name", DefaultDBName)
	v.SetDefault("db_collection", DefaultCollection)
	v.SetDefault("import_chunk_size", DefaultChunkSize)
	v.SetDefault("import_endpoint", "")
	v.SetDefault("import_http_timeout", DefaultHTTPTimeout)
	v.SetDefault("import_dedup_tie", "incumbent")
	v.SetDefault("server_addr", DefaultServerAddr)
	v.SetDefault("server_cors_origins", []string{"*"})
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName(configFileBaseName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		_ = v.ReadInConfig()
	}

	cfg := &Config{
		DBURI:       v.GetString("db_uri"),
		DBName:      v.GetString("db_name"),
		Collection:  v.GetString("db_collection"),
		Endpoint:    v.GetString("import_endpoint"),
		HTTPTimeout: v.GetDuration("import_http_timeout"),
		ChunkSize:   v.GetInt("import_chunk_size"),
		ServerAddr:  v.GetString("server_addr"),
		CORSOrigins: splitList(v.GetStringSlice("server_cors_origins")),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
		ConfigFile:  v.ConfigFileUsed(),
	}
	tie, err := dedup.ParseTieRule(v.GetString("import_dedup_tie"))
	if err != nil {
		return nil, err
	}
	cfg.DedupTie = tie
	return cfg, cfg.Validate()
}

// Validate checks ranges after all sources are merged.
func (c *Config) Validate() error {
	if c.ChunkSize < 1 || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("chunk size %d out of range 1..%d: %w", c.ChunkSize, MaxChunkSize, pipelineerrors.ErrInvalidInput)
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
