// Package config loads blobstored settings from a TOML file layered with
// BLOBSTORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"blobstore/internal/blob"
)

type Config struct {
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
	Blob   BlobConfig   `toml:"blob"`
}

type ServerConfig struct {
	ListenAddr   string `toml:"listen_addr"`
	Pprof        bool   `toml:"pprof"`
	DrainSeconds int64  `toml:"drain_seconds"`
	// TraceJSON names a file receiving one JSON line per service operation.
	TraceJSON string `toml:"trace_json"`
}

type LogConfig struct {
	JSON    bool   `toml:"json"`
	Debug   bool   `toml:"debug"`
	UID     bool   `toml:"uid"`
	Service string `toml:"service"`
}

type BlobConfig struct {
	Driver string    `toml:"driver"`
	FSRoot string    `toml:"fs_root"`
	SQL    SQLConfig `toml:"sql"`
	S3     S3Config  `toml:"s3"`
}

type SQLConfig struct {
	Dialect  string `toml:"dialect"`
	Root     string `toml:"root"`
	File     string `toml:"file"`
	DSN      string `toml:"dsn"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type S3Config struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	PathStyle bool   `toml:"path_style"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   "127.0.0.1:8080",
			DrainSeconds: 45,
		},
		Log: LogConfig{
			Service: "blobstored",
		},
		Blob: BlobConfig{
			Driver: string(blob.DefaultDriver),
			SQL: SQLConfig{
				Dialect: string(blob.SQLDialectSQLite),
			},
		},
	}
}

// Load reads path (a missing file yields the defaults), overlays the
// environment and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays the BLOBSTORE_* variables understood by blob.ApplyEnv.
func (c *Config) ApplyEnv() error {
	bc, err := blob.ApplyEnv(c.BlobStore())
	if err != nil {
		return err
	}
	c.Blob = BlobConfig{
		Driver: string(bc.Driver),
		FSRoot: bc.FSRoot,
		SQL: SQLConfig{
			Dialect:  string(bc.SQL.Dialect),
			Root:     bc.SQL.Root,
			File:     bc.SQL.File,
			DSN:      bc.SQL.DSN,
			Username: bc.SQL.Username,
			Password: bc.SQL.Password,
		},
		S3: S3Config{
			Endpoint:  bc.S3.Endpoint,
			Region:    bc.S3.Region,
			Bucket:    bc.S3.Bucket,
			Prefix:    bc.S3.Prefix,
			PathStyle: bc.S3.PathStyle,
		},
	}
	return nil
}

func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:8080"
	}
	if c.Log.Service == "" {
		c.Log.Service = "blobstored"
	}
	if c.Blob.Driver == "" {
		c.Blob.Driver = string(blob.DefaultDriver)
	}
	if c.Blob.SQL.Dialect == "" {
		c.Blob.SQL.Dialect = string(blob.SQLDialectSQLite)
	}
}

func (c *Config) Normalize() {
	c.Server.ListenAddr = strings.TrimSpace(c.Server.ListenAddr)
	c.Blob.Driver = strings.ToLower(strings.TrimSpace(c.Blob.Driver))
	c.Blob.FSRoot = strings.TrimSpace(c.Blob.FSRoot)
	c.Blob.SQL.Dialect = strings.ToLower(strings.TrimSpace(c.Blob.SQL.Dialect))
	c.Blob.SQL.Root = strings.TrimSpace(c.Blob.SQL.Root)
	c.Blob.SQL.File = strings.TrimSpace(c.Blob.SQL.File)
	c.Blob.S3.Bucket = strings.TrimSpace(c.Blob.S3.Bucket)
	if c.Blob.S3.Prefix != "" && !strings.HasSuffix(c.Blob.S3.Prefix, "/") {
		c.Blob.S3.Prefix += "/"
	}
}

func (c *Config) Validate() error {
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverSQL, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return errors.New("blob.s3.bucket is required when driver is s3")
		}
	default:
		return fmt.Errorf("blob.driver must be fs, sql, s3, or memory (got %q)", c.Blob.Driver)
	}
	switch blob.SQLDialect(c.Blob.SQL.Dialect) {
	case blob.SQLDialectSQLite, blob.SQLDialectPostgres:
	default:
		return fmt.Errorf("blob.sql.dialect must be sqlite or postgres (got %q)", c.Blob.SQL.Dialect)
	}
	if c.Server.DrainSeconds < 0 {
		return errors.New("server.drain_seconds must not be negative")
	}
	return nil
}

// BlobStore converts the blob section into the backend selector's config.
func (c *Config) BlobStore() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		SQL: blob.SQLConfig{
			Dialect:  blob.SQLDialect(c.Blob.SQL.Dialect),
			Root:     c.Blob.SQL.Root,
			File:     c.Blob.SQL.File,
			DSN:      c.Blob.SQL.DSN,
			Username: c.Blob.SQL.Username,
			Password: c.Blob.SQL.Password,
		},
		S3: blob.S3Config{
			Endpoint:  c.Blob.S3.Endpoint,
			Region:    c.Blob.S3.Region,
			Bucket:    c.Blob.S3.Bucket,
			Prefix:    c.Blob.S3.Prefix,
			PathStyle: c.Blob.S3.PathStyle,
		},
	}
}
