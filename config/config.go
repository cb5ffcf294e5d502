// Package config loads CacheFS's construction parameters from either a
// YAML config file (gopkg.in/yaml.v3) or CLI flags
// (github.com/urfave/cli/v2), with the config file taking precedence
// when both are given.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	yaml "gopkg.in/yaml.v3"

	"github.com/akarasulu/cachefs/cache/backend/s3backend"
)

// HTTPBackendConfig configures an httpbackend.Adapter.
type HTTPBackendConfig struct {
	BaseURL string `yaml:"url"`
}

// S3BackendConfig mirrors s3backend.Config for YAML/CLI parsing.
type S3BackendConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Region          string `yaml:"region"`
	DisableSSL      bool   `yaml:"disable_ssl"`
	IAMRoleEndpoint string `yaml:"iam_role_endpoint"`
}

// ToAdapterConfig converts the YAML/CLI shape into s3backend.Config.
func (s S3BackendConfig) ToAdapterConfig() s3backend.Config {
	return s3backend.Config{
		Endpoint:        s.Endpoint,
		Bucket:          s.Bucket,
		Prefix:          s.Prefix,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
		Region:          s.Region,
		DisableSSL:      s.DisableSSL,
		IAMRoleEndpoint: s.IAMRoleEndpoint,
	}
}

// Config holds every construction parameter CacheFS's three core
// components, its backend adapter, and its debug status server need.
type Config struct {
	CacheRoot    string        `yaml:"cache_root"`
	BlockSize    int64         `yaml:"block_size"`
	MaxCacheSize int64         `yaml:"max_cache_size"`
	MetaTTL      time.Duration `yaml:"meta_ttl"`
	DirTTL       time.Duration `yaml:"dir_ttl"`
	NegativeTTL  time.Duration `yaml:"negative_ttl"`
	Debug        bool          `yaml:"debug"`

	HTTPBackend *HTTPBackendConfig `yaml:"http_backend,omitempty"`
	S3Backend   *S3BackendConfig   `yaml:"s3_backend,omitempty"`

	StatusAddress string `yaml:"status_address"`
	HtpasswdFile  string `yaml:"htpasswd_file"`
	AccessLogLevel string `yaml:"access_log_level"`

	// Fields populated after validation, not read directly from YAML/CLI.
	AccessLogger *log.Logger `yaml:"-"`
	ErrorLogger  *log.Logger `yaml:"-"`
}

const defaultBlockSize = 262144

// Get builds a Config from CLI flags, or from a YAML config file if
// --config_file was given.
func Get(ctx *cli.Context) (*Config, error) {
	cfg, err := get(ctx)
	if err != nil {
		return nil, err
	}
	if err := cfg.setLogger(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func get(ctx *cli.Context) (*Config, error) {
	if configFile := ctx.String("config_file"); configFile != "" {
		return newFromYamlFile(configFile)
	}

	c := &Config{
		CacheRoot:      ctx.String("cache_root"),
		BlockSize:      ctx.Int64("block_size"),
		MaxCacheSize:   ctx.Int64("max_cache_size"),
		MetaTTL:        ctx.Duration("meta_ttl"),
		DirTTL:         ctx.Duration("dir_ttl"),
		NegativeTTL:    ctx.Duration("negative_ttl"),
		Debug:          ctx.Bool("debug"),
		StatusAddress:  ctx.String("status_address"),
		HtpasswdFile:   ctx.String("htpasswd_file"),
		AccessLogLevel: ctx.String("access_log_level"),
	}

	if u := ctx.String("http_backend.url"); u != "" {
		c.HTTPBackend = &HTTPBackendConfig{BaseURL: u}
	}
	if b := ctx.String("s3_backend.bucket"); b != "" {
		c.S3Backend = &S3BackendConfig{
			Endpoint:        ctx.String("s3_backend.endpoint"),
			Bucket:          b,
			Prefix:          ctx.String("s3_backend.prefix"),
			AccessKeyID:     ctx.String("s3_backend.access_key_id"),
			SecretAccessKey: ctx.String("s3_backend.secret_access_key"),
			Region:          ctx.String("s3_backend.region"),
			DisableSSL:      ctx.Bool("s3_backend.disable_ssl"),
			IAMRoleEndpoint: ctx.String("s3_backend.iam_role_endpoint"),
		}
	}

	applyDefaults(c)
	if err := validateConfig(c); err != nil {
		return nil, err
	}
	return c, nil
}

func newFromYamlFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %q: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	return newFromYaml(data)
}

func newFromYaml(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	applyDefaults(&c)
	if err := validateConfig(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.BlockSize == 0 {
		c.BlockSize = defaultBlockSize
	}
	if c.MetaTTL == 0 {
		c.MetaTTL = 60 * time.Second
	}
	if c.DirTTL == 0 {
		c.DirTTL = 30 * time.Second
	}
	if c.NegativeTTL == 0 {
		c.NegativeTTL = 2 * time.Second
	}
	if c.AccessLogLevel == "" {
		c.AccessLogLevel = "all"
	}
	if c.StatusAddress == "" {
		c.StatusAddress = "127.0.0.1:8085"
	}
}

func validateConfig(c *Config) error {
	if c.CacheRoot == "" {
		return errors.New("the 'cache_root' flag/key is required")
	}
	if c.BlockSize <= 0 {
		return errors.New("the 'block_size' flag/key must be a positive integer")
	}
	if c.MaxCacheSize < 0 {
		return errors.New("the 'max_cache_size' flag/key must not be negative")
	}

	backendCount := 0
	if c.HTTPBackend != nil {
		backendCount++
	}
	if c.S3Backend != nil {
		backendCount++
	}
	if backendCount > 1 {
		return errors.New("at most one of http_backend/s3_backend may be configured")
	}
	if backendCount == 0 {
		return errors.New("exactly one of http_backend/s3_backend must be configured")
	}

	if c.HTTPBackend != nil && c.HTTPBackend.BaseURL == "" {
		return errors.New("the 'http_backend.url' field is required when http_backend is set")
	}
	if c.S3Backend != nil && c.S3Backend.Bucket == "" {
		return errors.New("the 's3_backend.bucket' field is required when s3_backend is set")
	}

	switch c.AccessLogLevel {
	case "none", "all":
	default:
		return errors.New("'access_log_level' must be set to either \"none\" or \"all\"")
	}

	return nil
}
