// Package config loads the YAML configuration of a docstore deployment and
// turns it into loggers, server settings and open collections.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/guyvdb/docstore/server"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendJSON   = "json"
	BackendBolt   = "bolt"
	BackendMinio  = "minio"
)

type Config struct {
	// ClientAddr is where the broker accepts clients.
	ClientAddr string `yaml:"client_addr"`
	// WorkerAddrs lists one standard endpoint per session worker.
	WorkerAddrs []string `yaml:"worker_addrs"`
	// LockAddr is the lock endpoint of the first worker. Further workers
	// use the following ports.
	LockAddr     string `yaml:"lock_addr"`
	ReadOnly     bool   `yaml:"read_only"`
	PollInterval string `yaml:"poll_interval"`
	Debug        bool   `yaml:"debug"`
	// Gops starts the gops diagnostics agent.
	Gops bool `yaml:"gops"`

	Log         Log                    `yaml:"log"`
	Collections map[string]*Collection `yaml:"collections"`
}

type Log struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Collection configures the storage of one collection.
type Collection struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	CreateDirs bool   `yaml:"create_dirs"`
	CacheSize  int    `yaml:"cache_size"`
	Compress   bool   `yaml:"compress"`

	// minio
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// DefaultConfig serves the collection "db" from db.json with one worker.
func DefaultConfig() *Config {
	return &Config{
		ClientAddr:   "127.0.0.1:5559",
		WorkerAddrs:  []string{"127.0.0.1:5560"},
		LockAddr:     "127.0.0.1:5558",
		PollInterval: server.DefaultPollInterval.String(),
		Log:          Log{Level: "info", Format: "text"},
		Collections: map[string]*Collection{
			"db": {Backend: BackendJSON, Path: "db.json"},
		},
	}
}

// LoadConfig reads path over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults and validates the result. A
// collections section replaces the default collection.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Collections = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Collections == nil {
		cfg.Collections = DefaultConfig().Collections
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ClientAddr == "" {
		return fmt.Errorf("client_addr is required")
	}
	if len(c.WorkerAddrs) == 0 {
		return fmt.Errorf("at least one worker address is required")
	}
	if _, err := c.Poll(); err != nil {
		return err
	}
	if len(c.Collections) == 0 {
		return fmt.Errorf("at least one collection is required")
	}
	for name, coll := range c.Collections {
		if err := coll.Validate(); err != nil {
			return fmt.Errorf("collection %s: %w", name, err)
		}
	}
	for i := range c.WorkerAddrs {
		if err := c.Server(i).Validate(); err != nil {
			return fmt.Errorf("worker %d: %w", i, err)
		}
	}
	return nil
}

// Poll returns the parsed poll interval.
func (c *Config) Poll() (time.Duration, error) {
	if c.PollInterval == "" {
		return server.DefaultPollInterval, nil
	}
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval %q: %w", c.PollInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("poll_interval must be positive")
	}
	return d, nil
}

// Server returns the settings of worker i.
func (c *Config) Server(i int) *server.Config {
	poll, err := c.Poll()
	if err != nil {
		poll = server.DefaultPollInterval
	}
	return &server.Config{
		Addr:         c.WorkerAddrs[i],
		LockAddr:     offsetPort(c.LockAddr, i),
		ReadOnly:     c.ReadOnly,
		PollInterval: poll,
		Debug:        c.Debug,
	}
}

// offsetPort adds i to the port of addr. Port 0 stays 0.
func offsetPort(addr string, i int) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || i == 0 {
		return addr
	}
	n, err := strconv.Atoi(port)
	if err != nil || n == 0 {
		return addr
	}
	return net.JoinHostPort(host, strconv.Itoa(n+i))
}

func (c *Collection) Validate() error {
	switch c.Backend {
	case "", BackendMemory, BackendJSON, BackendBolt:
	case BackendMinio:
		if c.Bucket == "" || c.Endpoint == "" {
			return fmt.Errorf("minio backend needs bucket and endpoint")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative")
	}
	return nil
}
