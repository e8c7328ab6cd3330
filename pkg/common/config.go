package common

import "time"

// Config is the on-disk (YAML) configuration for swarmclientd, loaded
// by pkg/appconfig. Shape follows the teacher's common.Config: one
// struct of nested, tagged structs per subsystem.
type Config struct {
	DataDir string `yaml:"data_dir"`

	Network struct {
		SeedURLs       []string      `yaml:"seed_urls"`
		InsecureTLS    bool          `yaml:"insecure_tls"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		PathTTL        time.Duration `yaml:"path_ttl"`
		ErrorCooldown  time.Duration `yaml:"error_cooldown"`
	} `yaml:"network"`

	RateLimit struct {
		PerNodeRPS   int `yaml:"per_node_rps"`
		PerNodeBurst int `yaml:"per_node_burst"`
	} `yaml:"rate_limit"`

	Batch struct {
		WindowDuration time.Duration `yaml:"window_duration"`
		QueueCapacity  int           `yaml:"queue_capacity"`
	} `yaml:"batch"`

	Sync struct {
		DefaultPollInterval time.Duration `yaml:"default_poll_interval"`
		GroupPollInterval   time.Duration `yaml:"group_poll_interval"`
		PushRetryDelay      time.Duration `yaml:"push_retry_delay"`
	} `yaml:"sync"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	Metrics struct {
		Enabled       bool   `yaml:"enabled"`
		ListenAddress string `yaml:"listen_address"`
	} `yaml:"metrics"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns sane defaults, the values used when a field is
// absent from the YAML file.
func DefaultConfig() *Config {
	c := &Config{DataDir: "./data"}
	c.Network.SeedURLs = nil
	c.Network.RequestTimeout = 10 * time.Second
	c.Network.PathTTL = 24 * time.Hour
	c.Network.ErrorCooldown = 5 * time.Second
	c.RateLimit.PerNodeRPS = 20
	c.RateLimit.PerNodeBurst = 40
	c.Batch.WindowDuration = 100 * time.Millisecond
	c.Batch.QueueCapacity = 25
	c.Sync.DefaultPollInterval = 3 * time.Second
	c.Sync.GroupPollInterval = 10 * time.Second
	c.Sync.PushRetryDelay = 5 * time.Second
	c.Store.Path = "./data/swarmclient.db"
	c.Metrics.Enabled = true
	c.Metrics.ListenAddress = "127.0.0.1:9469"
	c.Logging.Level = "info"
	c.Logging.Format = "text"
	return c
}
