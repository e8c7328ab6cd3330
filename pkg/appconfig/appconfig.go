// Package appconfig loads swarmclientd's on-disk configuration: a
// base YAML file overlaid with a .env file's values, the same
// two-layer approach the teacher's config loader uses for its server
// config, generalized to pick up an .env alongside the YAML the way
// the wallet server in the reference pack does (godotenv before
// reading the environment).
package appconfig

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/montana2ab/swarmclient/pkg/common"
)

// Load reads yamlPath into a common.Config seeded with
// common.DefaultConfig()'s values, then loads envPath (if it exists)
// into the process environment and overlays the handful of fields
// swarmclientd commonly overrides per-deployment without editing the
// YAML file: data dir, store path, metrics listen address and log
// level. envPath may be empty, in which case only the YAML file (and
// whatever is already in the environment) applies.
func Load(yamlPath, envPath string) (*common.Config, error) {
	cfg := common.DefaultConfig()

	data, err := os.ReadFile(yamlPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("appconfig: read %s: %w", yamlPath, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("appconfig: parse %s: %w", yamlPath, err)
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("appconfig: load %s: %w", envPath, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *common.Config) {
	if v := os.Getenv("SWARMCLIENT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SWARMCLIENT_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SWARMCLIENT_METRICS_LISTEN_ADDRESS"); v != "" {
		cfg.Metrics.ListenAddress = v
	}
	if v := os.Getenv("SWARMCLIENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
