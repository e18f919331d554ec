package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".ansibot"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("ANSIBOT_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults. A .env file in the working
// directory is side-loaded first so local runs mirror deployed ones.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	_ = godotenv.Load()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	envconfig.Process("ANSIBOT_PATHS", &cfg.Paths)
	envconfig.Process("ANSIBOT_CONTROLLER", &cfg.Controller)
	envconfig.Process("ANSIBOT_PLANNER", &cfg.Planner)
	envconfig.Process("ANSIBOT_REASONER", &cfg.Reasoner)
	envconfig.Process("ANSIBOT_AGENT", &cfg.Agent)
	envconfig.Process("ANSIBOT_SESSION", &cfg.Session)
	envconfig.Process("ANSIBOT_SLACK", &cfg.Channels.Slack)
	envconfig.Process("ANSIBOT_AUDIT", &cfg.Audit)

	// Fallback for a shared API key across both model endpoints.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.Planner.APIKey == "" {
			cfg.Planner.APIKey = key
		}
		if cfg.Reasoner.APIKey == "" {
			cfg.Reasoner.APIKey = key
		}
	}

	expandHome(&cfg.Paths.DataDir)

	return cfg, nil
}

func expandHome(p *string) {
	if strings.HasPrefix(*p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			*p = filepath.Join(home, (*p)[1:])
		}
	}
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureDir ensures a directory exists with proper permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
